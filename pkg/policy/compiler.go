package policy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/template"
	"time"

	_ "embed"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tantalor/netlify-file-server/pkg/config"
	"github.com/tantalor/netlify-file-server/pkg/storage/database"
)

// ErrCompile wraps serialization and write failures during build. When build
// fails the previous generated source is left untouched.
var ErrCompile = errors.New("policy compile failed")

//go:embed gate.go.tmpl
var gateTemplate string

type Compiler struct {
	db         database.Database
	outputFile string
	tmpl       *template.Template
}

func NewCompiler(db database.Database, conf config.Compiler) *Compiler {
	return &Compiler{
		db:         db,
		outputFile: conf.OutputFile,
		tmpl:       template.Must(template.New("gate").Parse(gateTemplate)),
	}
}

type templateData struct {
	Version     string
	GeneratedAt string
	Data        string
}

// Build snapshots the store, compiles the artifact, and replaces the gate's
// generated source file. The write is atomic: the rendered source goes to a
// temporary file in the target directory and is renamed into place, so a
// concurrent reader sees either the old artifact or the new one, never a
// partial write.
func (c *Compiler) Build(ctx context.Context) (Artifact, string, error) {
	snap, err := c.db.Snapshot(ctx)
	if err != nil {
		return Artifact{}, "", err
	}

	artifact := Export(snap)
	data, err := artifact.JSON()
	if err != nil {
		return Artifact{}, "", fmt.Errorf("%w: %v", ErrCompile, err)
	}

	version := uuid.NewString()
	td := templateData{
		Version:     version,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Data:        strconv.Quote(string(data)),
	}

	if err := c.writeAtomic(td); err != nil {
		return Artifact{}, "", fmt.Errorf("%w: %v", ErrCompile, err)
	}

	log.Info().
		Str("version", version).
		Str("output", c.outputFile).
		Int("api_keys", len(artifact.APIKeys)).
		Int("public_files", len(artifact.PublicFiles)).
		Int("grants", len(artifact.Grants)).
		Msg("Compiled policy artifact")

	return artifact, version, nil
}

func (c *Compiler) writeAtomic(td templateData) error {
	dir := filepath.Dir(c.outputFile)

	tmp, err := os.CreateTemp(dir, ".policy-*.go")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if err := c.tmpl.Execute(tmp, td); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, c.outputFile); err != nil {
		os.Remove(tmpName)
		return err
	}

	return nil
}
