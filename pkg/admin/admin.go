package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tantalor/netlify-file-server/pkg/policy"
	"github.com/tantalor/netlify-file-server/pkg/storage/database"
	"github.com/tantalor/netlify-file-server/pkg/storage/database/models"
)

// ErrUsage marks malformed command input. The CLI prints usage and exits
// without touching the store.
var ErrUsage = errors.New("invalid command input")

// Tool implements the administrative commands. One operator, one command at
// a time; every mutation is a blocking local store call.
type Tool struct {
	db       database.Database
	compiler *policy.Compiler
	out      io.Writer
}

func NewTool(db database.Database, compiler *policy.Compiler, out io.Writer) *Tool {
	return &Tool{
		db:       db,
		compiler: compiler,
		out:      out,
	}
}

// NewKey creates the user (emails only) or rotates the key of an existing
// user addressed by email or current key. The old key stops working in the
// store immediately; deployed gates accept it until the next build.
func (t *Tool) NewKey(ctx context.Context, spec string) error {
	user, found, err := t.db.LookupUser(ctx, spec)
	if err != nil {
		return err
	}

	if !found {
		if !strings.Contains(spec, "@") {
			return fmt.Errorf("%w: unknown user %q", ErrUsage, spec)
		}
		key, _, err := t.db.EnsureUserKey(ctx, spec)
		if err != nil {
			return err
		}
		fmt.Fprintf(t.out, "User '%s' added successfully. Generated API Key: %s\n", spec, key)
		return nil
	}

	key, _, err := t.db.EnsureUserKey(ctx, user.Email)
	if err != nil {
		return err
	}
	fmt.Fprintf(t.out, "New key generated for user '%s'. New API Key: %s\n", user.Email, key)
	return nil
}

// resolveSubject maps a command-line subject to a grant subject: "all" is
// the public sentinel, an email is created on first reference, anything
// else must be the current key of an existing user.
func (t *Tool) resolveSubject(ctx context.Context, spec string) (*uint, error) {
	if spec == models.PublicSubject {
		return nil, nil
	}

	user, found, err := t.db.LookupUser(ctx, spec)
	if err != nil {
		return nil, err
	}

	// An unknown email is created on first reference. Granting to an
	// existing email must not touch their key.
	if !found && strings.Contains(spec, "@") {
		key, _, err := t.db.EnsureUserKey(ctx, spec)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(t.out, "User '%s' added successfully. Generated API Key: %s\n", spec, key)

		user, found, err = t.db.LookupUser(ctx, spec)
		if err != nil {
			return nil, err
		}
	}

	if !found {
		return nil, fmt.Errorf("%w: unknown user %q", ErrUsage, spec)
	}

	id := user.ID
	return &id, nil
}

func (t *Tool) AddGrant(ctx context.Context, spec string, filePath string) error {
	userID, err := t.resolveSubject(ctx, spec)
	if err != nil {
		return err
	}

	added, err := t.db.AddGrant(ctx, userID, filePath)
	if err != nil {
		return err
	}
	if added {
		fmt.Fprintln(t.out, "Added grant")
	} else {
		fmt.Fprintln(t.out, "Grant already exists")
	}
	return nil
}

func (t *Tool) RevokeGrant(ctx context.Context, spec string, filePath string) error {
	var userID *uint

	if spec != models.PublicSubject {
		user, found, err := t.db.LookupUser(ctx, spec)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: unknown user %q", ErrUsage, spec)
		}
		id := user.ID
		userID = &id
	}

	removed, err := t.db.RevokeGrant(ctx, userID, filePath)
	if err != nil {
		return err
	}
	if removed {
		fmt.Fprintln(t.out, "Successfully revoked grant")
	} else {
		fmt.Fprintln(t.out, "Error: failed to revoke grant")
	}
	return nil
}

// PrintGrants lists every grant in a comma-separated form. Public grants
// carry NULL in the email and key columns.
func (t *Tool) PrintGrants(ctx context.Context) error {
	rows, err := t.db.ListGrants(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(t.out, "Email, Api Key, File Path")
	for _, row := range rows {
		email := row.Email
		key := row.APIKey
		if email == "" {
			email = "NULL"
		}
		if key == "" {
			key = "NULL"
		}
		fmt.Fprintf(t.out, "%s, %s, %s\n", email, key, row.FilePath)
	}
	return nil
}

// Export prints the compiled artifact JSON without writing the gate source.
func (t *Tool) Export(ctx context.Context) error {
	snap, err := t.db.Snapshot(ctx)
	if err != nil {
		return err
	}

	data, err := policy.Export(snap).JSON()
	if err != nil {
		return fmt.Errorf("%w: %v", policy.ErrCompile, err)
	}

	fmt.Fprintln(t.out, string(data))
	return nil
}

// Build compiles the store into the gate's generated source file.
func (t *Tool) Build(ctx context.Context) error {
	_, version, err := t.compiler.Build(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(t.out, "Built policy artifact %s\n", version)
	return nil
}

// Seed loads the fixture data used for manual testing.
func (t *Tool) Seed(ctx context.Context) error {
	fixtures := []struct {
		subject  string
		filePath string
	}{
		{"bob@example.com", "test1.csv"},
		{"alice@example.com", "test2.csv"},
		{models.PublicSubject, "test3.csv"},
	}

	for _, f := range fixtures {
		if err := t.AddGrant(ctx, f.subject, f.filePath); err != nil {
			return err
		}
	}
	return nil
}
