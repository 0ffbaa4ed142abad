package admin_test

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tantalor/netlify-file-server/pkg/admin"
	"github.com/tantalor/netlify-file-server/pkg/config"
	"github.com/tantalor/netlify-file-server/pkg/gate"
	"github.com/tantalor/netlify-file-server/pkg/policy"
	"github.com/tantalor/netlify-file-server/pkg/storage/database"
)

type fixture struct {
	tool *admin.Tool
	db   database.Database
	out  *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.NewConnection(config.Database{
		Type: "sqlite",
		Settings: map[string]any{
			"dsn": fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		},
	})
	require.NoError(t, err)

	out := &bytes.Buffer{}
	compiler := policy.NewCompiler(db, config.Compiler{
		OutputFile: filepath.Join(t.TempDir(), "policy_gen.go"),
	})

	return &fixture{
		tool: admin.NewTool(db, compiler, out),
		db:   db,
		out:  out,
	}
}

// lastKey pulls the most recently printed API key out of command output.
func (f *fixture) lastKey(t *testing.T) string {
	t.Helper()

	const marker = "API Key: "
	output := f.out.String()
	i := strings.LastIndex(output, marker)
	require.GreaterOrEqual(t, i, 0, "no API key in output: %q", output)
	return strings.TrimSpace(output[i+len(marker):])
}

// compile exports the store the way build embeds it and hands the artifact
// to the gate's decoder.
func (f *fixture) compile(t *testing.T) *gate.Policy {
	t.Helper()

	snap, err := f.db.Snapshot(context.Background())
	require.NoError(t, err)
	data, err := policy.Export(snap).JSON()
	require.NoError(t, err)

	p, err := gate.ParsePolicy(data)
	require.NoError(t, err)
	return p
}

func TestUserGrantFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.tool.NewKey(ctx, "bob@example.com"))
	assert.Contains(t, f.out.String(), "User 'bob@example.com' added successfully")
	k1 := f.lastKey(t)

	require.NoError(t, f.tool.AddGrant(ctx, "bob@example.com", "file1.csv"))
	assert.Contains(t, f.out.String(), "Added grant")

	p := f.compile(t)
	assert.True(t, p.Authorize(k1, "/file1.csv"))
	assert.False(t, p.Authorize(k1, "/file2.csv"))
}

func TestPublicGrantFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.tool.NewKey(ctx, "bob@example.com"))
	bobKey := f.lastKey(t)
	require.NoError(t, f.tool.NewKey(ctx, "alice@example.com"))
	aliceKey := f.lastKey(t)

	require.NoError(t, f.tool.AddGrant(ctx, "all", "file2.csv"))

	p := f.compile(t)
	assert.True(t, p.Authorize(bobKey, "/file2.csv"))
	assert.True(t, p.Authorize(aliceKey, "/file2.csv"))
	assert.False(t, p.Authorize("guessed", "/file2.csv"))
}

func TestKeyRotationInvalidatesOldKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.tool.NewKey(ctx, "bob@example.com"))
	k1 := f.lastKey(t)
	require.NoError(t, f.tool.AddGrant(ctx, "bob@example.com", "file1.csv"))

	require.NoError(t, f.tool.NewKey(ctx, "bob@example.com"))
	assert.Contains(t, f.out.String(), "New key generated for user 'bob@example.com'")
	k2 := f.lastKey(t)
	assert.NotEqual(t, k1, k2)

	p := f.compile(t)
	assert.False(t, p.Authorize(k1, "/file1.csv"))
	assert.True(t, p.Authorize(k2, "/file1.csv"))
}

func TestNewKeyBySpec(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("rotate by current key", func(t *testing.T) {
		require.NoError(t, f.tool.NewKey(ctx, "bob@example.com"))
		k1 := f.lastKey(t)

		require.NoError(t, f.tool.NewKey(ctx, k1))
		assert.Contains(t, f.out.String(), "New key generated for user 'bob@example.com'")
		assert.NotEqual(t, k1, f.lastKey(t))
	})

	t.Run("unknown non-email spec fails", func(t *testing.T) {
		err := f.tool.NewKey(ctx, "not-a-key")
		assert.ErrorIs(t, err, admin.ErrUsage)
	})
}

func TestAddGrantIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.tool.AddGrant(ctx, "bob@example.com", "file1.csv"))
	f.out.Reset()
	require.NoError(t, f.tool.AddGrant(ctx, "bob@example.com", "file1.csv"))
	assert.Contains(t, f.out.String(), "Grant already exists")
}

func TestAddGrantKeepsExistingKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.tool.NewKey(ctx, "bob@example.com"))
	k1 := f.lastKey(t)

	require.NoError(t, f.tool.AddGrant(ctx, "bob@example.com", "file1.csv"))

	p := f.compile(t)
	assert.True(t, p.Authorize(k1, "/file1.csv"))
}

func TestAddGrantUnknownSubject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	err := f.tool.AddGrant(ctx, "nosuchkey", "file1.csv")
	assert.ErrorIs(t, err, admin.ErrUsage)

	// Nothing was written.
	p := f.compile(t)
	assert.False(t, p.Authorize("nosuchkey", "/file1.csv"))
}

func TestRevokeGrant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.tool.NewKey(ctx, "bob@example.com"))
	key := f.lastKey(t)
	require.NoError(t, f.tool.AddGrant(ctx, "bob@example.com", "file1.csv"))
	require.NoError(t, f.tool.AddGrant(ctx, "all", "file1.csv"))

	t.Run("public revoke keeps user grant", func(t *testing.T) {
		require.NoError(t, f.tool.RevokeGrant(ctx, "all", "file1.csv"))
		assert.Contains(t, f.out.String(), "Successfully revoked grant")

		p := f.compile(t)
		assert.True(t, p.Authorize(key, "/file1.csv"))
	})

	t.Run("user revoke removes access", func(t *testing.T) {
		require.NoError(t, f.tool.RevokeGrant(ctx, "bob@example.com", "file1.csv"))

		p := f.compile(t)
		assert.False(t, p.Authorize(key, "/file1.csv"))
	})

	t.Run("revoking nothing reports failure", func(t *testing.T) {
		f.out.Reset()
		require.NoError(t, f.tool.RevokeGrant(ctx, "bob@example.com", "file1.csv"))
		assert.Contains(t, f.out.String(), "Error: failed to revoke grant")
	})
}

func TestPrintGrants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.tool.NewKey(ctx, "bob@example.com"))
	key := f.lastKey(t)
	require.NoError(t, f.tool.AddGrant(ctx, "bob@example.com", "file1.csv"))
	require.NoError(t, f.tool.AddGrant(ctx, "all", "file2.csv"))

	f.out.Reset()
	require.NoError(t, f.tool.PrintGrants(ctx))

	output := f.out.String()
	assert.Contains(t, output, "Email, Api Key, File Path")
	assert.Contains(t, output, fmt.Sprintf("bob@example.com, %s, file1.csv", key))
	assert.Contains(t, output, "NULL, NULL, file2.csv")
}

func TestExportCommand(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.tool.AddGrant(ctx, "all", "file2.csv"))
	f.out.Reset()
	require.NoError(t, f.tool.Export(ctx))

	assert.Contains(t, f.out.String(), `"public_files":["file2.csv"]`)
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.tool.Seed(ctx))

	rows, err := f.db.ListGrants(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestBuildCommand(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.tool.AddGrant(ctx, "all", "file2.csv"))
	f.out.Reset()
	require.NoError(t, f.tool.Build(ctx))
	assert.Contains(t, f.out.String(), "Built policy artifact")
}
