package database

import (
	"context"
	"fmt"

	"github.com/tantalor/netlify-file-server/pkg/config"
	"github.com/tantalor/netlify-file-server/pkg/storage/database/gorm"
	"github.com/tantalor/netlify-file-server/pkg/storage/database/models"
)

// ErrStore wraps any storage-level fault. Administrative commands surface it
// verbatim and abort; nothing is retried.
var ErrStore = models.ErrStore

type Database interface {
	// EnsureUserKey creates the user with a fresh key, or rotates the key
	// of an existing user. The previous key is invalid as soon as this
	// returns; deployed gates keep honoring it until the next build.
	EnsureUserKey(ctx context.Context, email string) (key string, created bool, err error)

	// LookupUser resolves a subject by email or by current API key.
	LookupUser(ctx context.Context, spec string) (models.User, bool, error)

	// AddGrant records that userID (nil for the public grant) may read
	// filePath. Reports added=false when the grant already exists.
	AddGrant(ctx context.Context, userID *uint, filePath string) (added bool, err error)

	// RevokeGrant removes a single grant. A public revoke never touches
	// per-user grants for the same path.
	RevokeGrant(ctx context.Context, userID *uint, filePath string) (removed bool, err error)

	ListGrants(ctx context.Context) ([]models.GrantRow, error)

	// Snapshot reads the whole store as it exists now.
	Snapshot(ctx context.Context) (models.Snapshot, error)

	HealthCheck() error
}

func NewConnection(conf config.Database) (Database, error) {
	switch conf.Type {
	case "", "sqlite":
		return gorm.NewGorm(conf)
	}
	return nil, fmt.Errorf("unknown database type: %s", conf.Type)
}
