package gorm

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tantalor/netlify-file-server/pkg/config"
	"github.com/tantalor/netlify-file-server/pkg/storage/database/models"
	"github.com/tantalor/netlify-file-server/pkg/util"
)

type Gorm struct {
	DSN string `mapstructure:"dsn"`
	db  *gorm.DB
}

func NewGorm(conf config.Database) (*Gorm, error) {
	rc := util.ConfigToStruct[Gorm](conf.Settings)
	if rc.DSN == "" {
		rc.DSN = "userfiles.db"
	}

	db, err := gorm.Open(sqlite.Open(rc.DSN), &gorm.Config{})
	if err != nil {
		return nil, storeErr(err)
	}
	rc.db = db

	err = db.AutoMigrate(
		&models.User{},
		&models.Grant{},
	)
	if err != nil {
		return nil, storeErr(err)
	}

	return rc, nil
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", models.ErrStore, err)
}

func (s *Gorm) HealthCheck() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return storeErr(err)
	}
	if err := sqlDB.Ping(); err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *Gorm) EnsureUserKey(ctx context.Context, email string) (string, bool, error) {
	key, err := util.GenerateAPIKey()
	if err != nil {
		return "", false, storeErr(err)
	}

	var created bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		res := tx.Where(models.User{Email: email}).
			Attrs(models.User{APIKey: key}).
			FirstOrCreate(&user)
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected == 1 {
			created = true
			return nil
		}

		// Existing user: overwrite the stored key. The old key is dead
		// from this point on, though deployed gates keep accepting it
		// until the next build.
		res = tx.Model(&user).Update("api_key", key)
		return res.Error
	})
	if err != nil {
		return "", false, storeErr(err)
	}

	return key, created, nil
}

func (s *Gorm) LookupUser(ctx context.Context, spec string) (models.User, bool, error) {
	var user models.User

	res := s.db.WithContext(ctx).First(&user, "email = ? OR api_key = ?", spec, spec)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return models.User{}, false, nil
		}
		return models.User{}, false, storeErr(res.Error)
	}

	return user, true, nil
}

func (s *Gorm) AddGrant(ctx context.Context, userID *uint, filePath string) (bool, error) {
	var added bool

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findGrant(tx, userID, filePath)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}

		added = true
		return tx.Create(&models.Grant{UserID: userID, FilePath: filePath}).Error
	})
	if err != nil {
		return false, storeErr(err)
	}

	return added, nil
}

func (s *Gorm) RevokeGrant(ctx context.Context, userID *uint, filePath string) (bool, error) {
	var removed bool

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findGrant(tx, userID, filePath)
		if err != nil {
			return err
		}
		if existing == nil {
			return nil
		}

		removed = true
		return tx.Unscoped().Delete(existing).Error
	})
	if err != nil {
		return false, storeErr(err)
	}

	return removed, nil
}

// findGrant matches on the exact subject: a nil userID matches only the
// public row, never a user row. SQLite treats NULLs as distinct in unique
// indexes, so public-grant idempotency depends on this check.
func findGrant(tx *gorm.DB, userID *uint, filePath string) (*models.Grant, error) {
	var grant models.Grant

	q := tx.Where("file_path = ?", filePath)
	if userID == nil {
		q = q.Where("user_id IS NULL")
	} else {
		q = q.Where("user_id = ?", *userID)
	}

	res := q.First(&grant)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, res.Error
	}

	return &grant, nil
}

func (s *Gorm) ListGrants(ctx context.Context) ([]models.GrantRow, error) {
	var grants []models.Grant

	res := s.db.WithContext(ctx).Preload("User").Order("grants.id").Find(&grants)
	if res.Error != nil {
		return nil, storeErr(res.Error)
	}

	rows := make([]models.GrantRow, 0, len(grants))
	for _, g := range grants {
		row := models.GrantRow{FilePath: g.FilePath}
		if g.User != nil {
			row.Email = g.User.Email
			row.APIKey = g.User.APIKey
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func (s *Gorm) Snapshot(ctx context.Context) (models.Snapshot, error) {
	var snap models.Snapshot

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if res := tx.Order("id").Find(&snap.Users); res.Error != nil {
			return res.Error
		}
		if res := tx.Order("id").Find(&snap.Grants); res.Error != nil {
			return res.Error
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("Unable to snapshot permission store")
		return models.Snapshot{}, storeErr(err)
	}

	return snap, nil
}
