package models

import (
	"errors"

	"gorm.io/gorm"
)

// PublicSubject is the grant subject meaning "every user with a valid key".
const PublicSubject = "all"

// ErrStore wraps any storage-level fault. Administrative commands surface it
// verbatim and abort; nothing is retried.
var ErrStore = errors.New("permission store error")

type User struct {
	gorm.Model

	Email string `gorm:"index:idx_user_email,unique"`

	// APIKey is the user's single live key. Rotation overwrites it in
	// place; there is no key history.
	APIKey string `gorm:"index:idx_user_api_key,unique"`
}

// Grant allows a subject to read one file. A nil UserID is the public grant:
// any user with a valid key may read FilePath.
type Grant struct {
	gorm.Model

	UserID *uint `gorm:"index:idx_grant_user_file,unique"`
	User   *User

	FilePath string `gorm:"index:idx_grant_user_file,unique"`
}

// IsPublic reports whether the grant applies to all users.
func (g Grant) IsPublic() bool {
	return g.UserID == nil
}

// Snapshot is a point-in-time full read of the store, consumed by the
// policy compiler.
type Snapshot struct {
	Users  []User
	Grants []Grant
}

// GrantRow is the joined human-readable view behind the `print` command.
// Email and APIKey are empty for public grants.
type GrantRow struct {
	Email    string
	APIKey   string
	FilePath string
}
