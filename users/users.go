package users

import (
	"strings"
	"time"
)

type User struct {
	ID           string     `json:"id,omitempty"`         // Unique identifier for the user
	Email        string     `json:"email,omitempty"`      // User's email address, normalised
	PasswordHash string     `json:"-"`                    // Hashed version of the user's password - never serialize
	RoleID       string     `json:"role_id,omitempty"`    // Reference into the role directory
	RoleName     string     `json:"role,omitempty"`       // Role name resolved by the directory on read
	Active       bool       `json:"active"`               // Active, disabled users cannot log in
	CreatedAt    time.Time  `json:"created_at,omitempty"` // Date and time when the user registered
	UpdatedAt    time.Time  `json:"updated_at,omitempty"` // Last modification
	DeletedAt    *time.Time `json:"-"`                    // Soft delete marker, deleted users are invisible to lookups
}

// NormaliseEmail trims and lower-cases an email so lookups are case insensitive.
func NormaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsDeleted reports whether the user has been soft deleted.
func (u *User) IsDeleted() bool {
	return u.DeletedAt != nil
}
