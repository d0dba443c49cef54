package sessions

import (
	"time"

	apperrors "github.com/jrsteele09/go-session-server/internal/errors"
)

// ResourceTypeLogin tags records created by a successful login.
const ResourceTypeLogin = "login"

// ErrNotFound is returned by every store when no record matches.
var ErrNotFound = apperrors.Wrapf(apperrors.ErrNotFound, "session record")

// Record is one issuance event. The record with the highest Seq for a
// subject is that subject's current session.
type Record struct {
	ID           string    `json:"id"`           // ULID
	Seq          int64     `json:"seq"`          // Store assigned insertion sequence
	AccessToken  string    `json:"accessToken"`  // Unique
	RefreshToken string    `json:"refreshToken"` // Optional
	ResourceType string    `json:"resourceType"`
	ResourceBy   string    `json:"resourceBy"` // Subject id
	ExpiredAt    time.Time `json:"expiredAt"`  // Access token expiry
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Update carries the fields a refresh may change. Nil fields are left alone.
type Update struct {
	AccessToken *string
	ExpiredAt   *time.Time
}

// Empty reports whether the update would change nothing.
func (u Update) Empty() bool {
	return u.AccessToken == nil && u.ExpiredAt == nil
}

// Apply writes the set fields onto r.
func (u Update) Apply(r *Record, now time.Time) {
	if u.AccessToken != nil {
		r.AccessToken = *u.AccessToken
	}
	if u.ExpiredAt != nil {
		r.ExpiredAt = *u.ExpiredAt
	}
	r.UpdatedAt = now
}

// Expired reports whether the access token has lapsed at now.
func (r *Record) Expired(now time.Time) bool {
	return r.ExpiredAt.Before(now)
}
