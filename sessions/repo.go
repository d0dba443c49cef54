package sessions

import (
	"context"
	"time"
)

// Repo is the session record store. Implementations must order "latest" by
// insertion sequence and apply UpdateByID atomically per record.
type Repo interface {
	// FindLatestByAccessToken returns the newest record with this exact token and resource type
	FindLatestByAccessToken(ctx context.Context, accessToken, resourceType string) (*Record, error)

	// FindLatestBySubject returns the newest record for the subject, any resource type
	FindLatestBySubject(ctx context.Context, subjectID string) (*Record, error)

	// Insert stores a new record, assigning ID, Seq and timestamps
	Insert(ctx context.Context, record *Record) (*Record, error)

	// UpdateByID applies a partial update and returns the updated record
	UpdateByID(ctx context.Context, id string, update Update) (*Record, error)

	// DeleteByID removes the record and returns what was removed
	DeleteByID(ctx context.Context, id string) (*Record, error)

	// DeleteExpiredBefore removes records whose ExpiredAt is before cutoff.
	// A subject's latest record is never removed.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}
