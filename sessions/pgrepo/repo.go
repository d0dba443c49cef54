// Package pgrepo stores session records in Postgres through database/sql and
// lib/pq. Every mutation is a single statement using RETURNING, so a record is
// never observed half updated.
package pgrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/go-session-server/internal/errors"
	"github.com/jrsteele09/go-session-server/sessions"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const recordColumns = `seq, id, access_token, refresh_token, resource_type, resource_by, expired_at, created_at, updated_at`

// Repo implements sessions.Repo.
type Repo struct {
	db      *sql.DB
	owned   bool
	ids     *sessions.IDGenerator
	nowFunc func() time.Time
}

var _ sessions.Repo = (*Repo)(nil)

type Option func(*Repo)

func WithNowFunc(now func() time.Time) Option {
	return func(r *Repo) {
		r.nowFunc = now
	}
}

// Open connects with the lib/pq driver. The returned repo closes the pool on Close.
func Open(ctx context.Context, dsn string, options ...Option) (*Repo, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	r, err := New(ctx, db, options...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	r.owned = true
	return r, nil
}

// New wraps an existing pool and creates the schema when missing.
func New(ctx context.Context, db *sql.DB, options ...Option) (*Repo, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	r := &Repo{db: db, ids: sessions.NewIDGenerator(), nowFunc: time.Now}
	for _, opt := range options {
		opt(r)
	}
	if err := r.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repo) ensureSchema(ctx context.Context) error {
	const table = `
CREATE TABLE IF NOT EXISTS session_records (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	access_token TEXT NOT NULL UNIQUE,
	refresh_token TEXT NOT NULL DEFAULT '',
	resource_type TEXT NOT NULL,
	resource_by TEXT NOT NULL,
	expired_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`
	if _, err := r.db.ExecContext(ctx, table); err != nil {
		return fmt.Errorf("ensure session_records schema: %w", err)
	}

	const index = `CREATE INDEX IF NOT EXISTS session_records_resource_by_seq_idx ON session_records (resource_by, seq DESC)`
	if _, err := r.db.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("ensure session_records index: %w", err)
	}
	return nil
}

func (r *Repo) FindLatestByAccessToken(ctx context.Context, accessToken, resourceType string) (*sessions.Record, error) {
	const q = `SELECT ` + recordColumns + ` FROM session_records
WHERE access_token = $1 AND resource_type = $2
ORDER BY seq DESC LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, q, accessToken, resourceType), "find session record")
}

func (r *Repo) FindLatestBySubject(ctx context.Context, subjectID string) (*sessions.Record, error) {
	const q = `SELECT ` + recordColumns + ` FROM session_records
WHERE resource_by = $1
ORDER BY seq DESC LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, q, subjectID), "find session record")
}

func (r *Repo) Insert(ctx context.Context, record *sessions.Record) (*sessions.Record, error) {
	const q = `
INSERT INTO session_records (id, access_token, refresh_token, resource_type, resource_by, expired_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING seq`

	now := r.nowFunc().UTC()
	stored := *record
	stored.ID = r.ids.New(now)
	stored.ExpiredAt = record.ExpiredAt.UTC()
	stored.CreatedAt, stored.UpdatedAt = now, now

	err := r.db.QueryRowContext(ctx, q,
		stored.ID, stored.AccessToken, stored.RefreshToken, stored.ResourceType, stored.ResourceBy,
		stored.ExpiredAt, stored.CreatedAt, stored.UpdatedAt,
	).Scan(&stored.Seq)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, apperrors.Wrapf(apperrors.ErrDuplicate, "insert session record")
		}
		return nil, fmt.Errorf("insert session record: %w", err)
	}
	return &stored, nil
}

func (r *Repo) UpdateByID(ctx context.Context, id string, update sessions.Update) (*sessions.Record, error) {
	const q = `
UPDATE session_records
SET access_token = COALESCE($2, access_token),
	expired_at = COALESCE($3, expired_at),
	updated_at = $4
WHERE id = $1
RETURNING ` + recordColumns

	var accessToken sql.NullString
	if update.AccessToken != nil {
		accessToken = sql.NullString{String: *update.AccessToken, Valid: true}
	}
	var expiredAt sql.NullTime
	if update.ExpiredAt != nil {
		expiredAt = sql.NullTime{Time: update.ExpiredAt.UTC(), Valid: true}
	}

	row := r.db.QueryRowContext(ctx, q, id, accessToken, expiredAt, r.nowFunc().UTC())
	return r.scanOne(row, "update session record "+id)
}

func (r *Repo) DeleteByID(ctx context.Context, id string) (*sessions.Record, error) {
	const q = `DELETE FROM session_records WHERE id = $1 RETURNING ` + recordColumns
	return r.scanOne(r.db.QueryRowContext(ctx, q, id), "delete session record "+id)
}

func (r *Repo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM session_records WHERE expired_at < $1
AND seq NOT IN (SELECT MAX(seq) FROM session_records GROUP BY resource_by)`
	res, err := r.db.ExecContext(ctx, q, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired session records: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired session records: %w", err)
	}
	return removed, nil
}

// Close closes the pool only when Open created it.
func (r *Repo) Close() error {
	if !r.owned {
		return nil
	}
	return r.db.Close()
}

func (r *Repo) scanOne(row *sql.Row, op string) (*sessions.Record, error) {
	var rec sessions.Record
	err := row.Scan(
		&rec.Seq, &rec.ID, &rec.AccessToken, &rec.RefreshToken, &rec.ResourceType, &rec.ResourceBy,
		&rec.ExpiredAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sessions.ErrNotFound
	}
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, apperrors.Wrapf(apperrors.ErrDuplicate, "%s", op)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &rec, nil
}
