// Package gormrepo stores session records through GORM, on SQLite or Postgres.
// The autoincrement Seq column defines which record is the latest.
package gormrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/go-session-server/internal/errors"
	"github.com/jrsteele09/go-session-server/sessions"
	"gorm.io/gorm"
)

// SessionRow is the persisted session record.
type SessionRow struct {
	Seq          int64     `gorm:"primaryKey;autoIncrement"`
	ID           string    `gorm:"size:26;uniqueIndex;not null"`
	AccessToken  string    `gorm:"size:1024;uniqueIndex;not null"`
	RefreshToken string    `gorm:"type:text"`
	ResourceType string    `gorm:"size:32;index;not null"`
	ResourceBy   string    `gorm:"size:36;index;not null"`
	ExpiredAt    time.Time `gorm:"index;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (SessionRow) TableName() string { return "session_records" }

func (row *SessionRow) record() *sessions.Record {
	return &sessions.Record{
		ID:           row.ID,
		Seq:          row.Seq,
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
		ResourceType: row.ResourceType,
		ResourceBy:   row.ResourceBy,
		ExpiredAt:    row.ExpiredAt,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

// Repo implements sessions.Repo.
type Repo struct {
	db      *gorm.DB
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

// New returns a session record store backed by db. The handle stays owned by
// the caller.
func New(db *gorm.DB, options ...Option) (*Repo, error) {
	if db == nil {
		return nil, fmt.Errorf("session repo requires database handle")
	}
	r := &Repo{db: db, ids: sessions.NewIDGenerator(), nowFunc: time.Now}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// Migrate creates the session_records table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&SessionRow{})
}

func (r *Repo) FindLatestByAccessToken(ctx context.Context, accessToken, resourceType string) (*sessions.Record, error) {
	return r.latest(r.db.WithContext(ctx).Where("access_token = ? AND resource_type = ?", accessToken, resourceType))
}

func (r *Repo) FindLatestBySubject(ctx context.Context, subjectID string) (*sessions.Record, error) {
	return r.latest(r.db.WithContext(ctx).Where("resource_by = ?", subjectID))
}

func (r *Repo) Insert(ctx context.Context, record *sessions.Record) (*sessions.Record, error) {
	now := r.nowFunc().UTC()
	row := SessionRow{
		ID:           r.ids.New(now),
		AccessToken:  record.AccessToken,
		RefreshToken: record.RefreshToken,
		ResourceType: record.ResourceType,
		ResourceBy:   record.ResourceBy,
		ExpiredAt:    record.ExpiredAt.UTC(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.Wrapf(apperrors.ErrDuplicate, "insert session record")
		}
		return nil, fmt.Errorf("insert session record: %w", err)
	}
	return row.record(), nil
}

// UpdateByID writes every field in one UPDATE statement and reads the row
// back inside the same transaction.
func (r *Repo) UpdateByID(ctx context.Context, id string, update sessions.Update) (*sessions.Record, error) {
	values := map[string]any{"updated_at": r.nowFunc().UTC()}
	if update.AccessToken != nil {
		values["access_token"] = *update.AccessToken
	}
	if update.ExpiredAt != nil {
		values["expired_at"] = update.ExpiredAt.UTC()
	}

	var row SessionRow
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&SessionRow{}).Where("id = ?", id).Updates(values)
		if res.Error != nil {
			return fmt.Errorf("update session record %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return sessions.ErrNotFound
		}
		if err := tx.Where("id = ?", id).First(&row).Error; err != nil {
			return fmt.Errorf("reload session record %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row.record(), nil
}

func (r *Repo) DeleteByID(ctx context.Context, id string) (*sessions.Record, error) {
	var row SessionRow
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return sessions.ErrNotFound
			}
			return fmt.Errorf("find session record %s: %w", id, err)
		}
		res := tx.Where("id = ?", id).Delete(&SessionRow{})
		if res.Error != nil {
			return fmt.Errorf("delete session record %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return sessions.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row.record(), nil
}

func (r *Repo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	latest := r.db.Model(&SessionRow{}).Select("MAX(seq)").Group("resource_by")
	res := r.db.WithContext(ctx).
		Where("expired_at < ?", cutoff.UTC()).
		Where("seq NOT IN (?)", latest).
		Delete(&SessionRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete expired session records: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Close is a no-op, the database handle belongs to the caller.
func (r *Repo) Close() error {
	return nil
}

func (r *Repo) latest(query *gorm.DB) (*sessions.Record, error) {
	var row SessionRow
	err := query.Order("seq DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, sessions.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find session record: %w", err)
	}
	return row.record(), nil
}
