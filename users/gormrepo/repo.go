// Package gormrepo stores users in a relational database through GORM. Soft
// deletion relies on gorm.DeletedAt so deleted rows drop out of every query.
package gormrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-session-server/internal/errors"
	rolesgorm "github.com/jrsteele09/go-session-server/roles/gormrepo"
	"github.com/jrsteele09/go-session-server/users"
	"gorm.io/gorm"
)

// UserRow is the persisted user. Email is only unique among live rows, which
// a partial unique index enforces.
type UserRow struct {
	ID           string            `gorm:"primaryKey;size:36"`
	Email        string            `gorm:"size:320;not null;uniqueIndex:idx_users_email_live,where:deleted_at IS NULL"`
	PasswordHash string            `gorm:"size:128;not null"`
	RoleID       string            `gorm:"size:36;index"`
	Role         rolesgorm.RoleRow `gorm:"foreignKey:RoleID"`
	Active       bool              `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

func (UserRow) TableName() string { return "users" }

// Repo implements users.Repo.
type Repo struct {
	db *gorm.DB
}

var _ users.Repo = (*Repo)(nil)

// New returns a user repository backed by db.
func New(db *gorm.DB) (*Repo, error) {
	if db == nil {
		return nil, fmt.Errorf("user repo requires database handle")
	}
	return &Repo{db: db}, nil
}

// Migrate creates the users table. Roles must be migrated first.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&UserRow{})
}

func (r *Repo) Create(ctx context.Context, user *users.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := UserRow{
			ID:           user.ID,
			Email:        user.Email,
			PasswordHash: user.PasswordHash,
			RoleID:       user.RoleID,
			Active:       user.Active,
		}
		// Omit the association so the role row is never upserted from here.
		if err := tx.Omit("Role").Create(&row).Error; err != nil {
			// Needs TranslateError on the handle.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperrors.Wrapf(apperrors.ErrDuplicate, "user %s", user.Email)
			}
			return fmt.Errorf("insert user %s: %w", user.Email, err)
		}
		// GORM applies the column default when Active is false on create.
		if !user.Active {
			if err := tx.Model(&row).Update("active", false).Error; err != nil {
				return fmt.Errorf("insert user %s: %w", user.Email, err)
			}
		}
		user.CreatedAt, user.UpdatedAt = row.CreatedAt, row.UpdatedAt
		return nil
	})
}

func (r *Repo) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	return r.first(ctx, "users.email = ?", email)
}

func (r *Repo) GetByID(ctx context.Context, id string) (*users.User, error) {
	return r.first(ctx, "users.id = ?", id)
}

func (r *Repo) SetActive(ctx context.Context, id string, active bool) error {
	res := r.db.WithContext(ctx).Model(&UserRow{}).Where("id = ?", id).Update("active", active)
	if res.Error != nil {
		return fmt.Errorf("set active %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.Wrapf(apperrors.ErrNotFound, "user %s", id)
	}
	return nil
}

func (r *Repo) SoftDelete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&UserRow{})
	if res.Error != nil {
		return fmt.Errorf("delete user %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.Wrapf(apperrors.ErrNotFound, "user %s", id)
	}
	return nil
}

func (r *Repo) first(ctx context.Context, query string, arg string) (*users.User, error) {
	var row UserRow
	err := r.db.WithContext(ctx).Joins("Role").Where(query, arg).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "user %s", arg)
	}
	if err != nil {
		return nil, fmt.Errorf("find user %s: %w", arg, err)
	}
	return &users.User{
		ID:           row.ID,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		RoleID:       row.RoleID,
		RoleName:     row.Role.Name,
		Active:       row.Active,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}, nil
}
