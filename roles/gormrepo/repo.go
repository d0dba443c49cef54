// Package gormrepo stores roles in a relational database through GORM.
package gormrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-session-server/internal/errors"
	"github.com/jrsteele09/go-session-server/roles"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RoleRow is the persisted role.
type RoleRow struct {
	ID   string `gorm:"primaryKey;size:36"`
	Name string `gorm:"size:64;uniqueIndex;not null"`
}

func (RoleRow) TableName() string { return "roles" }

// Repo implements roles.Repo.
type Repo struct {
	db *gorm.DB
}

var _ roles.Repo = (*Repo)(nil)

// New returns a role repository backed by db.
func New(db *gorm.DB) (*Repo, error) {
	if db == nil {
		return nil, fmt.Errorf("role repo requires database handle")
	}
	return &Repo{db: db}, nil
}

// Migrate creates the roles table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&RoleRow{})
}

func (r *Repo) Upsert(ctx context.Context, role *roles.Role) error {
	if role.ID == "" {
		existing, err := r.GetByName(ctx, role.Name)
		switch {
		case err == nil:
			role.ID = existing.ID
		case errors.Is(err, apperrors.ErrNotFound):
			role.ID = uuid.New().String()
		default:
			return err
		}
	}
	row := RoleRow{ID: role.ID, Name: role.Name}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoUpdates: clause.AssignmentColumns([]string{"name"})}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert role %s: %w", role.Name, err)
	}
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id string) (*roles.Role, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *Repo) GetByName(ctx context.Context, name string) (*roles.Role, error) {
	return r.first(ctx, "name = ?", name)
}

func (r *Repo) List(ctx context.Context) ([]*roles.Role, error) {
	var rows []RoleRow
	if err := r.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	list := make([]*roles.Role, 0, len(rows))
	for _, row := range rows {
		list = append(list, &roles.Role{ID: row.ID, Name: row.Name})
	}
	return list, nil
}

func (r *Repo) first(ctx context.Context, query string, arg string) (*roles.Role, error) {
	var row RoleRow
	err := r.db.WithContext(ctx).Where(query, arg).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "role %s", arg)
	}
	if err != nil {
		return nil, fmt.Errorf("find role %s: %w", arg, err)
	}
	return &roles.Role{ID: row.ID, Name: row.Name}, nil
}
