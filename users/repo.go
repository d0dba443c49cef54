package users

import "context"

// Repo is the subject directory. GetByEmail and GetByID never return soft
// deleted users and resolve RoleName alongside the user. Misses are reported
// with an error wrapping errors.ErrNotFound.
type Repo interface {
	Create(ctx context.Context, user *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	SetActive(ctx context.Context, id string, active bool) error
	SoftDelete(ctx context.Context, id string) error
}
