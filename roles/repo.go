package roles

import "context"

// Repo is the read-mostly role directory. Lookups return an error wrapping
// errors.ErrNotFound when nothing matches.
type Repo interface {
	Upsert(ctx context.Context, role *Role) error
	GetByID(ctx context.Context, id string) (*Role, error)
	GetByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
}
