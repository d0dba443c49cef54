package rolerepofake

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-session-server/internal/errors"
	"github.com/jrsteele09/go-session-server/roles"
)

var _ roles.Repo = (*FakeRoleRepo)(nil)

type FakeRoleRepo struct {
	roles map[string]*roles.Role
	names map[string]string // name to role id
	lock  sync.RWMutex
}

func NewFakeRoleRepo() *FakeRoleRepo {
	return &FakeRoleRepo{
		roles: make(map[string]*roles.Role),
		names: make(map[string]string),
	}
}

func (rr *FakeRoleRepo) Upsert(_ context.Context, role *roles.Role) error {
	rr.lock.Lock()
	defer rr.lock.Unlock()

	if role.ID == "" {
		if id, ok := rr.names[role.Name]; ok {
			role.ID = id
		} else {
			role.ID = uuid.New().String()
		}
	}
	stored := *role
	rr.roles[role.ID] = &stored
	rr.names[role.Name] = role.ID
	return nil
}

func (rr *FakeRoleRepo) GetByID(_ context.Context, id string) (*roles.Role, error) {
	rr.lock.RLock()
	defer rr.lock.RUnlock()

	role, ok := rr.roles[id]
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "role %s", id)
	}
	found := *role
	return &found, nil
}

func (rr *FakeRoleRepo) GetByName(ctx context.Context, name string) (*roles.Role, error) {
	rr.lock.RLock()
	id, ok := rr.names[name]
	rr.lock.RUnlock()
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "role %s", name)
	}
	return rr.GetByID(ctx, id)
}

func (rr *FakeRoleRepo) List(_ context.Context) ([]*roles.Role, error) {
	rr.lock.RLock()
	defer rr.lock.RUnlock()

	list := make([]*roles.Role, 0, len(rr.roles))
	for _, r := range rr.roles {
		role := *r
		list = append(list, &role)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list, nil
}
