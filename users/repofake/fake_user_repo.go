package fakeuserrepo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-session-server/internal/errors"
	"github.com/jrsteele09/go-session-server/roles"
	"github.com/jrsteele09/go-session-server/users"
)

var _ users.Repo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	users    map[string]*users.User
	emailIds map[string]string // email to user id, live users only
	roles    roles.Repo
	lock     sync.RWMutex

	// CreateErr, when set, is returned by Create to simulate a rejected write.
	CreateErr error
}

// NewFakeUserRepo returns an in-memory directory resolving role names through roleRepo.
func NewFakeUserRepo(roleRepo roles.Repo) *FakeUserRepo {
	return &FakeUserRepo{
		users:    make(map[string]*users.User),
		emailIds: make(map[string]string),
		roles:    roleRepo,
	}
}

func (ur *FakeUserRepo) Create(ctx context.Context, user *users.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ur.CreateErr != nil {
		return ur.CreateErr
	}

	ur.lock.Lock()
	defer ur.lock.Unlock()

	if _, ok := ur.emailIds[user.Email]; ok {
		return apperrors.Wrapf(apperrors.ErrDuplicate, "user %s", user.Email)
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := time.Now()
	user.CreatedAt, user.UpdatedAt = now, now

	stored := *user
	ur.users[user.ID] = &stored
	ur.emailIds[user.Email] = user.ID
	return nil
}

func (ur *FakeUserRepo) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	ur.lock.RLock()
	id, ok := ur.emailIds[email]
	ur.lock.RUnlock()
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "user %s", email)
	}
	return ur.GetByID(ctx, id)
}

func (ur *FakeUserRepo) GetByID(ctx context.Context, id string) (*users.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ur.lock.RLock()
	stored, ok := ur.users[id]
	var user users.User
	if ok {
		user = *stored
	}
	ur.lock.RUnlock()

	if !ok || user.IsDeleted() {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "user %s", id)
	}
	if user.RoleID != "" && ur.roles != nil {
		role, err := ur.roles.GetByID(ctx, user.RoleID)
		if err != nil {
			return nil, err
		}
		user.RoleName = role.Name
	}
	return &user, nil
}

func (ur *FakeUserRepo) SetActive(_ context.Context, id string, active bool) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	user, ok := ur.users[id]
	if !ok || user.IsDeleted() {
		return apperrors.Wrapf(apperrors.ErrNotFound, "user %s", id)
	}
	user.Active = active
	user.UpdatedAt = time.Now()
	return nil
}

func (ur *FakeUserRepo) SoftDelete(_ context.Context, id string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	user, ok := ur.users[id]
	if !ok || user.IsDeleted() {
		return apperrors.Wrapf(apperrors.ErrNotFound, "user %s", id)
	}
	now := time.Now()
	user.DeletedAt = &now
	delete(ur.emailIds, user.Email)
	return nil
}
