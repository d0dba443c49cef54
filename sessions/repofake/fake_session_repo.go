package fakesessionrepo

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-session-server/internal/errors"
	"github.com/jrsteele09/go-session-server/sessions"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

// FakeSessionRepo is the in-memory session record store. It backs the
// "memory" driver as well as the tests.
type FakeSessionRepo struct {
	records  map[string]*sessions.Record
	tokens   map[string]string   // access token to record id
	subjects map[string][]string // subject id to record ids in insertion order
	seq      int64
	ids      *sessions.IDGenerator
	nowFunc  func() time.Time
	lock     sync.RWMutex

	// Set to simulate rejected writes.
	InsertErr error
	UpdateErr error
	DeleteErr error
}

type Option func(*FakeSessionRepo)

func WithNowFunc(now func() time.Time) Option {
	return func(sr *FakeSessionRepo) {
		sr.nowFunc = now
	}
}

func NewFakeSessionRepo(options ...Option) *FakeSessionRepo {
	sr := &FakeSessionRepo{
		records:  make(map[string]*sessions.Record),
		tokens:   make(map[string]string),
		subjects: make(map[string][]string),
		ids:      sessions.NewIDGenerator(),
		nowFunc:  time.Now,
	}
	for _, opt := range options {
		opt(sr)
	}
	return sr
}

func (sr *FakeSessionRepo) FindLatestByAccessToken(ctx context.Context, accessToken, resourceType string) (*sessions.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sr.lock.RLock()
	defer sr.lock.RUnlock()

	id, ok := sr.tokens[accessToken]
	if !ok {
		return nil, sessions.ErrNotFound
	}
	record := sr.records[id]
	if record.ResourceType != resourceType {
		return nil, sessions.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (sr *FakeSessionRepo) FindLatestBySubject(ctx context.Context, subjectID string) (*sessions.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sr.lock.RLock()
	defer sr.lock.RUnlock()

	ids := sr.subjects[subjectID]
	if len(ids) == 0 {
		return nil, sessions.ErrNotFound
	}
	copied := *sr.records[ids[len(ids)-1]]
	return &copied, nil
}

func (sr *FakeSessionRepo) Insert(ctx context.Context, record *sessions.Record) (*sessions.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if sr.InsertErr != nil {
		return nil, sr.InsertErr
	}

	sr.lock.Lock()
	defer sr.lock.Unlock()

	if _, ok := sr.tokens[record.AccessToken]; ok {
		return nil, apperrors.Wrapf(apperrors.ErrDuplicate, "session access token")
	}

	now := sr.nowFunc()
	sr.seq++
	stored := *record
	stored.ID = sr.ids.New(now)
	stored.Seq = sr.seq
	stored.CreatedAt, stored.UpdatedAt = now, now

	sr.records[stored.ID] = &stored
	sr.tokens[stored.AccessToken] = stored.ID
	sr.subjects[stored.ResourceBy] = append(sr.subjects[stored.ResourceBy], stored.ID)

	copied := stored
	return &copied, nil
}

func (sr *FakeSessionRepo) UpdateByID(ctx context.Context, id string, update sessions.Update) (*sessions.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if sr.UpdateErr != nil {
		return nil, sr.UpdateErr
	}

	sr.lock.Lock()
	defer sr.lock.Unlock()

	record, ok := sr.records[id]
	if !ok {
		return nil, sessions.ErrNotFound
	}
	if update.AccessToken != nil && *update.AccessToken != record.AccessToken {
		if _, taken := sr.tokens[*update.AccessToken]; taken {
			return nil, apperrors.Wrapf(apperrors.ErrDuplicate, "session access token")
		}
		delete(sr.tokens, record.AccessToken)
		sr.tokens[*update.AccessToken] = id
	}
	update.Apply(record, sr.nowFunc())

	copied := *record
	return &copied, nil
}

func (sr *FakeSessionRepo) DeleteByID(ctx context.Context, id string) (*sessions.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if sr.DeleteErr != nil {
		return nil, sr.DeleteErr
	}

	sr.lock.Lock()
	defer sr.lock.Unlock()

	record, ok := sr.records[id]
	if !ok {
		return nil, sessions.ErrNotFound
	}
	sr.remove(record)
	return record, nil
}

func (sr *FakeSessionRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	sr.lock.Lock()
	defer sr.lock.Unlock()

	var removed int64
	for _, record := range sr.records {
		if !record.ExpiredAt.Before(cutoff) || sr.isLatest(record) {
			continue
		}
		sr.remove(record)
		removed++
	}
	return removed, nil
}

func (sr *FakeSessionRepo) Close() error {
	return nil
}

// Len returns the number of stored records.
func (sr *FakeSessionRepo) Len() int {
	sr.lock.RLock()
	defer sr.lock.RUnlock()
	return len(sr.records)
}

// isLatest must be called with the lock held.
func (sr *FakeSessionRepo) isLatest(record *sessions.Record) bool {
	ids := sr.subjects[record.ResourceBy]
	return len(ids) > 0 && ids[len(ids)-1] == record.ID
}

// remove must be called with the write lock held.
func (sr *FakeSessionRepo) remove(record *sessions.Record) {
	delete(sr.records, record.ID)
	delete(sr.tokens, record.AccessToken)

	ids := sr.subjects[record.ResourceBy]
	for i, id := range ids {
		if id == record.ID {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(sr.subjects, record.ResourceBy)
	} else {
		sr.subjects[record.ResourceBy] = ids
	}
}
