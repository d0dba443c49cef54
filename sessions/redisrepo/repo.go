// Package redisrepo stores session records in Redis.
//
// Layout under the configured prefix:
//
//	seq            INCR counter giving every insert its sequence
//	rec:<id>       JSON encoded record
//	tok:<token>    record id for an access token
//	sub:<subject>  sorted set of record ids scored by sequence
//	exp            sorted set of record ids scored by expiry (unix ms)
//
// Mutations run under WATCH/MULTI and retry when a concurrent writer wins.
package redisrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	apperrors "github.com/jrsteele09/go-session-server/internal/errors"
	"github.com/jrsteele09/go-session-server/sessions"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultPrefix = "session:"
	maxTxRetries  = 50
)

// Options configures Open.
type Options struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

// Repo implements sessions.Repo.
type Repo struct {
	client  *redis.Client
	owned   bool
	prefix  string
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

// Open dials Redis and pings it. The client is closed by Close.
func Open(ctx context.Context, opts Options, options ...Option) (*Repo, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	r, err := New(client, opts.Prefix, options...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	r.owned = true
	return r, nil
}

// New wraps an existing client.
func New(client *redis.Client, prefix string, options ...Option) (*Repo, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	r := &Repo{client: client, prefix: prefix, ids: sessions.NewIDGenerator(), nowFunc: time.Now}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

func (r *Repo) seqKey() string                { return r.prefix + "seq" }
func (r *Repo) recordKey(id string) string    { return r.prefix + "rec:" + id }
func (r *Repo) tokenKey(token string) string  { return r.prefix + "tok:" + token }
func (r *Repo) subjectKey(subj string) string { return r.prefix + "sub:" + subj }
func (r *Repo) expiryKey() string             { return r.prefix + "exp" }

func (r *Repo) FindLatestByAccessToken(ctx context.Context, accessToken, resourceType string) (*sessions.Record, error) {
	id, err := r.client.Get(ctx, r.tokenKey(accessToken)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, sessions.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find session token: %w", err)
	}
	record, err := r.load(ctx, r.client, id)
	if err != nil {
		return nil, err
	}
	// A refresh between the two reads moves the record to another token.
	if record.AccessToken != accessToken || record.ResourceType != resourceType {
		return nil, sessions.ErrNotFound
	}
	return record, nil
}

func (r *Repo) FindLatestBySubject(ctx context.Context, subjectID string) (*sessions.Record, error) {
	ids, err := r.client.ZRevRange(ctx, r.subjectKey(subjectID), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("find session subject: %w", err)
	}
	if len(ids) == 0 {
		return nil, sessions.ErrNotFound
	}
	return r.load(ctx, r.client, ids[0])
}

func (r *Repo) Insert(ctx context.Context, record *sessions.Record) (*sessions.Record, error) {
	seq, err := r.client.Incr(ctx, r.seqKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("next session sequence: %w", err)
	}

	now := r.nowFunc().UTC()
	stored := *record
	stored.ID = r.ids.New(now)
	stored.Seq = seq
	stored.ExpiredAt = record.ExpiredAt.UTC()
	stored.CreatedAt, stored.UpdatedAt = now, now

	payload, err := json.Marshal(&stored)
	if err != nil {
		return nil, fmt.Errorf("encode session record: %w", err)
	}

	tokenKey := r.tokenKey(stored.AccessToken)
	err = r.watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, tokenKey).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return apperrors.Wrapf(apperrors.ErrDuplicate, "insert session record")
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.recordKey(stored.ID), payload, 0)
			pipe.Set(ctx, tokenKey, stored.ID, 0)
			pipe.ZAdd(ctx, r.subjectKey(stored.ResourceBy), redis.Z{Score: float64(stored.Seq), Member: stored.ID})
			pipe.ZAdd(ctx, r.expiryKey(), redis.Z{Score: expiryScore(stored.ExpiredAt), Member: stored.ID})
			return nil
		})
		return err
	}, tokenKey)
	if err != nil {
		if errors.Is(err, apperrors.ErrDuplicate) {
			return nil, err
		}
		return nil, fmt.Errorf("insert session record: %w", err)
	}
	return &stored, nil
}

func (r *Repo) UpdateByID(ctx context.Context, id string, update sessions.Update) (*sessions.Record, error) {
	keys := []string{r.recordKey(id)}
	if update.AccessToken != nil {
		keys = append(keys, r.tokenKey(*update.AccessToken))
	}

	var updated *sessions.Record
	err := r.watch(ctx, func(tx *redis.Tx) error {
		record, err := r.load(ctx, tx, id)
		if err != nil {
			return err
		}
		oldToken := record.AccessToken
		if update.AccessToken != nil && *update.AccessToken != oldToken {
			exists, err := tx.Exists(ctx, r.tokenKey(*update.AccessToken)).Result()
			if err != nil {
				return err
			}
			if exists > 0 {
				return apperrors.Wrapf(apperrors.ErrDuplicate, "update session record %s", id)
			}
		}
		update.Apply(record, r.nowFunc().UTC())
		record.ExpiredAt = record.ExpiredAt.UTC()

		payload, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("encode session record: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.recordKey(id), payload, 0)
			if record.AccessToken != oldToken {
				pipe.Del(ctx, r.tokenKey(oldToken))
				pipe.Set(ctx, r.tokenKey(record.AccessToken), id, 0)
			}
			pipe.ZAdd(ctx, r.expiryKey(), redis.Z{Score: expiryScore(record.ExpiredAt), Member: id})
			return nil
		})
		if err != nil {
			return err
		}
		updated = record
		return nil
	}, keys...)
	if err != nil {
		return nil, r.wrap(err, "update session record "+id)
	}
	return updated, nil
}

func (r *Repo) DeleteByID(ctx context.Context, id string) (*sessions.Record, error) {
	deleted, err := r.delete(ctx, id, false)
	if err != nil {
		return nil, r.wrap(err, "delete session record "+id)
	}
	return deleted, nil
}

func (r *Repo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ids, err := r.client.ZRangeByScore(ctx, r.expiryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan expired session records: %w", err)
	}

	var removed int64
	for _, id := range ids {
		deleted, err := r.delete(ctx, id, true)
		if errors.Is(err, sessions.ErrNotFound) {
			continue
		}
		if err != nil {
			return removed, r.wrap(err, "sweep session record "+id)
		}
		if deleted != nil {
			removed++
		}
	}
	return removed, nil
}

// delete removes the record and its index entries. With keepLatest set, a
// record that is its subject's latest is left alone and nil is returned.
func (r *Repo) delete(ctx context.Context, id string, keepLatest bool) (*sessions.Record, error) {
	// The subject never changes, so its key can be watched up front.
	current, err := r.load(ctx, r.client, id)
	if err != nil {
		return nil, err
	}
	subjectKey := r.subjectKey(current.ResourceBy)

	var deleted *sessions.Record
	err = r.watch(ctx, func(tx *redis.Tx) error {
		deleted = nil
		record, err := r.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if keepLatest {
			latest, err := tx.ZRevRange(ctx, subjectKey, 0, 0).Result()
			if err != nil {
				return err
			}
			if len(latest) > 0 && latest[0] == id {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, r.recordKey(id), r.tokenKey(record.AccessToken))
			pipe.ZRem(ctx, subjectKey, id)
			pipe.ZRem(ctx, r.expiryKey(), id)
			return nil
		})
		if err != nil {
			return err
		}
		deleted = record
		return nil
	}, r.recordKey(id), subjectKey)
	return deleted, err
}

// Close closes the client only when Open created it.
func (r *Repo) Close() error {
	if !r.owned {
		return nil
	}
	return r.client.Close()
}

func (r *Repo) load(ctx context.Context, c redis.Cmdable, id string) (*sessions.Record, error) {
	raw, err := c.Get(ctx, r.recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sessions.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session record %s: %w", id, err)
	}
	var record sessions.Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode session record %s: %w", id, err)
	}
	return &record, nil
}

func (r *Repo) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("session record contention after %d attempts: %w", maxTxRetries, redis.TxFailedErr)
}

func (r *Repo) wrap(err error, op string) error {
	if errors.Is(err, sessions.ErrNotFound) || errors.Is(err, apperrors.ErrDuplicate) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

func expiryScore(t time.Time) float64 {
	return float64(t.UnixMilli())
}
