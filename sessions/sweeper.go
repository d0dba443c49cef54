package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper periodically removes records whose access token expired more than
// retention ago. Each subject's latest record is kept whatever its expiry,
// since health-check and revoke only ever look at that one.
type Sweeper struct {
	repo      Repo
	interval  time.Duration
	retention time.Duration
	logger    zerolog.Logger
	nowFunc   func() time.Time
	onSwept   func(removed int64)
	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

type SweeperOption func(*Sweeper)

func WithSweeperNowFunc(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		s.nowFunc = now
	}
}

func WithSweeperLogger(logger zerolog.Logger) SweeperOption {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

// WithSweeperOnSwept is called after every successful sweep.
func WithSweeperOnSwept(fn func(removed int64)) SweeperOption {
	return func(s *Sweeper) {
		s.onSwept = fn
	}
}

func NewSweeper(repo Repo, interval, retention time.Duration, options ...SweeperOption) *Sweeper {
	s := &Sweeper{
		repo:      repo,
		interval:  interval,
		retention: retention,
		logger:    zerolog.Nop(),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.nowFunc == nil {
		s.nowFunc = time.Now
	}
	if s.interval <= 0 {
		s.interval = 10 * time.Minute
	}
	return s
}

// Start runs the sweep loop until Stop is called or ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		go s.loop(ctx)
	})
}

// Stop ends the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	// never started: nothing to wait for
	s.startOnce.Do(func() { close(s.done) })
	<-s.done
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_, _ = s.SweepOnce(ctx)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// SweepOnce deletes every superseded record that expired before now minus
// retention.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := s.nowFunc().Add(-s.retention)
	removed, err := s.repo.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		s.logger.Err(err).Time("cutoff", cutoff).Msg("session sweep failed")
		return 0, err
	}
	if s.onSwept != nil {
		s.onSwept(removed)
	}
	if removed > 0 {
		s.logger.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("expired session records swept")
	}
	return removed, nil
}
