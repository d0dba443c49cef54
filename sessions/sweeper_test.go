package sessions_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-server/sessions"
	fakesessionrepo "github.com/jrsteele09/go-session-server/sessions/repofake"
	"github.com/stretchr/testify/require"
)

// TestSweeper_RespectsRetention removes only superseded records expired before now minus retention
func TestSweeper_RespectsRetention(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	repo := fakesessionrepo.NewFakeSessionRepo()
	ctx := context.Background()

	for _, rec := range []*sessions.Record{
		{AccessToken: "old", ResourceBy: "user-1", ExpiredAt: now.Add(-40 * 24 * time.Hour)},
		{AccessToken: "current", ResourceBy: "user-1", ExpiredAt: now.Add(time.Hour)},
		{AccessToken: "recent", ResourceBy: "user-2", ExpiredAt: now.Add(-time.Hour)},
		{AccessToken: "recent-2", ResourceBy: "user-2", ExpiredAt: now.Add(time.Hour)},
	} {
		_, err := repo.Insert(ctx, rec)
		require.NoError(t, err)
	}

	var reported int64
	sweeper := sessions.NewSweeper(repo, time.Minute, 30*24*time.Hour,
		sessions.WithSweeperNowFunc(func() time.Time { return now }),
		sessions.WithSweeperOnSwept(func(removed int64) { reported += removed }))

	removed, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)
	require.EqualValues(t, 1, reported)
	require.Equal(t, 3, repo.Len())

	_, err = repo.FindLatestByAccessToken(ctx, "old", "")
	require.ErrorIs(t, err, sessions.ErrNotFound)

	// Expired but inside retention.
	record, err := repo.FindLatestByAccessToken(ctx, "recent", "")
	require.NoError(t, err)
	require.Equal(t, "user-2", record.ResourceBy)
}

// TestSweeper_KeepsLatestRecord never changes which record a subject's health-check sees
func TestSweeper_KeepsLatestRecord(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	repo := fakesessionrepo.NewFakeSessionRepo()
	ctx := context.Background()

	older, err := repo.Insert(ctx, &sessions.Record{AccessToken: "first", ResourceBy: "user-1", ExpiredAt: now.Add(-40 * 24 * time.Hour)})
	require.NoError(t, err)
	latest, err := repo.Insert(ctx, &sessions.Record{AccessToken: "second", ResourceBy: "user-1", ExpiredAt: now.Add(-40 * 24 * time.Hour)})
	require.NoError(t, err)

	// Refreshing the older record must not let it take over after a sweep.
	refreshedAt := now.Add(time.Hour)
	_, err = repo.UpdateByID(ctx, older.ID, sessions.Update{ExpiredAt: &refreshedAt})
	require.NoError(t, err)

	sweeper := sessions.NewSweeper(repo, time.Minute, 30*24*time.Hour,
		sessions.WithSweeperNowFunc(func() time.Time { return now }))
	removed, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, removed)

	record, err := repo.FindLatestBySubject(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, latest.ID, record.ID)
	require.True(t, record.Expired(now))
}

// TestSweeper_Loop runs on its ticker and stops cleanly
func TestSweeper_Loop(t *testing.T) {
	repo := fakesessionrepo.NewFakeSessionRepo()
	ctx := context.Background()
	for _, tok := range []string{"old", "current"} {
		_, err := repo.Insert(ctx, &sessions.Record{AccessToken: tok, ResourceBy: "user-1", ExpiredAt: time.Now().Add(-time.Hour)})
		require.NoError(t, err)
	}

	sweeper := sessions.NewSweeper(repo, 5*time.Millisecond, time.Minute)
	sweeper.Start(ctx)
	require.Eventually(t, func() bool { return repo.Len() == 1 }, time.Second, 5*time.Millisecond)
	sweeper.Stop()
	sweeper.Stop()

	record, err := repo.FindLatestBySubject(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, "current", record.AccessToken)
}

// TestSweeper_StopWithoutStart does not block
func TestSweeper_StopWithoutStart(t *testing.T) {
	sweeper := sessions.NewSweeper(fakesessionrepo.NewFakeSessionRepo(), time.Minute, time.Minute)
	sweeper.Stop()
}

// TestIDGenerator_Monotonic yields increasing ids even when the clock goes backwards
func TestIDGenerator_Monotonic(t *testing.T) {
	gen := sessions.NewIDGenerator()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	prev := gen.New(now)
	for i := 0; i < 100; i++ {
		at := now
		if i%3 == 0 {
			at = now.Add(-time.Second)
		}
		next := gen.New(at)
		require.Greater(t, next, prev)
		prev = next
	}
}
