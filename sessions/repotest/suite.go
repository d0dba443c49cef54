// Package repotest holds the behaviour every sessions.Repo driver must share.
package repotest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/go-session-server/internal/errors"
	"github.com/jrsteele09/go-session-server/internal/utils"
	"github.com/jrsteele09/go-session-server/sessions"
	"github.com/stretchr/testify/require"
)

// NewRepoFunc returns an empty store. The store is closed by the suite.
type NewRepoFunc func(t *testing.T) sessions.Repo

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Run executes the shared store suite against newRepo.
func Run(t *testing.T, newRepo NewRepoFunc) {
	tests := []struct {
		name string
		fn   func(t *testing.T, repo sessions.Repo)
	}{
		{"InsertAssignsIdentity", testInsertAssignsIdentity},
		{"InsertDuplicateToken", testInsertDuplicateToken},
		{"LatestBySubjectUsesInsertionOrder", testLatestBySubjectUsesInsertionOrder},
		{"LatestByAccessTokenMatchesResourceType", testLatestByAccessTokenMatchesResourceType},
		{"UpdateInPlace", testUpdateInPlace},
		{"UpdateMissing", testUpdateMissing},
		{"DeleteByID", testDeleteByID},
		{"DeleteExpiredBefore", testDeleteExpiredBefore},
		{"DeleteExpiredKeepsExpiredLatest", testDeleteExpiredKeepsExpiredLatest},
		{"ConcurrentUpdatesLastWriterWins", testConcurrentUpdates},
		{"ConcurrentInsertsDistinctSeq", testConcurrentInserts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newRepo(t)
			t.Cleanup(func() { _ = repo.Close() })
			tt.fn(t, repo)
		})
	}
}

func newRecord(token, subject string, expiredAt time.Time) *sessions.Record {
	return &sessions.Record{
		AccessToken:  token,
		RefreshToken: "refresh-" + token,
		ResourceType: sessions.ResourceTypeLogin,
		ResourceBy:   subject,
		ExpiredAt:    expiredAt,
	}
}

func insert(t *testing.T, repo sessions.Repo, record *sessions.Record) *sessions.Record {
	t.Helper()
	stored, err := repo.Insert(context.Background(), record)
	require.NoError(t, err)
	return stored
}

func testInsertAssignsIdentity(t *testing.T, repo sessions.Repo) {
	first := insert(t, repo, newRecord("tok-1", "user-1", base))
	second := insert(t, repo, newRecord("tok-2", "user-1", base))

	require.NotEmpty(t, first.ID)
	require.NotEqual(t, first.ID, second.ID)
	require.Greater(t, second.Seq, first.Seq)
	require.Equal(t, "refresh-tok-1", first.RefreshToken)
	require.Equal(t, sessions.ResourceTypeLogin, first.ResourceType)
	require.True(t, first.ExpiredAt.Equal(base))
	require.False(t, first.CreatedAt.IsZero())
}

func testInsertDuplicateToken(t *testing.T, repo sessions.Repo) {
	insert(t, repo, newRecord("tok-1", "user-1", base))

	_, err := repo.Insert(context.Background(), newRecord("tok-1", "user-2", base))
	require.Error(t, err)
}

func testLatestBySubjectUsesInsertionOrder(t *testing.T, repo sessions.Repo) {
	ctx := context.Background()

	// The earlier record expires later, insertion order must still win.
	insert(t, repo, newRecord("tok-1", "user-1", base.Add(48*time.Hour)))
	second := insert(t, repo, newRecord("tok-2", "user-1", base))
	insert(t, repo, newRecord("tok-3", "user-2", base))

	latest, err := repo.FindLatestBySubject(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, second.ID, latest.ID)
	require.Equal(t, "tok-2", latest.AccessToken)

	_, err = repo.FindLatestBySubject(ctx, "nobody")
	require.ErrorIs(t, err, sessions.ErrNotFound)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func testLatestByAccessTokenMatchesResourceType(t *testing.T, repo sessions.Repo) {
	ctx := context.Background()
	stored := insert(t, repo, newRecord("tok-1", "user-1", base))

	found, err := repo.FindLatestByAccessToken(ctx, "tok-1", sessions.ResourceTypeLogin)
	require.NoError(t, err)
	require.Equal(t, stored.ID, found.ID)
	require.Equal(t, "user-1", found.ResourceBy)

	_, err = repo.FindLatestByAccessToken(ctx, "tok-1", "password-reset")
	require.ErrorIs(t, err, sessions.ErrNotFound)

	_, err = repo.FindLatestByAccessToken(ctx, "tok-missing", sessions.ResourceTypeLogin)
	require.ErrorIs(t, err, sessions.ErrNotFound)
}

func testUpdateInPlace(t *testing.T, repo sessions.Repo) {
	ctx := context.Background()
	stored := insert(t, repo, newRecord("tok-1", "user-1", base))
	newer := insert(t, repo, newRecord("tok-2", "user-1", base))

	updated, err := repo.UpdateByID(ctx, stored.ID, sessions.Update{
		AccessToken: utils.Ptr("tok-1b"),
		ExpiredAt:   utils.Ptr(base.Add(24 * time.Hour)),
	})
	require.NoError(t, err)
	require.Equal(t, stored.ID, updated.ID)
	require.Equal(t, stored.Seq, updated.Seq)
	require.Equal(t, "tok-1b", updated.AccessToken)
	require.Equal(t, "refresh-tok-1", updated.RefreshToken)
	require.True(t, updated.ExpiredAt.Equal(base.Add(24*time.Hour)))

	_, err = repo.FindLatestByAccessToken(ctx, "tok-1", sessions.ResourceTypeLogin)
	require.ErrorIs(t, err, sessions.ErrNotFound)

	found, err := repo.FindLatestByAccessToken(ctx, "tok-1b", sessions.ResourceTypeLogin)
	require.NoError(t, err)
	require.Equal(t, stored.ID, found.ID)

	// Updating an older record does not make it the latest.
	latest, err := repo.FindLatestBySubject(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, newer.ID, latest.ID)

	// Partial update keeps the token.
	updated, err = repo.UpdateByID(ctx, stored.ID, sessions.Update{ExpiredAt: utils.Ptr(base)})
	require.NoError(t, err)
	require.Equal(t, "tok-1b", updated.AccessToken)
	require.True(t, updated.ExpiredAt.Equal(base))
}

func testUpdateMissing(t *testing.T, repo sessions.Repo) {
	stored := insert(t, repo, newRecord("tok-1", "user-1", base))
	_, err := repo.DeleteByID(context.Background(), stored.ID)
	require.NoError(t, err)

	_, err = repo.UpdateByID(context.Background(), stored.ID, sessions.Update{AccessToken: utils.Ptr("tok-x")})
	require.ErrorIs(t, err, sessions.ErrNotFound)
}

func testDeleteByID(t *testing.T, repo sessions.Repo) {
	ctx := context.Background()
	first := insert(t, repo, newRecord("tok-1", "user-1", base))
	second := insert(t, repo, newRecord("tok-2", "user-1", base))

	deleted, err := repo.DeleteByID(ctx, second.ID)
	require.NoError(t, err)
	require.Equal(t, second.ID, deleted.ID)
	require.Equal(t, "tok-2", deleted.AccessToken)

	_, err = repo.DeleteByID(ctx, second.ID)
	require.ErrorIs(t, err, sessions.ErrNotFound)

	latest, err := repo.FindLatestBySubject(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, first.ID, latest.ID)

	_, err = repo.FindLatestByAccessToken(ctx, "tok-2", sessions.ResourceTypeLogin)
	require.ErrorIs(t, err, sessions.ErrNotFound)
}

func testDeleteExpiredBefore(t *testing.T, repo sessions.Repo) {
	ctx := context.Background()
	cutoff := base.Add(-24 * time.Hour)
	insert(t, repo, newRecord("tok-old-1", "user-1", base.Add(-72*time.Hour)))
	lone := insert(t, repo, newRecord("tok-old-2", "user-2", base.Add(-48*time.Hour)))
	kept := insert(t, repo, newRecord("tok-new", "user-1", base))

	removed, err := repo.DeleteExpiredBefore(ctx, cutoff)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	latest, err := repo.FindLatestBySubject(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, kept.ID, latest.ID)

	_, err = repo.FindLatestByAccessToken(ctx, "tok-old-1", sessions.ResourceTypeLogin)
	require.ErrorIs(t, err, sessions.ErrNotFound)

	// A subject's only record is also its latest and stays.
	latest, err = repo.FindLatestBySubject(ctx, "user-2")
	require.NoError(t, err)
	require.Equal(t, lone.ID, latest.ID)

	removed, err = repo.DeleteExpiredBefore(ctx, cutoff)
	require.NoError(t, err)
	require.EqualValues(t, 0, removed)
}

func testDeleteExpiredKeepsExpiredLatest(t *testing.T, repo sessions.Repo) {
	ctx := context.Background()
	cutoff := base.Add(-24 * time.Hour)
	older := insert(t, repo, newRecord("tok-1", "user-1", base.Add(-72*time.Hour)))
	newest := insert(t, repo, newRecord("tok-2", "user-1", base.Add(-48*time.Hour)))

	// The older record is refreshed past the cutoff, the latest stays expired.
	_, err := repo.UpdateByID(ctx, older.ID, sessions.Update{
		AccessToken: utils.Ptr("tok-1b"),
		ExpiredAt:   utils.Ptr(base.Add(time.Hour)),
	})
	require.NoError(t, err)

	removed, err := repo.DeleteExpiredBefore(ctx, cutoff)
	require.NoError(t, err)
	require.EqualValues(t, 0, removed)

	latest, err := repo.FindLatestBySubject(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, newest.ID, latest.ID)
	require.True(t, latest.ExpiredAt.Before(cutoff))
}

func testConcurrentUpdates(t *testing.T, repo sessions.Repo) {
	ctx := context.Background()
	stored := insert(t, repo, newRecord("tok-0", "user-1", base))

	const writers = 8
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 1; i <= writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.UpdateByID(ctx, stored.ID, sessions.Update{
				AccessToken: utils.Ptr(fmt.Sprintf("tok-%d", i)),
				ExpiredAt:   utils.Ptr(base.Add(time.Duration(i) * time.Hour)),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	latest, err := repo.FindLatestBySubject(ctx, "user-1")
	require.NoError(t, err)

	// Token and expiry must come from the same writer.
	var winner int
	_, err = fmt.Sscanf(latest.AccessToken, "tok-%d", &winner)
	require.NoError(t, err)
	require.True(t, latest.ExpiredAt.Equal(base.Add(time.Duration(winner)*time.Hour)))
}

func testConcurrentInserts(t *testing.T, repo sessions.Repo) {
	ctx := context.Background()

	const writers = 8
	seqs := make(chan int64, writers)
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stored, err := repo.Insert(ctx, newRecord(fmt.Sprintf("tok-%d", i), "user-1", base))
			if err != nil {
				errs <- err
				return
			}
			seqs <- stored.Seq
		}(i)
	}
	wg.Wait()
	close(seqs)
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	seen := make(map[int64]bool)
	var highest int64
	for seq := range seqs {
		require.False(t, seen[seq])
		seen[seq] = true
		highest = max(highest, seq)
	}

	latest, err := repo.FindLatestBySubject(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, highest, latest.Seq)
}
