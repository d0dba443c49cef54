package auth_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-server/auth"
	"github.com/jrsteele09/go-session-server/roles"
	rolerepofake "github.com/jrsteele09/go-session-server/roles/repofake"
	"github.com/jrsteele09/go-session-server/sessions"
	fakesessionrepo "github.com/jrsteele09/go-session-server/sessions/repofake"
	"github.com/jrsteele09/go-session-server/token"
	"github.com/jrsteele09/go-session-server/users"
	fakeuserrepo "github.com/jrsteele09/go-session-server/users/repofake"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testSigningKey   = "0123456789abcdef0123456789abcdef"
	testUserEmail    = "a@x.com"
	testUserPassword = "pw1"
	day              = 24 * time.Hour
)

// clock is a manually advanced time source shared by the manager, issuer and store
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testFixture holds all test dependencies
type testFixture struct {
	clock       *clock
	roleRepo    *rolerepofake.FakeRoleRepo
	userRepo    *fakeuserrepo.FakeUserRepo
	sessionRepo *fakesessionrepo.FakeSessionRepo
	issuer      *token.Issuer
	manager     *auth.Manager
}

// setupTestFixture creates a new test fixture with all dependencies
func setupTestFixture(t *testing.T, options ...auth.ManagerOption) *testFixture {
	t.Helper()

	c := &clock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}

	rr := rolerepofake.NewFakeRoleRepo()
	for _, name := range []string{roles.RoleAdmin, roles.RoleUser} {
		require.NoError(t, rr.Upsert(context.Background(), &roles.Role{Name: name}))
	}
	ur := fakeuserrepo.NewFakeUserRepo(rr)
	sr := fakesessionrepo.NewFakeSessionRepo(fakesessionrepo.WithNowFunc(c.Now))

	issuer, err := token.NewIssuer(token.Config{
		SigningKey: []byte(testSigningKey),
		Issuer:     "com.testissuer",
		Audience:   "api",
	}, token.WithNowFunc(c.Now))
	require.NoError(t, err)

	manager, err := auth.NewManager(
		auth.Repos{Users: ur, Roles: rr, Sessions: sr},
		issuer,
		users.NewBcryptHasher(bcrypt.MinCost),
		append([]auth.ManagerOption{auth.WithNowFunc(c.Now)}, options...)...,
	)
	require.NoError(t, err)

	return &testFixture{
		clock:       c,
		roleRepo:    rr,
		userRepo:    ur,
		sessionRepo: sr,
		issuer:      issuer,
		manager:     manager,
	}
}

// registerAndLogin registers the default test user and logs them in
func (f *testFixture) registerAndLogin(t *testing.T) (*auth.RegisterResult, *auth.LoginResult) {
	t.Helper()

	registered, err := f.manager.Register(context.Background(), testUserEmail, testUserPassword)
	require.NoError(t, err)
	login, err := f.manager.Login(context.Background(), testUserEmail, testUserPassword)
	require.NoError(t, err)
	return registered, login
}

func requireKind(t *testing.T, err error, kind auth.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, auth.KindOf(err), "error: %v", err)
}

func TestNewManager_RequiredDependencies(t *testing.T) {
	rr := rolerepofake.NewFakeRoleRepo()
	ur := fakeuserrepo.NewFakeUserRepo(rr)
	sr := fakesessionrepo.NewFakeSessionRepo()
	issuer, err := token.NewIssuer(token.Config{SigningKey: []byte(testSigningKey)})
	require.NoError(t, err)
	hasher := users.NewBcryptHasher(bcrypt.MinCost)

	_, err = auth.NewManager(auth.Repos{Roles: rr, Sessions: sr}, issuer, hasher)
	require.ErrorContains(t, err, "Users repo is required")
	_, err = auth.NewManager(auth.Repos{Users: ur, Sessions: sr}, issuer, hasher)
	require.ErrorContains(t, err, "Roles repo is required")
	_, err = auth.NewManager(auth.Repos{Users: ur, Roles: rr}, issuer, hasher)
	require.ErrorContains(t, err, "Sessions repo is required")
	_, err = auth.NewManager(auth.Repos{Users: ur, Roles: rr, Sessions: sr}, nil, hasher)
	require.ErrorContains(t, err, "token issuer is required")
	_, err = auth.NewManager(auth.Repos{Users: ur, Roles: rr, Sessions: sr}, issuer, nil)
	require.ErrorContains(t, err, "password hasher is required")
}

// TestRegister_DuplicateEmailConflicts ensures a second registration with the same email fails
// and the stored credential is never the plaintext password
func TestRegister_DuplicateEmailConflicts(t *testing.T) {
	f := setupTestFixture(t)

	registered, err := f.manager.Register(context.Background(), testUserEmail, testUserPassword)
	require.NoError(t, err)
	require.NotEmpty(t, registered.ID)
	require.Equal(t, testUserEmail, registered.Email)
	require.Equal(t, roles.RoleUser, registered.Role)

	_, err = f.manager.Register(context.Background(), testUserEmail, "another")
	requireKind(t, err, auth.KindConflict)
	require.ErrorIs(t, err, auth.ErrConflict)

	// Email comparison ignores case and surrounding space.
	_, err = f.manager.Register(context.Background(), "  A@X.com ", testUserPassword)
	requireKind(t, err, auth.KindConflict)

	stored, err := f.userRepo.GetByEmail(context.Background(), testUserEmail)
	require.NoError(t, err)
	require.NotEqual(t, testUserPassword, stored.PasswordHash)
	require.True(t, users.CheckPasswordHash(testUserPassword, stored.PasswordHash))
	require.True(t, stored.Active)
}

// TestRegister_NoSessionCreated checks registration and login stay separate
func TestRegister_NoSessionCreated(t *testing.T) {
	f := setupTestFixture(t)

	registered, err := f.manager.Register(context.Background(), testUserEmail, testUserPassword)
	require.NoError(t, err)
	require.Equal(t, 0, f.sessionRepo.Len())

	err = f.manager.HealthCheck(context.Background(), registered.ID)
	requireKind(t, err, auth.KindNotFound)
}

func TestRegister_BadInput(t *testing.T) {
	f := setupTestFixture(t)

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"blank email", "  ", testUserPassword},
		{"blank password", testUserEmail, ""},
		{"malformed email", "not-an-email", testUserPassword},
		{"display name", "Alice <a@x.com>", testUserPassword},
		{"password too long", testUserEmail, strings.Repeat("p", 73)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.manager.Register(context.Background(), tt.email, tt.password)
			requireKind(t, err, auth.KindBadInput)
		})
	}
}

// TestRegister_WriteError maps a rejected create to WriteError
func TestRegister_WriteError(t *testing.T) {
	f := setupTestFixture(t)
	f.userRepo.CreateErr = errors.New("disk full")

	_, err := f.manager.Register(context.Background(), testUserEmail, testUserPassword)
	requireKind(t, err, auth.KindWriteError)
	require.ErrorContains(t, err, "disk full")
}

// TestRegister_DefaultRole assigns the configured role
func TestRegister_DefaultRole(t *testing.T) {
	f := setupTestFixture(t, auth.WithDefaultRole(roles.RoleAdmin))

	registered, err := f.manager.Register(context.Background(), testUserEmail, testUserPassword)
	require.NoError(t, err)
	require.Equal(t, roles.RoleAdmin, registered.Role)

	f = setupTestFixture(t, auth.WithDefaultRole("missing"))
	_, err = f.manager.Register(context.Background(), testUserEmail, testUserPassword)
	requireKind(t, err, auth.KindInternal)
}

// TestLogin_ClaimsMatchSubject decodes the access token back to the subject's id, email and role
func TestLogin_ClaimsMatchSubject(t *testing.T) {
	f := setupTestFixture(t)
	registered, login := f.registerAndLogin(t)

	require.NotEmpty(t, login.AccessToken)
	require.NotEmpty(t, login.RefreshToken)
	require.Equal(t, roles.RoleUser, login.Role)
	require.Equal(t, f.clock.Now().Add(day), login.AccessTokenExpiry)
	require.Equal(t, f.clock.Now().Add(30*day), login.RefreshTokenExpiry)

	claims, err := f.issuer.Verify(login.AccessToken)
	require.NoError(t, err)
	require.Equal(t, registered.ID, claims.SubjectID)
	require.Equal(t, testUserEmail, claims.Email)
	require.Equal(t, roles.RoleUser, claims.Role)

	record, err := f.sessionRepo.FindLatestBySubject(context.Background(), registered.ID)
	require.NoError(t, err)
	require.Equal(t, login.AccessToken, record.AccessToken)
	require.Equal(t, login.RefreshToken, record.RefreshToken)
	require.Equal(t, sessions.ResourceTypeLogin, record.ResourceType)
	require.Equal(t, login.AccessTokenExpiry, record.ExpiredAt)
}

// TestLogin_EnumerationResistance returns the same kind and message for unknown email and wrong password
func TestLogin_EnumerationResistance(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.manager.Register(context.Background(), testUserEmail, testUserPassword)
	require.NoError(t, err)

	_, wrongPassword := f.manager.Login(context.Background(), testUserEmail, "wrong")
	_, unknownEmail := f.manager.Login(context.Background(), "nobody@x.com", testUserPassword)

	requireKind(t, wrongPassword, auth.KindInvalidCredentials)
	requireKind(t, unknownEmail, auth.KindInvalidCredentials)
	require.Equal(t, wrongPassword.Error(), unknownEmail.Error())
	require.Equal(t, 0, f.sessionRepo.Len())
}

// TestLogin_InactiveAccount refuses disabled subjects
func TestLogin_InactiveAccount(t *testing.T) {
	f := setupTestFixture(t)
	registered, err := f.manager.Register(context.Background(), testUserEmail, testUserPassword)
	require.NoError(t, err)
	require.NoError(t, f.userRepo.SetActive(context.Background(), registered.ID, false))

	_, err = f.manager.Login(context.Background(), testUserEmail, testUserPassword)
	requireKind(t, err, auth.KindAccountInactive)
}

// TestLogin_SoftDeleted treats deleted subjects as unknown
func TestLogin_SoftDeleted(t *testing.T) {
	f := setupTestFixture(t)
	registered, err := f.manager.Register(context.Background(), testUserEmail, testUserPassword)
	require.NoError(t, err)
	require.NoError(t, f.userRepo.SoftDelete(context.Background(), registered.ID))

	_, err = f.manager.Login(context.Background(), testUserEmail, testUserPassword)
	requireKind(t, err, auth.KindInvalidCredentials)
}

// TestLogin_EachLoginAddsRecord keeps older records while the newest becomes current
func TestLogin_EachLoginAddsRecord(t *testing.T) {
	f := setupTestFixture(t)
	registered, first := f.registerAndLogin(t)

	second, err := f.manager.Login(context.Background(), testUserEmail, testUserPassword)
	require.NoError(t, err)
	require.NotEqual(t, first.AccessToken, second.AccessToken)
	require.Equal(t, 2, f.sessionRepo.Len())

	latest, err := f.sessionRepo.FindLatestBySubject(context.Background(), registered.ID)
	require.NoError(t, err)
	require.Equal(t, second.AccessToken, latest.AccessToken)

	// The first token can still be refreshed through its own record.
	f.clock.Advance(day)
	refreshed, err := f.manager.RefreshToken(context.Background(), first.AccessToken)
	require.NoError(t, err)

	latest, err = f.sessionRepo.FindLatestBySubject(context.Background(), registered.ID)
	require.NoError(t, err)
	require.Equal(t, second.AccessToken, latest.AccessToken)
	require.NotEqual(t, refreshed.AccessToken, latest.AccessToken)
}

// TestLogin_WriteError maps a rejected insert to WriteError
func TestLogin_WriteError(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.manager.Register(context.Background(), testUserEmail, testUserPassword)
	require.NoError(t, err)
	f.sessionRepo.InsertErr = errors.New("read only")

	_, err = f.manager.Login(context.Background(), testUserEmail, testUserPassword)
	requireKind(t, err, auth.KindWriteError)
}

// TestRefreshToken_ExpiryPolicy refuses live tokens and accepts expired ones
func TestRefreshToken_ExpiryPolicy(t *testing.T) {
	f := setupTestFixture(t)
	_, login := f.registerAndLogin(t)

	_, err := f.manager.RefreshToken(context.Background(), login.AccessToken)
	requireKind(t, err, auth.KindTokenNotExpired)

	f.clock.Advance(day - time.Second)
	_, err = f.manager.RefreshToken(context.Background(), login.AccessToken)
	requireKind(t, err, auth.KindTokenNotExpired)

	// expiredAt == now is already refreshable
	f.clock.Advance(time.Second)
	refreshed, err := f.manager.RefreshToken(context.Background(), login.AccessToken)
	require.NoError(t, err)
	require.True(t, refreshed.AccessTokenExpiry.After(login.AccessTokenExpiry))
	require.Equal(t, f.clock.Now().Add(day), refreshed.AccessTokenExpiry)
	require.Equal(t, roles.RoleUser, refreshed.Role)
}

// TestRefreshToken_UpdatesInPlace keeps record id, sequence and refresh token
func TestRefreshToken_UpdatesInPlace(t *testing.T) {
	f := setupTestFixture(t)
	registered, login := f.registerAndLogin(t)

	before, err := f.sessionRepo.FindLatestBySubject(context.Background(), registered.ID)
	require.NoError(t, err)

	f.clock.Advance(2 * day)
	refreshed, err := f.manager.RefreshToken(context.Background(), login.AccessToken)
	require.NoError(t, err)

	after, err := f.sessionRepo.FindLatestBySubject(context.Background(), registered.ID)
	require.NoError(t, err)
	require.Equal(t, before.ID, after.ID)
	require.Equal(t, before.Seq, after.Seq)
	require.Equal(t, login.RefreshToken, after.RefreshToken)
	require.Equal(t, refreshed.AccessToken, after.AccessToken)
	require.Equal(t, refreshed.AccessTokenExpiry, after.ExpiredAt)
	require.Equal(t, 1, f.sessionRepo.Len())

	// The old token no longer identifies a session.
	_, err = f.manager.RefreshToken(context.Background(), login.AccessToken)
	requireKind(t, err, auth.KindNotFound)
}

func TestRefreshToken_Failures(t *testing.T) {
	t.Run("blank token", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.manager.RefreshToken(context.Background(), " ")
		requireKind(t, err, auth.KindBadInput)
	})

	t.Run("unknown token", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.manager.RefreshToken(context.Background(), "not-a-token")
		requireKind(t, err, auth.KindNotFound)
	})

	t.Run("deleted subject", func(t *testing.T) {
		f := setupTestFixture(t)
		registered, login := f.registerAndLogin(t)
		require.NoError(t, f.userRepo.SoftDelete(context.Background(), registered.ID))

		f.clock.Advance(2 * day)
		_, err := f.manager.RefreshToken(context.Background(), login.AccessToken)
		requireKind(t, err, auth.KindNotFound)
	})

	t.Run("update rejected", func(t *testing.T) {
		f := setupTestFixture(t)
		_, login := f.registerAndLogin(t)
		f.sessionRepo.UpdateErr = errors.New("read only")

		f.clock.Advance(2 * day)
		_, err := f.manager.RefreshToken(context.Background(), login.AccessToken)
		requireKind(t, err, auth.KindWriteError)
	})
}

// TestRefreshToken_Concurrent lets the last writer win without corrupting the record
func TestRefreshToken_Concurrent(t *testing.T) {
	f := setupTestFixture(t)
	registered, login := f.registerAndLogin(t)
	f.clock.Advance(2 * day)

	const callers = 8
	results := make(chan *auth.RefreshResult, callers)
	failures := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			refreshed, err := f.manager.RefreshToken(context.Background(), login.AccessToken)
			if err != nil {
				failures <- err
				return
			}
			results <- refreshed
		}()
	}
	wg.Wait()
	close(results)
	close(failures)

	// Losers of the race find the old token already replaced.
	for err := range failures {
		requireKind(t, err, auth.KindNotFound)
	}

	issued := make(map[string]bool)
	for refreshed := range results {
		issued[refreshed.AccessToken] = true
	}
	require.NotEmpty(t, issued)

	record, err := f.sessionRepo.FindLatestBySubject(context.Background(), registered.ID)
	require.NoError(t, err)
	require.True(t, issued[record.AccessToken])
	require.Equal(t, 1, f.sessionRepo.Len())
}

// TestHealthCheck_IffUnexpiredSession succeeds exactly while expiredAt >= now
func TestHealthCheck_IffUnexpiredSession(t *testing.T) {
	f := setupTestFixture(t)
	registered, _ := f.registerAndLogin(t)

	require.NoError(t, f.manager.HealthCheck(context.Background(), registered.ID))

	f.clock.Advance(day)
	require.NoError(t, f.manager.HealthCheck(context.Background(), registered.ID))

	f.clock.Advance(time.Nanosecond)
	err := f.manager.HealthCheck(context.Background(), registered.ID)
	requireKind(t, err, auth.KindTokenExpired)

	err = f.manager.HealthCheck(context.Background(), "")
	requireKind(t, err, auth.KindBadInput)

	err = f.manager.HealthCheck(context.Background(), "unknown-subject")
	requireKind(t, err, auth.KindNotFound)
}

// TestHealthCheck_UsesLatestRecord ignores an older unexpired record once a newer one exists
func TestHealthCheck_UsesLatestRecord(t *testing.T) {
	f := setupTestFixture(t, auth.WithAccessTokenTTL(time.Hour))
	registered, _ := f.registerAndLogin(t)

	_, err := f.sessionRepo.Insert(context.Background(), &sessions.Record{
		AccessToken:  "manual",
		ResourceType: sessions.ResourceTypeLogin,
		ResourceBy:   registered.ID,
		ExpiredAt:    f.clock.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	err = f.manager.HealthCheck(context.Background(), registered.ID)
	requireKind(t, err, auth.KindTokenExpired)
}

// TestHealthCheck_SweepKeepsOutcome leaves the answer unchanged when an older record was refreshed
func TestHealthCheck_SweepKeepsOutcome(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	registered, first := f.registerAndLogin(t)
	_, err := f.manager.Login(ctx, testUserEmail, testUserPassword)
	require.NoError(t, err)

	f.clock.Advance(40 * day)
	_, err = f.manager.RefreshToken(ctx, first.AccessToken)
	require.NoError(t, err)
	requireKind(t, f.manager.HealthCheck(ctx, registered.ID), auth.KindTokenExpired)

	sweeper := sessions.NewSweeper(f.sessionRepo, time.Minute, 30*day, sessions.WithSweeperNowFunc(f.clock.Now))
	removed, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, removed)
	requireKind(t, f.manager.HealthCheck(ctx, registered.ID), auth.KindTokenExpired)
}

// TestSessionExpiry_MatchesTokenExp stores the same expiry the signed token carries
func TestSessionExpiry_MatchesTokenExp(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.clock.Advance(750 * time.Millisecond)
	registered, login := f.registerAndLogin(t)

	claims, err := f.issuer.Decode(login.AccessToken)
	require.NoError(t, err)
	require.True(t, login.AccessTokenExpiry.Equal(claims.ExpiresAt))
	record, err := f.sessionRepo.FindLatestBySubject(ctx, registered.ID)
	require.NoError(t, err)
	require.True(t, record.ExpiredAt.Equal(claims.ExpiresAt))

	// Past the token's exp but before login time plus TTL: both sides agree it has expired.
	f.clock.Advance(day - 500*time.Millisecond)
	_, err = f.issuer.Verify(login.AccessToken)
	require.Error(t, err)
	requireKind(t, f.manager.HealthCheck(ctx, registered.ID), auth.KindTokenExpired)

	refreshed, err := f.manager.RefreshToken(ctx, login.AccessToken)
	require.NoError(t, err)
	claims, err = f.issuer.Decode(refreshed.AccessToken)
	require.NoError(t, err)
	record, err = f.sessionRepo.FindLatestBySubject(ctx, registered.ID)
	require.NoError(t, err)
	require.True(t, record.ExpiredAt.Equal(claims.ExpiresAt))
	require.True(t, refreshed.AccessTokenExpiry.Equal(claims.ExpiresAt))
}

// TestRevoke_ThenHealthCheckNotFound removes the record rather than expiring it
func TestRevoke_ThenHealthCheckNotFound(t *testing.T) {
	f := setupTestFixture(t)
	registered, _ := f.registerAndLogin(t)

	require.NoError(t, f.manager.Revoke(context.Background(), registered.ID))
	require.Equal(t, 0, f.sessionRepo.Len())

	err := f.manager.HealthCheck(context.Background(), registered.ID)
	requireKind(t, err, auth.KindNotFound)
	require.ErrorIs(t, err, auth.ErrNotFound)

	err = f.manager.Revoke(context.Background(), registered.ID)
	requireKind(t, err, auth.KindNotFound)
}

func TestRevoke_Failures(t *testing.T) {
	t.Run("expired", func(t *testing.T) {
		f := setupTestFixture(t)
		registered, _ := f.registerAndLogin(t)
		f.clock.Advance(2 * day)

		err := f.manager.Revoke(context.Background(), registered.ID)
		requireKind(t, err, auth.KindTokenExpired)
		require.Equal(t, 1, f.sessionRepo.Len())
	})

	t.Run("blank subject", func(t *testing.T) {
		f := setupTestFixture(t)
		err := f.manager.Revoke(context.Background(), "")
		requireKind(t, err, auth.KindBadInput)
	})

	t.Run("delete reports nothing removed", func(t *testing.T) {
		f := setupTestFixture(t)
		registered, _ := f.registerAndLogin(t)
		f.sessionRepo.DeleteErr = sessions.ErrNotFound

		err := f.manager.Revoke(context.Background(), registered.ID)
		requireKind(t, err, auth.KindRevokeFailed)
		require.ErrorIs(t, err, auth.ErrRevokeFailed)
	})
}

// blockingSessionRepo never answers until the caller gives up
type blockingSessionRepo struct {
	sessions.Repo
}

func (blockingSessionRepo) FindLatestBySubject(ctx context.Context, _ string) (*sessions.Record, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// TestOperationTimeout maps an unresponsive store to Timeout
func TestOperationTimeout(t *testing.T) {
	rr := rolerepofake.NewFakeRoleRepo()
	issuer, err := token.NewIssuer(token.Config{SigningKey: []byte(testSigningKey)})
	require.NoError(t, err)

	manager, err := auth.NewManager(
		auth.Repos{
			Users:    fakeuserrepo.NewFakeUserRepo(rr),
			Roles:    rr,
			Sessions: blockingSessionRepo{Repo: fakesessionrepo.NewFakeSessionRepo()},
		},
		issuer,
		users.NewBcryptHasher(bcrypt.MinCost),
		auth.WithOperationTimeout(20*time.Millisecond),
	)
	require.NoError(t, err)

	err = manager.HealthCheck(context.Background(), "user-1")
	requireKind(t, err, auth.KindTimeout)

	// A caller deadline takes precedence over the default.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	err = manager.Revoke(ctx, "user-1")
	requireKind(t, err, auth.KindTimeout)
}

// TestCancelledContext fails without mutating the store
func TestCancelledContext(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.manager.Register(context.Background(), testUserEmail, testUserPassword)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = f.manager.Login(ctx, testUserEmail, testUserPassword)
	requireKind(t, err, auth.KindTimeout)
	require.Equal(t, 0, f.sessionRepo.Len())
}

// TestScenario_FullLifecycle walks register, login, refresh, revoke and health-check with a fake clock
func TestScenario_FullLifecycle(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	registered, err := f.manager.Register(ctx, "a@x.com", "pw1")
	require.NoError(t, err)

	login, err := f.manager.Login(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	require.Equal(t, day, login.AccessTokenExpiry.Sub(f.clock.Now()))
	require.Equal(t, 30*day, login.RefreshTokenExpiry.Sub(f.clock.Now()))

	_, err = f.manager.RefreshToken(ctx, login.AccessToken)
	requireKind(t, err, auth.KindTokenNotExpired)

	f.clock.Advance(day + time.Minute)
	refreshed, err := f.manager.RefreshToken(ctx, login.AccessToken)
	require.NoError(t, err)
	require.NotEqual(t, login.AccessToken, refreshed.AccessToken)

	record, err := f.sessionRepo.FindLatestBySubject(ctx, registered.ID)
	require.NoError(t, err)
	require.Equal(t, login.RefreshToken, record.RefreshToken)

	require.NoError(t, f.manager.Revoke(ctx, registered.ID))

	err = f.manager.HealthCheck(ctx, registered.ID)
	requireKind(t, err, auth.KindNotFound)
}

func TestKindOf(t *testing.T) {
	require.Equal(t, auth.Kind(""), auth.KindOf(nil))
	require.Equal(t, auth.KindTimeout, auth.KindOf(context.DeadlineExceeded))
	require.Equal(t, auth.KindInternal, auth.KindOf(errors.New("boom")))
	require.Equal(t, auth.KindConflict, auth.KindOf(auth.ErrConflict))

	wrapped := &auth.Error{Kind: auth.KindWriteError, Message: "save", Err: errors.New("disk")}
	require.ErrorIs(t, wrapped, auth.ErrWriteError)
	require.NotErrorIs(t, wrapped, auth.ErrNotFound)
	require.Equal(t, "save: disk", wrapped.Error())
}
