package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-session-server/internal/errors"
	"github.com/jrsteele09/go-session-server/internal/utils"
	"github.com/jrsteele09/go-session-server/roles"
	"github.com/jrsteele09/go-session-server/sessions"
	"github.com/jrsteele09/go-session-server/token"
	"github.com/jrsteele09/go-session-server/users"
	"github.com/pkg/errors"
)

const (
	DefaultAccessTokenTTL   = token.DefaultAccessTokenTTL
	DefaultOperationTimeout = 5 * time.Second
)

// TokenIssuer mints signed tokens. *token.Issuer satisfies it.
type TokenIssuer interface {
	Issue(ctx context.Context, claims token.Claims, ttl time.Duration) (*token.Pair, error)
	Reissue(ctx context.Context, claims token.Claims, ttl time.Duration) (string, time.Time, error)
}

// Hasher hashes and verifies passwords. *users.BcryptHasher satisfies it.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// Repos holds all repository dependencies for the Manager
type Repos struct {
	Users    users.Repo    // Subject directory
	Roles    roles.Repo    // Role directory
	Sessions sessions.Repo // Session record store
}

// RegisterResult describes the newly created subject.
type RegisterResult struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// LoginResult is the token bundle handed out on login.
type LoginResult struct {
	AccessToken        string    `json:"accessToken"`
	RefreshToken       string    `json:"refreshToken"`
	AccessTokenExpiry  time.Time `json:"accessTokenExpiry"`
	RefreshTokenExpiry time.Time `json:"refreshTokenExpiry"`
	Role               string    `json:"role"`
}

// RefreshResult carries the replacement access token.
type RefreshResult struct {
	AccessToken       string    `json:"accessToken"`
	AccessTokenExpiry time.Time `json:"accessTokenExpiry"`
	Role              string    `json:"role"`
}

// Manager runs the register, login, refresh, health-check and revoke flows.
// It keeps no state between calls; every operation re-reads the stores.
type Manager struct {
	repos            Repos
	issuer           TokenIssuer
	hasher           Hasher
	nowFunc          func() time.Time
	accessTokenTTL   time.Duration
	operationTimeout time.Duration
	defaultRole      string
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithNowFunc sets the clock used for every expiry comparison.
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithAccessTokenTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTokenTTL = ttl
	}
}

// WithOperationTimeout bounds operations whose context carries no deadline.
// Zero disables the bound.
func WithOperationTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		m.operationTimeout = timeout
	}
}

// WithDefaultRole names the role given to new registrations.
func WithDefaultRole(name string) ManagerOption {
	return func(m *Manager) {
		m.defaultRole = name
	}
}

// NewManager initializes a Manager with required dependencies.
func NewManager(repos Repos, issuer TokenIssuer, hasher Hasher, options ...ManagerOption) (*Manager, error) {
	if repos.Users == nil {
		return nil, errors.New("[NewManager] Users repo is required")
	}
	if repos.Roles == nil {
		return nil, errors.New("[NewManager] Roles repo is required")
	}
	if repos.Sessions == nil {
		return nil, errors.New("[NewManager] Sessions repo is required")
	}
	if issuer == nil {
		return nil, errors.New("[NewManager] token issuer is required")
	}
	if hasher == nil {
		return nil, errors.New("[NewManager] password hasher is required")
	}

	m := &Manager{
		repos:            repos,
		issuer:           issuer,
		hasher:           hasher,
		nowFunc:          time.Now,
		accessTokenTTL:   DefaultAccessTokenTTL,
		operationTimeout: DefaultOperationTimeout,
		defaultRole:      roles.RoleUser,
	}

	for _, opt := range options {
		opt(m)
	}

	if m.accessTokenTTL <= 0 {
		m.accessTokenTTL = DefaultAccessTokenTTL
	}
	return m, nil
}

// Register creates a subject with a hashed credential. It does not log in.
func (m *Manager) Register(ctx context.Context, email, password string) (*RegisterResult, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	email = users.NormaliseEmail(email)
	if email == "" || password == "" {
		return nil, newError(KindBadInput, "email and password are required", nil)
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, newError(KindBadInput, "email is not valid", nil)
	}

	_, err := m.repos.Users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, ErrConflict
	case !apperrors.Is(err, apperrors.ErrNotFound):
		return nil, m.fail(ctx, KindInternal, "failed to look up user", errors.Wrap(err, "Manager.Register GetByEmail"))
	}

	hash, err := m.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, users.ErrPasswordTooLong) {
			return nil, newError(KindBadInput, "password is too long", err)
		}
		return nil, newError(KindInternal, "failed to hash password", errors.Wrap(err, "Manager.Register Hash"))
	}

	role, err := m.repos.Roles.GetByName(ctx, m.defaultRole)
	if err != nil {
		return nil, m.fail(ctx, KindInternal, "default role is not configured", errors.Wrap(err, "Manager.Register GetByName"))
	}

	user := &users.User{
		Email:        email,
		PasswordHash: hash,
		RoleID:       role.ID,
		Active:       true,
	}
	if err := m.repos.Users.Create(ctx, user); err != nil {
		if apperrors.Is(err, apperrors.ErrDuplicate) {
			return nil, ErrConflict
		}
		return nil, m.fail(ctx, KindWriteError, "failed to create user", errors.Wrap(err, "Manager.Register Create"))
	}

	return &RegisterResult{ID: user.ID, Email: user.Email, Role: role.Name}, nil
}

// Login verifies credentials and records a new session. Unknown emails and
// wrong passwords produce the same error.
func (m *Manager) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	email = users.NormaliseEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := m.repos.Users.GetByEmail(ctx, email)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, m.fail(ctx, KindInternal, "failed to look up user", errors.Wrap(err, "Manager.Login GetByEmail"))
	}
	if !user.Active {
		return nil, ErrAccountInactive
	}
	if !m.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	claims := token.Claims{SubjectID: user.ID, Email: user.Email, Role: user.RoleName}
	pair, err := m.issuer.Issue(ctx, claims, m.accessTokenTTL)
	if err != nil {
		return nil, m.fail(ctx, KindInternal, "failed to issue tokens", errors.Wrap(err, "Manager.Login Issue"))
	}

	result := &LoginResult{
		AccessToken:        pair.AccessToken,
		RefreshToken:       pair.RefreshToken,
		AccessTokenExpiry:  pair.AccessTokenExpiry,
		RefreshTokenExpiry: pair.RefreshTokenExpiry,
		Role:               user.RoleName,
	}

	_, err = m.repos.Sessions.Insert(ctx, &sessions.Record{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ResourceType: sessions.ResourceTypeLogin,
		ResourceBy:   user.ID,
		ExpiredAt:    result.AccessTokenExpiry,
	})
	if err != nil {
		return nil, m.fail(ctx, KindWriteError, "failed to save session", errors.Wrap(err, "Manager.Login Insert"))
	}

	return result, nil
}

// RefreshToken swaps an expired access token for a new one. The session
// record is updated in place, its refresh token and position are kept. Tokens
// that have not expired yet are refused.
func (m *Manager) RefreshToken(ctx context.Context, accessToken string) (*RefreshResult, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, newError(KindBadInput, "access token is required", nil)
	}

	record, err := m.repos.Sessions.FindLatestByAccessToken(ctx, accessToken, sessions.ResourceTypeLogin)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, m.fail(ctx, KindInternal, "failed to look up session", errors.Wrap(err, "Manager.RefreshToken FindLatestByAccessToken"))
	}

	now := m.nowFunc()
	if record.ExpiredAt.After(now) {
		return nil, ErrTokenNotExpired
	}

	user, err := m.repos.Users.GetByID(ctx, record.ResourceBy)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, newError(KindNotFound, "user not found", nil)
		}
		return nil, m.fail(ctx, KindInternal, "failed to look up user", errors.Wrap(err, "Manager.RefreshToken GetByID"))
	}

	claims := token.Claims{SubjectID: user.ID, Email: user.Email, Role: user.RoleName}
	// The record expires exactly when the new token's exp claim does.
	newToken, expiry, err := m.issuer.Reissue(ctx, claims, m.accessTokenTTL)
	if err != nil {
		return nil, m.fail(ctx, KindInternal, "failed to issue token", errors.Wrap(err, "Manager.RefreshToken Reissue"))
	}

	_, err = m.repos.Sessions.UpdateByID(ctx, record.ID, sessions.Update{
		AccessToken: utils.Ptr(newToken),
		ExpiredAt:   utils.Ptr(expiry),
	})
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, m.fail(ctx, KindWriteError, "failed to update session", errors.Wrap(err, "Manager.RefreshToken UpdateByID"))
	}

	return &RefreshResult{AccessToken: newToken, AccessTokenExpiry: expiry, Role: user.RoleName}, nil
}

// HealthCheck succeeds while the subject's latest session has not expired.
func (m *Manager) HealthCheck(ctx context.Context, subjectID string) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	_, err := m.currentSession(ctx, subjectID, "Manager.HealthCheck")
	return err
}

// Revoke deletes the subject's latest session.
func (m *Manager) Revoke(ctx context.Context, subjectID string) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	record, err := m.currentSession(ctx, subjectID, "Manager.Revoke")
	if err != nil {
		return err
	}

	if _, err := m.repos.Sessions.DeleteByID(ctx, record.ID); err != nil {
		return m.fail(ctx, KindRevokeFailed, ErrRevokeFailed.Message, errors.Wrap(err, "Manager.Revoke DeleteByID"))
	}
	return nil
}

// currentSession returns the subject's latest record if it has not expired.
func (m *Manager) currentSession(ctx context.Context, subjectID, op string) (*sessions.Record, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, newError(KindBadInput, "subject id is required", nil)
	}

	record, err := m.repos.Sessions.FindLatestBySubject(ctx, subjectID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, m.fail(ctx, KindInternal, "failed to look up session", errors.Wrap(err, op+" FindLatestBySubject"))
	}
	if record.Expired(m.nowFunc()) {
		return nil, ErrTokenExpired
	}
	return record, nil
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || m.operationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.operationTimeout)
}

// fail reports a Timeout instead of kind when the context ran out, since
// drivers do not always wrap the context error.
func (m *Manager) fail(ctx context.Context, kind Kind, message string, cause error) *Error {
	if ctx.Err() != nil || isContextErr(cause) {
		return newError(KindTimeout, ErrTimeout.Message, cause)
	}
	return newError(kind, message, cause)
}
