package token

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-session-server/internal/errors"
	"github.com/pkg/errors"
)

// Token types carried in the token_type claim
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims is both the input to Issue/Reissue and the result of Verify/Decode.
// Only SubjectID, Email and Role are read when issuing.
type Claims struct {
	SubjectID string    `json:"sub"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	TokenID   string    `json:"jti,omitempty"`
	TokenType string    `json:"tokenType,omitempty"`
	Issuer    string    `json:"iss,omitempty"`
	Audience  []string  `json:"aud,omitempty"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// Pair is the result of a login issuance.
type Pair struct {
	AccessToken        string
	RefreshToken       string
	AccessTokenExpiry  time.Time
	RefreshTokenExpiry time.Time
}

type sessionClaims struct {
	Email     string `json:"email"`
	Role      string `json:"role"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Issuer mints and verifies the signed access and refresh tokens.
type Issuer struct {
	signer          Signer
	issuer          string
	audience        string
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	nowFunc         func() time.Time
}

type IssuerOption func(*Issuer)

func WithNowFunc(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.nowFunc = now
	}
}

// WithSigner overrides the signer that would otherwise be built from the config.
func WithSigner(signer Signer) IssuerOption {
	return func(i *Issuer) {
		i.signer = signer
	}
}

func NewIssuer(cfg Config, options ...IssuerOption) (*Issuer, error) {
	cfg = cfg.WithDefaults()
	i := &Issuer{
		issuer:          cfg.Issuer,
		audience:        cfg.Audience,
		accessTokenTTL:  cfg.AccessTokenTTL,
		refreshTokenTTL: cfg.RefreshTokenTTL,
	}

	for _, opt := range options {
		opt(i)
	}

	if i.signer == nil {
		signer, err := NewSignerFromConfig(cfg)
		if err != nil {
			return nil, errors.Wrap(err, "[NewIssuer] signer")
		}
		i.signer = signer
	}
	if i.nowFunc == nil {
		i.nowFunc = time.Now
	}
	return i, nil
}

// AccessTokenTTL is the validity used when Issue or Reissue get a zero ttl.
func (i *Issuer) AccessTokenTTL() time.Duration {
	return i.accessTokenTTL
}

func (i *Issuer) RefreshTokenTTL() time.Duration {
	return i.refreshTokenTTL
}

// Issue signs an access token valid for ttl and a refresh token valid for the
// configured refresh window. The returned expiries match the tokens' exp claims.
func (i *Issuer) Issue(ctx context.Context, claims Claims, ttl time.Duration) (*Pair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = i.accessTokenTTL
	}

	now := i.nowFunc()
	accessExpiry := expiresAt(now, ttl)
	refreshExpiry := expiresAt(now, i.refreshTokenTTL)

	accessToken, err := i.signer.Sign(i.mapClaims(claims, TypeAccess, now, accessExpiry))
	if err != nil {
		return nil, errors.Wrap(err, "Issuer.Issue access token")
	}
	refreshToken, err := i.signer.Sign(i.mapClaims(claims, TypeRefresh, now, refreshExpiry))
	if err != nil {
		return nil, errors.Wrap(err, "Issuer.Issue refresh token")
	}

	return &Pair{
		AccessToken:        accessToken,
		RefreshToken:       refreshToken,
		AccessTokenExpiry:  accessExpiry,
		RefreshTokenExpiry: refreshExpiry,
	}, nil
}

// Reissue signs a new access token only.
func (i *Issuer) Reissue(ctx context.Context, claims Claims, ttl time.Duration) (string, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return "", time.Time{}, err
	}
	if ttl <= 0 {
		ttl = i.accessTokenTTL
	}

	now := i.nowFunc()
	expiry := expiresAt(now, ttl)
	accessToken, err := i.signer.Sign(i.mapClaims(claims, TypeAccess, now, expiry))
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "Issuer.Reissue")
	}
	return accessToken, expiry, nil
}

// Verify checks signature, issuer, audience and expiry of an access token.
func (i *Issuer) Verify(raw string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{i.signer.Method().Alg()}),
		jwt.WithTimeFunc(i.nowFunc),
		jwt.WithExpirationRequired(),
	}
	if i.issuer != "" {
		options = append(options, jwt.WithIssuer(i.issuer))
	}
	if i.audience != "" {
		options = append(options, jwt.WithAudience(i.audience))
	}

	claims, err := i.parse(raw, options...)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TypeAccess {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidToken, "token type %q", claims.TokenType)
	}
	return claims, nil
}

// Decode checks the signature only, so expired tokens still decode.
func (i *Issuer) Decode(raw string) (*Claims, error) {
	return i.parse(raw,
		jwt.WithValidMethods([]string{i.signer.Method().Alg()}),
		jwt.WithoutClaimsValidation(),
	)
}

func (i *Issuer) parse(raw string, options ...jwt.ParserOption) (*Claims, error) {
	parsed := &sessionClaims{}
	_, err := jwt.NewParser(options...).ParseWithClaims(raw, parsed, i.signer.Keyfunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.Wrapf(apperrors.ErrTokenExpired, "%v", err)
		}
		return nil, apperrors.Wrapf(apperrors.ErrInvalidToken, "%v", err)
	}

	claims := &Claims{
		SubjectID: parsed.Subject,
		Email:     parsed.Email,
		Role:      parsed.Role,
		TokenID:   parsed.ID,
		TokenType: parsed.TokenType,
		Issuer:    parsed.Issuer,
		Audience:  parsed.Audience,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time
	}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Time
	}
	return claims, nil
}

// expiresAt truncates to whole seconds so the returned expiry is exactly the
// one encoded in the exp claim.
func expiresAt(now time.Time, ttl time.Duration) time.Time {
	return now.Add(ttl).Truncate(time.Second)
}

func (i *Issuer) mapClaims(claims Claims, tokenType string, issuedAt, expiresAt time.Time) jwt.MapClaims {
	mc := jwt.MapClaims{
		"iss":        i.issuer,
		"sub":        claims.SubjectID,
		"email":      claims.Email,
		"role":       claims.Role,
		"iat":        issuedAt.Unix(),
		"exp":        expiresAt.Unix(),
		"jti":        uuid.New().String(),
		"token_type": tokenType,
	}
	if i.audience != "" {
		mc["aud"] = i.audience
	}
	return mc
}
