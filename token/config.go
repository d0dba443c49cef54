package token

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultAccessTokenTTL  = 24 * time.Hour
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour

	// MinHMACKeyBytes is the shortest HS256 signing key accepted.
	MinHMACKeyBytes = 32
)

// Supported signing algorithms
const (
	AlgorithmHS256 = "HS256"
	AlgorithmRS256 = "RS256"
	AlgorithmES256 = "ES256"
)

// Config is the process-wide issuer configuration. It is built once at
// startup and treated as read-only afterwards.
type Config struct {
	SigningKey      []byte        // HMAC secret, required for HS256
	Algorithm       string        // HS256 (default), RS256 or ES256
	PrivateKeyPEM   string        // Key pair for RS256/ES256; generated when empty
	KeyID           string        // kid header for key pair signers
	AccessTokenTTL  time.Duration // Default access token validity
	RefreshTokenTTL time.Duration // Refresh token validity, independent of the access ttl
	Issuer          string        // iss claim
	Audience        string        // aud claim
}

// WithDefaults fills zero values.
func (c Config) WithDefaults() Config {
	if c.Algorithm == "" {
		c.Algorithm = AlgorithmHS256
	}
	if c.AccessTokenTTL <= 0 {
		c.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if c.RefreshTokenTTL <= 0 {
		c.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if c.KeyID == "" {
		c.KeyID = "session-key-1"
	}
	return c
}

func (c Config) Validate() error {
	switch c.Algorithm {
	case AlgorithmHS256:
		if len(c.SigningKey) < MinHMACKeyBytes {
			return errors.Errorf("signing key must be at least %d bytes", MinHMACKeyBytes)
		}
	case AlgorithmRS256, AlgorithmES256:
	default:
		return errors.Errorf("unsupported signing algorithm: %s", c.Algorithm)
	}
	return nil
}

// String never includes key material.
func (c Config) String() string {
	return fmt.Sprintf("token.Config{Algorithm:%s Issuer:%s Audience:%s AccessTokenTTL:%s RefreshTokenTTL:%s SigningKey:[redacted]}",
		c.Algorithm, c.Issuer, c.Audience, c.AccessTokenTTL, c.RefreshTokenTTL)
}
