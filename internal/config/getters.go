package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/jrsteele09/go-session-server/token"
)

func (s *Settings) GetPort() string {
	port := s.Server.Port
	if port == "" {
		port = "8080"
	}
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (s *Settings) GetAppName() string {
	return s.Server.AppName
}

func (s *Settings) GetEnv() string {
	if s.Server.Env == "" {
		return "DEV"
	}
	return s.Server.Env
}

func (s *Settings) GetLogLevel() string {
	return s.Server.LogLevel
}

func (s *Settings) IsDev() bool {
	return strings.EqualFold(s.GetEnv(), "DEV")
}

func (s *Settings) GetTokenConfig() token.Config {
	return token.Config{
		SigningKey:      []byte(s.Token.SigningKey),
		Algorithm:       s.Token.Algorithm,
		PrivateKeyPEM:   s.Token.PrivateKeyPEM,
		AccessTokenTTL:  s.Token.AccessTokenTTL,
		RefreshTokenTTL: s.Token.RefreshTokenTTL,
		Issuer:          s.Token.Issuer,
		Audience:        s.Token.Audience,
	}.WithDefaults()
}

func (s *Settings) GetStoreDriver() string {
	return s.Store.Driver
}

func (s *Settings) GetStoreDSN() string {
	return s.Store.DSN
}

func (s *Settings) GetRedis() RedisSettings {
	return s.Store.Redis
}

// GetSweepInterval is zero when the sweeper is disabled.
func (s *Settings) GetSweepInterval() time.Duration {
	return s.Store.SweepInterval
}

// GetSweepRetention defaults to the refresh token lifetime.
func (s *Settings) GetSweepRetention() time.Duration {
	if s.Store.SweepRetention > 0 {
		return s.Store.SweepRetention
	}
	return s.GetTokenConfig().RefreshTokenTTL
}

func (s *Settings) GetBcryptCost() int {
	return s.Security.BcryptCost
}

func (s *Settings) GetOperationTimeout() time.Duration {
	return s.Security.OperationTimeout
}

func (s *Settings) GetDefaultRole() string {
	return s.Security.DefaultRole
}
