package config

import (
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/go-session-server/internal/errors"
	"github.com/jrsteele09/go-session-server/roles"
	"github.com/jrsteele09/go-session-server/token"
	"golang.org/x/crypto/bcrypt"
)

// Store drivers
const (
	DriverMemory       = "memory"
	DriverSQLite       = "sqlite"
	DriverPostgresGorm = "postgres-gorm"
	DriverPostgres     = "postgres"
	DriverRedis        = "redis"
)

// Settings is the full process configuration. Durations are written as Go
// duration strings in YAML ("24h", "720h").
type Settings struct {
	Server   ServerSettings   `yaml:"server"`
	Token    TokenSettings    `yaml:"token"`
	Store    StoreSettings    `yaml:"store"`
	Security SecuritySettings `yaml:"security"`
}

type ServerSettings struct {
	Port           string   `yaml:"port"`
	AppName        string   `yaml:"app_name"`
	Env            string   `yaml:"env"`
	LogLevel       string   `yaml:"log_level"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type TokenSettings struct {
	SigningKey      string        `yaml:"signing_key"`
	Algorithm       string        `yaml:"algorithm"`
	PrivateKeyPEM   string        `yaml:"private_key_pem"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
	Issuer          string        `yaml:"issuer"`
	Audience        string        `yaml:"audience"`
}

type StoreSettings struct {
	Driver         string        `yaml:"driver"`
	DSN            string        `yaml:"dsn"`
	Redis          RedisSettings `yaml:"redis"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	SweepRetention time.Duration `yaml:"sweep_retention"`
}

type RedisSettings struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type SecuritySettings struct {
	BcryptCost       int           `yaml:"bcrypt_cost"`
	OperationTimeout time.Duration `yaml:"operation_timeout"`
	DefaultRole      string        `yaml:"default_role"`
}

var _ Config = (*Settings)(nil)

// Default returns the settings used when neither file nor environment say otherwise.
func Default() *Settings {
	return &Settings{
		Server: ServerSettings{
			Port:     "8080",
			AppName:  "Go Session Server",
			Env:      "DEV",
			LogLevel: "info",
		},
		Token: TokenSettings{
			Algorithm:       token.AlgorithmHS256,
			AccessTokenTTL:  token.DefaultAccessTokenTTL,
			RefreshTokenTTL: token.DefaultRefreshTokenTTL,
			Issuer:          "go-session-server",
			Audience:        "api",
		},
		Store: StoreSettings{
			Driver: DriverMemory,
			Redis:  RedisSettings{Prefix: "session:"},
		},
		Security: SecuritySettings{
			BcryptCost:       bcrypt.DefaultCost,
			OperationTimeout: 5 * time.Second,
			DefaultRole:      roles.RoleUser,
		},
	}
}

func (s *Settings) Validate() error {
	if err := s.GetTokenConfig().Validate(); err != nil {
		return apperrors.Wrapf(apperrors.ErrInvalidConfig, "token: %v", err)
	}

	switch s.Store.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgresGorm, DriverPostgres:
		if s.Store.DSN == "" {
			return apperrors.Wrapf(apperrors.ErrInvalidConfig, "store driver %s requires a dsn", s.Store.Driver)
		}
	case DriverRedis:
		if s.Store.Redis.Addr == "" {
			return apperrors.Wrapf(apperrors.ErrInvalidConfig, "store driver redis requires an address")
		}
	default:
		return apperrors.Wrapf(apperrors.ErrInvalidConfig, "unsupported store driver %q", s.Store.Driver)
	}

	if s.Security.BcryptCost < bcrypt.MinCost || s.Security.BcryptCost > bcrypt.MaxCost {
		return apperrors.Wrapf(apperrors.ErrInvalidConfig, "bcrypt cost %d outside [%d, %d]", s.Security.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	if s.Store.SweepInterval < 0 || s.Store.SweepRetention < 0 {
		return apperrors.Wrapf(apperrors.ErrInvalidConfig, "sweep durations must not be negative")
	}
	return nil
}

// String omits every secret.
func (s *Settings) String() string {
	return fmt.Sprintf("env=%s port=%s store=%s token=%s", s.Server.Env, s.GetPort(), s.Store.Driver, s.GetTokenConfig())
}
