package config

import (
	"time"

	"github.com/jrsteele09/go-session-server/token"
)

type Config interface {
	EnvConfig
	CorsConfig
	TokenConfig
	StoreConfig
	SecurityConfig
	Validate() error
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	IsDev() bool
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type TokenConfig interface {
	GetTokenConfig() token.Config
}

type StoreConfig interface {
	GetStoreDriver() string
	GetStoreDSN() string
	GetRedis() RedisSettings
	GetSweepInterval() time.Duration
	GetSweepRetention() time.Duration
}

type SecurityConfig interface {
	GetBcryptCost() int
	GetOperationTimeout() time.Duration
	GetDefaultRole() string
}

// Load builds the configuration from defaults, then the YAML file at path
// (a missing file is fine), then environment variables.
func Load(path string) (Config, error) {
	settings, err := LoadYAMLConfig(path, Default)
	if err != nil {
		return nil, err
	}
	if err := settings.applyEnv(); err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}
