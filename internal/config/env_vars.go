package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-session-server/internal/errors"
)

const (
	portEnvVar          = "PORT"
	appNameVar          = "APP_NAME"
	envVar              = "ENV"
	logLevelVar         = "LOG_LEVEL"
	allowedOriginsVar   = "ALLOWED_ORIGINS"
	signingKeyVar       = "TOKEN_SIGNING_KEY"
	algorithmVar        = "TOKEN_ALGORITHM"
	privateKeyVar       = "TOKEN_PRIVATE_KEY_PEM"
	accessTokenTTLVar   = "ACCESS_TOKEN_TTL"
	refreshTokenTTLVar  = "REFRESH_TOKEN_TTL"
	issuerVar           = "TOKEN_ISSUER"
	audienceVar         = "TOKEN_AUDIENCE"
	storeDriverVar      = "STORE_DRIVER"
	storeDSNVar         = "STORE_DSN"
	redisAddrVar        = "REDIS_ADDR"
	redisPasswordVar    = "REDIS_PASSWORD"
	redisDBVar          = "REDIS_DB"
	redisPrefixVar      = "REDIS_PREFIX"
	sweepIntervalVar    = "SWEEP_INTERVAL"
	sweepRetentionVar   = "SWEEP_RETENTION"
	bcryptCostVar       = "BCRYPT_COST"
	operationTimeoutVar = "OPERATION_TIMEOUT"
	defaultRoleVar      = "DEFAULT_ROLE"
	configFileVar       = "CONFIG_FILE"
	defaultConfigFile   = "config.yaml"
)

// ConfigFile returns the YAML path named by CONFIG_FILE.
func ConfigFile() string {
	return GetEnv(configFileVar, defaultConfigFile)
}

func (s *Settings) applyEnv() error {
	setString(&s.Server.Port, portEnvVar)
	setString(&s.Server.AppName, appNameVar)
	setString(&s.Server.Env, envVar)
	setString(&s.Server.LogLevel, logLevelVar)
	if origins := os.Getenv(allowedOriginsVar); origins != "" {
		s.Server.AllowedOrigins = strings.Split(origins, ",")
	}

	setString(&s.Token.SigningKey, signingKeyVar)
	setString(&s.Token.Algorithm, algorithmVar)
	setString(&s.Token.PrivateKeyPEM, privateKeyVar)
	setString(&s.Token.Issuer, issuerVar)
	setString(&s.Token.Audience, audienceVar)

	setString(&s.Store.Driver, storeDriverVar)
	setString(&s.Store.DSN, storeDSNVar)
	setString(&s.Store.Redis.Addr, redisAddrVar)
	setString(&s.Store.Redis.Password, redisPasswordVar)
	setString(&s.Store.Redis.Prefix, redisPrefixVar)
	setString(&s.Security.DefaultRole, defaultRoleVar)

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{accessTokenTTLVar, &s.Token.AccessTokenTTL},
		{refreshTokenTTLVar, &s.Token.RefreshTokenTTL},
		{sweepIntervalVar, &s.Store.SweepInterval},
		{sweepRetentionVar, &s.Store.SweepRetention},
		{operationTimeoutVar, &s.Security.OperationTimeout},
	}
	for _, d := range durations {
		if err := setDuration(d.dst, d.name); err != nil {
			return err
		}
	}

	if err := setInt(&s.Store.Redis.DB, redisDBVar); err != nil {
		return err
	}
	return setInt(&s.Security.BcryptCost, bcryptCostVar)
}

func setString(dst *string, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, name string) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return apperrors.Wrapf(apperrors.ErrInvalidConfig, "%s=%q", name, v)
	}
	*dst = d
	return nil
}

func setInt(dst *int, name string) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return apperrors.Wrapf(apperrors.ErrInvalidConfig, "%s=%q", name, v)
	}
	*dst = n
	return nil
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
