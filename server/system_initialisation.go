package server

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-session-server/auth"
	"github.com/jrsteele09/go-session-server/internal/config"
	apperrors "github.com/jrsteele09/go-session-server/internal/errors"
	"github.com/jrsteele09/go-session-server/internal/metrics"
	"github.com/jrsteele09/go-session-server/roles"
	"github.com/jrsteele09/go-session-server/sessions"
	"github.com/jrsteele09/go-session-server/token"
	"github.com/jrsteele09/go-session-server/users"
	"github.com/rs/zerolog"
)

// System is the assembled service. Sweeper is nil when sweeping is disabled.
type System struct {
	Stores  *Stores
	Issuer  *token.Issuer
	Manager *auth.Manager
	Server  *Server
	Sweeper *sessions.Sweeper
	Metrics *metrics.Metrics
}

// InitialiseSystem opens the stores, seeds the built-in roles and wires the
// issuer, manager and HTTP server from cfg.
func InitialiseSystem(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*System, error) {
	stores, err := OpenStores(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("[Server InitialiseSystem] failed to open stores: %w", err)
	}

	sys, err := assemble(ctx, cfg, stores, logger)
	if err != nil {
		_ = stores.Close()
		return nil, err
	}
	return sys, nil
}

func assemble(ctx context.Context, cfg config.Config, stores *Stores, logger zerolog.Logger) (*System, error) {
	if err := SeedRoles(ctx, stores.Repos.Roles, roles.RoleAdmin, roles.RoleUser, cfg.GetDefaultRole()); err != nil {
		return nil, fmt.Errorf("[Server InitialiseSystem] failed to seed roles: %w", err)
	}

	tokenCfg := cfg.GetTokenConfig()
	issuer, err := token.NewIssuer(tokenCfg)
	if err != nil {
		return nil, fmt.Errorf("[Server InitialiseSystem] failed to create token issuer: %w", err)
	}

	manager, err := auth.NewManager(stores.Repos, issuer, users.NewBcryptHasher(cfg.GetBcryptCost()),
		auth.WithAccessTokenTTL(issuer.AccessTokenTTL()),
		auth.WithOperationTimeout(cfg.GetOperationTimeout()),
		auth.WithDefaultRole(cfg.GetDefaultRole()),
	)
	if err != nil {
		return nil, fmt.Errorf("[Server InitialiseSystem] failed to create session manager: %w", err)
	}

	m := metrics.New()
	srv, err := New(cfg, manager, issuer, WithLogger(logger), WithMetrics(m))
	if err != nil {
		return nil, err
	}

	sys := &System{
		Stores:  stores,
		Issuer:  issuer,
		Manager: manager,
		Server:  srv,
		Metrics: m,
	}
	if interval := cfg.GetSweepInterval(); interval > 0 {
		sys.Sweeper = sessions.NewSweeper(stores.Repos.Sessions, interval, cfg.GetSweepRetention(),
			sessions.WithSweeperLogger(logger.With().Str("component", "sweeper").Logger()),
			sessions.WithSweeperOnSwept(m.RecordsSwept),
		)
	}

	logger.Info().
		Str("store", cfg.GetStoreDriver()).
		Str("algorithm", tokenCfg.Algorithm).
		Str("issuer", tokenCfg.Issuer).
		Dur("access_ttl", issuer.AccessTokenTTL()).
		Dur("refresh_ttl", issuer.RefreshTokenTTL()).
		Bool("sweeper", sys.Sweeper != nil).
		Msg("system initialised")
	return sys, nil
}

// Start runs background work. It returns immediately.
func (sys *System) Start(ctx context.Context) {
	if sys.Sweeper != nil {
		sys.Sweeper.Start(ctx)
	}
}

// Close stops background work and releases the stores.
func (sys *System) Close() error {
	if sys.Sweeper != nil {
		sys.Sweeper.Stop()
	}
	return sys.Stores.Close()
}

// SeedRoles makes sure each named role exists. Existing roles keep their ids.
func SeedRoles(ctx context.Context, repo roles.Repo, names ...string) error {
	for _, name := range names {
		if name == "" {
			continue
		}
		_, err := repo.GetByName(ctx, name)
		if err == nil {
			continue
		}
		if !apperrors.Is(err, apperrors.ErrNotFound) {
			return fmt.Errorf("look up role %q: %w", name, err)
		}
		if err := repo.Upsert(ctx, &roles.Role{Name: name}); err != nil {
			return fmt.Errorf("create role %q: %w", name, err)
		}
	}
	return nil
}
