package server

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-session-server/auth"
	"github.com/jrsteele09/go-session-server/internal/config"
	"github.com/jrsteele09/go-session-server/internal/database"
	rolesgorm "github.com/jrsteele09/go-session-server/roles/gormrepo"
	rolerepofake "github.com/jrsteele09/go-session-server/roles/repofake"
	sessionsgorm "github.com/jrsteele09/go-session-server/sessions/gormrepo"
	"github.com/jrsteele09/go-session-server/sessions/pgrepo"
	"github.com/jrsteele09/go-session-server/sessions/redisrepo"
	fakesessionrepo "github.com/jrsteele09/go-session-server/sessions/repofake"
	usersgorm "github.com/jrsteele09/go-session-server/users/gormrepo"
	fakeuserrepo "github.com/jrsteele09/go-session-server/users/repofake"
	"gorm.io/gorm"
)

// Stores holds the repositories selected by the store driver and releases
// their connections on Close.
type Stores struct {
	Repos   auth.Repos
	closers []func() error
}

// Close releases every connection the stores opened, in reverse order.
func (st *Stores) Close() error {
	var firstErr error
	for i := len(st.closers) - 1; i >= 0; i-- {
		if err := st.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	st.closers = nil
	return firstErr
}

// OpenStores builds the user, role and session repositories for the
// configured driver:
//
//	memory         all in process
//	sqlite         all in GORM over SQLite at dsn
//	postgres-gorm  all in GORM over Postgres at dsn
//	postgres       users and roles in GORM, session records over database/sql, same dsn
//	redis          session records in Redis; users and roles in SQLite when dsn is set, else in memory
func OpenStores(ctx context.Context, cfg config.StoreConfig) (*Stores, error) {
	st := &Stores{}
	if err := st.open(ctx, cfg); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("[OpenStores] %s: %w", cfg.GetStoreDriver(), err)
	}
	return st, nil
}

func (st *Stores) open(ctx context.Context, cfg config.StoreConfig) error {
	switch cfg.GetStoreDriver() {
	case config.DriverMemory, "":
		st.memoryDirectories()
		st.Repos.Sessions = fakesessionrepo.NewFakeSessionRepo()
		return nil

	case config.DriverSQLite:
		return st.gormStores(database.DialectSQLite, cfg.GetStoreDSN())

	case config.DriverPostgresGorm:
		return st.gormStores(database.DialectPostgres, cfg.GetStoreDSN())

	case config.DriverPostgres:
		if _, err := st.gormDirectories(database.DialectPostgres, cfg.GetStoreDSN(), false); err != nil {
			return err
		}
		sessionRepo, err := pgrepo.Open(ctx, cfg.GetStoreDSN())
		if err != nil {
			return err
		}
		st.closers = append(st.closers, sessionRepo.Close)
		st.Repos.Sessions = sessionRepo
		return nil

	case config.DriverRedis:
		if cfg.GetStoreDSN() != "" {
			if _, err := st.gormDirectories(database.DialectSQLite, cfg.GetStoreDSN(), false); err != nil {
				return err
			}
		} else {
			st.memoryDirectories()
		}
		redisCfg := cfg.GetRedis()
		sessionRepo, err := redisrepo.Open(ctx, redisrepo.Options{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
			Prefix:   redisCfg.Prefix,
		})
		if err != nil {
			return err
		}
		st.closers = append(st.closers, sessionRepo.Close)
		st.Repos.Sessions = sessionRepo
		return nil

	default:
		return fmt.Errorf("unsupported store driver %q", cfg.GetStoreDriver())
	}
}

func (st *Stores) memoryDirectories() {
	roleRepo := rolerepofake.NewFakeRoleRepo()
	st.Repos.Roles = roleRepo
	st.Repos.Users = fakeuserrepo.NewFakeUserRepo(roleRepo)
}

func (st *Stores) gormStores(dialect, dsn string) error {
	db, err := st.gormDirectories(dialect, dsn, true)
	if err != nil {
		return err
	}
	sessionRepo, err := sessionsgorm.New(db)
	if err != nil {
		return err
	}
	st.Repos.Sessions = sessionRepo
	return nil
}

// gormDirectories opens dsn, migrates its tables and installs the user and
// role repositories. The handle is closed with the stores.
func (st *Stores) gormDirectories(dialect, dsn string, withSessions bool) (*gorm.DB, error) {
	db, err := database.Open(dialect, dsn)
	if err != nil {
		return nil, err
	}
	st.closers = append(st.closers, func() error { return database.Close(db) })

	if err := database.Migrate(db, withSessions); err != nil {
		return nil, err
	}

	roleRepo, err := rolesgorm.New(db)
	if err != nil {
		return nil, err
	}
	userRepo, err := usersgorm.New(db)
	if err != nil {
		return nil, err
	}
	st.Repos.Roles = roleRepo
	st.Repos.Users = userRepo
	return db, nil
}
