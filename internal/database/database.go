// Package database opens the GORM handle shared by the relational stores and
// migrates their tables.
package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	rolesgorm "github.com/jrsteele09/go-session-server/roles/gormrepo"
	sessionsgorm "github.com/jrsteele09/go-session-server/sessions/gormrepo"
	usersgorm "github.com/jrsteele09/go-session-server/users/gormrepo"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Dialects accepted by Open.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// Open connects to dsn with the named dialect. SQLite file paths get their
// directory created and the pool is limited to a single connection, which
// serialises writers.
func Open(dialect, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch dialect {
	case DialectSQLite:
		if err := ensureSQLiteDir(dsn); err != nil {
			return nil, err
		}
		dialector = sqlite.Open(dsn)
	case DialectPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database dialect: %s", dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialect == DialectSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access sql pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Migrate creates roles, users and session records in dependency order.
// withSessions is false when session records live in another store.
func Migrate(db *gorm.DB, withSessions bool) error {
	if err := rolesgorm.Migrate(db); err != nil {
		return fmt.Errorf("failed to migrate roles: %w", err)
	}
	if err := usersgorm.Migrate(db); err != nil {
		return fmt.Errorf("failed to migrate users: %w", err)
	}
	if withSessions {
		if err := sessionsgorm.Migrate(db); err != nil {
			return fmt.Errorf("failed to migrate session records: %w", err)
		}
	}
	return nil
}

// Close releases the underlying pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func ensureSQLiteDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}
