package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	apperrors "github.com/brandon/mailsync/internal/errors"
)

// Cache is the local SQLite store holding messages, attachments, the
// pending-action queue and the full-text index.
type Cache struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewCache opens (or creates) the database at dbPath, enables WAL and
// foreign keys, and applies outstanding migrations.
func NewCache(dbPath string, logger *logrus.Logger) (*Cache, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	cache, err := newCacheWithDB(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.WithField("path", dbPath).Info("Cache initialized")
	return cache, nil
}

func newCacheWithDB(db *sqlx.DB, logger *logrus.Logger) (*Cache, error) {
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	c := &Cache{db: db, logger: logger}
	if err := c.runMigrations(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return c, nil
}

// runMigrations applies every migration newer than the stored schema version
func (c *Cache) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := c.db.Get(&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("failed to check schema_version table: %w", err)
	}

	if tableCount > 0 {
		if err := c.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := c.db.Exec(m.sql); err != nil {
			return fmt.Errorf("failed to apply migration v%d: %w", m.version, err)
		}
		c.logger.WithField("version", m.version).Debug("Applied cache migration")
	}

	return nil
}

// Close closes the database connection
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// integrity marks a storage failure so callers can surface it
func integrity(err error, format string, args ...interface{}) error {
	return apperrors.Mark(apperrors.ErrCacheIntegrity, fmt.Errorf(format+": %w", append(args, err)...))
}

// withTx runs fn inside a transaction, rolling back on error
func (c *Cache) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return integrity(err, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return integrity(err, "failed to commit transaction")
	}
	return nil
}
