// Package postgres provides the PostgreSQL implementation of the
// [github.com/surrealdb/surrealsync/pkg/store.RelationalStore] interface using GORM.
//
// # Implementation Strategy
//
// [Store] keeps every query dialect neutral: upserts and idempotent inserts use
// GORM's [clause.OnConflict], cascades are explicit deletes issued in dependency
// order, and no database level foreign keys are declared. The same code therefore
// runs against SQLite, which the tests use through [OpenDialector].
//
// # Stored Procedures
//
// On PostgreSQL, [Store.Migrate] also installs two functions:
//
//   - log_audit_event(...) inserts an audit entry unless its idempotence key exists
//     and returns 'ok' or 'duplicate'
//   - update_sync_state(...) upserts the sync state of an entity
//
// When the dialect is PostgreSQL the store calls these functions instead of the
// equivalent GORM statements, so other services writing to the same database
// share one definition of both operations.
//
// # Transactions
//
// [Store.Transaction] wraps [gorm.DB.Transaction]. The callback receives a
// [github.com/surrealdb/surrealsync/pkg/store.Tx] bound to the transaction; a
// returned error or an expired context rolls everything back.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/surrealdb/surrealsync/pkg/models"
	"github.com/surrealdb/surrealsync/pkg/store"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Options tunes the connection pool and logging of a [Store].
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// SlowThreshold is the duration above which statements are logged as slow.
	SlowThreshold time.Duration
	Logger        zerolog.Logger
}

// Store implements store.RelationalStore on GORM.
type Store struct {
	*queries
	db     *gorm.DB
	logger zerolog.Logger
}

var _ store.RelationalStore = (*Store)(nil)

// Open connects to PostgreSQL using dsn.
func Open(dsn string, opts Options) (*Store, error) {
	return OpenDialector(postgres.Open(dsn), opts)
}

// OpenDialector opens a store on any GORM dialector.
func OpenDialector(dialector gorm.Dialector, opts Options) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 newGormLogger(opts.Logger, opts.SlowThreshold),
		SkipDefaultTransaction: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	return &Store{
		queries: &queries{db: db, procedures: db.Dialector.Name() == "postgres"},
		db:      db,
		logger:  opts.Logger.With().Str("component", "relational_store").Logger(),
	}, nil
}

// DB returns the underlying GORM handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Migrate creates or updates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(
		&models.User{},
		&models.Group{},
		&models.GroupMembership{},
		&models.File{},
		&models.Tag{},
		&models.EntityMapping{},
		&models.AuditLogEntry{},
		&models.SyncState{},
		&models.SyncError{},
		&models.SyncTask{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	if !s.procedures {
		s.logger.Info().Str("dialect", s.db.Dialector.Name()).Msg("Skipping stored procedures")
		return nil
	}
	for _, proc := range procedures {
		if err := db.Exec(proc.body).Error; err != nil {
			return fmt.Errorf("failed to install procedure %s: %w", proc.name, err)
		}
	}
	s.logger.Info().Int("procedures", len(procedures)).Msg("Schema migrated")
	return nil
}

// Transaction runs fn within a database transaction.
func (s *Store) Transaction(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&queries{db: tx, procedures: s.procedures})
	})
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// queries implements store.Tx on a GORM handle that is either the root
// connection or an open transaction.
type queries struct {
	db         *gorm.DB
	procedures bool
}

var _ store.Tx = (*queries)(nil)
