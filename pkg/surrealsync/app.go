package surrealsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/surrealdb/surrealsync/pkg/logger"
	"github.com/surrealdb/surrealsync/pkg/store"
	"github.com/surrealdb/surrealsync/pkg/store/memdoc"
	"github.com/surrealdb/surrealsync/pkg/store/postgres"
	"github.com/surrealdb/surrealsync/pkg/store/surrealdb"
	"github.com/surrealdb/surrealsync/pkg/syncengine"
)

// closeTimeout bounds closing the document store connection.
const closeTimeout = 5 * time.Second

// App holds the application state.
type App struct {
	config *Config
	logger zerolog.Logger
	log    *logger.LogData

	primary  store.RelationalStore
	rel      *store.ReadOnlyStore
	docs     store.DocumentStore
	engine   *syncengine.Engine
	writer   *syncengine.Writer
	registry *prometheus.Registry

	readOnly atomic.Bool

	// out receives command output.
	out io.Writer
}

// New connects to both stores and builds the sync engine.
func New(ctx context.Context, config *Config) (*App, error) {
	logData, err := logger.New().
		FromPath(config.Log.File).
		Level(config.Log.Level).
		Format(config.Log.Format).
		Make()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	log := logData.Logger

	rel, err := postgres.Open(config.Postgres.DSN, postgres.Options{
		MaxOpenConns:    config.Postgres.MaxOpenConns,
		MaxIdleConns:    config.Postgres.MaxIdleConns,
		ConnMaxLifetime: config.Postgres.ConnMaxLifetime,
		SlowThreshold:   config.Postgres.SlowThreshold,
		Logger:          log,
	})
	if err != nil {
		_ = logData.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	log.Info().Msg("Connected to PostgreSQL")

	var docs store.DocumentStore
	switch config.DocumentStore {
	case DocumentStoreMemory:
		docs = memdoc.New()
		log.Warn().Msg("Using the in-memory document store")
	default:
		docs, err = surrealdb.Open(ctx, surrealdb.Config{
			URL:               config.SurrealDB.URL,
			Namespace:         config.SurrealDB.Namespace,
			Database:          config.SurrealDB.Database,
			Username:          config.SurrealDB.Username,
			Password:          config.SurrealDB.Password,
			ReconnectInterval: config.SurrealDB.ReconnectInterval,
		}, log)
		if err != nil {
			_ = rel.Close()
			_ = logData.Close()
			return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
		}
		log.Info().Str("url", config.SurrealDB.URL).Msg("Connected to SurrealDB")
	}

	app, err := newApp(config, rel, docs, log)
	if err != nil {
		_ = docs.Close(ctx)
		_ = rel.Close()
		_ = logData.Close()
		return nil, err
	}
	app.log = logData
	return app, nil
}

// newApp builds the application over already opened stores.
func newApp(config *Config, rel store.RelationalStore, docs store.DocumentStore, log zerolog.Logger) (*App, error) {
	policy, err := syncengine.ParseConflictPolicy(config.Sync.ConflictPolicy)
	if err != nil {
		return nil, err
	}
	tieBreak, err := syncengine.ParseSide(config.Sync.TieBreak)
	if err != nil {
		return nil, err
	}

	app := &App{
		config:   config,
		logger:   log.With().Str("component", "app").Logger(),
		primary:  rel,
		docs:     docs,
		registry: prometheus.NewRegistry(),
		out:      os.Stdout,
	}
	app.readOnly.Store(config.ReadOnly)
	app.rel = store.NewReadOnlyStore(rel, app.IsReadOnly)
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	backoff := syncengine.NewExponentialBackoff()
	backoff.Initial = config.Sync.InitialBackoff
	backoff.Max = config.Sync.MaxBackoff

	app.engine, err = syncengine.New(app.rel, docs, syncengine.Options{
		GuardTTL:       config.Sync.GuardTTL,
		EventTimeout:   config.Sync.EventTimeout,
		MaxRetries:     config.Sync.MaxRetries,
		RetryBatch:     config.Sync.RetryBatch,
		RetryRate:      config.Sync.RetryRate,
		Backoff:        backoff,
		OutboxBatch:    config.Sync.OutboxBatch,
		ConflictPolicy: policy,
		TieBreak:       tieBreak,
		Logger:         log,
		Registerer:     app.registry,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sync engine: %w", err)
	}
	app.writer = syncengine.NewWriter(app.engine)
	return app, nil
}

// Close releases both stores and the log file.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	var errs []error
	if err := a.docs.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to close document store: %w", err))
	}
	if err := a.primary.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close relational store: %w", err))
	}
	if a.log != nil {
		if err := a.log.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Engine returns the sync engine.
func (a *App) Engine() *syncengine.Engine {
	return a.engine
}

// Writer returns the forward-sync writer for relational changes.
func (a *App) Writer() *syncengine.Writer {
	return a.writer
}

// SetReadOnly toggles rejection of relational writes at runtime.
func (a *App) SetReadOnly(readOnly bool) {
	a.readOnly.Store(readOnly)
	a.logger.Info().Bool("read_only", readOnly).Msg("Read-only mode changed")
}

// IsReadOnly reports whether relational writes are rejected.
func (a *App) IsReadOnly() bool {
	return a.readOnly.Load()
}
