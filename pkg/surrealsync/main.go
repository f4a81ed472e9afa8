package surrealsync

import (
	"context"
	"fmt"
)

// Main is the entry point of the surrealsync binary. It parses args, builds
// the [App] and executes the selected command. It can be called directly from
// tests.
//
// # Environment Variables
//
//	POSTGRES_DSN                 - PostgreSQL connection string
//	SURREALDB_URL                - SurrealDB WebSocket URL (default: ws://localhost:8000/rpc)
//	SURREALDB_NS                 - SurrealDB namespace (default: surrealsync)
//	SURREALDB_DB                 - SurrealDB database (default: surrealsync)
//	SURREALDB_USER               - SurrealDB username (default: root)
//	SURREALDB_PASS               - SurrealDB password (default: root)
//	SURREALSYNC_DOCUMENT_STORE   - surrealdb or memory
//	SURREALSYNC_ADDR             - ops server listen address (default: :8080)
//	SURREALSYNC_CONFLICT_POLICY  - last_write_wins, document_wins or relational_wins
//	SURREALSYNC_TIE_BREAK        - relational or document
//	SURREALSYNC_GUARD_TTL        - loop guard TTL (default: 10s)
//	SURREALSYNC_MAX_RETRIES      - attempts per sync error (default: 5)
//	SURREALSYNC_READ_ONLY        - reject relational writes
//	SURREALSYNC_LOG_LEVEL        - trace, debug, info, warn or error
//	SURREALSYNC_LOG_FORMAT       - json or console
//	SURREALSYNC_LOG_FILE         - append logs to this file
//
// Environment variables override the config file; flags override both.
func Main(ctx context.Context, args []string) error {
	cmd, config, err := Parse(args)
	if err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}
	if cmd == nil {
		return nil
	}

	app, err := New(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer app.Close()

	return app.Execute(ctx, cmd)
}

// Execute runs cmd. The reporting commands run in read-only mode.
func (a *App) Execute(ctx context.Context, cmd Command) error {
	switch c := cmd.(type) {
	case *RunCommand:
		if err := a.Run(ctx, c); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case *MigrateCommand:
		if err := a.Migrate(ctx, c); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	case *RetryCommand:
		if err := a.Retry(ctx, c); err != nil {
			return fmt.Errorf("retry failed: %w", err)
		}
	case *StatsCommand:
		a.SetReadOnly(true)
		if err := a.Stats(ctx, c); err != nil {
			return fmt.Errorf("stats failed: %w", err)
		}
	case *FailedCommand:
		a.SetReadOnly(true)
		if err := a.Failed(ctx, c); err != nil {
			return fmt.Errorf("listing failed syncs failed: %w", err)
		}
	case *PushCommand:
		if err := a.Push(ctx, c); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown command type: %T", cmd)
	}
	return nil
}
