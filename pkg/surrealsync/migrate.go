package surrealsync

import (
	"context"
	"fmt"
)

// Migrate creates or updates the relational schema. It is safe to run
// repeatedly.
func (a *App) Migrate(ctx context.Context, _ *MigrateCommand) error {
	a.logger.Info().Msg("Running database migrations")
	if err := a.rel.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	a.logger.Info().Msg("Migrations completed")
	return nil
}
