package surrealsync

// Command represents one application operation with its options. [Parse]
// returns one and [Main] dispatches it to the matching [App] method.
type Command interface {
	// Name returns the CLI sub-command name.
	Name() string
}

// RunCommand starts the listeners, the outbox and retry workers and the
// operational HTTP server.
type RunCommand struct{}

func (c *RunCommand) Name() string { return "run" }

// MigrateCommand creates or updates the relational schema, including the
// stored procedures on PostgreSQL.
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string { return "migrate" }

// RetryCommand runs one retry pass over due sync errors.
type RetryCommand struct{}

func (c *RetryCommand) Name() string { return "retry" }

// StatsCommand prints sync statistics for the last Days days.
type StatsCommand struct {
	Days int
}

func (c *StatsCommand) Name() string { return "stats" }

// FailedCommand prints up to Limit unresolved sync errors.
type FailedCommand struct {
	Limit int
}

func (c *FailedCommand) Name() string { return "failed" }

// PushCommand mirrors one relational entity to the document store.
type PushCommand struct {
	EntityType string
	EntityID   string
}

func (c *PushCommand) Name() string { return "push" }
