package surrealsync

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// flagValues holds the global flags. Only flags set on the command line
// override the file and environment.
type flagValues struct {
	configPath    string
	postgresDSN   string
	documentStore string
	addr          string
	logLevel      string
	logFormat     string
	policy        string
	guardTTL      time.Duration
	readOnly      bool
}

// Parse parses command line arguments and returns the command to execute and
// the application configuration. Both are nil when only help was requested;
// help is written to stdout.
func Parse(args []string) (Command, *Config, error) {
	return parse(args, os.Stdout)
}

func parse(args []string, out io.Writer) (Command, *Config, error) {
	var (
		flags flagValues
		cmd   Command
	)

	root := &cobra.Command{
		Use:           "surrealsync",
		Short:         "Keep PostgreSQL and SurrealDB in sync",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `surrealsync keeps a relational store and a document store consistent.

Changes made in SurrealDB are applied to PostgreSQL by one listener per
collection; changes made through the relational writer are mirrored to
SurrealDB after commit. Failed syncs are persisted and retried.

Examples:
  surrealsync migrate
  surrealsync run --config surrealsync.yaml
  surrealsync stats --days 30
  surrealsync failed --limit 20
  surrealsync retry
  surrealsync push groups 42`,
	}
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(out)

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "path to a YAML config file")
	pf.StringVar(&flags.postgresDSN, "postgres-dsn", "", "PostgreSQL connection string")
	pf.StringVar(&flags.documentStore, "document-store", "", "document store backend: surrealdb or memory")
	pf.StringVar(&flags.addr, "addr", "", "operational HTTP listen address")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "", "log format: json or console")
	pf.StringVar(&flags.policy, "conflict-policy", "", "last_write_wins, document_wins or relational_wins")
	pf.DurationVar(&flags.guardTTL, "guard-ttl", 0, "how long a mirrored write suppresses its echo")
	pf.BoolVar(&flags.readOnly, "read-only", false, "reject relational writes")

	set := func(c Command) func(*cobra.Command, []string) error {
		return func(*cobra.Command, []string) error {
			cmd = c
			return nil
		}
	}

	stats := &StatsCommand{}
	failed := &FailedCommand{}
	push := &PushCommand{}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print sync statistics",
		Args:  cobra.NoArgs,
		RunE:  set(stats),
	}
	statsCmd.Flags().IntVar(&stats.Days, "days", 7, "number of days to cover")

	failedCmd := &cobra.Command{
		Use:   "failed",
		Short: "List unresolved sync errors",
		Args:  cobra.NoArgs,
		RunE:  set(failed),
	}
	failedCmd.Flags().IntVar(&failed.Limit, "limit", 50, "maximum number of records")

	root.AddCommand(
		&cobra.Command{Use: "run", Short: "Start the sync daemon", Args: cobra.NoArgs, RunE: set(&RunCommand{})},
		&cobra.Command{Use: "migrate", Short: "Run database migrations", Args: cobra.NoArgs, RunE: set(&MigrateCommand{})},
		&cobra.Command{Use: "retry", Short: "Retry due sync errors once", Args: cobra.NoArgs, RunE: set(&RetryCommand{})},
		statsCmd,
		failedCmd,
		&cobra.Command{
			Use:   "push <entity-type> <entity-id>",
			Short: "Mirror one relational entity to the document store",
			Args:  cobra.ExactArgs(2),
			RunE: func(c *cobra.Command, args []string) error {
				push.EntityType, push.EntityID = args[0], args[1]
				cmd = push
				return nil
			},
		},
	)

	if err := root.Execute(); err != nil {
		return nil, nil, err
	}
	if cmd == nil {
		return nil, nil, nil
	}

	config, err := LoadConfig(flags.configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := config.ApplyEnv(); err != nil {
		return nil, nil, fmt.Errorf("invalid environment: %w", err)
	}
	flags.apply(pf, config)
	if err := config.Validate(); err != nil {
		return nil, nil, err
	}
	return cmd, config, nil
}

func (f *flagValues) apply(fs *pflag.FlagSet, config *Config) {
	if fs.Changed("postgres-dsn") {
		config.Postgres.DSN = f.postgresDSN
	}
	if fs.Changed("document-store") {
		config.DocumentStore = f.documentStore
	}
	if fs.Changed("addr") {
		config.Server.Addr = f.addr
	}
	if fs.Changed("log-level") {
		config.Log.Level = f.logLevel
	}
	if fs.Changed("log-format") {
		config.Log.Format = f.logFormat
	}
	if fs.Changed("conflict-policy") {
		config.Sync.ConflictPolicy = f.policy
	}
	if fs.Changed("guard-ttl") {
		config.Sync.GuardTTL = f.guardTTL
	}
	if fs.Changed("read-only") {
		config.ReadOnly = f.readOnly
	}
}
