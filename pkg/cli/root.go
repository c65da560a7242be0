// Package cli implements the askdb command line: serve, ask and migrate.
package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/askdb/askdb-engine/pkg/config"
	"github.com/askdb/askdb-engine/pkg/logging"
)

// options are shared by every subcommand.
type options struct {
	version    string
	configPath string
}

// NewRootCommand builds the askdb command tree.
func NewRootCommand(version string) *cobra.Command {
	opts := &options{version: version}

	root := &cobra.Command{
		Use:   "askdb",
		Short: "Answer natural-language questions with read-only SQL",
		Long: `askdb turns natural-language questions into PostgreSQL queries. It inspects
the target database schema, lets the model sample tables, and returns display
configurations (table, stat or chart) that can be executed read-only.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultConfigPath, "Path to YAML config file (optional)")

	root.AddCommand(newServeCommand(opts))
	root.AddCommand(newAskCommand(opts))
	root.AddCommand(newMigrateCommand(opts))
	return root
}

// Execute runs the root command until it finishes or SIGINT/SIGTERM arrives.
func Execute(version string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return NewRootCommand(version).ExecuteContext(ctx)
}

// load reads configuration and builds the logger. A non-empty level overrides
// the configured one.
func (o *options) load(level string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.version, o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.NewLogger(level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
