package cli

import (
	"context"
	"database/sql"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/askdb/askdb-engine/migrations"
	"github.com/askdb/askdb-engine/pkg/config"
	"github.com/askdb/askdb-engine/pkg/database"
)

func newMigrateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply execution-history store migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load("")
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			db, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()
			return nil
		},
	}
}

// openStore connects to the execution-history store and brings its schema up
// to date.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*sql.DB, error) {
	db, err := database.Open(ctx, &database.Config{
		URL:            cfg.Database.URL(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(db, migrations.FS, logger.Named("migrations")); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("Execution store ready",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database))
	return db, nil
}
