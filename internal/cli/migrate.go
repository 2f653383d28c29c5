package cli

import (
	"context"
	"fmt"
	"log"

	"cbt-exam-service/internal/config"
	"cbt-exam-service/internal/infra/sqlstore"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return db.Close()
		},
	}
}

// openDatabase connects to the configured store and brings its schema up to date.
func openDatabase(ctx context.Context, cfg config.Config) (*bun.DB, error) {
	db, err := sqlstore.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s: %w", cfg.Database.Driver, err)
	}
	if err := sqlstore.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Printf("migrations applied")
	return db, nil
}
