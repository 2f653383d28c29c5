package cli

import (
	"context"
	"log"

	"cbt-exam-service/internal/app"
	"cbt-exam-service/internal/config"
	"cbt-exam-service/internal/infra/sqlstore"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

// NewSeedCmd loads the seed file into empty account and question tables.
func NewSeedCmd(configPath *string) *cobra.Command {
	var seedPath string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed accounts and questions from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if seedPath != "" {
				cfg.Seed.Path = seedPath
			}
			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			return runSeed(cmd.Context(), app.NewSeeder(sqlstore.NewStore(db), bcrypt.DefaultCost), cfg.Seed.Path)
		},
	}
	cmd.Flags().StringVar(&seedPath, "file", "", "seed file (defaults to seed.path from config)")
	return cmd
}

func runSeed(ctx context.Context, seeder *app.Seeder, path string) error {
	if path == "" {
		log.Printf("no seed file configured, skipping seed")
		return nil
	}
	seed, err := config.LoadSeed(path)
	if err != nil {
		return err
	}
	return seeder.Run(ctx, seed.Accounts, seed.Questions)
}
