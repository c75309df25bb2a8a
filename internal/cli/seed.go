package cli

import (
	"fmt"

	"exam-ledger-service/internal/infra/postgres"
	"exam-ledger-service/internal/seed"
	"github.com/spf13/cobra"
)

// NewSeedCmd loads a YAML bundle of catalog and reward data into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	var (
		file   string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load tests, questions, badges and challenges from a YAML bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer log.Sync()

			path := file
			if path == "" {
				path = cfg.Catalog.SeedPath
			}
			bundle, err := loadBundle(path)
			if err != nil {
				return err
			}
			if dryRun {
				log.Info("bundle is valid",
					"tests", len(bundle.Tests),
					"questions", len(bundle.Questions),
					"badges", len(bundle.Badges),
					"challenges", len(bundle.Challenges))
				return nil
			}

			db, err := openDB(cfg)
			if err != nil {
				return fmt.Errorf("seed needs postgres (use --dry-run to only validate): %w", err)
			}
			defer db.Close()
			if err := migrateDB(cmd.Context(), db, log); err != nil {
				return err
			}
			stats, err := seed.Apply(cmd.Context(), postgres.NewStore(db), bundle)
			if err != nil {
				return err
			}
			log.Info("seed applied",
				"users", stats.Users,
				"tests", stats.Tests,
				"questions", stats.Questions,
				"badges", stats.Badges,
				"challenges", stats.Challenges,
				"assignments", stats.Assignments)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "bundle path (defaults to catalog.seedPath, then the built-in sample)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the bundle without writing")
	return cmd
}
