package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	corecfg "github.com/aevon-lab/attribution-rollup/internal/core/config"
	"github.com/aevon-lab/attribution-rollup/internal/core/storage/postgres"
	"github.com/aevon-lab/attribution-rollup/internal/migrations"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(*configPath, func(db *sql.DB) error {
				return migrations.RunMigrations(db, true)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(*configPath, func(db *sql.DB) error {
				version, dirty, err := migrations.Version(db)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
				return nil
			})
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if steps <= 0 {
				return fmt.Errorf("--steps must be > 0")
			}
			return withDB(*configPath, func(db *sql.DB) error {
				return migrations.Down(db, steps)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")
	cmd.AddCommand(down)

	return cmd
}

func withDB(configPath string, fn func(*sql.DB) error) error {
	cfg, err := corecfg.Load(existingPath(configPath))
	if err != nil {
		return err
	}
	if cfg.Store.Backend != "postgres" {
		return fmt.Errorf("migrate requires store.backend postgres, got %q", cfg.Store.Backend)
	}
	db, err := postgres.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}
