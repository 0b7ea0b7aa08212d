// Package cli defines the recipe-api command tree.
//
//	recipe-api serve [--wait-for-db] [--migrate=false]
//	recipe-api migrate
//	recipe-api wait-for-db
//	recipe-api createsuperuser --email admin@example.com --password secret
//
// Every command reads its settings from the environment (see package config);
// flags only select behaviour.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/recipe-api/internal/config"
	"github.com/sakif/recipe-api/internal/repository/sqldb"
)

// waitInterval is the pause between database pings in wait-for-db.
const waitInterval = time.Second

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewRootCommand builds a fresh command tree. Tests call it directly so no
// state leaks between runs.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "recipe-api",
		Short: "Multi-user recipe REST API",
		Long: `recipe-api serves per-user recipes, tags and ingredients over HTTP
with email/password token authentication.

Configuration comes from RECIPE_* environment variables, optionally loaded
from a .env file in the working directory.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newWaitForDBCommand(),
		newCreateSuperuserCommand(),
	)
	return root
}

// loadConfig reads the environment and applies check (Validate or ValidateDB).
func loadConfig(check func(config.Config) error) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := check(cfg); err != nil {
		return config.Config{}, nil, err
	}
	return cfg, config.NewLogger(cfg), nil
}

// openDB opens the configured database, creating the directory of an SQLite
// file first.
func openDB(cfg config.Config) (*sqldb.DB, error) {
	if cfg.DBDriver == config.DriverSQLite && cfg.DBDSN != ":memory:" {
		dir := filepath.Dir(cfg.DBDSN)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}
	return sqldb.Open(cfg.DBDriver, cfg.DBDSN)
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(config.Config.ValidateDB)
			if err != nil {
				return err
			}

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}
			logger.Info("migrations applied", slog.String("driver", cfg.DBDriver))
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied.")
			return nil
		},
	}
}

func newWaitForDBCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "wait-for-db",
		Short: "Block until the database accepts connections",
		Long: `wait-for-db pings the database once a second until it answers or
RECIPE_DB_WAIT_TIMEOUT elapses. Use it in container entrypoints before
migrate and serve.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(config.Config.ValidateDB)
			if err != nil {
				return err
			}

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			fmt.Fprintln(cmd.OutOrStdout(), "Waiting for database...")
			if err := db.WaitForDB(cmd.Context(), cfg.DBWaitTimeout, waitInterval, logger); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Database available!")
			return nil
		},
	}
}
