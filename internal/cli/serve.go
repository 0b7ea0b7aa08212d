package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/recipe-api/internal/config"
	"github.com/sakif/recipe-api/internal/server"
	"github.com/sakif/recipe-api/internal/telemetry"
)

func newServeCommand() *cobra.Command {
	var waitForDB, migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(config.Config.Validate)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			shutdownTracing, err := telemetry.Setup(ctx, server.ServiceName, cfg.OTelEndpoint, cfg.OTelEnabled)
			if err != nil {
				return err
			}
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTracing(flushCtx); err != nil {
					logger.Warn("failed to flush traces", slog.String("error", err.Error()))
				}
			}()

			db, err := openDB(cfg)
			if err != nil {
				return err
			}

			if waitForDB {
				if err := db.WaitForDB(ctx, cfg.DBWaitTimeout, waitInterval, logger); err != nil {
					db.Close()
					return err
				}
			}
			if migrate {
				if err := db.Migrate(ctx); err != nil {
					db.Close()
					return err
				}
			}

			// The server owns db from here on and closes it when it stops.
			srv, err := server.New(cfg, db, logger)
			if err != nil {
				db.Close()
				return err
			}
			return srv.Start()
		},
	}

	cmd.Flags().BoolVar(&waitForDB, "wait-for-db", false, "ping the database until it is available before starting")
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply pending migrations before starting")
	return cmd
}
