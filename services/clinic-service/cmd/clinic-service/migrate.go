package main

import (
	"context"
	"log/slog"
	"strings"

	"github.com/md-rashed-zaman/clinicdesk/libs/config"
	"github.com/md-rashed-zaman/clinicdesk/libs/db"
	"github.com/md-rashed-zaman/clinicdesk/libs/runtime"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/migrations"
	"github.com/spf13/cobra"
)

func migrateCmd(service string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dbURL, err := config.RequiredString("DATABASE_URL")
			if err != nil {
				return err
			}
			logger := runtime.NewLogger(service)
			ctx, stop := runtime.SignalContext()
			defer stop()

			pool, err := db.Open(ctx, dbURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := applyMigrations(ctx, pool, logger)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				cmd.Println("database is up to date")
				return nil
			}
			cmd.Println("applied: " + strings.Join(applied, ", "))
			return nil
		},
	}
}

func applyMigrations(ctx context.Context, pool *db.Pool, logger *slog.Logger) ([]string, error) {
	list, err := db.LoadMigrations(migrations.FS, ".")
	if err != nil {
		return nil, err
	}
	return db.Migrate(ctx, pool, logger, list)
}
