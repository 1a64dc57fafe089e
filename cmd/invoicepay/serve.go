package main

import (
	"github.com/smallbiznis/invoicepay/internal/migration"
	"github.com/smallbiznis/invoicepay/internal/scheduler"
	"github.com/smallbiznis/invoicepay/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func serveCmd() *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, webhook receiver and background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []fx.Option{
				coreModules(),
				scheduler.Module,
				server.Module,
			}
			if !skipMigrations {
				opts = append(opts, migration.Module)
			}

			app := fx.New(opts...)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply database migrations on startup")
	return cmd
}
