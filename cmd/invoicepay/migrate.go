package main

import (
	"context"
	"fmt"

	"github.com/smallbiznis/invoicepay/internal/config"
	"github.com/smallbiznis/invoicepay/internal/migration"
	"github.com/smallbiznis/invoicepay/internal/observability"
	"github.com/smallbiznis/invoicepay/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			var conn *gorm.DB
			app := fx.New(
				config.Module,
				observability.Module,
				db.Module,
				fx.Populate(&conn),
				fx.NopLogger,
			)
			return runOnce(app, func(context.Context) error {
				if err := migration.Apply(conn); err != nil {
					return err
				}
				if conn.Dialector.Name() != "postgres" {
					fmt.Fprintln(cmd.OutOrStdout(), "schema synchronized")
					return nil
				}

				sqlDB, err := conn.DB()
				if err != nil {
					return err
				}
				version, dirty, err := migration.Version(sqlDB)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d (dirty=%t)\n", version, dirty)
				return nil
			})
		},
	}
	return cmd
}
