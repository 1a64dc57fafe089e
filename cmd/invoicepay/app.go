package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicepay/internal/clock"
	"github.com/smallbiznis/invoicepay/internal/config"
	"github.com/smallbiznis/invoicepay/internal/invoice"
	"github.com/smallbiznis/invoicepay/internal/notification"
	"github.com/smallbiznis/invoicepay/internal/observability"
	"github.com/smallbiznis/invoicepay/internal/payment"
	"github.com/smallbiznis/invoicepay/internal/providers"
	"github.com/smallbiznis/invoicepay/pkg/db"
	"go.uber.org/fx"
)

const startStopTimeout = 30 * time.Second

// coreModules wires everything a command needs to touch invoices and payments.
func coreModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		invoice.Module,
		payment.Module,
		providers.Module,
		notification.Module,
	)
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

// runOnce starts app, runs fn and stops app again.
func runOnce(app *fx.App, fn func(ctx context.Context) error) error {
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(context.Background(), startStopTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	runErr := fn(context.Background())

	stopCtx, cancelStop := context.WithTimeout(context.Background(), startStopTimeout)
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		return fmt.Errorf("stop: %w", err)
	}
	return runErr
}
