package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/invoicepay/internal/config"
	"github.com/smallbiznis/invoicepay/internal/observability"
	obsmetrics "github.com/smallbiznis/invoicepay/internal/observability/metrics"
	"github.com/smallbiznis/invoicepay/internal/scheduler"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-overdue",
		Short: "Mark every sent invoice past its due date as overdue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobCommand(cmd, scheduler.JobOverdueSweep, "invoices marked overdue")
		},
	}
}

func remindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remind",
		Short: "Email payment reminders for invoices that are due soon or overdue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobCommand(cmd, scheduler.JobPaymentReminders, "reminders sent")
		},
	}
}

// runJobCommand runs one scheduler job in the foreground. The background
// loop stays off so the job runs exactly once. Metrics go to the Pushgateway
// when PROMETHEUS_PUSHGATEWAY_URL is set.
func runJobCommand(cmd *cobra.Command, job string, label string) error {
	var (
		sched  *scheduler.Scheduler
		obsCfg observability.Config
		log    *zap.Logger
	)
	app := fx.New(
		coreModules(),
		fx.Decorate(func(cfg config.Config) config.Config {
			cfg.Scheduler.Enabled = false
			return cfg
		}),
		scheduler.Module,
		fx.Populate(&sched, &obsCfg, &log),
		fx.NopLogger,
	)

	return runOnce(app, func(ctx context.Context) error {
		count, err := sched.RunJob(ctx, job)

		pusher := obsmetrics.NewPushgatewayPusher(obsCfg.PushgatewayURL, obsCfg.ServiceName+"_"+job, map[string]string{
			"env": obsCfg.Environment,
		})
		if pushErr := pusher.Push(ctx, prometheus.DefaultGatherer); pushErr != nil {
			log.Warn("pushgateway push failed", zap.String("job", job), zap.Error(pushErr))
		}

		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", label, count)
		return nil
	})
}
