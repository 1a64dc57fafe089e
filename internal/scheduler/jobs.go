package scheduler

import (
	"context"
	"errors"

	"github.com/smallbiznis/invoicepay/internal/notification"
	obsmetrics "github.com/smallbiznis/invoicepay/internal/observability/metrics"
	"go.uber.org/zap"
)

// OverdueSweepJob moves open invoices past their due date to overdue.
func (s *Scheduler) OverdueSweepJob(ctx context.Context) (int, error) {
	updated, err := s.invoiceSvc.SweepOverdue(ctx)
	if err != nil {
		s.jobError(ctx, "scheduler.overdue.sweep.failed", err)
		return 0, err
	}
	if updated > 0 {
		s.logger(ctx).Info("invoices marked overdue", zap.Int64("count", updated))
	}
	return int(updated), nil
}

// PaymentRemindersJob emails clients whose invoices are due soon or overdue.
// Invoices without a client email are skipped; one failed delivery does not
// stop the batch.
func (s *Scheduler) PaymentRemindersJob(ctx context.Context) (int, error) {
	policy := s.reminders.Get()
	if !policy.Enabled {
		s.metrics.IncJobSkipped(JobPaymentReminders, obsmetrics.SchedulerSkipReasonDisabled)
		return 0, nil
	}

	invoices, err := s.invoiceSvc.DueForReminder(ctx, policy.DaysBeforeDue, policy.IncludeOverdue, policy.BatchSize)
	if err != nil {
		s.jobError(ctx, "scheduler.reminder.query.failed", err)
		return 0, err
	}

	var (
		sent   int
		jobErr error
	)
	for i := range invoices {
		if ctx.Err() != nil {
			return sent, errors.Join(jobErr, ctx.Err())
		}
		inv := &invoices[i]
		err := s.notifier.PaymentReminder(ctx, inv)
		switch {
		case err == nil:
			sent++
		case errors.Is(err, notification.ErrNoRecipient):
			s.logger(ctx).Debug("reminder skipped, no client email",
				zap.String("invoice_number", inv.InvoiceNumber),
			)
		default:
			jobErr = errors.Join(jobErr, err)
			s.jobError(ctx, "scheduler.reminder.send.failed", err,
				zap.String("invoice_number", inv.InvoiceNumber),
			)
		}
	}
	return sent, jobErr
}
