package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/invoicepay/internal/clock"
	"github.com/smallbiznis/invoicepay/internal/config"
	invoicedomain "github.com/smallbiznis/invoicepay/internal/invoice/domain"
	"github.com/smallbiznis/invoicepay/internal/notification"
	obsmetrics "github.com/smallbiznis/invoicepay/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/invoicepay/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeInvoices struct {
	invoicedomain.Service

	mu            sync.Mutex
	sweeps        int
	reminderCalls int
	swept         int64
	due           []invoicedomain.Invoice
	dueErr        error
}

func (f *fakeInvoices) SweepOverdue(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
	return f.swept, nil
}

func (f *fakeInvoices) DueForReminder(_ context.Context, _ int, _ bool, limit int) ([]invoicedomain.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reminderCalls++
	if f.dueErr != nil {
		return nil, f.dueErr
	}
	if limit > 0 && len(f.due) > limit {
		return f.due[:limit], nil
	}
	return f.due, nil
}

type fakeNotifier struct {
	notification.Notifier

	mu       sync.Mutex
	reminded []string
	failFor  map[string]error
}

func (f *fakeNotifier) PaymentReminder(_ context.Context, inv *invoicedomain.Invoice) error {
	if inv.ClientEmail == "" {
		return notification.ErrNoRecipient
	}
	if err := f.failFor[inv.InvoiceNumber]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reminded = append(f.reminded, inv.InvoiceNumber)
	return nil
}

type fakeLocker struct {
	held     map[string]bool
	released []string
}

func (l *fakeLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	if l.held[key] {
		return "", false, nil
	}
	return "token", true, nil
}

func (l *fakeLocker) Release(_ context.Context, key, _ string) error {
	l.released = append(l.released, key)
	return nil
}

type harness struct {
	sched    *Scheduler
	clock    *clock.FakeClock
	invoices *fakeInvoices
	notifier *fakeNotifier
	registry *prometheus.Registry
}

func newHarness(t *testing.T, policy config.ReminderConfig, locker JobLocker) *harness {
	t.Helper()
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	t.Cleanup(restore)
	obsmetrics.ResetSchedulerMetricsForTest()
	metrics := obsmetrics.SchedulerWithConfig(obsmetrics.Config{
		ServiceName: "invoicepay",
		Environment: "test",
	})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	h := &harness{
		clock:    clock.NewFakeClock(time.Date(2025, 10, 24, 9, 0, 0, 0, time.UTC)),
		invoices: &fakeInvoices{},
		notifier: &fakeNotifier{failFor: map[string]error{}},
		registry: registry,
	}
	h.sched, err = New(Params{
		Log:        zap.NewNop(),
		Clock:      h.clock,
		GenID:      node,
		InvoiceSvc: h.invoices,
		Notifier:   h.notifier,
		Reminders:  config.NewStaticReminderConfigHolder(policy),
		Locker:     locker,
		Metrics:    metrics,
	})
	require.NoError(t, err)
	return h
}

func testLabels(job string, extra ...string) map[string]string {
	labels := map[string]string{
		"service": "invoicepay",
		"env":     "test",
		"job":     job,
	}
	for i := 0; i+1 < len(extra); i += 2 {
		labels[extra[i]] = extra[i+1]
	}
	return labels
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	h := newHarness(t, config.DefaultReminderConfig(), nil)

	_, err := h.sched.runJob(context.Background(), "timeout_job", 5*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.NoError(t, err)

	assert.Equal(t, float64(1), getCounterValue(t, h.registry, "invoicepay_scheduler_job_timeouts_total", testLabels("timeout_job")))
	assert.Equal(t, float64(1), getCounterValue(t, h.registry, "invoicepay_scheduler_job_errors_total",
		testLabels("timeout_job", "reason", obsmetrics.SchedulerJobReasonDeadlineExceeded)))
}

func TestRunJobWrapsFailures(t *testing.T) {
	h := newHarness(t, config.DefaultReminderConfig(), nil)
	boom := errors.New("boom")

	_, err := h.sched.runJob(context.Background(), "failing_job", time.Second, func(context.Context) (int, error) {
		return 0, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing_job")
	assert.Equal(t, float64(1), getCounterValue(t, h.registry, "invoicepay_scheduler_job_errors_total",
		testLabels("failing_job", "reason", obsmetrics.SchedulerJobReasonUnknown)))
}

func TestRunOnceHonoursJobIntervals(t *testing.T) {
	h := newHarness(t, config.DefaultReminderConfig(), nil)
	ctx := context.Background()

	require.NoError(t, h.sched.RunOnce(ctx))
	assert.Equal(t, 1, h.invoices.sweeps)
	assert.Equal(t, 1, h.invoices.reminderCalls)

	require.NoError(t, h.sched.RunOnce(ctx))
	assert.Equal(t, 1, h.invoices.sweeps, "sweep must wait for its interval")

	h.clock.Advance(time.Hour)
	require.NoError(t, h.sched.RunOnce(ctx))
	assert.Equal(t, 2, h.invoices.sweeps)
	assert.Equal(t, 1, h.invoices.reminderCalls)

	h.clock.Advance(24 * time.Hour)
	require.NoError(t, h.sched.RunOnce(ctx))
	assert.Equal(t, 3, h.invoices.sweeps)
	assert.Equal(t, 2, h.invoices.reminderCalls)
}

func TestOverdueSweepCountsUpdatedInvoices(t *testing.T) {
	h := newHarness(t, config.DefaultReminderConfig(), nil)
	h.invoices.swept = 4

	processed, err := h.sched.RunJob(context.Background(), JobOverdueSweep)
	require.NoError(t, err)
	assert.Equal(t, 4, processed)
	assert.Equal(t, float64(4), getCounterValue(t, h.registry, "invoicepay_scheduler_items_processed_total", testLabels(JobOverdueSweep)))
}

func TestPaymentRemindersSkipMissingEmailAndContinueOnFailure(t *testing.T) {
	h := newHarness(t, config.DefaultReminderConfig(), nil)
	h.invoices.due = []invoicedomain.Invoice{
		{InvoiceNumber: "INV-1", ClientEmail: "a@example.com", Status: invoicedomain.StatusSent},
		{InvoiceNumber: "INV-2", Status: invoicedomain.StatusSent},
		{InvoiceNumber: "INV-3", ClientEmail: "c@example.com", Status: invoicedomain.StatusOverdue},
		{InvoiceNumber: "INV-4", ClientEmail: "d@example.com", Status: invoicedomain.StatusSent},
	}
	smtpDown := errors.New("smtp down")
	h.notifier.failFor["INV-3"] = smtpDown

	processed, err := h.sched.RunJob(context.Background(), JobPaymentReminders)
	require.ErrorIs(t, err, smtpDown)
	assert.Equal(t, 2, processed)
	assert.Equal(t, []string{"INV-1", "INV-4"}, h.notifier.reminded)
}

func TestPaymentRemindersTreatNotPayableAsFailure(t *testing.T) {
	h := newHarness(t, config.DefaultReminderConfig(), nil)
	h.invoices.due = []invoicedomain.Invoice{{InvoiceNumber: "INV-9", ClientEmail: "x@example.com"}}
	h.notifier.failFor["INV-9"] = paymentdomain.ErrInvoiceNotPayable

	_, err := h.sched.RunJob(context.Background(), JobPaymentReminders)
	require.ErrorIs(t, err, paymentdomain.ErrInvoiceNotPayable)
}

func TestPaymentRemindersDisabledPolicy(t *testing.T) {
	policy := config.DefaultReminderConfig()
	policy.Enabled = false
	h := newHarness(t, policy, nil)

	processed, err := h.sched.RunJob(context.Background(), JobPaymentReminders)
	require.NoError(t, err)
	assert.Zero(t, processed)
	assert.Zero(t, h.invoices.reminderCalls)
	assert.Equal(t, float64(1), getCounterValue(t, h.registry, "invoicepay_scheduler_job_skips_total",
		testLabels(JobPaymentReminders, "reason", obsmetrics.SchedulerSkipReasonDisabled)))
}

func TestRunJobSkipsWhenLockHeld(t *testing.T) {
	locker := &fakeLocker{held: map[string]bool{lockKey(JobOverdueSweep): true}}
	h := newHarness(t, config.DefaultReminderConfig(), locker)

	_, err := h.sched.RunJob(context.Background(), JobOverdueSweep)
	require.NoError(t, err)
	assert.Zero(t, h.invoices.sweeps)
	assert.Equal(t, float64(1), getCounterValue(t, h.registry, "invoicepay_scheduler_job_skips_total",
		testLabels(JobOverdueSweep, "reason", obsmetrics.SchedulerSkipReasonLockHeld)))

	_, err = h.sched.RunJob(context.Background(), JobPaymentReminders)
	require.NoError(t, err)
	assert.Equal(t, 1, h.invoices.reminderCalls)
	assert.Equal(t, []string{lockKey(JobPaymentReminders)}, locker.released)
}

func TestRunJobUnknownName(t *testing.T) {
	h := newHarness(t, config.DefaultReminderConfig(), nil)

	_, err := h.sched.RunJob(context.Background(), "rollup")
	require.ErrorIs(t, err, ErrUnknownJob)
}

func TestIsJobEnabled(t *testing.T) {
	s := &Scheduler{}
	assert.True(t, s.isJobEnabled(JobOverdueSweep))

	s.cfg.EnabledJobs = []string{" Overdue_Sweep "}
	assert.True(t, s.isJobEnabled(JobOverdueSweep))
	assert.False(t, s.isJobEnabled(JobPaymentReminders))
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{OverdueInterval: 30 * time.Second}.withDefaults()
	assert.Equal(t, 30*time.Second, cfg.RunInterval)
	assert.Equal(t, 24*time.Hour, cfg.ReminderInterval)
	assert.Equal(t, 5*time.Minute, cfg.LockTTL)
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
