package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicepay/internal/clock"
	"github.com/smallbiznis/invoicepay/internal/config"
	invoicedomain "github.com/smallbiznis/invoicepay/internal/invoice/domain"
	"github.com/smallbiznis/invoicepay/internal/notification"
	obsmetrics "github.com/smallbiznis/invoicepay/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrInvalidConfig = errors.New("invalid_scheduler_config")
	ErrUnknownJob    = errors.New("unknown_job")
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	GenID      *snowflake.Node
	InvoiceSvc invoicedomain.Service
	Notifier   notification.Notifier
	Reminders  *config.ReminderConfigHolder
	Locker     JobLocker                    `optional:"true"`
	Metrics    *obsmetrics.SchedulerMetrics `optional:"true"`
	Config     Config                       `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	invoiceSvc invoicedomain.Service
	notifier   notification.Notifier
	reminders  *config.ReminderConfigHolder
	locker     JobLocker
	metrics    *obsmetrics.SchedulerMetrics

	mu      sync.Mutex
	lastRun map[string]time.Time
}

type job struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) (int, error)
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.GenID == nil || p.InvoiceSvc == nil || p.Notifier == nil || p.Reminders == nil {
		return nil, ErrInvalidConfig
	}
	metrics := p.Metrics
	if metrics == nil {
		metrics = obsmetrics.Scheduler()
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		invoiceSvc: p.InvoiceSvc,
		notifier:   p.Notifier,
		reminders:  p.Reminders,
		locker:     p.Locker,
		metrics:    metrics,
		lastRun:    make(map[string]time.Time),
	}, nil
}

func (s *Scheduler) jobs() []job {
	return []job{
		{name: JobOverdueSweep, interval: s.cfg.OverdueInterval, run: s.OverdueSweepJob},
		{name: JobPaymentReminders, interval: s.cfg.ReminderInterval, run: s.PaymentRemindersJob},
	}
}

// runJob runs fn under a timeout and, when a locker is configured, only if no
// other instance holds the job lock. Deadline errors are soft: counted and
// logged, never returned.
func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) (int, error),
) (int, error) {
	if s.locker != nil {
		token, ok, err := s.locker.TryLock(parent, lockKey(name), s.cfg.LockTTL)
		if err != nil {
			s.metrics.IncJobError(name, err)
			return 0, fmt.Errorf("%s: acquire lock: %w", name, err)
		}
		if !ok {
			s.metrics.IncJobSkipped(name, obsmetrics.SchedulerSkipReasonLockHeld)
			s.log.Debug("job skipped, lock held elsewhere", zap.String("job", name))
			return 0, nil
		}
		defer func() {
			if err := s.locker.Release(context.Background(), lockKey(name), token); err != nil {
				s.log.Warn("release job lock failed", zap.String("job", name), zap.Error(err))
			}
		}()
	}

	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.beginRun(ctx, name)
	s.metrics.IncJobRun(name)

	processed, err := fn(ctx)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	s.metrics.AddItemsProcessed(name, processed)
	s.endRun(ctx, run, processed, err)
	if err == nil {
		return processed, nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.metrics.IncJobTimeout(name)
	}
	s.metrics.IncJobError(name, err)
	if isTimeout {
		s.logger(ctx).Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return processed, nil
	}

	return processed, fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every enabled job whose interval has elapsed since its last run.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	now := s.clock.Now()

	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.name) || !s.due(j.name, j.interval, now) {
			continue
		}
		_, jobErr := s.runJob(parent, j.name, s.cfg.JobTimeout, j.run)
		s.markRun(j.name, now)
		err = errors.Join(err, jobErr)
	}

	return err
}

// RunJob runs a single job immediately, ignoring its interval.
func (s *Scheduler) RunJob(ctx context.Context, name string) (int, error) {
	for _, j := range s.jobs() {
		if strings.EqualFold(j.name, name) {
			processed, err := s.runJob(ctx, j.name, s.cfg.JobTimeout, j.run)
			s.markRun(j.name, s.clock.Now())
			return processed, err
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownJob, name)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			s.metrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) due(name string, interval time.Duration, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastRun[name]
	return !ok || now.Sub(last) >= interval
}

func (s *Scheduler) markRun(name string, at time.Time) {
	s.mu.Lock()
	s.lastRun[name] = at
	s.mu.Unlock()
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// Empty means every job runs.
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(enabled), jobName) {
			return true
		}
	}
	return false
}
