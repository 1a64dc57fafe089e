package scheduler

import (
	"context"
	"time"

	obslogger "github.com/smallbiznis/invoicepay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/invoicepay/internal/observability/metrics"
	"go.uber.org/zap"
)

// jobRun tracks one execution of a job for its start and finish log lines.
type jobRun struct {
	job       string
	id        string
	startedAt time.Time
	processed int
	failures  int
}

type jobRunKey struct{}

func (s *Scheduler) beginRun(ctx context.Context, job string) (context.Context, *jobRun) {
	run := &jobRun{
		job:       job,
		id:        s.genID.Generate().String(),
		startedAt: s.clock.Now(),
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	s.logger(ctx).Info("scheduler.job.start")
	return ctx, run
}

func (s *Scheduler) endRun(ctx context.Context, run *jobRun, processed int, err error) {
	run.processed = processed
	if err != nil && run.failures == 0 {
		run.failures = 1
	}

	log := s.logger(ctx)
	fields := []zap.Field{
		zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.Int("processed_count", run.processed),
		zap.Int("error_count", run.failures),
	}
	if run.failures > 0 {
		log.Warn("scheduler.job.finish", fields...)
		return
	}
	log.Info("scheduler.job.finish", fields...)
}

func currentRun(ctx context.Context) *jobRun {
	run, _ := ctx.Value(jobRunKey{}).(*jobRun)
	return run
}

// logger tags lines with the job and run id when called inside a run.
func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	log := obslogger.WithContext(ctx, s.log)
	if run := currentRun(ctx); run != nil {
		log = log.With(zap.String("job", run.job), zap.String("run_id", run.id))
	}
	return log
}

// jobError logs a failure inside a run and counts it against the run.
func (s *Scheduler) jobError(ctx context.Context, msg string, err error, fields ...zap.Field) {
	if run := currentRun(ctx); run != nil {
		run.failures++
	}
	fields = append(fields,
		zap.String("reason", obsmetrics.ClassifySchedulerJobReason(err)),
		zap.Error(err),
	)
	s.logger(ctx).Error(msg, fields...)
}
