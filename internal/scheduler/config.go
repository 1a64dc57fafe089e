package scheduler

import (
	"time"

	"github.com/smallbiznis/invoicepay/internal/config"
)

const (
	JobOverdueSweep     = "overdue_sweep"
	JobPaymentReminders = "payment_reminders"
)

// Config controls scheduler intervals.
type Config struct {
	RunInterval      time.Duration
	OverdueInterval  time.Duration
	ReminderInterval time.Duration
	JobTimeout       time.Duration
	LockTTL          time.Duration
	EnabledJobs      []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:      time.Minute,
		OverdueInterval:  time.Hour,
		ReminderInterval: 24 * time.Hour,
		JobTimeout:       5 * time.Minute,
		LockTTL:          5 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		OverdueInterval:  cfg.Scheduler.OverdueInterval,
		ReminderInterval: cfg.Scheduler.ReminderInterval,
		LockTTL:          cfg.Scheduler.JobLockTTL,
		EnabledJobs:      cfg.Scheduler.EnabledJobs,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.OverdueInterval <= 0 {
		c.OverdueInterval = defaults.OverdueInterval
	}
	if c.ReminderInterval <= 0 {
		c.ReminderInterval = defaults.ReminderInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.RunInterval > c.OverdueInterval {
		c.RunInterval = c.OverdueInterval
	}
	return c
}
