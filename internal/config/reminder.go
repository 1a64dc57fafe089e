package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ReminderConfig controls which invoices receive payment reminders.
type ReminderConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// DaysBeforeDue selects sent/draft invoices due within this many days.
	DaysBeforeDue int `mapstructure:"daysBeforeDue"`
	// IncludeOverdue also reminds clients of overdue invoices.
	IncludeOverdue bool `mapstructure:"includeOverdue"`
	BatchSize      int  `mapstructure:"batchSize"`
}

func DefaultReminderConfig() ReminderConfig {
	return ReminderConfig{
		Enabled:        true,
		DaysBeforeDue:  3,
		IncludeOverdue: true,
		BatchSize:      100,
	}
}

type ReminderConfigHolder struct {
	current atomic.Value // holds ReminderConfig
}

// NewStaticReminderConfigHolder wraps a fixed policy, used by tests and one-shot commands.
func NewStaticReminderConfigHolder(cfg ReminderConfig) *ReminderConfigHolder {
	holder := &ReminderConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewReminderConfigHolder() (*ReminderConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("reminders")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/invoicepay/config") // Volume-mounted config
	v.AddConfigPath("/etc/invoicepay")            // System config
	v.AddConfigPath(".")                          // Current directory (dev mode)

	v.SetEnvPrefix("INVOICEPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultReminderConfig()
	v.SetDefault("reminders.enabled", defaults.Enabled)
	v.SetDefault("reminders.daysBeforeDue", defaults.DaysBeforeDue)
	v.SetDefault("reminders.includeOverdue", defaults.IncludeOverdue)
	v.SetDefault("reminders.batchSize", defaults.BatchSize)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg ReminderConfig
	if err := v.UnmarshalKey("reminders", &cfg); err != nil {
		return nil, err
	}
	if err := validateReminderConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticReminderConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		log := zap.L().Named("config.reminders")
		var updated ReminderConfig
		if err := v.UnmarshalKey("reminders", &updated); err != nil {
			log.Warn("reminder config reload failed", zap.Error(err))
			return
		}
		if err := validateReminderConfig(updated); err != nil {
			log.Warn("invalid reminder config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reminder config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *ReminderConfigHolder) Get() ReminderConfig {
	return h.current.Load().(ReminderConfig)
}

func validateReminderConfig(cfg ReminderConfig) error {
	if cfg.DaysBeforeDue < 0 {
		return errors.New("reminders.daysBeforeDue cannot be negative")
	}
	if cfg.BatchSize <= 0 {
		return errors.New("reminders.batchSize must be positive")
	}
	return nil
}
