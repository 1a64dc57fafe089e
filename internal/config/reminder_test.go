package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateReminderConfig(t *testing.T) {
	require.NoError(t, validateReminderConfig(DefaultReminderConfig()))

	cfg := DefaultReminderConfig()
	cfg.DaysBeforeDue = -1
	require.Error(t, validateReminderConfig(cfg))

	cfg = DefaultReminderConfig()
	cfg.BatchSize = 0
	require.Error(t, validateReminderConfig(cfg))
}

func TestStaticReminderConfigHolder(t *testing.T) {
	holder := NewStaticReminderConfigHolder(ReminderConfig{Enabled: true, DaysBeforeDue: 7, BatchSize: 10})
	require.Equal(t, 7, holder.Get().DaysBeforeDue)
}

func TestLoadReadsPaystackSettings(t *testing.T) {
	t.Setenv("PAYSTACK_SECRET_KEY", "sk_test_123")
	t.Setenv("PAYSTACK_WEBHOOK_SECRET", "")
	t.Setenv("PAYSTACK_BASE_URL", "https://gateway.test/")
	t.Setenv("PAYSTACK_TIMEOUT", "4s")

	cfg := Load()
	require.Equal(t, "sk_test_123", cfg.Paystack.SecretKey)
	require.Equal(t, "sk_test_123", cfg.Paystack.WebhookSecret)
	require.Equal(t, "https://gateway.test", cfg.Paystack.BaseURL)
	require.Equal(t, "4s", cfg.Paystack.Timeout.String())
}
