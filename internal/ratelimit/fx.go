package ratelimit

import (
	"context"
	"errors"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/invoicepay/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rate.limit",
	fx.Provide(provideLimiter),
)

// provideLimiter returns a nil Limiter when RATE_LIMIT_ENABLED is off.
func provideLimiter(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (Limiter, error) {
	if !cfg.RateLimit.Enabled {
		return nil, nil
	}
	if !cfg.Redis.Enabled() {
		return nil, errors.New("checkout rate limit requires REDIS_ADDR")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	bucket, err := NewTokenBucket(client, cfg.RateLimit.CheckoutRate, cfg.RateLimit.CheckoutBurst)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warn("redis unreachable, checkout rate limiting fails open", zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	log.Info("checkout rate limit enabled",
		zap.Float64("rate_per_second", cfg.RateLimit.CheckoutRate),
		zap.Int("burst", cfg.RateLimit.CheckoutBurst),
	)
	return NewCheckoutLimiter(bucket), nil
}
