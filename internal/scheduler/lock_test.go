package scheduler

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type redisStub struct {
	redis.Scripter

	values   map[string]string
	released []string
}

func (r *redisStub) SetNX(ctx context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	if _, held := r.values[key]; held {
		cmd.SetVal(false)
		return cmd
	}
	r.values[key] = value.(string)
	cmd.SetVal(true)
	return cmd
}

func (r *redisStub) EvalSha(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	if r.values[keys[0]] == args[0] {
		delete(r.values, keys[0])
		r.released = append(r.released, keys[0])
		cmd.SetVal(int64(1))
		return cmd
	}
	cmd.SetVal(int64(0))
	return cmd
}

func TestLockerIsExclusiveAndTokenBound(t *testing.T) {
	stub := &redisStub{values: map[string]string{}}
	locker := NewLocker(stub)
	ctx := context.Background()
	key := lockKey(JobOverdueSweep)

	token, ok, err := locker.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, token)

	_, ok, err = locker.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, key, "someone-else"))
	assert.Empty(t, stub.released)

	require.NoError(t, locker.Release(ctx, key, token))
	assert.Equal(t, []string{"invoicepay:scheduler:lock:overdue_sweep"}, stub.released)
}

func TestLockerValidation(t *testing.T) {
	var nilLocker *Locker
	_, _, err := nilLocker.TryLock(context.Background(), "k", time.Minute)
	assert.ErrorIs(t, err, ErrLockNotConfigured)
	assert.NoError(t, nilLocker.Release(context.Background(), "k", "t"))

	locker := NewLocker(&redisStub{values: map[string]string{}})
	_, _, err = locker.TryLock(context.Background(), "", time.Minute)
	assert.Error(t, err)
	_, _, err = locker.TryLock(context.Background(), "k", 0)
	assert.Error(t, err)
}
