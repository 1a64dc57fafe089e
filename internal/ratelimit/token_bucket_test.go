package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptStub answers EVALSHA with a canned reply. The embedded interface is
// nil; any other call panics.
type scriptStub struct {
	redis.Scripter

	reply []any
	err   error
	keys  []string
	args  []any
}

func (s *scriptStub) EvalSha(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	s.keys = keys
	s.args = args
	cmd := redis.NewCmd(ctx)
	if s.err != nil {
		cmd.SetErr(s.err)
		return cmd
	}
	cmd.SetVal(s.reply)
	return cmd
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, 10*time.Second, bucketTTL(1, 5))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
	assert.Equal(t, time.Second, bucketTTL(0, 0))
}

func TestNewTokenBucketValidates(t *testing.T) {
	_, err := NewTokenBucket(nil, 1, 1)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewTokenBucket(&scriptStub{}, 0, 5)
	assert.ErrorIs(t, err, ErrInvalidLimit)

	_, err = NewTokenBucket(&scriptStub{}, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestTakeAllowed(t *testing.T) {
	stub := &scriptStub{reply: []any{int64(1), "3.5", int64(1761300000000)}}
	bucket, err := NewTokenBucket(stub, 0.5, 5)
	require.NoError(t, err)

	res, err := bucket.Take(context.Background(), "k")
	require.NoError(t, err)

	assert.True(t, res.Allowed)
	assert.Equal(t, 3, res.Remaining)
	assert.Equal(t, 5, res.Limit)
	assert.Zero(t, res.RetryAfter)
	assert.Equal(t, []string{"k"}, stub.keys)
	assert.Equal(t, []any{0.5, 5, int64(20000)}, stub.args)
}

func TestTakeDeniedComputesRetryAfter(t *testing.T) {
	stub := &scriptStub{reply: []any{int64(0), "0.25", int64(1761300000000)}}
	bucket, err := NewTokenBucket(stub, 0.5, 5)
	require.NoError(t, err)

	res, err := bucket.Take(context.Background(), "k")
	require.NoError(t, err)

	assert.False(t, res.Allowed)
	assert.Equal(t, 1500*time.Millisecond, res.RetryAfter)
	assert.Equal(t, time.UnixMilli(1761300001500), res.ResetTime)
}

func TestTakePropagatesRedisErrors(t *testing.T) {
	boom := errors.New("connection refused")
	bucket, err := NewTokenBucket(&scriptStub{err: boom}, 1, 1)
	require.NoError(t, err)

	_, err = bucket.Take(context.Background(), "k")
	assert.ErrorIs(t, err, boom)
}

func TestNilBucketIsNotConfigured(t *testing.T) {
	var bucket *TokenBucket
	_, err := bucket.Take(context.Background(), "k")
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestCheckoutLimiterPrefixesKey(t *testing.T) {
	stub := &scriptStub{reply: []any{int64(1), "4", int64(0)}}
	bucket, err := NewTokenBucket(stub, 1, 5)
	require.NoError(t, err)

	_, err = NewCheckoutLimiter(bucket).Allow(context.Background(), " 203.0.113.9 ")
	require.NoError(t, err)
	assert.Equal(t, []string{"invoicepay:checkout:203.0.113.9"}, stub.keys)

	_, err = NewCheckoutLimiter(bucket).Allow(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"invoicepay:checkout:anonymous"}, stub.keys)
}

func TestNilCheckoutLimiterAllows(t *testing.T) {
	var limiter *CheckoutLimiter
	res, err := limiter.Allow(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestScriptReplyConversions(t *testing.T) {
	assert.Equal(t, int64(2), toInt(2.9))
	assert.Equal(t, int64(7), toInt("7"))
	assert.Equal(t, 0.5, toFloat("0.5"))
	assert.Equal(t, 0.0, toFloat("nope"))
}
