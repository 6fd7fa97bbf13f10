package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/fieldops/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLimiterDisabled(t *testing.T) {
	limiter, err := NewLimiter(config.Config{})
	require.NoError(t, err)
	assert.Nil(t, limiter)
	assert.False(t, limiter.Enabled())

	res, err := limiter.Allow(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	token, ok, err := limiter.LockBulkAssign(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, token)
	assert.NoError(t, limiter.ReleaseBulkAssign(context.Background(), "user-1", token))
	assert.NoError(t, limiter.Close())
}

func TestNewLimiterValidatesConfig(t *testing.T) {
	_, err := NewLimiter(config.Config{RateLimit: config.RateLimitConfig{Enabled: true}})
	assert.Error(t, err)

	_, err = NewLimiter(config.Config{RateLimit: config.RateLimitConfig{
		Enabled:   true,
		RedisAddr: "localhost:6379",
		PerMinute: 0,
		Burst:     5,
	}})
	assert.Error(t, err)
}

func TestNewLimiterRates(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	limiter := NewWithClient(client, config.RateLimitConfig{PerMinute: 120, Burst: 10})
	assert.True(t, limiter.Enabled())
	assert.InDelta(t, 2.0, limiter.rate, 0.0001)
	assert.Equal(t, 10, limiter.burst)
	assert.Equal(t, 30*time.Second, limiter.lockTTL)
}

func TestTokenBucketHelpers(t *testing.T) {
	assert.Equal(t, 10*time.Second, defaultBucketTTL(2, 10))
	assert.Equal(t, time.Second, defaultBucketTTL(100, 1))
	assert.Equal(t, time.Second, defaultBucketTTL(0, 1))

	assert.Equal(t, time.Duration(0), retryAfter(true, 0, 1))
	assert.Equal(t, 500*time.Millisecond, retryAfter(false, 0, 2))
	assert.Equal(t, 250*time.Millisecond, retryAfter(false, 0.5, 2))

	assert.InDelta(t, 0.75, castToFloat("0.75"), 0.0001)
	assert.InDelta(t, 3.0, castToFloat(int64(3)), 0.0001)
	assert.Equal(t, int64(1), castToInt(int64(1)))
	assert.Equal(t, int64(0), castToInt("x"))
}

func TestNilBucketAndLocker(t *testing.T) {
	assert.Nil(t, NewTokenBucket(nil))
	assert.Nil(t, NewLocker(nil))

	var bucket *TokenBucket
	res, err := bucket.Allow(context.Background(), "k", 1, 1)
	assert.Error(t, err)
	assert.False(t, res.Allowed)

	var locker *Locker
	_, _, err = locker.TryLock(context.Background(), "k", time.Second)
	assert.Error(t, err)
	assert.NoError(t, locker.Release(context.Background(), "k", "t"))
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestTokenBucketDeniesThenRefills(t *testing.T) {
	mr, client := newRedis(t)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	mr.SetTime(base)

	bucket := NewTokenBucket(client)
	ctx := context.Background()

	first, err := bucket.Allow(ctx, "bucket:a", 1, 2)
	require.NoError(t, err)
	assert.True(t, first.Allowed)
	assert.Equal(t, 2, first.Limit)
	assert.Equal(t, 1, first.Remaining)

	second, err := bucket.Allow(ctx, "bucket:a", 1, 2)
	require.NoError(t, err)
	assert.True(t, second.Allowed)
	assert.Equal(t, 0, second.Remaining)

	denied, err := bucket.Allow(ctx, "bucket:a", 1, 2)
	require.NoError(t, err)
	assert.False(t, denied.Allowed)
	assert.Equal(t, time.Second, denied.RetryAfter)
	assert.Equal(t, defaultBucketTTL(1, 2), mr.TTL("bucket:a"))

	// Half a token is not enough.
	mr.SetTime(base.Add(500 * time.Millisecond))
	partial, err := bucket.Allow(ctx, "bucket:a", 1, 2)
	require.NoError(t, err)
	assert.False(t, partial.Allowed)
	assert.Equal(t, 500*time.Millisecond, partial.RetryAfter)

	mr.SetTime(base.Add(1500 * time.Millisecond))
	refilled, err := bucket.Allow(ctx, "bucket:a", 1, 2)
	require.NoError(t, err)
	assert.True(t, refilled.Allowed)
	assert.Zero(t, refilled.RetryAfter)
}

func TestTokenBucketRejectsBadInput(t *testing.T) {
	_, client := newRedis(t)
	bucket := NewTokenBucket(client)

	_, err := bucket.Allow(context.Background(), "", 1, 1)
	assert.ErrorIs(t, err, ErrInvalidBucket)
	_, err = bucket.Allow(context.Background(), "k", 0, 1)
	assert.ErrorIs(t, err, ErrInvalidBucket)
}

func TestLockerSingleHolder(t *testing.T) {
	mr, client := newRedis(t)
	locker := NewLocker(client)
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "lock:a", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = locker.TryLock(ctx, "lock:a", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// A stale token must not free someone else's lock.
	require.NoError(t, locker.Release(ctx, "lock:a", "stale-token"))
	assert.True(t, mr.Exists("lock:a"))

	require.NoError(t, locker.Release(ctx, "lock:a", token))
	assert.False(t, mr.Exists("lock:a"))

	again, ok, err := locker.TryLock(ctx, "lock:a", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEqual(t, token, again)

	_, _, err = locker.TryLock(ctx, "lock:b", 0)
	assert.ErrorIs(t, err, ErrInvalidLock)
}

func TestLockerExpiredLockCanBeRetaken(t *testing.T) {
	mr, client := newRedis(t)
	locker := NewLocker(client)
	ctx := context.Background()

	first, ok, err := locker.TryLock(ctx, "lock:ttl", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	second, ok, err := locker.TryLock(ctx, "lock:ttl", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// The first holder's late release leaves the new lock in place.
	require.NoError(t, locker.Release(ctx, "lock:ttl", first))
	held, err := mr.Get("lock:ttl")
	require.NoError(t, err)
	assert.Equal(t, second, held)
}

func TestLimiterAllowIsPerSubject(t *testing.T) {
	_, client := newRedis(t)
	limiter := NewWithClient(client, config.RateLimitConfig{PerMinute: 60, Burst: 1})
	ctx := context.Background()

	res, err := limiter.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = limiter.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Positive(t, res.RetryAfter)

	res, err = limiter.Allow(ctx, "user-2")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestReleaseBulkAssignAfterContextCancelled(t *testing.T) {
	mr, client := newRedis(t)
	limiter := NewWithClient(client, config.RateLimitConfig{PerMinute: 60, Burst: 5})

	ctx, cancel := context.WithCancel(context.Background())
	token, ok, err := limiter.LockBulkAssign(ctx, "manager-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("fieldops:lock:bulk_assign:manager-1"))

	_, ok, err = limiter.LockBulkAssign(context.Background(), "manager-1")
	require.NoError(t, err)
	assert.False(t, ok)

	cancel()
	require.NoError(t, limiter.ReleaseBulkAssign(ctx, "manager-1", token))
	assert.False(t, mr.Exists("fieldops:lock:bulk_assign:manager-1"))

	_, ok, err = limiter.LockBulkAssign(context.Background(), "manager-1")
	require.NoError(t, err)
	assert.True(t, ok)
}
