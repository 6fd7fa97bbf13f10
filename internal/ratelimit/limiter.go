package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/fieldops/internal/config"
)

const (
	keyRequest  = "fieldops:ratelimit:%s"
	keyBulkLock = "fieldops:lock:bulk_assign:%s"

	releaseTimeout = 2 * time.Second
)

// Limiter throttles API callers and serialises bulk assignment per caller.
// A nil Limiter allows everything.
type Limiter struct {
	client  *redis.Client
	bucket  *TokenBucket
	locker  *Locker
	rate    float64
	burst   int
	lockTTL time.Duration
}

// NewLimiter returns nil when rate limiting is disabled.
func NewLimiter(cfg config.Config) (*Limiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.PerMinute <= 0 || limitCfg.Burst <= 0 {
		return nil, errors.New("rate limit per minute and burst must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})
	return NewWithClient(client, limitCfg), nil
}

// NewWithClient builds a limiter over an existing redis client. The limiter
// owns the client and closes it in Close.
func NewWithClient(client *redis.Client, cfg config.RateLimitConfig) *Limiter {
	lockTTL := cfg.BulkLockTTL
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &Limiter{
		client:  client,
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
		rate:    float64(cfg.PerMinute) / 60,
		burst:   cfg.Burst,
		lockTTL: lockTTL,
	}
}

func (l *Limiter) Enabled() bool {
	return l != nil && l.client != nil
}

// Allow takes one token from the caller's bucket.
func (l *Limiter) Allow(ctx context.Context, subject string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyRequest, strings.TrimSpace(subject)), l.rate, l.burst)
}

// LockBulkAssign reports ok=false when the caller already has a bulk
// assignment in flight.
func (l *Limiter) LockBulkAssign(ctx context.Context, actorID string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, fmt.Sprintf(keyBulkLock, strings.TrimSpace(actorID)), l.lockTTL)
}

// ReleaseBulkAssign drops the caller's lock. It runs even when ctx is
// already cancelled, otherwise a dropped client connection would keep the
// caller locked out until the TTL expires.
func (l *Limiter) ReleaseBulkAssign(ctx context.Context, actorID, token string) error {
	if !l.Enabled() {
		return nil
	}
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	return l.locker.Release(releaseCtx, fmt.Sprintf(keyBulkLock, strings.TrimSpace(actorID)), token)
}

func (l *Limiter) Close() error {
	if !l.Enabled() {
		return nil
	}
	return l.client.Close()
}
