package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/licensor/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyPluginCaller = "licensor:plugin:%s"

// Bucket is the token bucket behind a PluginLimiter.
type Bucket interface {
	Allow(ctx context.Context, key string, rate float64, burst int) (Result, error)
}

// PluginLimiter throttles plugin calls per license key. A nil limiter allows
// everything.
type PluginLimiter struct {
	bucket Bucket
	rate   float64
	burst  int
}

type Params struct {
	fx.In

	Cfg config.Config
	Log *zap.Logger
	LC  fx.Lifecycle `optional:"true"`
}

func NewPluginLimiter(p Params) (*PluginLimiter, error) {
	cfg := p.Cfg.RateLimit
	if !cfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if cfg.PluginRate <= 0 || cfg.PluginBurst <= 0 {
		return nil, errors.New("plugin rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
	if p.LC != nil {
		p.LC.Append(fx.StopHook(client.Close))
	}
	p.Log.Named("ratelimit").Info("plugin rate limiting enabled",
		zap.String("redis_addr", addr),
		zap.Float64("rate", cfg.PluginRate),
		zap.Int("burst", cfg.PluginBurst),
	)

	return NewPluginLimiterWithBucket(NewTokenBucket(client), cfg.PluginRate, cfg.PluginBurst), nil
}

func NewPluginLimiterWithBucket(bucket Bucket, rate float64, burst int) *PluginLimiter {
	return &PluginLimiter{bucket: bucket, rate: rate, burst: burst}
}

func (l *PluginLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow consumes one token for the caller. Keys are hashed so raw license
// keys never reach redis.
func (l *PluginLimiter) Allow(ctx context.Context, caller string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, bucketKey(caller), l.rate, l.burst)
}

func bucketKey(caller string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(caller)))
	return fmt.Sprintf(keyPluginCaller, hex.EncodeToString(sum[:12]))
}
