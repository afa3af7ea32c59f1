package cache

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const rateKey = "late_fee_daily_rate"

// RateSource yields the active daily late-fee rate in percent.
type RateSource interface {
	DailyRate(ctx context.Context) (decimal.Decimal, error)
}

// CachedRate serves the daily rate from Redis, falling back to Source on a miss.
type CachedRate struct {
	Cache  *RedisCache
	Source RateSource
	TTL    time.Duration
}

func NewCachedRate(c *RedisCache, src RateSource, ttl time.Duration) *CachedRate {
	return &CachedRate{Cache: c, Source: src, TTL: ttl}
}

func (r *CachedRate) DailyRate(ctx context.Context) (decimal.Decimal, error) {
	return GetOrSet(r.Cache, ctx, rateKey, r.TTL, func() (decimal.Decimal, error) {
		return r.Source.DailyRate(ctx)
	})
}

// Invalidate drops the cached rate so the next read goes to Source.
func (r *CachedRate) Invalidate(ctx context.Context) error {
	return r.Cache.Delete(ctx, rateKey)
}
