package exchangerate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Cache is satisfied by redisclient.Cache.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// CachedSource is a read-through cache in front of another Source. Cache
// failures fall through to the wrapped source.
type CachedSource struct {
	next  Source
	cache Cache
	base  string
	ttl   time.Duration
	log   *zap.Logger
}

func NewCachedSource(next Source, cache Cache, base string, ttl time.Duration, log *zap.Logger) *CachedSource {
	return &CachedSource{
		next:  next,
		cache: cache,
		base:  strings.ToUpper(base),
		ttl:   ttl,
		log:   log,
	}
}

func (c *CachedSource) key(currency string) string {
	return fmt.Sprintf("fx:%s:%s", c.base, currency)
}

func (c *CachedSource) Rate(ctx context.Context, currency string) (decimal.Decimal, error) {
	currency = strings.ToUpper(currency)
	key := c.key(currency)

	if raw, ok, err := c.cache.Get(ctx, key); err != nil {
		c.log.Warn("exchange rate cache read failed", zap.Error(err), zap.String("key", key))
	} else if ok {
		if rate, err := decimal.NewFromString(raw); err == nil && rate.IsPositive() {
			return rate, nil
		}
		c.log.Warn("ignoring malformed cached exchange rate", zap.String("key", key), zap.String("value", raw))
	}

	rate, err := c.next.Rate(ctx, currency)
	if err != nil {
		return decimal.Zero, err
	}

	if err := c.cache.Set(ctx, key, rate.String(), c.ttl); err != nil {
		c.log.Warn("exchange rate cache write failed", zap.Error(err), zap.String("key", key))
	}
	return rate, nil
}
