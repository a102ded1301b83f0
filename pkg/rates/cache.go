package rates

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/onenesskingdom/oneness-ledger/pkg/enums"
	"github.com/onenesskingdom/oneness-ledger/pkg/logger"
)

type cacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	RateCacheKey(currency string) string
}

// CachedProvider fronts another provider with a Redis cache. Cache failures
// fall through to the upstream provider.
type CachedProvider struct {
	upstream Provider
	cache    cacheStore
	ttl      time.Duration
	logg     *logger.Logger
}

func NewCachedProvider(upstream Provider, cache cacheStore, ttl time.Duration, logg *logger.Logger) (*CachedProvider, error) {
	if upstream == nil {
		return nil, errors.New("upstream rate provider required")
	}
	if cache == nil {
		return nil, errors.New("rate cache required")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedProvider{upstream: upstream, cache: cache, ttl: ttl, logg: logg}, nil
}

func (p *CachedProvider) Rate(ctx context.Context, currency enums.Currency) (decimal.Decimal, error) {
	key := p.cache.RateCacheKey(string(currency))

	raw, err := p.cache.Get(ctx, key)
	switch {
	case err == nil:
		if rate, parseErr := decimal.NewFromString(raw); parseErr == nil {
			return rate, nil
		}
		p.warn(ctx, "rates.cache.corrupt", currency, nil)
	case !errors.Is(err, redis.Nil):
		p.warn(ctx, "rates.cache.read_failed", currency, err)
	}

	rate, err := p.upstream.Rate(ctx, currency)
	if err != nil {
		return decimal.Zero, err
	}
	if err := p.cache.Set(ctx, key, rate.String(), p.ttl); err != nil {
		p.warn(ctx, "rates.cache.write_failed", currency, err)
	}
	return rate, nil
}

func (p *CachedProvider) warn(ctx context.Context, msg string, currency enums.Currency, err error) {
	if p.logg == nil {
		return
	}
	fields := map[string]any{"currency": string(currency)}
	if err != nil {
		fields["error"] = err.Error()
	}
	p.logg.Warn(p.logg.WithFields(ctx, fields), msg)
}
