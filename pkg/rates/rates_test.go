package rates

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onenesskingdom/oneness-ledger/pkg/enums"
	pkgerrors "github.com/onenesskingdom/oneness-ledger/pkg/errors"
	"github.com/onenesskingdom/oneness-ledger/pkg/logger"
)

func TestStaticProvider(t *testing.T) {
	p, err := NewStaticProvider(map[string]string{"jpy": "1.5", "USDT": " 0.01 "})
	require.NoError(t, err)

	rate, err := p.Rate(context.Background(), enums.CurrencyJPY)
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("1.5")))

	rate, err = p.Rate(context.Background(), enums.CurrencyUSDT)
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.01")))

	_, err = p.Rate(context.Background(), enums.CurrencyUSDC)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestStaticProviderRejectsBadConfig(t *testing.T) {
	cases := map[string]map[string]string{
		"empty":    {},
		"currency": {"BTC": "1"},
		"number":   {"JPY": "abc"},
		"zero":     {"JPY": "0"},
		"negative": {"USD": "-0.1"},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewStaticProvider(raw)
			assert.Error(t, err)
		})
	}
}

type countingProvider struct {
	rate  decimal.Decimal
	err   error
	calls int
}

func (c *countingProvider) Rate(context.Context, enums.Currency) (decimal.Decimal, error) {
	c.calls++
	return c.rate, c.err
}

type memoryCache struct {
	data    map[string]string
	ttl     time.Duration
	getErr  error
	setErr  error
	setHits int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string]string{}}
}

func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.setHits++
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value.(string)
	m.ttl = ttl
	return nil
}

func (m *memoryCache) RateCacheKey(currency string) string {
	return "ok:fx_rate:" + currency
}

func TestCachedProviderHitsUpstreamOnce(t *testing.T) {
	upstream := &countingProvider{rate: decimal.RequireFromString("0.0067")}
	cache := newMemoryCache()
	p, err := NewCachedProvider(upstream, cache, 30*time.Second, logger.Nop())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		rate, err := p.Rate(context.Background(), enums.CurrencyUSD)
		require.NoError(t, err)
		assert.Equal(t, "0.0067", rate.String())
	}
	assert.Equal(t, 1, upstream.calls)
	assert.Equal(t, 30*time.Second, cache.ttl)
	assert.Equal(t, "0.0067", cache.data["ok:fx_rate:USD"])
}

func TestCachedProviderFallsThroughOnCacheErrors(t *testing.T) {
	upstream := &countingProvider{rate: decimal.NewFromInt(1)}
	cache := newMemoryCache()
	cache.getErr = errors.New("connection refused")
	cache.setErr = errors.New("connection refused")
	p, err := NewCachedProvider(upstream, cache, 0, nil)
	require.NoError(t, err)

	rate, err := p.Rate(context.Background(), enums.CurrencyJPY)
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, 1, cache.setHits)
}

func TestCachedProviderIgnoresCorruptEntries(t *testing.T) {
	upstream := &countingProvider{rate: decimal.NewFromInt(2)}
	cache := newMemoryCache()
	cache.data["ok:fx_rate:JPY"] = "not-a-number"
	p, err := NewCachedProvider(upstream, cache, time.Minute, nil)
	require.NoError(t, err)

	rate, err := p.Rate(context.Background(), enums.CurrencyJPY)
	require.NoError(t, err)
	assert.Equal(t, "2", rate.String())
	assert.Equal(t, "2", cache.data["ok:fx_rate:JPY"])
}

func TestCachedProviderPropagatesUpstreamError(t *testing.T) {
	upstream := &countingProvider{err: errors.New("feed down")}
	p, err := NewCachedProvider(upstream, newMemoryCache(), time.Minute, nil)
	require.NoError(t, err)

	_, err = p.Rate(context.Background(), enums.CurrencyJPY)
	assert.EqualError(t, err, "feed down")
}

func TestNewCachedProviderRequiresDeps(t *testing.T) {
	_, err := NewCachedProvider(nil, newMemoryCache(), time.Minute, nil)
	assert.Error(t, err)
	_, err = NewCachedProvider(&countingProvider{}, nil, time.Minute, nil)
	assert.Error(t, err)
}
