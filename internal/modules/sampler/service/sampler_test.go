package service

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"
	"trade_executor/internal/models"
	"trade_executor/internal/modules/config"
	"trade_executor/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if err := logger.Init("sampler_test"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type stubFeed struct {
	price float64
}

func (f *stubFeed) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	return f.price, nil
}

func testSamplerCfg() config.SamplerConfig {
	return config.SamplerConfig{
		Interval:     10 * time.Millisecond,
		Window:       5 * time.Minute,
		MinSamples:   6,
		FlatTrendPct: 0.15,
		FullTrendPct: 0.5,
	}
}

func TestObserveEvictsOldSamples(t *testing.T) {
	s := newSampler("BTC-USDT-SWAP", testSamplerCfg(), &stubFeed{})

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.Observe(100, base)
	s.Observe(101, base.Add(time.Minute))
	// сэмпл старше окна вылетает при следующем добавлении
	s.Observe(102, base.Add(6*time.Minute))

	prev, last, ok := s.LastTwo()
	require.True(t, ok)
	assert.Equal(t, 101.0, prev.Price)
	assert.Equal(t, 102.0, last.Price)

	_, err := s.Baseline()
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestBaselineNotReadyUntilMinSamples(t *testing.T) {
	s := newSampler("BTC-USDT-SWAP", testSamplerCfg(), &stubFeed{})
	now := time.Now()

	for i := 0; i < 5; i++ {
		s.Observe(100, now.Add(time.Duration(i)*time.Second))
	}
	_, err := s.Baseline()
	require.ErrorIs(t, err, ErrNotReady)

	s.Observe(100, now.Add(5*time.Second))
	_, err = s.Baseline()
	require.NoError(t, err)
}

func TestBaselinePercentiles(t *testing.T) {
	s := newSampler("ETH-USDT-SWAP", testSamplerCfg(), &stubFeed{})
	now := time.Now()

	// 100..110 по возрастанию
	for i := 0; i <= 10; i++ {
		s.Observe(100+float64(i), now.Add(time.Duration(i)*time.Second))
	}

	b, err := s.Baseline()
	require.NoError(t, err)

	assert.Equal(t, 11, b.SampleCount)
	assert.InDelta(t, 100.0, b.Min, 1e-9)
	assert.InDelta(t, 110.0, b.Max, 1e-9)
	assert.InDelta(t, 101.0, b.P10, 1e-9)
	assert.InDelta(t, 102.5, b.P25, 1e-9)
	assert.InDelta(t, 105.0, b.P50, 1e-9)
	assert.InDelta(t, 107.5, b.P75, 1e-9)
	assert.InDelta(t, 109.0, b.P90, 1e-9)
	assert.InDelta(t, 105.0, b.Mean, 1e-9)

	// рост на 10% при пороге полной силы 0.5% — сила упирается в 1
	assert.Equal(t, models.TrendUp, b.TrendDirection)
	assert.InDelta(t, 1.0, b.TrendStrength, 1e-9)
}

func TestBaselineFlatTrend(t *testing.T) {
	s := newSampler("ETH-USDT-SWAP", testSamplerCfg(), &stubFeed{})
	now := time.Now()

	for i := 0; i < 10; i++ {
		s.Observe(100.0, now.Add(time.Duration(i)*time.Second))
	}

	b, err := s.Baseline()
	require.NoError(t, err)
	assert.Equal(t, models.TrendFlat, b.TrendDirection)
	assert.Zero(t, b.TrendStrength)
	assert.Zero(t, b.VolatilityPct)
}

func TestBaselineDownTrendStrength(t *testing.T) {
	s := newSampler("ETH-USDT-SWAP", testSamplerCfg(), &stubFeed{})
	now := time.Now()

	// падение на 0.25%: между flat-порогом и полной силой
	prices := []float64{100, 99.95, 99.9, 99.85, 99.8, 99.75}
	for i, p := range prices {
		s.Observe(p, now.Add(time.Duration(i)*time.Second))
	}

	b, err := s.Baseline()
	require.NoError(t, err)
	assert.Equal(t, models.TrendDown, b.TrendDirection)
	assert.InDelta(t, 0.5, b.TrendStrength, 1e-2)
}

func TestRegistryRefcount(t *testing.T) {
	cfg := &config.Config{Sampler: testSamplerCfg()}
	r := NewRegistry(cfg, &stubFeed{price: 100})
	ctx := context.Background()

	const symbol = "BTC-USDT-SWAP"

	s1 := r.Acquire(ctx, symbol)
	s2 := r.Acquire(ctx, symbol)
	assert.Same(t, s1, s2)
	assert.Equal(t, 2, r.Refs(symbol))

	r.Release(symbol)
	assert.Equal(t, 1, r.Refs(symbol))

	r.Release(symbol)
	assert.Zero(t, r.Refs(symbol))

	// новый Acquire после остановки поднимает свежий цикл
	s3 := r.Acquire(ctx, symbol)
	assert.NotNil(t, s3)
	r.Release(symbol)
}

func TestSamplerPollsFeed(t *testing.T) {
	cfg := &config.Config{Sampler: testSamplerCfg()}
	r := NewRegistry(cfg, &stubFeed{price: 250.5})

	s := r.Acquire(context.Background(), "SOL-USDT-SWAP")
	defer r.Release("SOL-USDT-SWAP")

	require.Eventually(t, func() bool {
		last, ok := s.Last()
		return ok && last.Price == 250.5
	}, time.Second, 5*time.Millisecond)
}

func TestBaselineExpiresWithoutFreshSamples(t *testing.T) {
	cfg := testSamplerCfg()
	s := newSampler("BTC-USDT-SWAP", cfg, &stubFeed{})

	// фид умер: последние сэмплы лежат за пределами окна
	stale := time.Now().Add(-2 * cfg.Window)
	for i := 0; i < cfg.MinSamples; i++ {
		s.Observe(100+float64(i), stale.Add(time.Duration(i)*time.Second))
	}

	_, err := s.Baseline()
	assert.ErrorIs(t, err, ErrNotReady)
}

type countingFeed struct {
	calls atomic.Int32
}

func (f *countingFeed) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	f.calls.Add(1)
	return 100, nil
}

func TestRegistrySurvivesFirstOwnerCancel(t *testing.T) {
	cfg := testSamplerCfg()
	cfg.Interval = 2 * time.Millisecond
	feed := &countingFeed{}
	r := NewRegistry(&config.Config{Sampler: cfg}, feed)

	const symbol = "BTC-USDT-SWAP"

	ctx1, cancel1 := context.WithCancel(context.Background())
	r.Acquire(ctx1, symbol)
	r.Acquire(context.Background(), symbol)

	// отмена первого владельца не гасит общий цикл
	cancel1()
	before := feed.calls.Load()
	require.Eventually(t, func() bool {
		return feed.calls.Load() > before
	}, time.Second, 5*time.Millisecond)

	r.Release(symbol)
	r.Release(symbol)
	assert.Zero(t, r.Refs(symbol))
}
