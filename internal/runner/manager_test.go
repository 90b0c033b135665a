package runner

import (
	"context"
	"os"
	"testing"
	"time"
	"trade_executor/internal/models"
	"trade_executor/internal/modules/config"
	entrysvc "trade_executor/internal/modules/entry/service"
	exitsvc "trade_executor/internal/modules/exit/service"
	ledgersvc "trade_executor/internal/modules/ledger/service"
	samplersvc "trade_executor/internal/modules/sampler/service"
	"trade_executor/internal/notify"
	"trade_executor/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if err := logger.Init("runner_test"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type stubFeed struct{ price float64 }

func (f *stubFeed) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	return f.price, nil
}

type stubGateway struct{}

func (g *stubGateway) Place(ctx context.Context, symbol string, direction models.Direction, quantity, priceHint float64) (models.Fill, error) {
	return models.Fill{Price: priceHint, Quantity: quantity, OrderID: "t"}, nil
}

func (g *stubGateway) Close(ctx context.Context, symbol string, direction models.Direction, quantity float64) (models.Fill, error) {
	return models.Fill{Price: 0, Quantity: quantity, OrderID: "t"}, nil
}

type noOverrides struct{}

func (noOverrides) Current(ctx context.Context, symbol string) (models.Override, bool) {
	return models.Override{}, false
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.OKX.TickSize = 0.01
	cfg.OKX.LotStep = 0.0001
	cfg.Sampler = config.SamplerConfig{
		Interval:     2 * time.Millisecond,
		Window:       time.Minute,
		MinSamples:   2,
		FlatTrendPct: 0.15,
		FullTrendPct: 0.5,
	}
	cfg.Entry = config.EntryConfig{
		TrancheRatios:    []float64{0.3, 0.3, 0.4},
		PollInterval:     2 * time.Millisecond,
		WarmupTimeout:    50 * time.Millisecond,
		TrancheDeadlines: []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond},
		TotalDeadline:    500 * time.Millisecond,
		PullbackPct:      0.3,
		StopLossPct:      2.0,
		TakeProfitPct:    6.0,
		HoldHighScore:    80,
		HoldLowScore:     60,
		HoldLong:         4 * time.Hour,
		HoldMedium:       2 * time.Hour,
		HoldShort:        time.Hour,
	}
	cfg.Exit = config.ExitConfig{
		TickInterval:        2 * time.Millisecond,
		PreCloseWindow:      30 * time.Minute,
		HighTierPct:         5,
		HighTierDrawdownPct: 0.5,
		MidTierPct:          2,
		MidTierDrawdownPct:  0.8,
		LowTierTakePct:      0.5,
		ShallowLossPct:      0.5,
		Extension:           30 * time.Minute,
		OverrideMinStrength: 0.7,
	}
	return cfg
}

func newTestManager() (*Manager, *ledgersvc.Memory, *exitsvc.Scheduler) {
	cfg := testConfig()
	ldg := ledgersvc.NewMemory(1000)
	feed := &stubFeed{price: 100}
	gw := &stubGateway{}
	n := notify.NewStdout()

	reg := samplersvc.NewRegistry(cfg, feed)
	entry := entrysvc.NewScheduler(cfg, reg, ldg, gw, n)
	monitor := exitsvc.NewMonitor(cfg, ldg, feed, gw, noOverrides{}, n)
	exits := exitsvc.NewScheduler(monitor)

	return NewManager(entry, exits, ldg, n), ldg, exits
}

func TestHandleSignalOpensAndWatches(t *testing.T) {
	mgr, ldg, _ := newTestManager()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := models.Signal{
		Symbol:      "BTC-USDT-SWAP",
		Direction:   models.DirectionLong,
		Score:       70,
		Leverage:    2,
		TotalMargin: 100,
		IssuedAt:    time.Now(),
	}

	mgr.HandleSignal(ctx, sig)
	mgr.HandleSignal(ctx, sig) // дубликат в полёте отбрасывается сразу

	require.Eventually(t, func() bool {
		open, err := ldg.GetOpenPositions(ctx)
		return err == nil && len(open) == 1 && open[0].Status == models.StatusOpen
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return mgr.Inflight() == 0
	}, 2*time.Second, 5*time.Millisecond)

	// ровно одна позиция, несмотря на два сигнала
	open, err := ldg.GetOpenPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestResumeWatchesOpenPositions(t *testing.T) {
	mgr, ldg, exits := newTestManager()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pos := &models.Position{
		ID:              "restart-1",
		Symbol:          "ETH-USDT-SWAP",
		Direction:       models.DirectionShort,
		Leverage:        2,
		EntrySignalTime: time.Now(),
	}
	require.NoError(t, ldg.CreatePosition(ctx, pos))
	_, err := ldg.AppendTrancheFill(ctx, pos.ID, models.Tranche{FillPrice: 100, Quantity: 1, Margin: 100})
	require.NoError(t, err)
	require.NoError(t, ldg.SetProtection(ctx, pos.ID, 102, 94, time.Now().Add(2*time.Hour)))
	require.NoError(t, ldg.TransitionStatus(ctx, pos.ID, models.StatusBuilding, models.StatusOpen))

	require.NoError(t, mgr.Resume(ctx))
	assert.True(t, exits.Watching(pos.ID))
}

func TestResumeProtectsOrphanedBuildingPosition(t *testing.T) {
	mgr, ldg, exits := newTestManager()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// процесс умер посреди набора: транш есть, защиты нет
	pos := &models.Position{
		ID:              "orphan-1",
		Symbol:          "ETH-USDT-SWAP",
		Direction:       models.DirectionLong,
		Leverage:        2,
		EntrySignalTime: time.Now(),
	}
	require.NoError(t, ldg.CreatePosition(ctx, pos))
	_, err := ldg.AppendTrancheFill(ctx, pos.ID, models.Tranche{FillPrice: 100, Quantity: 1, Margin: 100})
	require.NoError(t, err)

	require.NoError(t, mgr.Resume(ctx))

	p, err := ldg.GetPosition(ctx, pos.ID)
	require.NoError(t, err)
	assert.Greater(t, p.StopLossPrice, 0.0)
	assert.Greater(t, p.TakeProfitPrice, 0.0)
	// короткое удержание: сигналу после рестарта уже не доверяем
	assert.WithinDuration(t, time.Now().Add(time.Hour), p.PlannedCloseTime, time.Minute)
	assert.True(t, exits.Watching(pos.ID))
}

func TestResumeClosesEmptyBuildingPosition(t *testing.T) {
	mgr, ldg, exits := newTestManager()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ни одного филла: позицию нечего защищать, снимаем
	pos := &models.Position{
		ID:              "orphan-empty",
		Symbol:          "SOL-USDT-SWAP",
		Direction:       models.DirectionShort,
		Leverage:        2,
		EntrySignalTime: time.Now(),
	}
	require.NoError(t, ldg.CreatePosition(ctx, pos))

	require.NoError(t, mgr.Resume(ctx))

	p, err := ldg.GetPosition(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, p.Status)
	assert.Equal(t, models.CloseEntryAborted, p.CloseReason)
	assert.False(t, exits.Watching(pos.ID))
}
