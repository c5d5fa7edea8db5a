package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokensniper/internal/domain"
	"tokensniper/internal/position"
)

// Well-formed base58 32-byte addresses for engine-level validation.
const (
	testMint   = "So11111111111111111111111111111111111111112"
	testWallet = "11111111111111111111111111111111"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeFeed struct {
	mu    sync.Mutex
	price float64
	err   error
	calls atomic.Int32
}

func (f *fakeFeed) set(price float64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.price, f.err = price, err
}

func (f *fakeFeed) GetPrice(ctx context.Context, mint string) (domain.PriceQuote, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.PriceQuote{}, f.err
	}
	return domain.PriceQuote{Price: f.price, AsOf: time.Now().UTC()}, nil
}

type fakeResolver struct{}

func (fakeResolver) Resolve(ctx context.Context, mint string) (domain.Venue, error) {
	return domain.VenueBondingCurve, nil
}

type fakeExecutor struct {
	mu       sync.Mutex
	err      error
	failures int
	delay    time.Duration
	sizes    []float64
	calls    atomic.Int32
}

func (f *fakeExecutor) set(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// failFirst makes the next n Execute calls fail with a slippage error.
func (f *fakeExecutor) failFirst(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = n
}

func (f *fakeExecutor) setDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// soldTotal sums the sizes of every confirmed sell.
func (f *fakeExecutor) soldTotal() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total float64
	for _, s := range f.sizes {
		total += s
	}
	return total
}

func (f *fakeExecutor) Execute(ctx context.Context, mint string, venue domain.Venue, side domain.TradeSide, size float64, fees domain.FeeConfig) (domain.Trade, error) {
	f.calls.Add(1)
	f.mu.Lock()
	err := f.err
	if f.failures > 0 {
		f.failures--
		err = &domain.ExecutionError{Kind: domain.ExecErrorSlippageExceeded, Message: "slippage"}
	}
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return domain.Trade{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return domain.Trade{}, err
	}

	f.mu.Lock()
	f.sizes = append(f.sizes, size)
	f.mu.Unlock()
	return domain.Trade{
		Side:        side,
		Size:        size,
		Price:       2.5,
		Venue:       venue,
		TxRef:       "tx-fake",
		ConfirmedAt: time.Now().UTC(),
	}, nil
}

// captureAlerts records events on a buffered channel for test assertions.
type captureAlerts struct {
	events chan domain.PositionEvent
}

func newCaptureAlerts() *captureAlerts {
	return &captureAlerts{events: make(chan domain.PositionEvent, 64)}
}

func (c *captureAlerts) Notify(ctx context.Context, event domain.PositionEvent) {
	select {
	case c.events <- event:
	default:
	}
}

func (c *captureAlerts) wait(t *testing.T, eventType domain.PositionEventType, timeout time.Duration) domain.PositionEvent {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-c.events:
			if ev.Type == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", eventType)
			return domain.PositionEvent{}
		}
	}
}

type testRig struct {
	engine   *Engine
	store    *position.Store
	feed     *fakeFeed
	executor *fakeExecutor
	alerts   *captureAlerts
	cancel   context.CancelFunc
	done     chan struct{}
}

func newTestRig(t *testing.T, run bool) *testRig {
	t.Helper()
	store := position.NewStore(nil, testLogger())
	feed := &fakeFeed{}
	executor := &fakeExecutor{}
	alerts := newCaptureAlerts()

	eng := New(Config{
		PollInterval: 10 * time.Millisecond,
		FeedTimeout:  time.Second,
		ExecTimeout:  time.Second,
	}, feed, fakeResolver{}, executor, store, alerts, testLogger())

	rig := &testRig{
		engine:   eng,
		store:    store,
		feed:     feed,
		executor: executor,
		alerts:   alerts,
		done:     make(chan struct{}),
	}

	if run {
		ctx, cancel := context.WithCancel(context.Background())
		rig.cancel = cancel
		go func() {
			defer close(rig.done)
			_ = eng.Run(ctx)
		}()
		t.Cleanup(func() {
			cancel()
			<-rig.done
		})
		// Wait for the engine loop to take ownership.
		require.Eventually(t, func() bool { return eng.State() == StateRunning },
			time.Second, time.Millisecond)
	}
	return rig
}

func entryBuy(size, price float64) domain.Trade {
	return domain.Trade{
		Side:        domain.TradeSideBuy,
		Size:        size,
		Price:       price,
		Venue:       domain.VenueBondingCurve,
		TxRef:       "entry-tx",
		ConfirmedAt: time.Now().UTC(),
	}
}

func TestEngine_TakeProfitClosesPosition(t *testing.T) {
	rig := newTestRig(t, true)
	rig.feed.set(2.5, nil)

	_, err := rig.engine.Open(context.Background(), testMint, testWallet,
		entryBuy(1000, 1.0), []domain.Trigger{domain.NewTakeProfit(2.0)})
	require.NoError(t, err)

	fired := rig.alerts.wait(t, domain.EventTriggerFired, 2*time.Second)
	assert.Equal(t, "take_profit", fired.Reason)
	assert.Equal(t, 1000.0, fired.Quantity)

	rig.alerts.wait(t, domain.EventPositionClosed, 2*time.Second)

	// The position is gone from the store once fully sold.
	assert.Eventually(t, func() bool {
		return len(rig.store.List()) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestEngine_ExecutionFailureKeepsTriggerActive(t *testing.T) {
	rig := newTestRig(t, true)
	rig.feed.set(2.5, nil)
	rig.executor.set(&domain.ExecutionError{Kind: domain.ExecErrorSlippageExceeded, Message: "slippage"})

	pos, err := rig.engine.Open(context.Background(), testMint, testWallet,
		entryBuy(1000, 1.0), []domain.Trigger{domain.NewTakeProfit(2.0)})
	require.NoError(t, err)

	failed := rig.alerts.wait(t, domain.EventExecutionFailed, 2*time.Second)
	assert.Equal(t, string(domain.ExecErrorSlippageExceeded), failed.Reason)

	// Quantity, trades, and the trigger set are untouched; the failure is
	// only counted.
	got, err := rig.store.Get(pos.Key())
	require.NoError(t, err)
	assert.Equal(t, 1000.0, got.RemainingQuantity)
	assert.Len(t, got.Trades, 1)
	assert.Len(t, got.Triggers, 1)
	assert.GreaterOrEqual(t, got.MissedTriggers, 1)

	// Once execution recovers, the same trigger fires.
	rig.executor.set(nil)
	rig.alerts.wait(t, domain.EventPositionClosed, 2*time.Second)
}

func TestEngine_FeedOutageSkipsPriceTriggers(t *testing.T) {
	rig := newTestRig(t, true)
	rig.feed.set(0, domain.ErrFeedUnavailable)

	pos, err := rig.engine.Open(context.Background(), testMint, testWallet,
		entryBuy(1000, 1.0), []domain.Trigger{
			domain.NewTakeProfit(1.1),
			domain.NewStopLoss(0.01),
		})
	require.NoError(t, err)

	// Several ticks with no price: nothing may fire, nothing may execute.
	require.Eventually(t, func() bool { return rig.feed.calls.Load() >= 3 },
		2*time.Second, time.Millisecond)
	assert.Zero(t, rig.executor.calls.Load())

	got, err := rig.store.Get(pos.Key())
	require.NoError(t, err)
	assert.Equal(t, 1000.0, got.RemainingQuantity)
}

func TestEngine_PauseStopsPollingResumeRestarts(t *testing.T) {
	rig := newTestRig(t, true)
	rig.feed.set(1.0, nil)

	_, err := rig.engine.Open(context.Background(), testMint, testWallet,
		entryBuy(1000, 1.0), []domain.Trigger{domain.NewTakeProfit(10.0)})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rig.feed.calls.Load() >= 1 },
		2*time.Second, time.Millisecond)

	rig.engine.Pause()
	assert.Equal(t, StatePaused, rig.engine.State())

	// No polls while paused.
	settled := rig.feed.calls.Load()
	time.Sleep(60 * time.Millisecond)
	assert.LessOrEqual(t, rig.feed.calls.Load(), settled+1)

	rig.engine.Resume()
	assert.Equal(t, StateRunning, rig.engine.State())
	require.Eventually(t, func() bool { return rig.feed.calls.Load() > settled+1 },
		2*time.Second, time.Millisecond)
}

func TestEngine_OpenValidatesAddresses(t *testing.T) {
	rig := newTestRig(t, false)

	_, err := rig.engine.Open(context.Background(), "not-a-mint", testWallet,
		entryBuy(1000, 1.0), nil)
	require.Error(t, err)

	_, err = rig.engine.Open(context.Background(), testMint, "short",
		entryBuy(1000, 1.0), nil)
	require.Error(t, err)
}

func TestEngine_CloseAllManual(t *testing.T) {
	rig := newTestRig(t, false)

	pos, err := rig.engine.Open(context.Background(), testMint, testWallet,
		entryBuy(1000, 1.0), []domain.Trigger{domain.NewTakeProfit(5.0)})
	require.NoError(t, err)

	trade, err := rig.engine.CloseAll(context.Background(), pos.Key())
	require.NoError(t, err)
	assert.Equal(t, 1000.0, trade.Size)
	assert.Equal(t, domain.TradeSideSell, trade.Side)

	closed := rig.alerts.wait(t, domain.EventPositionClosed, time.Second)
	assert.Equal(t, "manual_close", closed.Reason)

	_, err = rig.store.Get(pos.Key())
	require.ErrorIs(t, err, domain.ErrPositionNotFound)
}

func TestEngine_FailedLadderSellDefersFullExit(t *testing.T) {
	rig := newTestRig(t, true)
	rig.feed.set(2.5, nil)
	rig.executor.failFirst(1)

	_, err := rig.engine.Open(context.Background(), testMint, testWallet,
		entryBuy(1000, 1.0), []domain.Trigger{
			domain.NewPartialSellLevel(2.0, 0.25),
			domain.NewTakeProfit(2.0),
		})
	require.NoError(t, err)

	// The ladder sell fails on the first tick. The take-profit in the same
	// tick must not run against the pre-failure fraction, so no trigger may
	// fire before the failure is reported.
	failed := rig.alerts.wait(t, domain.EventExecutionFailed, 2*time.Second)
	assert.Equal(t, string(domain.ExecErrorSlippageExceeded), failed.Reason)
	assert.Equal(t, 250.0, failed.Quantity)

	// Next tick re-evaluates from untouched state: the ladder level sells
	// its quarter, then the take-profit exits everything left.
	ladder := rig.alerts.wait(t, domain.EventTriggerFired, 2*time.Second)
	assert.Equal(t, "partial_sell", ladder.Reason)
	assert.Equal(t, 250.0, ladder.Quantity)
	assert.InDelta(t, 1125.0, ladder.UnrealizedPnL, 1e-9)

	full := rig.alerts.wait(t, domain.EventTriggerFired, 2*time.Second)
	assert.Equal(t, "take_profit", full.Reason)
	assert.Equal(t, 750.0, full.Quantity)

	rig.alerts.wait(t, domain.EventPositionClosed, 2*time.Second)
	assert.Eventually(t, func() bool {
		return len(rig.store.List()) == 0
	}, time.Second, 5*time.Millisecond)

	// Exactly the initial quantity was sold and nothing was stranded.
	assert.InDelta(t, 1000.0, rig.executor.soldTotal(), 1e-9)
}

func TestEngine_ManualCloseSerializedWithFiringTick(t *testing.T) {
	rig := newTestRig(t, true)
	rig.executor.setDelay(100 * time.Millisecond)
	rig.feed.set(2.5, nil)

	pos, err := rig.engine.Open(context.Background(), testMint, testWallet,
		entryBuy(1000, 1.0), []domain.Trigger{domain.NewTakeProfit(2.0)})
	require.NoError(t, err)

	// Wait until the take-profit sell is in flight, then race a manual
	// close against it. The close must wait for the tick to finish and
	// then find nothing left to sell.
	require.Eventually(t, func() bool { return rig.executor.calls.Load() >= 1 },
		2*time.Second, time.Millisecond)

	_, err = rig.engine.CloseAll(context.Background(), pos.Key())
	require.ErrorIs(t, err, domain.ErrPositionNotFound)

	rig.alerts.wait(t, domain.EventPositionClosed, 2*time.Second)
	assert.InDelta(t, 1000.0, rig.executor.soldTotal(), 1e-9)
}

func TestEngine_ConcurrentPositionsTickIndependently(t *testing.T) {
	rig := newTestRig(t, true)
	rig.feed.set(3.0, nil)

	mints := []string{
		"So11111111111111111111111111111111111111112",
		"4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R",
		"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	}
	for _, mint := range mints {
		_, err := rig.engine.Open(context.Background(), mint, testWallet,
			entryBuy(100, 1.0), []domain.Trigger{domain.NewTakeProfit(2.0)})
		require.NoError(t, err)
	}

	// Every position closes on its own runner.
	require.Eventually(t, func() bool {
		return len(rig.store.List()) == 0
	}, 3*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, rig.executor.calls.Load(), int32(3))
}
