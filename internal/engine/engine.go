// Package engine drives the tick pipeline for every open position: poll
// price, evaluate triggers, execute sells, mutate the position store, and
// emit alerts. Each position runs on its own goroutine; a position's own
// pipeline is strictly sequential while independent positions tick
// concurrently.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"tokensniper/internal/domain"
	"tokensniper/internal/position"
)

// State is the lifecycle state of the engine loop.
type State string

const (
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateStopped State = "stopped"
)

// Config holds engine timing and execution parameters.
type Config struct {
	// PollInterval is the shared tick cadence per position.
	PollInterval time.Duration
	// FeedTimeout bounds one price fetch so a slow provider cannot stall a
	// runner past its tick.
	FeedTimeout time.Duration
	// ExecTimeout bounds one trade submission including retries.
	ExecTimeout time.Duration
	// MaxOutstandingRequests bounds concurrent feed/venue/executor calls to
	// stay under provider rate limits.
	MaxOutstandingRequests int64
	Fees                   domain.FeeConfig
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.FeedTimeout <= 0 {
		c.FeedTimeout = 10 * time.Second
	}
	if c.ExecTimeout <= 0 {
		c.ExecTimeout = 90 * time.Second
	}
	if c.MaxOutstandingRequests <= 0 {
		c.MaxOutstandingRequests = 8
	}
	return c
}

// Engine owns the per-position runner tasks and the tick pipeline.
type Engine struct {
	cfg      Config
	feed     domain.PriceFeed
	resolver domain.VenueResolver
	executor domain.TradeExecutor
	store    *position.Store
	alerts   domain.AlertSink
	sem      *semaphore.Weighted
	logger   *slog.Logger

	mu          sync.Mutex
	state       State
	runCtx      context.Context
	pollCtx     context.Context
	cancelPolls context.CancelFunc
	runners     map[domain.PositionKey]context.CancelFunc
	wg          sync.WaitGroup

	// pipelines serialize the resolve/execute/apply phase per position
	// between the runner's firing ticks and manual closes.
	pipeMu    sync.Mutex
	pipelines map[domain.PositionKey]*sync.Mutex
}

// New creates an Engine. The store must already be restored if durability
// is in use; Run starts a runner for every open position it holds.
func New(
	cfg Config,
	feed domain.PriceFeed,
	resolver domain.VenueResolver,
	executor domain.TradeExecutor,
	store *position.Store,
	alerts domain.AlertSink,
	logger *slog.Logger,
) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:       cfg,
		feed:      feed,
		resolver:  resolver,
		executor:  executor,
		store:     store,
		alerts:    alerts,
		sem:       semaphore.NewWeighted(cfg.MaxOutstandingRequests),
		logger:    logger.With(slog.String("component", "engine")),
		state:     StateStopped,
		runners:   make(map[domain.PositionKey]context.CancelFunc),
		pipelines: make(map[domain.PositionKey]*sync.Mutex),
	}
}

// Run starts runners for every tracked open position and blocks until ctx is
// cancelled. On return all runners have exited; in-flight trade submissions
// are awaited, never abandoned.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateStopped {
		e.mu.Unlock()
		return fmt.Errorf("engine: already started")
	}
	e.state = StateRunning
	e.runCtx = ctx
	e.pollCtx, e.cancelPolls = context.WithCancel(ctx)
	keys := e.store.Keys()
	for _, key := range keys {
		e.startRunnerLocked(key)
	}
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "engine started",
		slog.Int("positions", len(keys)),
		slog.Duration("poll_interval", e.cfg.PollInterval),
	)

	<-ctx.Done()

	e.mu.Lock()
	e.state = StateStopped
	e.mu.Unlock()

	e.wg.Wait()
	e.logger.Info("engine stopped")
	return ctx.Err()
}

// Pause suspends polling without clearing any state. Pending price polls are
// cancelled; trade submissions already in flight run to completion.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRunning {
		return
	}
	e.state = StatePaused
	e.cancelPolls()
	e.pollCtx, e.cancelPolls = context.WithCancel(e.runCtx)
	e.logger.Info("engine paused")
}

// Resume re-enables polling. Runners pick up at the next scheduled tick
// boundary; the tick grid is fixed at start so resuming never drifts it.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StatePaused {
		return
	}
	e.state = StateRunning
	e.logger.Info("engine resumed")
}

// State returns the engine lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Open creates a position from a confirmed entry buy and starts its runner.
func (e *Engine) Open(ctx context.Context, mint, wallet string, entryTrade domain.Trade, triggers []domain.Trigger) (domain.Position, error) {
	if err := domain.ValidateAddress(mint); err != nil {
		return domain.Position{}, fmt.Errorf("engine: open: mint: %w", err)
	}
	if err := domain.ValidateAddress(wallet); err != nil {
		return domain.Position{}, fmt.Errorf("engine: open: wallet: %w", err)
	}

	pos, err := e.store.Open(ctx, mint, wallet, entryTrade, triggers)
	if err != nil {
		return domain.Position{}, err
	}

	e.notify(ctx, domain.PositionEvent{
		Type:     domain.EventPositionOpened,
		Mint:     mint,
		Wallet:   wallet,
		Price:    pos.EntryPrice,
		Quantity: pos.InitialQuantity,
		Venue:    entryTrade.Venue,
		TxRef:    entryTrade.TxRef,
	})

	e.mu.Lock()
	if e.state != StateStopped {
		e.startRunnerLocked(pos.Key())
	}
	e.mu.Unlock()
	return pos, nil
}

// CloseAll sells a position's entire remaining quantity immediately through
// the normal execution pipeline (user-initiated exit). It holds the
// position's pipeline lock for the whole read/execute/apply sequence, so a
// concurrently firing trigger and a manual close can never both submit for
// the same share of the position.
func (e *Engine) CloseAll(ctx context.Context, key domain.PositionKey) (domain.Trade, error) {
	lock := e.pipeline(key)
	lock.Lock()
	defer lock.Unlock()

	pos, err := e.store.Get(key)
	if err != nil {
		return domain.Trade{}, err
	}
	if pos.RemainingQuantity <= 0 {
		return domain.Trade{}, fmt.Errorf("engine: close %s: nothing remaining", key.Mint)
	}

	venue, err := e.resolveVenue(ctx, key.Mint)
	if err != nil {
		return domain.Trade{}, err
	}
	trade, err := e.executeSell(ctx, key.Mint, venue, pos.RemainingQuantity)
	if err != nil {
		return domain.Trade{}, err
	}

	retire := make([]string, 0, len(pos.Triggers))
	for _, t := range pos.Triggers {
		retire = append(retire, t.ID)
	}
	updated, closed, err := e.store.ApplySell(ctx, key, trade, retire)
	if err != nil {
		return domain.Trade{}, err
	}
	e.notify(ctx, domain.PositionEvent{
		Type:        domain.EventPositionClosed,
		Mint:        key.Mint,
		Wallet:      key.Wallet,
		Reason:      "manual_close",
		Price:       trade.Price,
		Quantity:    trade.Size,
		RealizedPnL: position.Realized(updated),
		Venue:       trade.Venue,
		TxRef:       trade.TxRef,
	})
	if closed {
		e.stopRunner(key)
		e.dropPipeline(key)
	}
	return trade, nil
}

// SetTriggers replaces a position's active trigger set.
func (e *Engine) SetTriggers(ctx context.Context, key domain.PositionKey, triggers []domain.Trigger) (domain.Position, error) {
	return e.store.SetTriggers(ctx, key, triggers)
}

// Positions returns snapshots of every tracked position.
func (e *Engine) Positions() []domain.Position {
	return e.store.List()
}

func (e *Engine) startRunnerLocked(key domain.PositionKey) {
	if _, running := e.runners[key]; running {
		return
	}
	ctx, cancel := context.WithCancel(e.runCtx)
	e.runners[key] = cancel
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.removeRunner(key)
		e.runPosition(ctx, key)
	}()
}

func (e *Engine) stopRunner(key domain.PositionKey) {
	e.mu.Lock()
	cancel, ok := e.runners[key]
	e.mu.Unlock()
	if ok {
		cancel()
	}
}

func (e *Engine) removeRunner(key domain.PositionKey) {
	e.mu.Lock()
	if cancel, ok := e.runners[key]; ok {
		cancel()
		delete(e.runners, key)
	}
	e.mu.Unlock()
}

// pipeline returns the per-position execution lock, creating it on first use.
// A waiter left on a lock dropped after close simply re-reads the store and
// finds the position gone.
func (e *Engine) pipeline(key domain.PositionKey) *sync.Mutex {
	e.pipeMu.Lock()
	defer e.pipeMu.Unlock()
	lock, ok := e.pipelines[key]
	if !ok {
		lock = &sync.Mutex{}
		e.pipelines[key] = lock
	}
	return lock
}

func (e *Engine) dropPipeline(key domain.PositionKey) {
	e.pipeMu.Lock()
	delete(e.pipelines, key)
	e.pipeMu.Unlock()
}

func (e *Engine) currentPollCtx() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pollCtx
}

func (e *Engine) notify(ctx context.Context, event domain.PositionEvent) {
	if e.alerts == nil {
		return
	}
	event.ID = uuid.New().String()
	event.At = time.Now().UTC()
	e.alerts.Notify(ctx, event)
}
