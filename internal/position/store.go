// Package position owns position lifecycle and mutation. The Store is the
// only writer of position state; every mutation for a given position is
// serialized, so concurrent evaluation results can never interleave.
package position

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tokensniper/internal/domain"
)

// quantityEps absorbs float residue: a remaining quantity at or below
// eps * initial counts as fully sold.
const quantityEps = 1e-9

// Store is the in-memory map of open positions, keyed by (mint, wallet).
// An optional repository receives write-through persistence; repository
// failures are logged and never fail the mutation.
type Store struct {
	mu      sync.RWMutex
	entries map[domain.PositionKey]*entry

	repo   domain.PositionRepository // may be nil
	logger *slog.Logger
}

// entry pairs a position with its mutation lock. The lock guarantees at
// most one in-flight mutation per position.
type entry struct {
	mu  sync.Mutex
	pos domain.Position
}

// NewStore creates a Store. repo may be nil when durability is not needed
// (tests, dry runs).
func NewStore(repo domain.PositionRepository, logger *slog.Logger) *Store {
	return &Store{
		entries: make(map[domain.PositionKey]*entry),
		repo:    repo,
		logger:  logger.With(slog.String("component", "position_store")),
	}
}

// Restore loads persisted open positions from the repository. Peak price and
// the active trigger set come back exactly as saved.
func (s *Store) Restore(ctx context.Context) (int, error) {
	if s.repo == nil {
		return 0, nil
	}
	positions, err := s.repo.LoadOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("position: restore: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pos := range positions {
		s.entries[pos.Key()] = &entry{pos: pos.Clone()}
	}
	return len(positions), nil
}

// Open creates a position from a confirmed buy. It fails with
// ErrDuplicatePosition when one is already open for the (mint, wallet) pair.
func (s *Store) Open(ctx context.Context, mint, wallet string, entryTrade domain.Trade, triggers []domain.Trigger) (domain.Position, error) {
	if err := domain.ValidateTriggers(triggers); err != nil {
		return domain.Position{}, fmt.Errorf("position: open %s: %w", mint, err)
	}
	if entryTrade.Side != domain.TradeSideBuy {
		return domain.Position{}, fmt.Errorf("position: open %s: entry trade must be a buy", mint)
	}
	if entryTrade.Size <= 0 || entryTrade.Price <= 0 {
		return domain.Position{}, fmt.Errorf("position: open %s: entry size and price must be positive", mint)
	}

	pos := domain.Position{
		ID:                uuid.New().String(),
		Mint:              mint,
		Wallet:            wallet,
		EntryPrice:        entryTrade.Price,
		OpenedAt:          entryTrade.ConfirmedAt,
		InitialQuantity:   entryTrade.Size,
		RemainingQuantity: entryTrade.Size,
		PeakPrice:         entryTrade.Price,
		Triggers:          append([]domain.Trigger(nil), triggers...),
		Trades:            []domain.Trade{entryTrade},
		Status:            domain.PositionStatusOpen,
	}
	if pos.OpenedAt.IsZero() {
		pos.OpenedAt = time.Now().UTC()
	}

	key := pos.Key()
	s.mu.Lock()
	if _, exists := s.entries[key]; exists {
		s.mu.Unlock()
		return domain.Position{}, fmt.Errorf("position: open %s/%s: %w", mint, wallet, domain.ErrDuplicatePosition)
	}
	s.entries[key] = &entry{pos: pos}
	s.mu.Unlock()

	s.persist(ctx, pos)
	return pos.Clone(), nil
}

// UpdatePeak raises the position's peak price if price exceeds it and
// returns a snapshot for evaluation. Peak is monotonically non-decreasing.
func (s *Store) UpdatePeak(ctx context.Context, key domain.PositionKey, price float64) (domain.Position, error) {
	e, err := s.entry(key)
	if err != nil {
		return domain.Position{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if price > e.pos.PeakPrice {
		e.pos.PeakPrice = price
		s.persist(ctx, e.pos)
	}
	return e.pos.Clone(), nil
}

// ApplySell records a confirmed sell: decrements the remaining quantity,
// appends the trade, retires fired triggers, and deletes the position when
// the remaining quantity reaches zero. An oversell attempt returns
// ErrInvariantViolation without changing state.
func (s *Store) ApplySell(ctx context.Context, key domain.PositionKey, trade domain.Trade, retire []string) (domain.Position, bool, error) {
	e, err := s.entry(key)
	if err != nil {
		return domain.Position{}, false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if trade.Side != domain.TradeSideSell {
		return domain.Position{}, false, fmt.Errorf("position: apply sell %s: trade side is %s", key.Mint, trade.Side)
	}
	if trade.Size > e.pos.RemainingQuantity+quantityEps*e.pos.InitialQuantity {
		return domain.Position{}, false, fmt.Errorf(
			"position: apply sell %s: size %g exceeds remaining %g: %w",
			key.Mint, trade.Size, e.pos.RemainingQuantity, domain.ErrInvariantViolation,
		)
	}

	e.pos.RemainingQuantity -= trade.Size
	if e.pos.RemainingQuantity <= quantityEps*e.pos.InitialQuantity {
		e.pos.RemainingQuantity = 0
	}
	e.pos.Trades = append(e.pos.Trades, trade)
	e.pos.MissedTriggers = 0

	if len(retire) > 0 {
		retired := make(map[string]bool, len(retire))
		for _, id := range retire {
			retired[id] = true
		}
		kept := e.pos.Triggers[:0]
		for _, t := range e.pos.Triggers {
			if !retired[t.ID] {
				kept = append(kept, t)
			}
		}
		e.pos.Triggers = kept
	}

	closed := e.pos.Closed()
	if closed {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		s.unpersist(ctx, key)
	} else {
		s.persist(ctx, e.pos)
	}
	return e.pos.Clone(), closed, nil
}

// RecordMissedTrigger bumps the execution-failure counter after a failed
// sell. Quantity, trades, and triggers stay untouched so the trigger is
// re-evaluated next tick.
func (s *Store) RecordMissedTrigger(ctx context.Context, key domain.PositionKey) (domain.Position, error) {
	e, err := s.entry(key)
	if err != nil {
		return domain.Position{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.pos.MissedTriggers++
	s.persist(ctx, e.pos)
	return e.pos.Clone(), nil
}

// Freeze removes a position from active evaluation after an invariant
// violation and flags it for manual review. Frozen positions stay in the
// store and the repository.
func (s *Store) Freeze(ctx context.Context, key domain.PositionKey, reason string) (domain.Position, error) {
	e, err := s.entry(key)
	if err != nil {
		return domain.Position{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.pos.Status = domain.PositionStatusFrozen
	e.pos.FrozenReason = reason
	s.persist(ctx, e.pos)
	return e.pos.Clone(), nil
}

// SetTriggers replaces a position's active trigger set (user-initiated
// modification).
func (s *Store) SetTriggers(ctx context.Context, key domain.PositionKey, triggers []domain.Trigger) (domain.Position, error) {
	if err := domain.ValidateTriggers(triggers); err != nil {
		return domain.Position{}, fmt.Errorf("position: set triggers %s: %w", key.Mint, err)
	}
	e, err := s.entry(key)
	if err != nil {
		return domain.Position{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.pos.Triggers = append([]domain.Trigger(nil), triggers...)
	s.persist(ctx, e.pos)
	return e.pos.Clone(), nil
}

// Get returns a snapshot of one position.
func (s *Store) Get(key domain.PositionKey) (domain.Position, error) {
	e, err := s.entry(key)
	if err != nil {
		return domain.Position{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pos.Clone(), nil
}

// List returns snapshots of every tracked position, open and frozen.
func (s *Store) List() []domain.Position {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]domain.Position, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.pos.Clone())
		e.mu.Unlock()
	}
	return out
}

// Keys returns the keys of every position with open status. Status is read
// under each entry's own lock; the map lock alone does not cover it.
func (s *Store) Keys() []domain.PositionKey {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	keys := make([]domain.PositionKey, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if e.pos.Status == domain.PositionStatusOpen {
			keys = append(keys, e.pos.Key())
		}
		e.mu.Unlock()
	}
	return keys
}

func (s *Store) entry(key domain.PositionKey) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, fmt.Errorf("position: %s/%s: %w", key.Mint, key.Wallet, domain.ErrPositionNotFound)
	}
	return e, nil
}

func (s *Store) persist(ctx context.Context, pos domain.Position) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Save(ctx, pos); err != nil {
		s.logger.WarnContext(ctx, "persist position failed",
			slog.String("mint", pos.Mint),
			slog.String("wallet", pos.Wallet),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Store) unpersist(ctx context.Context, key domain.PositionKey) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Delete(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "delete persisted position failed",
			slog.String("mint", key.Mint),
			slog.String("wallet", key.Wallet),
			slog.String("error", err.Error()),
		)
	}
}
