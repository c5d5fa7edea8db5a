package engine

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"tokensniper/internal/domain"
	"tokensniper/internal/position"
	"tokensniper/internal/trigger"
)

// runPosition is one position's task: tick on the shared drift-free grid
// until the position closes, freezes, or the engine shuts down. The whole
// pipeline for this position runs on this goroutine, so no two evaluations
// for the same position ever overlap.
func (e *Engine) runPosition(ctx context.Context, key domain.PositionKey) {
	logger := e.logger.With(slog.String("mint", key.Mint), slog.String("wallet", key.Wallet))
	logger.InfoContext(ctx, "position runner started")

	sched := newSchedule(time.Now(), e.cfg.PollInterval)
	for {
		wait := time.Until(sched.next(time.Now()))
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "position runner cancelled")
			return
		case <-time.After(wait):
		}

		if e.State() != StateRunning {
			// Paused: skip the tick, keep the grid.
			continue
		}

		done, err := e.tick(ctx, key, logger)
		switch {
		case done:
			logger.InfoContext(ctx, "position runner finished")
			return
		case errors.Is(err, domain.ErrInvariantViolation):
			// Fatal to this position only; it has been frozen.
			logger.ErrorContext(ctx, "position frozen after invariant violation",
				slog.String("error", err.Error()),
			)
			return
		case errors.Is(err, domain.ErrPositionNotFound):
			return
		case err != nil:
			logger.WarnContext(ctx, "tick failed, retrying next tick",
				slog.String("error", err.Error()),
			)
		}
	}
}

// tick runs one poll → evaluate → execute → mutate cycle. It returns
// done=true when the position has closed or left active evaluation.
func (e *Engine) tick(ctx context.Context, key domain.PositionKey, logger *slog.Logger) (done bool, err error) {
	price, priceOK := e.fetchPrice(ctx, key.Mint, logger)

	var pos domain.Position
	if priceOK {
		pos, err = e.store.UpdatePeak(ctx, key, price)
	} else {
		// No price this tick: price-dependent triggers are skipped, but a
		// due time-based exit still runs. NaN makes every price comparison
		// in the evaluator false.
		price = math.NaN()
		pos, err = e.store.Get(key)
	}
	if err != nil {
		return true, err
	}
	if pos.Status != domain.PositionStatusOpen {
		return true, nil
	}

	decisions := trigger.Evaluate(pos, price, time.Now().UTC())
	if len(decisions) == 0 {
		return false, nil
	}

	// The execute phase is serialized per position with manual closes, so
	// a firing trigger and a CloseAll can never submit sells concurrently.
	lock := e.pipeline(key)
	lock.Lock()
	defer lock.Unlock()

	for _, decision := range decisions {
		done, executed, err := e.executeDecision(ctx, key, decision, logger)
		if done || err != nil {
			return done, err
		}
		if !executed {
			// A failed resolution or sell invalidates the fractions of the
			// remaining decisions. Drop them; the next tick re-evaluates
			// everything from fresh state.
			return false, nil
		}
	}
	return false, nil
}

// fetchPrice polls the feed under the request semaphore with a bounded
// timeout. A failure is reported as not-OK; the caller never sees a stale or
// zero price in its place.
func (e *Engine) fetchPrice(ctx context.Context, mint string, logger *slog.Logger) (float64, bool) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return 0, false
	}
	defer e.sem.Release(1)

	pollCtx, cancel := context.WithTimeout(e.currentPollCtx(), e.cfg.FeedTimeout)
	defer cancel()

	quote, err := e.feed.GetPrice(pollCtx, mint)
	if err != nil {
		logger.DebugContext(ctx, "price unavailable, skipping price triggers this tick",
			slog.String("error", err.Error()),
		)
		return 0, false
	}
	return quote.Price, true
}

// executeDecision resolves the venue, submits the sell, and applies the
// confirmed trade. A failed resolution or sell leaves the position untouched
// and its triggers active, and reports executed=false so the tick stops.
func (e *Engine) executeDecision(ctx context.Context, key domain.PositionKey, decision trigger.SellDecision, logger *slog.Logger) (done bool, executed bool, err error) {
	pos, err := e.store.Get(key)
	if err != nil {
		return true, false, err
	}

	var size float64
	if decision.FullExit {
		size = pos.RemainingQuantity
	} else {
		size = math.Min(decision.Fraction*pos.InitialQuantity, pos.RemainingQuantity)
	}
	if size <= 0 {
		return pos.Closed(), true, nil
	}

	venue, err := e.resolveVenue(ctx, key.Mint)
	if err != nil {
		// Transient: defer this and the tick's remaining decisions.
		logger.WarnContext(ctx, "venue resolution unknown, deferring sell",
			slog.String("error", err.Error()),
		)
		return false, false, nil
	}

	trade, err := e.executeSell(ctx, key.Mint, venue, size)
	if err != nil {
		kind := "unknown"
		if execErr, ok := domain.AsExecutionError(err); ok {
			kind = string(execErr.Kind)
		}
		logger.WarnContext(ctx, "sell execution failed, trigger stays active",
			slog.String("reason", decision.Reason),
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
		if _, missErr := e.store.RecordMissedTrigger(ctx, key); missErr != nil {
			return true, false, missErr
		}
		e.notify(ctx, domain.PositionEvent{
			Type:     domain.EventExecutionFailed,
			Mint:     key.Mint,
			Wallet:   key.Wallet,
			Reason:   kind,
			Quantity: size,
			Venue:    venue,
		})
		return false, false, nil
	}

	updated, closed, err := e.store.ApplySell(ctx, key, trade, decision.Retire)
	if err != nil {
		if errors.Is(err, domain.ErrInvariantViolation) {
			frozen, freezeErr := e.store.Freeze(ctx, key, err.Error())
			if freezeErr == nil {
				e.notify(ctx, domain.PositionEvent{
					Type:     domain.EventPositionFrozen,
					Mint:     key.Mint,
					Wallet:   key.Wallet,
					Reason:   err.Error(),
					Quantity: frozen.RemainingQuantity,
				})
			}
		}
		return true, false, err
	}

	e.notify(ctx, domain.PositionEvent{
		Type:          domain.EventTriggerFired,
		Mint:          key.Mint,
		Wallet:        key.Wallet,
		Reason:        decision.Reason,
		Price:         trade.Price,
		Quantity:      trade.Size,
		RealizedPnL:   position.Realized(updated),
		UnrealizedPnL: position.Unrealized(updated, trade.Price),
		Venue:         trade.Venue,
		TxRef:         trade.TxRef,
	})

	if closed {
		e.notify(ctx, domain.PositionEvent{
			Type:        domain.EventPositionClosed,
			Mint:        key.Mint,
			Wallet:      key.Wallet,
			Reason:      decision.Reason,
			Price:       trade.Price,
			RealizedPnL: position.Realized(updated),
		})
		e.dropPipeline(key)
		return true, true, nil
	}
	return false, true, nil
}

// resolveVenue re-checks venue placement under the request semaphore.
// Resolution is fresh on every sell; selling on a stale venue fails outright.
func (e *Engine) resolveVenue(ctx context.Context, mint string) (domain.Venue, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer e.sem.Release(1)

	rctx, cancel := context.WithTimeout(ctx, e.cfg.FeedTimeout)
	defer cancel()
	return e.resolver.Resolve(rctx, mint)
}

// executeSell submits one sell. The execution context is detached from
// engine cancellation: a submission in flight is always awaited to
// completion or timeout, even during shutdown.
func (e *Engine) executeSell(ctx context.Context, mint string, venue domain.Venue, size float64) (domain.Trade, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return domain.Trade{}, err
	}
	defer e.sem.Release(1)

	execCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.ExecTimeout)
	defer cancel()
	return e.executor.Execute(execCtx, mint, venue, domain.TradeSideSell, size, e.cfg.Fees)
}
