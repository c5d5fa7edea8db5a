// Package executor submits trades through the external swap-submission
// interface and classifies failures. Transient failures are retried with
// backoff; on-chain rejects surface immediately so the engine can leave the
// position untouched and re-evaluate next tick.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tokensniper/internal/domain"
)

// Config holds retry behavior for trade submission.
type Config struct {
	// MaxRetries is the number of additional attempts after the first
	// submission fails with a transient error.
	MaxRetries int
	// RetryBackoff is the initial delay before a retry; it doubles per
	// attempt.
	RetryBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 2 * time.Second
	}
	return c
}

// Executor implements domain.TradeExecutor over a SwapSubmitter.
type Executor struct {
	submitter domain.SwapSubmitter
	cfg       Config
	logger    *slog.Logger
}

// New creates an Executor.
func New(submitter domain.SwapSubmitter, cfg Config, logger *slog.Logger) *Executor {
	return &Executor{
		submitter: submitter,
		cfg:       cfg.withDefaults(),
		logger:    logger.With(slog.String("component", "trade_executor")),
	}
}

// Execute submits the trade, retrying transient failures up to the
// configured bound. On-chain rejects (slippage exceeded, insufficient
// liquidity, rejected) are never retried: re-submitting a reject burns fees
// without changing the outcome.
func (e *Executor) Execute(ctx context.Context, mint string, venue domain.Venue, side domain.TradeSide, size float64, fees domain.FeeConfig) (domain.Trade, error) {
	if size <= 0 {
		return domain.Trade{}, fmt.Errorf("executor: %s %s: non-positive size %g", side, mint, size)
	}

	req := domain.SwapRequest{
		Mint:  mint,
		Venue: venue,
		Side:  side,
		Size:  size,
		Fees:  fees,
	}

	backoff := e.cfg.RetryBackoff
	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return domain.Trade{}, &domain.ExecutionError{
					Kind:    domain.ExecErrorTimeout,
					Message: fmt.Sprintf("%s %s: %v", side, mint, ctx.Err()),
				}
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		result, err := e.submitter.Submit(ctx, req)
		if err == nil {
			return domain.Trade{
				Side:        side,
				Size:        result.ConfirmedSize,
				Price:       result.ConfirmedPrice,
				Venue:       venue,
				TxRef:       result.TxRef,
				ConfirmedAt: time.Now().UTC(),
			}, nil
		}
		lastErr = err

		execErr, ok := domain.AsExecutionError(err)
		if !ok {
			execErr = &domain.ExecutionError{Kind: domain.ExecErrorRejected, Message: err.Error()}
			lastErr = execErr
		}
		if !execErr.Transient() {
			return domain.Trade{}, lastErr
		}

		e.logger.WarnContext(ctx, "transient execution failure, retrying",
			slog.String("mint", mint),
			slog.String("side", string(side)),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}

	return domain.Trade{}, lastErr
}

// Compile-time interface check.
var _ domain.TradeExecutor = (*Executor)(nil)
