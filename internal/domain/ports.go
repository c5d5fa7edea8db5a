package domain

import (
	"context"
	"time"
)

// PriceQuote is one price observation from the feed.
type PriceQuote struct {
	Price float64
	AsOf  time.Time
}

// PriceFeed returns the current price for a mint. Implementations must not
// block beyond a bounded timeout; on timeout or transport error they return
// an error wrapping ErrFeedUnavailable rather than stale data.
type PriceFeed interface {
	GetPrice(ctx context.Context, mint string) (PriceQuote, error)
}

// VenueResolver reports where a mint currently trades. Resolution is
// re-checked on every sell because execution on the wrong venue fails
// outright. Transient failures wrap ErrResolutionUnknown.
type VenueResolver interface {
	Resolve(ctx context.Context, mint string) (Venue, error)
}

// SwapSubmitter is the external swap-submission interface. Venue-specific
// transaction construction happens behind it. Failures are classified
// *ExecutionError values.
type SwapSubmitter interface {
	Submit(ctx context.Context, req SwapRequest) (SwapResult, error)
}

// TradeExecutor submits a buy/sell through the resolved venue and returns a
// confirmed trade record. It retries transient failures with backoff but
// never retries on-chain rejects.
type TradeExecutor interface {
	Execute(ctx context.Context, mint string, venue Venue, side TradeSide, size float64, fees FeeConfig) (Trade, error)
}

// AlertSink receives position events. Notify is fire-and-forget: it must
// return promptly and never block the engine loop.
type AlertSink interface {
	Notify(ctx context.Context, event PositionEvent)
}

// PositionRepository persists open position state across restarts. Reload
// must restore peakPrice and the active trigger set exactly.
type PositionRepository interface {
	Save(ctx context.Context, pos Position) error
	Delete(ctx context.Context, key PositionKey) error
	LoadOpen(ctx context.Context) ([]Position, error)
}

// PriceCache provides fast access to the latest observed prices for
// surfaces outside the engine loop (dashboards, status API).
type PriceCache interface {
	SetPrice(ctx context.Context, mint string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, mint string) (float64, time.Time, error)
}

// EventBus publishes position events for external consumers.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}
