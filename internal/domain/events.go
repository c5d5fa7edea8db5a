package domain

import "time"

// PositionEventType enumerates the outbound events the engine emits to the
// alert sink and event bus.
type PositionEventType string

const (
	EventPositionOpened  PositionEventType = "position_opened"
	EventTriggerFired    PositionEventType = "trigger_fired"
	EventExecutionFailed PositionEventType = "execution_failed"
	EventPositionFrozen  PositionEventType = "position_frozen"
	EventPositionClosed  PositionEventType = "position_closed"
)

// PositionEvent is a fire-and-forget notification about a position. Delivery
// failures are logged and never block the engine loop.
type PositionEvent struct {
	ID     string            `json:"id"`
	Type   PositionEventType `json:"type"`
	Mint   string            `json:"mint"`
	Wallet string            `json:"wallet"`
	// Reason names the fired trigger or the failure kind, depending on Type.
	Reason string `json:"reason,omitempty"`
	Price  float64 `json:"price,omitempty"`
	// Quantity is the sold size for trigger_fired, the remaining quantity
	// otherwise.
	Quantity      float64   `json:"quantity,omitempty"`
	RealizedPnL   float64   `json:"realized_pnl,omitempty"`
	UnrealizedPnL float64   `json:"unrealized_pnl,omitempty"`
	Venue         Venue     `json:"venue,omitempty"`
	TxRef         string    `json:"tx_ref,omitempty"`
	At            time.Time `json:"at"`
}
