// Package domain defines the core types of the auto-sell engine: positions,
// trades, triggers, venues, and the port interfaces through which the engine
// talks to price feeds, venues, executors, and alert channels.
package domain

import "time"

// PositionStatus tracks whether a position is actively evaluated or frozen.
type PositionStatus string

const (
	PositionStatusOpen PositionStatus = "open"
	// PositionStatusFrozen marks a position removed from evaluation after an
	// invariant violation. Frozen positions require manual review.
	PositionStatusFrozen PositionStatus = "frozen"
)

// PositionKey identifies an open position. At most one position may be open
// per (mint, wallet) pair.
type PositionKey struct {
	Mint   string
	Wallet string
}

// Position is one leveraged-timing position on a newly listed token.
// EntryPrice, OpenedAt, Mint, and Wallet are immutable after creation.
// RemainingQuantity only decreases via confirmed sells; the position is
// removed when it reaches zero. PeakPrice is non-decreasing and is the
// reference for trailing stops.
type Position struct {
	ID                string
	Mint              string
	Wallet            string
	EntryPrice        float64
	OpenedAt          time.Time
	InitialQuantity   float64
	RemainingQuantity float64
	PeakPrice         float64
	Triggers          []Trigger
	Trades            []Trade
	Status            PositionStatus
	FrozenReason      string
	// MissedTriggers counts execution failures since the last confirmed
	// sell. Surfaced in the status API and alerts.
	MissedTriggers int
}

// Key returns the (mint, wallet) identity of the position.
func (p Position) Key() PositionKey {
	return PositionKey{Mint: p.Mint, Wallet: p.Wallet}
}

// Closed reports whether the position has been fully sold.
func (p Position) Closed() bool {
	return p.RemainingQuantity <= 0
}

// Clone returns a deep copy of the position. Stores hand out clones so
// callers can never mutate owned state through a snapshot.
func (p Position) Clone() Position {
	out := p
	if p.Triggers != nil {
		out.Triggers = make([]Trigger, len(p.Triggers))
		copy(out.Triggers, p.Triggers)
	}
	if p.Trades != nil {
		out.Trades = make([]Trade, len(p.Trades))
		copy(out.Trades, p.Trades)
	}
	return out
}

// TriggerByID returns the active trigger with the given ID, if present.
func (p Position) TriggerByID(id string) (Trigger, bool) {
	for _, t := range p.Triggers {
		if t.ID == id {
			return t, true
		}
	}
	return Trigger{}, false
}
