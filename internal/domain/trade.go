package domain

import "time"

// TradeSide is the direction of a confirmed swap.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// Venue identifies where a mint currently trades. A token starts on the
// bonding curve and migrates to the aggregator exactly once, irreversibly.
type Venue string

const (
	VenueBondingCurve Venue = "bonding_curve"
	VenueAggregator   Venue = "aggregator"
)

// Trade is an immutable record of a confirmed swap belonging to a position.
type Trade struct {
	Side        TradeSide
	Size        float64
	Price       float64
	Venue       Venue
	TxRef       string
	ConfirmedAt time.Time
}

// FeeConfig carries the execution parameters passed through to the swap
// submitter on every trade.
type FeeConfig struct {
	SlippageBps         int
	PriorityFeeLamports uint64
	UseBundle           bool
}

// SwapRequest is the executor's order to the external swap submitter.
type SwapRequest struct {
	Mint  string
	Venue Venue
	Side  TradeSide
	// Size is in token base units.
	Size float64
	Fees FeeConfig
}

// SwapResult is a confirmed swap as reported by the submitter.
type SwapResult struct {
	TxRef          string
	ConfirmedPrice float64
	ConfirmedSize  float64
}
