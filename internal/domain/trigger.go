package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TriggerKind enumerates the closed set of trigger variants. The evaluator
// handles every kind exhaustively; an unknown kind is a programming error.
type TriggerKind string

const (
	// TriggerTakeProfit fires when price >= entryPrice * Multiplier.
	TriggerTakeProfit TriggerKind = "take_profit"
	// TriggerStopLoss fires when price <= entryPrice * (1 - Percent).
	TriggerStopLoss TriggerKind = "stop_loss"
	// TriggerTrailingStop fires when price <= peakPrice * (1 - Percent),
	// once the peak has risen above the entry price.
	TriggerTrailingStop TriggerKind = "trailing_stop"
	// TriggerTimeBased fires when now >= openedAt + Duration, independent
	// of price.
	TriggerTimeBased TriggerKind = "time_based"
	// TriggerPartialSell is one ladder level: sells Fraction of the
	// initial quantity when price first reaches entryPrice * Multiplier.
	TriggerPartialSell TriggerKind = "partial_sell"
)

// Trigger is one active exit condition on a position. It is a tagged
// variant: which parameter fields are meaningful depends on Kind. Every
// trigger fires at most once and is retired from the active set when it does.
type Trigger struct {
	ID   string      `json:"id"`
	Kind TriggerKind `json:"kind"`

	// Multiplier of the entry price (take_profit, partial_sell).
	Multiplier float64 `json:"multiplier,omitempty"`
	// Percent drop as a fraction, e.g. 0.20 for 20% (stop_loss, trailing_stop).
	Percent float64 `json:"percent,omitempty"`
	// Duration after open (time_based).
	Duration time.Duration `json:"duration,omitempty"`
	// Fraction of the initial quantity to sell (partial_sell).
	Fraction float64 `json:"fraction,omitempty"`
}

// FullExit reports whether this trigger kind sells the whole remaining
// quantity when it fires.
func (t Trigger) FullExit() bool {
	return t.Kind != TriggerPartialSell
}

// Validate checks that the trigger's parameters are coherent for its kind.
func (t Trigger) Validate() error {
	switch t.Kind {
	case TriggerTakeProfit:
		if t.Multiplier <= 1 {
			return fmt.Errorf("take_profit multiplier must be > 1, got %g", t.Multiplier)
		}
	case TriggerStopLoss:
		if t.Percent <= 0 || t.Percent >= 1 {
			return fmt.Errorf("stop_loss percent must be in (0, 1), got %g", t.Percent)
		}
	case TriggerTrailingStop:
		if t.Percent <= 0 || t.Percent >= 1 {
			return fmt.Errorf("trailing_stop percent must be in (0, 1), got %g", t.Percent)
		}
	case TriggerTimeBased:
		if t.Duration <= 0 {
			return fmt.Errorf("time_based duration must be positive, got %s", t.Duration)
		}
	case TriggerPartialSell:
		if t.Multiplier <= 1 {
			return fmt.Errorf("partial_sell multiplier must be > 1, got %g", t.Multiplier)
		}
		if t.Fraction <= 0 || t.Fraction > 1 {
			return fmt.Errorf("partial_sell fraction must be in (0, 1], got %g", t.Fraction)
		}
	default:
		return fmt.Errorf("unknown trigger kind %q", t.Kind)
	}
	return nil
}

// NewTakeProfit creates a take-profit trigger at the given entry multiple.
func NewTakeProfit(multiplier float64) Trigger {
	return Trigger{ID: uuid.New().String(), Kind: TriggerTakeProfit, Multiplier: multiplier}
}

// NewStopLoss creates a stop-loss trigger at the given drop from entry.
func NewStopLoss(percent float64) Trigger {
	return Trigger{ID: uuid.New().String(), Kind: TriggerStopLoss, Percent: percent}
}

// NewTrailingStop creates a trailing stop at the given drop from peak.
func NewTrailingStop(percent float64) Trigger {
	return Trigger{ID: uuid.New().String(), Kind: TriggerTrailingStop, Percent: percent}
}

// NewTimeBased creates a time-based full exit after the given hold duration.
func NewTimeBased(d time.Duration) Trigger {
	return Trigger{ID: uuid.New().String(), Kind: TriggerTimeBased, Duration: d}
}

// NewPartialSellLevel creates one ladder level selling fraction of the
// initial quantity at the given entry multiple.
func NewPartialSellLevel(multiplier, fraction float64) Trigger {
	return Trigger{ID: uuid.New().String(), Kind: TriggerPartialSell, Multiplier: multiplier, Fraction: fraction}
}

// ValidateTriggers validates a full trigger set, including the constraint
// that ladder fractions must not exceed the whole position.
func ValidateTriggers(triggers []Trigger) error {
	var ladderTotal float64
	for _, t := range triggers {
		if err := t.Validate(); err != nil {
			return err
		}
		if t.Kind == TriggerPartialSell {
			ladderTotal += t.Fraction
		}
	}
	if ladderTotal > 1+1e-9 {
		return fmt.Errorf("partial_sell ladder fractions sum to %g, exceeding the position", ladderTotal)
	}
	return nil
}
