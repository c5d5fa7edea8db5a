// Package trigger implements the exit-condition evaluator. Evaluation is a
// pure function of a position snapshot, the tick's price, and the clock; the
// store applies the resulting decisions and retires fired triggers so each
// trigger fires at most once.
package trigger

import (
	"math"
	"sort"
	"time"

	"tokensniper/internal/domain"
)

// Exit reasons recorded on decisions, trades, and alerts.
const (
	ReasonTakeProfit   = "take_profit"
	ReasonStopLoss     = "stop_loss"
	ReasonTrailingStop = "trailing_stop"
	ReasonTimeExit     = "time_exit"
	ReasonPartialSell  = "partial_sell"
)

// SellDecision is one sell the engine should execute this tick.
type SellDecision struct {
	// Fraction of the initial quantity to sell, already clamped so the
	// position can never be oversold.
	Fraction float64
	Reason   string
	// Trigger is the fired trigger.
	Trigger domain.Trigger
	// Retire lists trigger IDs to remove from the active set once the sell
	// confirms. A full exit retires every remaining trigger.
	Retire []string
	// FullExit marks a decision that closes the whole position.
	FullExit bool
}

// quantityEps absorbs float residue when deciding whether a position still
// has sellable quantity.
const quantityEps = 1e-9

// Evaluate returns the sells to execute for this tick, in execution order:
// ladder levels in ascending multiplier order first, then at most one
// full-exit trigger. A firing full-exit trigger takes precedence over any
// unreached ladder levels and clears the remaining ladder.
//
// price may be NaN when the feed was unavailable this tick; all price
// comparisons are then false and only time-based triggers can fire.
// Percentage and multiplier math uses the position's fixed entryPrice and
// peakPrice, never the remaining quantity, so partial sells do not distort
// later trigger levels.
func Evaluate(pos domain.Position, price float64, now time.Time) []SellDecision {
	if pos.Status != domain.PositionStatusOpen || pos.InitialQuantity <= 0 {
		return nil
	}

	remainingFraction := pos.RemainingQuantity / pos.InitialQuantity
	if remainingFraction <= quantityEps {
		return nil
	}

	var decisions []SellDecision

	// Ladder levels fire independently, in ascending multiplier order. A
	// tick that jumps several levels fires all of them within the tick.
	for _, level := range reachedLadderLevels(pos, price) {
		fraction := math.Min(level.Fraction, remainingFraction)
		if fraction <= quantityEps {
			break
		}
		remainingFraction -= fraction
		decisions = append(decisions, SellDecision{
			Fraction: fraction,
			Reason:   ReasonPartialSell,
			Trigger:  level,
			Retire:   []string{level.ID},
		})
	}

	// At most one full-exit trigger fires per tick; precedence is fixed:
	// take-profit, stop-loss, trailing-stop, time-based.
	if remainingFraction > quantityEps {
		if fired, ok := firstFullExit(pos, price, now); ok {
			decisions = append(decisions, SellDecision{
				Fraction: remainingFraction,
				Reason:   fullExitReason(fired.Kind),
				Trigger:  fired,
				Retire:   remainingTriggerIDs(pos, decisions),
				FullExit: true,
			})
		}
	}

	return decisions
}

// reachedLadderLevels returns the active partial-sell levels whose multiplier
// the price has reached, sorted by ascending multiplier.
func reachedLadderLevels(pos domain.Position, price float64) []domain.Trigger {
	var levels []domain.Trigger
	for _, t := range pos.Triggers {
		if t.Kind != domain.TriggerPartialSell {
			continue
		}
		if price >= pos.EntryPrice*t.Multiplier {
			levels = append(levels, t)
		}
	}
	sort.Slice(levels, func(i, j int) bool {
		return levels[i].Multiplier < levels[j].Multiplier
	})
	return levels
}

// firstFullExit returns the highest-precedence full-exit trigger whose
// condition holds.
func firstFullExit(pos domain.Position, price float64, now time.Time) (domain.Trigger, bool) {
	order := []domain.TriggerKind{
		domain.TriggerTakeProfit,
		domain.TriggerStopLoss,
		domain.TriggerTrailingStop,
		domain.TriggerTimeBased,
	}
	for _, kind := range order {
		for _, t := range pos.Triggers {
			if t.Kind != kind {
				continue
			}
			if conditionHolds(pos, t, price, now) {
				return t, true
			}
		}
	}
	return domain.Trigger{}, false
}

// conditionHolds checks a single full-exit trigger. The switch is exhaustive
// over the full-exit kinds.
func conditionHolds(pos domain.Position, t domain.Trigger, price float64, now time.Time) bool {
	switch t.Kind {
	case domain.TriggerTakeProfit:
		return price >= pos.EntryPrice*t.Multiplier
	case domain.TriggerStopLoss:
		return price <= pos.EntryPrice*(1-t.Percent)
	case domain.TriggerTrailingStop:
		// Arms only once the peak has been observed above entry.
		if pos.PeakPrice <= pos.EntryPrice {
			return false
		}
		return price <= pos.PeakPrice*(1-t.Percent)
	case domain.TriggerTimeBased:
		return !now.Before(pos.OpenedAt.Add(t.Duration))
	default:
		return false
	}
}

func fullExitReason(kind domain.TriggerKind) string {
	switch kind {
	case domain.TriggerTakeProfit:
		return ReasonTakeProfit
	case domain.TriggerStopLoss:
		return ReasonStopLoss
	case domain.TriggerTrailingStop:
		return ReasonTrailingStop
	case domain.TriggerTimeBased:
		return ReasonTimeExit
	default:
		return string(kind)
	}
}

// remainingTriggerIDs returns every active trigger ID not already retired by
// an earlier decision this tick. A full exit clears all of them, including
// unreached ladder levels.
func remainingTriggerIDs(pos domain.Position, prior []SellDecision) []string {
	retired := make(map[string]bool)
	for _, d := range prior {
		for _, id := range d.Retire {
			retired[id] = true
		}
	}
	var ids []string
	for _, t := range pos.Triggers {
		if !retired[t.ID] {
			ids = append(ids, t.ID)
		}
	}
	return ids
}
