package trigger

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokensniper/internal/domain"
)

func openPosition(triggers ...domain.Trigger) domain.Position {
	return domain.Position{
		ID:                "pos-1",
		Mint:              "MintA",
		Wallet:            "WalletA",
		EntryPrice:        1.0,
		OpenedAt:          time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		InitialQuantity:   1000,
		RemainingQuantity: 1000,
		PeakPrice:         1.0,
		Triggers:          triggers,
		Status:            domain.PositionStatusOpen,
	}
}

func TestEvaluate_TakeProfitFires(t *testing.T) {
	tp := domain.NewTakeProfit(2.0)
	pos := openPosition(tp)

	decisions := Evaluate(pos, 2.0, pos.OpenedAt.Add(time.Minute))
	require.Len(t, decisions, 1)

	d := decisions[0]
	assert.Equal(t, ReasonTakeProfit, d.Reason)
	assert.True(t, d.FullExit)
	assert.InDelta(t, 1.0, d.Fraction, 1e-12)
	assert.Equal(t, []string{tp.ID}, d.Retire)
}

func TestEvaluate_TakeProfitBelowThreshold(t *testing.T) {
	pos := openPosition(domain.NewTakeProfit(2.0))
	decisions := Evaluate(pos, 1.99, pos.OpenedAt.Add(time.Minute))
	assert.Empty(t, decisions)
}

func TestEvaluate_StopLossFires(t *testing.T) {
	pos := openPosition(domain.NewStopLoss(0.30))

	assert.Empty(t, Evaluate(pos, 0.71, pos.OpenedAt.Add(time.Minute)))

	decisions := Evaluate(pos, 0.70, pos.OpenedAt.Add(time.Minute))
	require.Len(t, decisions, 1)
	assert.Equal(t, ReasonStopLoss, decisions[0].Reason)
	assert.True(t, decisions[0].FullExit)
}

func TestEvaluate_TrailingStopArmsOnlyAbovePeakEntry(t *testing.T) {
	pos := openPosition(domain.NewTrailingStop(0.20))

	// Peak never rose above entry: a drop is not a trailing stop.
	assert.Empty(t, Evaluate(pos, 0.5, pos.OpenedAt.Add(time.Minute)))

	// Peak at 10x, price retraces to 8x: exactly the 20% retrace boundary.
	pos.PeakPrice = 10.0
	decisions := Evaluate(pos, 8.0, pos.OpenedAt.Add(time.Minute))
	require.Len(t, decisions, 1)
	assert.Equal(t, ReasonTrailingStop, decisions[0].Reason)

	// Above the retrace threshold nothing fires.
	assert.Empty(t, Evaluate(pos, 8.01, pos.OpenedAt.Add(time.Minute)))
}

func TestEvaluate_TimeBasedFiresAtDeadline(t *testing.T) {
	pos := openPosition(domain.NewTimeBased(time.Hour))

	assert.Empty(t, Evaluate(pos, 1.0, pos.OpenedAt.Add(time.Hour-time.Second)))

	decisions := Evaluate(pos, 1.0, pos.OpenedAt.Add(time.Hour))
	require.Len(t, decisions, 1)
	assert.Equal(t, ReasonTimeExit, decisions[0].Reason)
	assert.True(t, decisions[0].FullExit)
}

func TestEvaluate_LadderFiresAscendingWithinOneTick(t *testing.T) {
	l1 := domain.NewPartialSellLevel(2.0, 0.25)
	l2 := domain.NewPartialSellLevel(5.0, 0.25)
	l3 := domain.NewPartialSellLevel(10.0, 0.50)
	// Deliberately unsorted.
	pos := openPosition(l3, l1, l2)

	// A gap jump straight to 12x fires every level, lowest multiplier first.
	decisions := Evaluate(pos, 12.0, pos.OpenedAt.Add(time.Minute))
	require.Len(t, decisions, 3)

	assert.Equal(t, l1.ID, decisions[0].Trigger.ID)
	assert.Equal(t, l2.ID, decisions[1].Trigger.ID)
	assert.Equal(t, l3.ID, decisions[2].Trigger.ID)
	for _, d := range decisions {
		assert.Equal(t, ReasonPartialSell, d.Reason)
		assert.False(t, d.FullExit)
	}
	assert.InDelta(t, 0.25, decisions[0].Fraction, 1e-12)
	assert.InDelta(t, 0.25, decisions[1].Fraction, 1e-12)
	assert.InDelta(t, 0.50, decisions[2].Fraction, 1e-12)
}

func TestEvaluate_LadderPartialThenHold(t *testing.T) {
	l1 := domain.NewPartialSellLevel(2.0, 0.25)
	l2 := domain.NewPartialSellLevel(5.0, 0.25)
	pos := openPosition(l1, l2)

	decisions := Evaluate(pos, 2.5, pos.OpenedAt.Add(time.Minute))
	require.Len(t, decisions, 1)
	assert.Equal(t, l1.ID, decisions[0].Trigger.ID)
	assert.InDelta(t, 0.25, decisions[0].Fraction, 1e-12)
}

func TestEvaluate_LadderClampsToRemaining(t *testing.T) {
	level := domain.NewPartialSellLevel(2.0, 0.50)
	pos := openPosition(level)
	pos.RemainingQuantity = 300 // 30% of initial left

	decisions := Evaluate(pos, 3.0, pos.OpenedAt.Add(time.Minute))
	require.Len(t, decisions, 1)
	assert.InDelta(t, 0.30, decisions[0].Fraction, 1e-12)
}

func TestEvaluate_LadderThenFullExitSameTick(t *testing.T) {
	level := domain.NewPartialSellLevel(2.0, 0.25)
	tp := domain.NewTakeProfit(3.0)
	sl := domain.NewStopLoss(0.5)
	pos := openPosition(level, tp, sl)

	decisions := Evaluate(pos, 3.5, pos.OpenedAt.Add(time.Minute))
	require.Len(t, decisions, 2)

	assert.Equal(t, ReasonPartialSell, decisions[0].Reason)
	assert.InDelta(t, 0.25, decisions[0].Fraction, 1e-12)

	full := decisions[1]
	assert.Equal(t, ReasonTakeProfit, full.Reason)
	assert.True(t, full.FullExit)
	assert.InDelta(t, 0.75, full.Fraction, 1e-12)
	// The full exit retires everything the ladder did not already retire,
	// the untouched stop-loss included.
	assert.ElementsMatch(t, []string{tp.ID, sl.ID}, full.Retire)
}

func TestEvaluate_FullExitClearsUnreachedLadder(t *testing.T) {
	level := domain.NewPartialSellLevel(5.0, 0.25)
	sl := domain.NewStopLoss(0.30)
	pos := openPosition(level, sl)

	decisions := Evaluate(pos, 0.6, pos.OpenedAt.Add(time.Minute))
	require.Len(t, decisions, 1)
	assert.Equal(t, ReasonStopLoss, decisions[0].Reason)
	assert.ElementsMatch(t, []string{level.ID, sl.ID}, decisions[0].Retire)
}

func TestEvaluate_TakeProfitPrecedesTrailingStop(t *testing.T) {
	tp := domain.NewTakeProfit(2.0)
	ts := domain.NewTrailingStop(0.20)
	pos := openPosition(tp, ts)
	pos.PeakPrice = 3.0

	// 2.1x satisfies the take-profit and sits below the 2.4x trailing
	// threshold; exactly one full exit fires and it is the take-profit.
	decisions := Evaluate(pos, 2.1, pos.OpenedAt.Add(time.Minute))
	require.Len(t, decisions, 1)
	assert.Equal(t, ReasonTakeProfit, decisions[0].Reason)
}

func TestEvaluate_NaNPriceOnlyTimeBasedFires(t *testing.T) {
	tb := domain.NewTimeBased(time.Hour)
	pos := openPosition(
		domain.NewTakeProfit(2.0),
		domain.NewStopLoss(0.10),
		domain.NewTrailingStop(0.10),
		domain.NewPartialSellLevel(1.5, 0.25),
		tb,
	)
	pos.PeakPrice = 5.0

	nan := math.NaN()
	assert.Empty(t, Evaluate(pos, nan, pos.OpenedAt.Add(time.Minute)))

	decisions := Evaluate(pos, nan, pos.OpenedAt.Add(2*time.Hour))
	require.Len(t, decisions, 1)
	assert.Equal(t, ReasonTimeExit, decisions[0].Reason)
	assert.Equal(t, tb.ID, decisions[0].Trigger.ID)
}

func TestEvaluate_FrozenOrEmptyPosition(t *testing.T) {
	pos := openPosition(domain.NewTakeProfit(2.0))
	pos.Status = domain.PositionStatusFrozen
	assert.Empty(t, Evaluate(pos, 10.0, pos.OpenedAt.Add(time.Minute)))

	pos = openPosition(domain.NewTakeProfit(2.0))
	pos.RemainingQuantity = 0
	assert.Empty(t, Evaluate(pos, 10.0, pos.OpenedAt.Add(time.Minute)))
}
