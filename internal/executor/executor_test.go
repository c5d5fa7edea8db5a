package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokensniper/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedSubmitter returns one queued response per Submit call.
type scriptedSubmitter struct {
	calls     int
	responses []func() (domain.SwapResult, error)
}

func (s *scriptedSubmitter) Submit(ctx context.Context, req domain.SwapRequest) (domain.SwapResult, error) {
	i := s.calls
	s.calls++
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i]()
}

func success(price, size float64) func() (domain.SwapResult, error) {
	return func() (domain.SwapResult, error) {
		return domain.SwapResult{TxRef: "tx-ok", ConfirmedPrice: price, ConfirmedSize: size}, nil
	}
}

func failure(kind domain.ExecErrorKind) func() (domain.SwapResult, error) {
	return func() (domain.SwapResult, error) {
		return domain.SwapResult{}, &domain.ExecutionError{Kind: kind, Message: "scripted"}
	}
}

func TestExecute_Success(t *testing.T) {
	sub := &scriptedSubmitter{responses: []func() (domain.SwapResult, error){success(2.5, 100)}}
	exec := New(sub, Config{}, testLogger())

	trade, err := exec.Execute(context.Background(), "MintA", domain.VenueAggregator, domain.TradeSideSell, 100, domain.FeeConfig{})
	require.NoError(t, err)

	assert.Equal(t, domain.TradeSideSell, trade.Side)
	assert.Equal(t, 2.5, trade.Price)
	assert.Equal(t, 100.0, trade.Size)
	assert.Equal(t, domain.VenueAggregator, trade.Venue)
	assert.Equal(t, "tx-ok", trade.TxRef)
	assert.False(t, trade.ConfirmedAt.IsZero())
	assert.Equal(t, 1, sub.calls)
}

func TestExecute_RetriesTimeout(t *testing.T) {
	sub := &scriptedSubmitter{responses: []func() (domain.SwapResult, error){
		failure(domain.ExecErrorTimeout),
		failure(domain.ExecErrorTimeout),
		success(2.0, 50),
	}}
	exec := New(sub, Config{MaxRetries: 2, RetryBackoff: time.Millisecond}, testLogger())

	trade, err := exec.Execute(context.Background(), "MintA", domain.VenueBondingCurve, domain.TradeSideSell, 50, domain.FeeConfig{})
	require.NoError(t, err)
	assert.Equal(t, 3, sub.calls)
	assert.Equal(t, "tx-ok", trade.TxRef)
}

func TestExecute_NoRetryOnReject(t *testing.T) {
	for _, kind := range []domain.ExecErrorKind{
		domain.ExecErrorSlippageExceeded,
		domain.ExecErrorInsufficientLiquidity,
		domain.ExecErrorRejected,
	} {
		sub := &scriptedSubmitter{responses: []func() (domain.SwapResult, error){failure(kind)}}
		exec := New(sub, Config{MaxRetries: 3, RetryBackoff: time.Millisecond}, testLogger())

		_, err := exec.Execute(context.Background(), "MintA", domain.VenueAggregator, domain.TradeSideSell, 10, domain.FeeConfig{})
		require.Error(t, err)
		assert.Equal(t, 1, sub.calls, "kind %s must not be retried", kind)

		execErr, ok := domain.AsExecutionError(err)
		require.True(t, ok)
		assert.Equal(t, kind, execErr.Kind)
	}
}

func TestExecute_ExhaustedRetriesReturnLastError(t *testing.T) {
	sub := &scriptedSubmitter{responses: []func() (domain.SwapResult, error){failure(domain.ExecErrorTimeout)}}
	exec := New(sub, Config{MaxRetries: 2, RetryBackoff: time.Millisecond}, testLogger())

	_, err := exec.Execute(context.Background(), "MintA", domain.VenueAggregator, domain.TradeSideSell, 10, domain.FeeConfig{})
	require.Error(t, err)
	assert.Equal(t, 3, sub.calls)

	execErr, ok := domain.AsExecutionError(err)
	require.True(t, ok)
	assert.Equal(t, domain.ExecErrorTimeout, execErr.Kind)
}

func TestExecute_WrapsUnknownErrorAsRejected(t *testing.T) {
	sub := &scriptedSubmitter{responses: []func() (domain.SwapResult, error){
		func() (domain.SwapResult, error) { return domain.SwapResult{}, errors.New("boom") },
	}}
	exec := New(sub, Config{MaxRetries: 3, RetryBackoff: time.Millisecond}, testLogger())

	_, err := exec.Execute(context.Background(), "MintA", domain.VenueAggregator, domain.TradeSideSell, 10, domain.FeeConfig{})
	require.Error(t, err)
	assert.Equal(t, 1, sub.calls)

	execErr, ok := domain.AsExecutionError(err)
	require.True(t, ok)
	assert.Equal(t, domain.ExecErrorRejected, execErr.Kind)
}

func TestExecute_CancelledDuringBackoff(t *testing.T) {
	sub := &scriptedSubmitter{responses: []func() (domain.SwapResult, error){failure(domain.ExecErrorTimeout)}}
	exec := New(sub, Config{MaxRetries: 5, RetryBackoff: time.Hour}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := exec.Execute(ctx, "MintA", domain.VenueAggregator, domain.TradeSideSell, 10, domain.FeeConfig{})
	require.Error(t, err)

	execErr, ok := domain.AsExecutionError(err)
	require.True(t, ok)
	assert.Equal(t, domain.ExecErrorTimeout, execErr.Kind)
}

func TestExecute_RejectsNonPositiveSize(t *testing.T) {
	sub := &scriptedSubmitter{responses: []func() (domain.SwapResult, error){success(1, 1)}}
	exec := New(sub, Config{}, testLogger())

	_, err := exec.Execute(context.Background(), "MintA", domain.VenueAggregator, domain.TradeSideSell, 0, domain.FeeConfig{})
	require.Error(t, err)
	assert.Zero(t, sub.calls)
}
