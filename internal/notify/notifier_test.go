package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokensniper/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSender struct {
	mu     sync.Mutex
	titles []string
}

func (s *fakeSender) Send(ctx context.Context, title, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles = append(s.titles, title)
	return nil
}

func (s *fakeSender) Name() string { return "fake" }

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.titles)
}

type fakeBus struct {
	mu       sync.Mutex
	payloads [][]byte
	channels []string
}

func (b *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels = append(b.channels, channel)
	b.payloads = append(b.payloads, payload)
	return nil
}

func (b *fakeBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.payloads)
}

func TestNotify_DeliversToSender(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier([]Sender{sender}, nil, nil, "", testLogger())

	n.Notify(context.Background(), domain.PositionEvent{
		Type: domain.EventPositionClosed,
		Mint: "So11111111111111111111111111111111111111112",
	})

	require.Eventually(t, func() bool { return sender.count() == 1 },
		time.Second, time.Millisecond)
}

func TestNotify_FiltersByEventType(t *testing.T) {
	sender := &fakeSender{}
	bus := &fakeBus{}
	n := NewNotifier([]Sender{sender}, []string{"position_closed"}, bus, "positions", testLogger())

	n.Notify(context.Background(), domain.PositionEvent{Type: domain.EventTriggerFired, Mint: "MintA"})
	n.Notify(context.Background(), domain.PositionEvent{Type: domain.EventPositionClosed, Mint: "MintA"})

	// Both events reach the bus; only the allowed one reaches the sender.
	require.Eventually(t, func() bool { return bus.count() == 2 },
		time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return sender.count() == 1 },
		time.Second, time.Millisecond)
	assert.Contains(t, sender.titles[0], "Closed")
}

func TestNotify_BusPayloadIsJSON(t *testing.T) {
	bus := &fakeBus{}
	n := NewNotifier(nil, nil, bus, "positions", testLogger())

	n.Notify(context.Background(), domain.PositionEvent{
		ID:     "evt-1",
		Type:   domain.EventTriggerFired,
		Mint:   "MintA",
		Reason: "take_profit",
	})

	require.Eventually(t, func() bool { return bus.count() == 1 },
		time.Second, time.Millisecond)
	assert.Equal(t, "positions", bus.channels[0])

	var decoded domain.PositionEvent
	require.NoError(t, json.Unmarshal(bus.payloads[0], &decoded))
	assert.Equal(t, "evt-1", decoded.ID)
	assert.Equal(t, domain.EventTriggerFired, decoded.Type)
	assert.Equal(t, "take_profit", decoded.Reason)
}

func TestFormat(t *testing.T) {
	mint := "So11111111111111111111111111111111111111112"

	title, msg := Format(domain.PositionEvent{
		Type:     domain.EventPositionOpened,
		Mint:     mint,
		Price:    0.5,
		Quantity: 1000,
	})
	assert.True(t, strings.HasPrefix(title, "Opened So1111"))
	assert.Contains(t, msg, "0.5")

	title, msg = Format(domain.PositionEvent{
		Type:        domain.EventTriggerFired,
		Mint:        mint,
		Reason:      "trailing_stop",
		Price:       2.0,
		Quantity:    250,
		RealizedPnL: 250,
		Venue:       domain.VenueAggregator,
		TxRef:       "tx-123",
	})
	assert.Contains(t, title, "trailing_stop")
	assert.Contains(t, msg, "aggregator")
	assert.Contains(t, msg, "tx-123")

	title, _ = Format(domain.PositionEvent{
		Type:   domain.EventPositionFrozen,
		Mint:   mint,
		Reason: "sell size exceeds remaining",
	})
	assert.Contains(t, title, "FROZEN")
}

func TestShortMint(t *testing.T) {
	assert.Equal(t, "short", shortMint("short"))
	long := "So11111111111111111111111111111111111111112"
	s := shortMint(long)
	assert.True(t, strings.HasPrefix(s, "So1111"))
	assert.True(t, strings.HasSuffix(s, "1112"))
}
