// Package notify delivers position events to operators. Delivery is
// fire-and-forget: the engine hands an event over and moves on; sender
// failures are logged, never propagated.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tokensniper/internal/domain"
)

// sendTimeout bounds one delivery attempt across all senders.
const sendTimeout = 10 * time.Second

// Sender is one notification channel (Telegram, etc.).
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender.
	Name() string
}

// Notifier implements domain.AlertSink. It filters events by type, formats
// them, and dispatches to every sender on a background goroutine. Events are
// also published to the event bus (when configured) for external dashboards.
type Notifier struct {
	senders []Sender
	allowed map[domain.PositionEventType]bool // empty means all
	bus     domain.EventBus                   // may be nil
	channel string
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. Only events whose type appears in events
// are delivered to senders; an empty list allows everything. busChannel is
// the event bus channel name for published events.
func NewNotifier(senders []Sender, events []string, bus domain.EventBus, busChannel string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.PositionEventType]bool, len(events))
	for _, e := range events {
		allowed[domain.PositionEventType(strings.TrimSpace(e))] = true
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		bus:     bus,
		channel: busChannel,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify dispatches one position event. It returns immediately; delivery
// runs on its own goroutine with its own timeout so a slow sender can never
// block the engine loop.
func (n *Notifier) Notify(ctx context.Context, event domain.PositionEvent) {
	go n.deliver(event)
}

func (n *Notifier) deliver(event domain.PositionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if n.bus != nil {
		if payload, err := json.Marshal(event); err == nil {
			if pubErr := n.bus.Publish(ctx, n.channel, payload); pubErr != nil {
				n.logger.Warn("event bus publish failed",
					slog.String("event", string(event.Type)),
					slog.String("error", pubErr.Error()),
				)
			}
		}
	}

	if len(n.allowed) > 0 && !n.allowed[event.Type] {
		return
	}

	title, message := Format(event)
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.Warn("sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", string(event.Type)),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Format renders a position event as a notification title and body.
func Format(event domain.PositionEvent) (title, message string) {
	short := shortMint(event.Mint)
	var b strings.Builder

	switch event.Type {
	case domain.EventPositionOpened:
		title = fmt.Sprintf("Opened %s", short)
		fmt.Fprintf(&b, "Entry %.9g, quantity %.6g", event.Price, event.Quantity)
	case domain.EventTriggerFired:
		title = fmt.Sprintf("Sold %s (%s)", short, event.Reason)
		fmt.Fprintf(&b, "Sold %.6g at %.9g on %s", event.Quantity, event.Price, event.Venue)
		fmt.Fprintf(&b, "\nRealized PnL: %+.6g", event.RealizedPnL)
	case domain.EventExecutionFailed:
		title = fmt.Sprintf("Sell failed for %s", short)
		fmt.Fprintf(&b, "Kind: %s, size %.6g on %s; will retry next tick", event.Reason, event.Quantity, event.Venue)
	case domain.EventPositionFrozen:
		title = fmt.Sprintf("FROZEN %s", short)
		fmt.Fprintf(&b, "Removed from evaluation, needs manual review: %s", event.Reason)
	case domain.EventPositionClosed:
		title = fmt.Sprintf("Closed %s (%s)", short, event.Reason)
		fmt.Fprintf(&b, "Realized PnL: %+.6g", event.RealizedPnL)
	default:
		title = fmt.Sprintf("%s %s", event.Type, short)
	}

	if event.TxRef != "" {
		fmt.Fprintf(&b, "\nTx: %s", event.TxRef)
	}
	return title, b.String()
}

func shortMint(mint string) string {
	if len(mint) <= 12 {
		return mint
	}
	return mint[:6] + "…" + mint[len(mint)-4:]
}

// Compile-time interface check.
var _ domain.AlertSink = (*Notifier)(nil)
