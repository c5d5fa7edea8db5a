package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	watcherHandshakeTimeout = 15 * time.Second
	watcherPongWait         = 60 * time.Second
	watcherPingPeriod       = (watcherPongWait * 9) / 10
	watcherWriteWait        = 10 * time.Second
	watcherReconnectDelay   = 2 * time.Second
)

// migrationEvent is one message from the migration stream.
type migrationEvent struct {
	Event string `json:"event"`
	Mint  string `json:"mint"`
}

// MigrationWatcher subscribes to the migration event stream and marks mints
// migrated ahead of the next poll, so sells after graduation route to the
// aggregator without waiting for an HTTP re-check. It reconnects with a
// fixed delay on disconnect.
type MigrationWatcher struct {
	wsURL    string
	resolver *Resolver
	logger   *slog.Logger
}

// NewMigrationWatcher creates a watcher feeding the given resolver.
func NewMigrationWatcher(wsURL string, resolver *Resolver, logger *slog.Logger) *MigrationWatcher {
	return &MigrationWatcher{
		wsURL:    wsURL,
		resolver: resolver,
		logger:   logger.With(slog.String("component", "migration_watcher")),
	}
}

// Run connects and consumes migration events until ctx is cancelled.
func (w *MigrationWatcher) Run(ctx context.Context) error {
	if w.wsURL == "" {
		w.logger.Info("no migration stream configured, watcher idle")
		<-ctx.Done()
		return ctx.Err()
	}

	for {
		if err := w.runConnection(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn("migration stream disconnected, reconnecting",
				slog.String("error", err.Error()),
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(watcherReconnectDelay):
		}
	}
}

func (w *MigrationWatcher) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: watcherHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("venue: dial migration stream: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(watcherPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(watcherPongWait))
		return nil
	})

	// Close the connection when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(watcherPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				deadline := time.Now().Add(watcherWriteWait)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	w.logger.Info("migration stream connected", slog.String("url", w.wsURL))

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("venue: read migration stream: %w", err)
		}

		var evt migrationEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			w.logger.Debug("unparseable migration message",
				slog.String("error", err.Error()),
			)
			continue
		}
		if evt.Event == "migrated" && evt.Mint != "" {
			w.resolver.MarkMigrated(evt.Mint)
		}
	}
}
