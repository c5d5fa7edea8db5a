// Package venue resolves which market a mint currently trades on: the early
// bonding curve, or the swap aggregator after graduation. Migration happens
// exactly once and is irreversible, so a mint seen on the aggregator is
// never checked again.
package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"tokensniper/internal/domain"
)

// curveResponse is the wire shape of the curve-state endpoint.
type curveResponse struct {
	// Complete is true once the bonding curve has graduated.
	Complete bool `json:"complete"`
}

// Resolver checks a mint's curve state over HTTP and memoizes migration.
// It is read-only from the engine's perspective and safe for concurrent use.
type Resolver struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger

	mu       sync.RWMutex
	migrated map[string]bool
}

// NewResolver creates a Resolver against the given curve-state API.
func NewResolver(baseURL string, requestTimeout time.Duration, logger *slog.Logger) *Resolver {
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}
	return &Resolver{
		baseURL:  baseURL,
		client:   &http.Client{Timeout: requestTimeout},
		logger:   logger.With(slog.String("component", "venue_resolver")),
		migrated: make(map[string]bool),
	}
}

// Resolve returns the mint's current venue. Transient failures wrap
// domain.ErrResolutionUnknown; the caller defers execution to the next tick.
func (r *Resolver) Resolve(ctx context.Context, mint string) (domain.Venue, error) {
	r.mu.RLock()
	done := r.migrated[mint]
	r.mu.RUnlock()
	if done {
		return domain.VenueAggregator, nil
	}

	endpoint := fmt.Sprintf("%s/v1/curve?mint=%s", r.baseURL, url.QueryEscape(mint))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("venue: build request for %s: %w", mint, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("venue: resolve %s: %v: %w", mint, err, domain.ErrResolutionUnknown)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("venue: resolve %s: status %d: %s: %w",
			mint, resp.StatusCode, string(body), domain.ErrResolutionUnknown)
	}

	var cr curveResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("venue: decode %s: %v: %w", mint, err, domain.ErrResolutionUnknown)
	}

	if cr.Complete {
		r.MarkMigrated(mint)
		return domain.VenueAggregator, nil
	}
	return domain.VenueBondingCurve, nil
}

// MarkMigrated records that a mint has graduated to the aggregator. Called
// on curve-complete responses and by the migration watcher.
func (r *Resolver) MarkMigrated(mint string) {
	r.mu.Lock()
	already := r.migrated[mint]
	r.migrated[mint] = true
	r.mu.Unlock()
	if !already {
		r.logger.Info("mint migrated to aggregator", slog.String("mint", mint))
	}
}

// Compile-time interface check.
var _ domain.VenueResolver = (*Resolver)(nil)
