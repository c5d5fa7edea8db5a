// Package feed implements the price feed adapter over the HTTP price API.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"tokensniper/internal/domain"
)

// priceResponse is the wire shape of the price endpoint.
type priceResponse struct {
	Price float64 `json:"price"`
	// AsOfMs is the provider's observation time in Unix milliseconds.
	AsOfMs int64 `json:"as_of_ms"`
}

// HTTPFeed polls a REST price endpoint per mint. Any transport error,
// non-200 status, decode failure, or timeout surfaces as
// domain.ErrFeedUnavailable; the feed never substitutes stale or zero
// prices. Fresh quotes are written through to the price cache (best effort)
// for surfaces outside the engine loop.
type HTTPFeed struct {
	baseURL string
	client  *http.Client
	cache   domain.PriceCache // may be nil
	logger  *slog.Logger
}

// New creates an HTTPFeed. requestTimeout is a hard cap per request on top
// of whatever deadline the caller's context carries.
func New(baseURL string, requestTimeout time.Duration, cache domain.PriceCache, logger *slog.Logger) *HTTPFeed {
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}
	return &HTTPFeed{
		baseURL: baseURL,
		client:  &http.Client{Timeout: requestTimeout},
		cache:   cache,
		logger:  logger.With(slog.String("component", "price_feed")),
	}
}

// GetPrice fetches the current price for a mint.
func (f *HTTPFeed) GetPrice(ctx context.Context, mint string) (domain.PriceQuote, error) {
	endpoint := fmt.Sprintf("%s/v1/price?mint=%s", f.baseURL, url.QueryEscape(mint))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("feed: build request for %s: %w", mint, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("feed: fetch %s: %v: %w", mint, err, domain.ErrFeedUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.PriceQuote{}, fmt.Errorf("feed: fetch %s: status %d: %s: %w",
			mint, resp.StatusCode, string(body), domain.ErrFeedUnavailable)
	}

	var pr priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("feed: decode %s: %v: %w", mint, err, domain.ErrFeedUnavailable)
	}
	if pr.Price <= 0 {
		return domain.PriceQuote{}, fmt.Errorf("feed: %s: non-positive price %g: %w", mint, pr.Price, domain.ErrFeedUnavailable)
	}

	quote := domain.PriceQuote{
		Price: pr.Price,
		AsOf:  time.UnixMilli(pr.AsOfMs).UTC(),
	}
	if pr.AsOfMs == 0 {
		quote.AsOf = time.Now().UTC()
	}

	if f.cache != nil {
		if cacheErr := f.cache.SetPrice(ctx, mint, quote.Price, quote.AsOf); cacheErr != nil {
			f.logger.DebugContext(ctx, "price cache write failed",
				slog.String("mint", mint),
				slog.String("error", cacheErr.Error()),
			)
		}
	}

	return quote, nil
}

// Compile-time interface check.
var _ domain.PriceFeed = (*HTTPFeed)(nil)
