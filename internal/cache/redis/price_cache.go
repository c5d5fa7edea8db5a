package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"tokensniper/internal/domain"
)

// priceTTL expires cached prices well past the polling interval; a price
// older than this is useless to any consumer.
const priceTTL = 10 * time.Minute

// PriceCache implements domain.PriceCache using Redis hashes. Each mint's
// latest price is stored at key "price:{mint}" with fields "price" and "ts"
// (Unix nanoseconds).
type PriceCache struct {
	client *Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{client: c}
}

func priceKey(mint string) string {
	return "price:" + mint
}

// SetPrice stores the latest observed price for a mint.
func (pc *PriceCache) SetPrice(ctx context.Context, mint string, price float64, ts time.Time) error {
	rdb := pc.client.Underlying()
	key := priceKey(mint)
	fields := map[string]interface{}{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", mint, err)
	}
	if err := rdb.Expire(ctx, key, priceTTL).Err(); err != nil {
		return fmt.Errorf("redis: expire price %s: %w", mint, err)
	}
	return nil
}

// GetPrice retrieves the latest observed price for a mint. It returns
// domain.ErrFeedUnavailable when no price is cached; callers must not treat
// that as a zero price.
func (pc *PriceCache) GetPrice(ctx context.Context, mint string) (float64, time.Time, error) {
	vals, err := pc.client.Underlying().HGetAll(ctx, priceKey(mint)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", mint, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, fmt.Errorf("redis: no cached price for %s: %w", mint, domain.ErrFeedUnavailable)
	}

	price, err := strconv.ParseFloat(vals["price"], 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse price %s: %w", mint, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", mint, err)
	}
	return price, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
