package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"tokensniper/internal/domain"
	"tokensniper/internal/engine"
	"tokensniper/internal/position"
)

// PositionHandler exposes position CRUD and P&L over the ops API. Opening
// and closing through it goes through the same engine paths as automated
// trigger firing, so persistence, events, and alerts behave identically.
type PositionHandler struct {
	engine *engine.Engine
	store  *position.Store
	prices domain.PriceCache
	logger *slog.Logger
}

// NewPositionHandler creates a PositionHandler. prices may be nil when the
// cache is disabled; P&L then reports realized figures only.
func NewPositionHandler(eng *engine.Engine, store *position.Store, prices domain.PriceCache, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		engine: eng,
		store:  store,
		prices: prices,
		logger: logger.With(slog.String("component", "position_handler")),
	}
}

// List returns every tracked position, frozen ones included.
func (h *PositionHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.List())
}

// triggerRequest is the wire form of one trigger. Durations come in as
// milliseconds so clients never deal with Go duration encoding.
type triggerRequest struct {
	Kind       domain.TriggerKind `json:"kind"`
	Multiplier float64            `json:"multiplier,omitempty"`
	Percent    float64            `json:"percent,omitempty"`
	DurationMs int64              `json:"duration_ms,omitempty"`
	Fraction   float64            `json:"fraction,omitempty"`
}

func (tr triggerRequest) toDomain() (domain.Trigger, error) {
	switch tr.Kind {
	case domain.TriggerTakeProfit:
		return domain.NewTakeProfit(tr.Multiplier), nil
	case domain.TriggerStopLoss:
		return domain.NewStopLoss(tr.Percent), nil
	case domain.TriggerTrailingStop:
		return domain.NewTrailingStop(tr.Percent), nil
	case domain.TriggerTimeBased:
		return domain.NewTimeBased(time.Duration(tr.DurationMs) * time.Millisecond), nil
	case domain.TriggerPartialSell:
		return domain.NewPartialSellLevel(tr.Multiplier, tr.Fraction), nil
	default:
		return domain.Trigger{}, fmt.Errorf("unknown trigger kind %q", tr.Kind)
	}
}

func toDomainTriggers(reqs []triggerRequest) ([]domain.Trigger, error) {
	triggers := make([]domain.Trigger, 0, len(reqs))
	for _, tr := range reqs {
		t, err := tr.toDomain()
		if err != nil {
			return nil, err
		}
		triggers = append(triggers, t)
	}
	return triggers, nil
}

type openPositionRequest struct {
	Mint       string           `json:"mint"`
	Wallet     string           `json:"wallet"`
	EntryPrice float64          `json:"entry_price"`
	Quantity   float64          `json:"quantity"`
	TxRef      string           `json:"tx_ref"`
	Venue      domain.Venue     `json:"venue"`
	Triggers   []triggerRequest `json:"triggers"`
}

// Open registers a confirmed buy as a new tracked position and starts its
// trigger polling loop.
func (h *PositionHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openPositionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, fmt.Errorf("decode request: %w", err))
		return
	}

	triggers, err := toDomainTriggers(req.Triggers)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	venue := req.Venue
	if venue == "" {
		venue = domain.VenueBondingCurve
	}

	entryTrade := domain.Trade{
		Side:        domain.TradeSideBuy,
		Size:        req.Quantity,
		Price:       req.EntryPrice,
		Venue:       venue,
		TxRef:       req.TxRef,
		ConfirmedAt: time.Now().UTC(),
	}

	pos, err := h.engine.Open(r.Context(), req.Mint, req.Wallet, entryTrade, triggers)
	if err != nil {
		logHandlerError(h.logger, r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pos)
}

// Close liquidates the full remaining quantity of one position at the
// current market price.
func (h *PositionHandler) Close(w http.ResponseWriter, r *http.Request) {
	key := domain.PositionKey{
		Mint:   r.PathValue("mint"),
		Wallet: r.PathValue("wallet"),
	}

	trade, err := h.engine.CloseAll(r.Context(), key)
	if err != nil {
		logHandlerError(h.logger, r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tx_ref":         trade.TxRef,
		"confirmed_size": trade.Size,
		"price":          trade.Price,
	})
}

type setTriggersRequest struct {
	Triggers []triggerRequest `json:"triggers"`
}

// SetTriggers replaces the active trigger set of one position. Replacement
// is atomic against the evaluation loop.
func (h *PositionHandler) SetTriggers(w http.ResponseWriter, r *http.Request) {
	key := domain.PositionKey{
		Mint:   r.PathValue("mint"),
		Wallet: r.PathValue("wallet"),
	}

	var req setTriggersRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, fmt.Errorf("decode request: %w", err))
		return
	}
	triggers, err := toDomainTriggers(req.Triggers)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	pos, err := h.engine.SetTriggers(r.Context(), key, triggers)
	if err != nil {
		logHandlerError(h.logger, r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// pnlEntry is one position's summary plus whether a live price backed the
// unrealized figure.
type pnlEntry struct {
	position.Summary
	PriceLive bool `json:"price_live"`
}

// PnL reports realized and unrealized profit per position. Unrealized uses
// the latest cached price; with no cached price it falls back to the entry
// price, which reports zero unrealized and flags the entry as not live.
func (h *PositionHandler) PnL(w http.ResponseWriter, r *http.Request) {
	positions := h.store.List()
	entries := make([]pnlEntry, 0, len(positions))

	var totalRealized, totalUnrealized float64
	for _, pos := range positions {
		price, live := h.lookupPrice(r.Context(), pos.Mint)
		if !live {
			price = pos.EntryPrice
		}
		summary := position.Summarize(pos, price)
		totalRealized += summary.RealizedPnL
		totalUnrealized += summary.UnrealizedPnL
		entries = append(entries, pnlEntry{Summary: summary, PriceLive: live})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"positions":        entries,
		"total_realized":   totalRealized,
		"total_unrealized": totalUnrealized,
	})
}

func (h *PositionHandler) lookupPrice(ctx context.Context, mint string) (float64, bool) {
	if h.prices == nil {
		return 0, false
	}
	price, _, err := h.prices.GetPrice(ctx, mint)
	if err != nil {
		return 0, false
	}
	return price, true
}
