package position

import "tokensniper/internal/domain"

// Summary is the derived profit state of one position. It is a pure
// projection over trade history and the current price; computing it never
// mutates the position.
type Summary struct {
	Mint          string  `json:"mint"`
	Wallet        string  `json:"wallet"`
	EntryPrice    float64 `json:"entry_price"`
	CurrentPrice  float64 `json:"current_price"`
	Remaining     float64 `json:"remaining_quantity"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	RealizedPnL   float64 `json:"realized_pnl"`
}

// Unrealized returns (currentPrice - entryPrice) * remainingQuantity.
func Unrealized(pos domain.Position, currentPrice float64) float64 {
	return (currentPrice - pos.EntryPrice) * pos.RemainingQuantity
}

// Realized sums (sellPrice - entryPrice) * soldQuantity over the position's
// sell history.
func Realized(pos domain.Position) float64 {
	var total float64
	for _, t := range pos.Trades {
		if t.Side != domain.TradeSideSell {
			continue
		}
		total += (t.Price - pos.EntryPrice) * t.Size
	}
	return total
}

// Summarize produces the full P&L view for one position at the given price.
func Summarize(pos domain.Position, currentPrice float64) Summary {
	return Summary{
		Mint:          pos.Mint,
		Wallet:        pos.Wallet,
		EntryPrice:    pos.EntryPrice,
		CurrentPrice:  currentPrice,
		Remaining:     pos.RemainingQuantity,
		UnrealizedPnL: Unrealized(pos, currentPrice),
		RealizedPnL:   Realized(pos),
	}
}
