package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tokensniper/internal/domain"
)

// PositionRepo implements domain.PositionRepository. Triggers and trade
// history are stored as JSONB so reload restores them exactly.
type PositionRepo struct {
	pool *pgxpool.Pool
}

// NewPositionRepo creates a PositionRepo backed by the given pool.
func NewPositionRepo(pool *pgxpool.Pool) *PositionRepo {
	return &PositionRepo{pool: pool}
}

// Save upserts the full position shape keyed by (mint, wallet).
func (r *PositionRepo) Save(ctx context.Context, pos domain.Position) error {
	triggers, err := json.Marshal(pos.Triggers)
	if err != nil {
		return fmt.Errorf("postgres: marshal triggers for %s: %w", pos.Mint, err)
	}
	trades, err := json.Marshal(pos.Trades)
	if err != nil {
		return fmt.Errorf("postgres: marshal trades for %s: %w", pos.Mint, err)
	}

	const query = `
		INSERT INTO positions (
			mint, wallet, id, entry_price, opened_at,
			initial_quantity, remaining_quantity, peak_price,
			triggers, trades, status, frozen_reason, missed_triggers, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11, $12, $13, NOW()
		)
		ON CONFLICT (mint, wallet) DO UPDATE SET
			remaining_quantity = EXCLUDED.remaining_quantity,
			peak_price         = EXCLUDED.peak_price,
			triggers           = EXCLUDED.triggers,
			trades             = EXCLUDED.trades,
			status             = EXCLUDED.status,
			frozen_reason      = EXCLUDED.frozen_reason,
			missed_triggers    = EXCLUDED.missed_triggers,
			updated_at         = NOW()`

	_, err = r.pool.Exec(ctx, query,
		pos.Mint, pos.Wallet, pos.ID, pos.EntryPrice, pos.OpenedAt,
		pos.InitialQuantity, pos.RemainingQuantity, pos.PeakPrice,
		triggers, trades, string(pos.Status), pos.FrozenReason, pos.MissedTriggers,
	)
	if err != nil {
		return fmt.Errorf("postgres: save position %s/%s: %w", pos.Mint, pos.Wallet, err)
	}
	return nil
}

// Delete removes a closed position.
func (r *PositionRepo) Delete(ctx context.Context, key domain.PositionKey) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM positions WHERE mint = $1 AND wallet = $2`,
		key.Mint, key.Wallet,
	)
	if err != nil {
		return fmt.Errorf("postgres: delete position %s/%s: %w", key.Mint, key.Wallet, err)
	}
	return nil
}

// LoadOpen returns every persisted position, open and frozen, for restore
// on startup.
func (r *PositionRepo) LoadOpen(ctx context.Context) ([]domain.Position, error) {
	const query = `
		SELECT mint, wallet, id, entry_price, opened_at,
		       initial_quantity, remaining_quantity, peak_price,
		       triggers, trades, status, frozen_reason, missed_triggers
		FROM positions
		ORDER BY opened_at`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: load positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load positions: %w", err)
	}
	return positions, nil
}

func scanPosition(row pgx.Row) (domain.Position, error) {
	var (
		pos      domain.Position
		status   string
		triggers []byte
		trades   []byte
	)
	err := row.Scan(
		&pos.Mint, &pos.Wallet, &pos.ID, &pos.EntryPrice, &pos.OpenedAt,
		&pos.InitialQuantity, &pos.RemainingQuantity, &pos.PeakPrice,
		&triggers, &trades, &status, &pos.FrozenReason, &pos.MissedTriggers,
	)
	if err != nil {
		return domain.Position{}, err
	}
	if err := json.Unmarshal(triggers, &pos.Triggers); err != nil {
		return domain.Position{}, fmt.Errorf("unmarshal triggers: %w", err)
	}
	if err := json.Unmarshal(trades, &pos.Trades); err != nil {
		return domain.Position{}, fmt.Errorf("unmarshal trades: %w", err)
	}
	pos.Status = domain.PositionStatus(status)
	return pos, nil
}

// Compile-time interface check.
var _ domain.PositionRepository = (*PositionRepo)(nil)
