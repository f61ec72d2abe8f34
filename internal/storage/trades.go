package storage

import (
	"context"
	"fmt"

	"tochka-exchange/internal/models"
)

// InsertTrade persists an executed trade within the settlement transaction
// (§4.5 step 2).
func (t *Tx) InsertTrade(ctx context.Context, tr *models.Trade) error {
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO trades (ticker, amount, price, buyer_id, seller_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		tr.Ticker, tr.Amount, tr.Price, tr.BuyerID, tr.SellerID, tr.Timestamp,
	).Scan(&tr.ID)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// ListTrades returns the most recent limit trades for ticker, newest
// first (§6.1 GET /api/v1/public/transactions/{ticker}).
func (a *Adapter) ListTrades(ctx context.Context, ticker string, limit int) ([]*models.Trade, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, ticker, amount, price, buyer_id, seller_id, created_at
		 FROM trades WHERE ticker = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		ticker, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	var out []*models.Trade
	for rows.Next() {
		var tr models.Trade
		if err := rows.Scan(&tr.ID, &tr.Ticker, &tr.Amount, &tr.Price, &tr.BuyerID, &tr.SellerID, &tr.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		out = append(out, &tr)
	}
	return out, rows.Err()
}
