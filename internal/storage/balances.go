package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tochka-exchange/internal/apperr"
	"tochka-exchange/internal/models"
)

// LookupBalance reads a (user, ticker) balance within the transaction,
// returning a zero-amount Balance if the row does not exist yet (a
// balance row is only materialized on first credit).
func (t *Tx) LookupBalance(ctx context.Context, userID uuid.UUID, ticker string) (*models.Balance, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT user_id, ticker, amount, updated_at FROM balances WHERE user_id = $1 AND ticker = $2`,
		userID, ticker,
	)
	var b models.Balance
	err := row.Scan(&b.UserID, &b.Ticker, &b.Amount, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.Balance{UserID: userID, Ticker: ticker, Amount: 0}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lookup balance: %w", err)
	}
	return &b, nil
}

// ListBalances returns every non-zero-or-not balance row for a user
// (§6.1 GET /api/v1/balance — callers omit zero balances at the transport
// layer if they choose).
func (a *Adapter) ListBalances(ctx context.Context, userID uuid.UUID) ([]*models.Balance, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT user_id, ticker, amount, updated_at FROM balances WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	defer rows.Close()

	var out []*models.Balance
	for rows.Next() {
		var b models.Balance
		if err := rows.Scan(&b.UserID, &b.Ticker, &b.Amount, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

// BalanceUpsertDelta atomically applies delta to a (user, ticker) balance:
// the row is created with amount = delta if absent, else
// amount := amount + delta. If the resulting amount would be negative the
// operation fails with apperr.InsufficientFunds and leaves state
// unchanged (§4.1's contract).
//
// For a debit, the UPDATE's WHERE amount + delta >= 0 guards negativity in
// SQL so the check and the write are atomic under the row lock acquired by
// the statement itself, without a separate SELECT ... FOR UPDATE round trip.
func (t *Tx) BalanceUpsertDelta(ctx context.Context, userID uuid.UUID, ticker string, delta int64) error {
	if delta == 0 {
		return nil
	}

	now := time.Now().UTC()

	if delta > 0 {
		_, err := t.tx.ExecContext(ctx,
			`INSERT INTO balances (user_id, ticker, amount, updated_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (user_id, ticker)
			 DO UPDATE SET amount = balances.amount + EXCLUDED.amount, updated_at = EXCLUDED.updated_at`,
			userID, ticker, delta, now,
		)
		if err != nil {
			return fmt.Errorf("failed to credit balance: %w", err)
		}
		return nil
	}

	// Negative delta: a debit never inserts a row (a missing row would go
	// negative), so only a guarded UPDATE is issued, and RowsAffected tells
	// whether an existing row could absorb the debit.
	res, err := t.tx.ExecContext(ctx,
		`UPDATE balances SET amount = amount + $3, updated_at = $4
		 WHERE user_id = $1 AND ticker = $2 AND amount + $3 >= 0`,
		userID, ticker, delta, now,
	)
	if err != nil {
		return fmt.Errorf("failed to debit balance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read debit result: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// No existing row moved — either there is no row yet (insufficient
	// funds, since any positive balance must first be credited) or the
	// existing row would have gone negative. Either way the debit is
	// rejected without mutating state.
	return apperr.InsufficientFunds(fmt.Sprintf("insufficient %s balance", ticker))
}
