package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"tochka-exchange/internal/models"
)

// InsertOrder persists a newly admitted order with status=NEW, filled=0
// (§4.4 create_order step 3).
func (t *Tx) InsertOrder(ctx context.Context, o *models.Order) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, ticker, side, kind, qty, price, filled, status, seq, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		o.ID, o.UserID, o.Ticker, string(o.Side), string(o.Kind), o.Qty, o.Price, o.Filled, string(o.Status), o.Seq, o.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// UpdateOrder persists a mutated filled/status pair for an existing order
// (§4.1 update_order).
func (t *Tx) UpdateOrder(ctx context.Context, o *models.Order) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE orders SET filled = $1, status = $2 WHERE id = $3`,
		o.Filled, string(o.Status), o.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update order %s: %w", o.ID, err)
	}
	return nil
}

func scanOrderRow(scan func(dest ...interface{}) error) (*models.Order, error) {
	var o models.Order
	var side, kind, status string
	var price sql.NullInt64
	if err := scan(&o.ID, &o.UserID, &o.Ticker, &side, &kind, &o.Qty, &price, &o.Filled, &status, &o.Seq, &o.Timestamp); err != nil {
		return nil, err
	}
	o.Side = models.Side(side)
	o.Kind = models.Kind(kind)
	o.Status = models.Status(status)
	if price.Valid {
		p := price.Int64
		o.Price = &p
	}
	return &o, nil
}

// LookupOrder resolves an order by id within the transaction, or
// sql.ErrNoRows.
func (t *Tx) LookupOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT id, user_id, ticker, side, kind, qty, price, filled, status, seq, created_at
		 FROM orders WHERE id = $1`, id)
	o, err := scanOrderRow(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}
	return o, nil
}

// GetOrder resolves an order by id outside a transaction, for read-only
// projections (§4.4 get_order).
func (a *Adapter) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	row := a.db.QueryRowContext(ctx,
		`SELECT id, user_id, ticker, side, kind, qty, price, filled, status, seq, created_at
		 FROM orders WHERE id = $1`, id)
	o, err := scanOrderRow(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}
	return o, nil
}

// ListResting returns resting LIMIT orders on side for ticker, locked
// FOR UPDATE within the transaction so two concurrent matchers cannot
// double-spend the same resting order (§4.1, §5, open question #3).
// Ordering matches §4.3's candidate selection: ascending price for asks,
// descending for bids, ties broken by admission sequence and, if two
// orders were ever assigned the same seq (e.g. across a restart racing
// NextSeq's MAX()+1 allocation), by order id byte order (§4.3, §9 open
// question #4) so candidate order is always fully deterministic.
func (t *Tx) ListResting(ctx context.Context, ticker string, side models.Side) ([]*models.Order, error) {
	orderClause := "price ASC, seq ASC, id ASC"
	if side == models.SideBuy {
		orderClause = "price DESC, seq ASC, id ASC"
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, ticker, side, kind, qty, price, filled, status, seq, created_at
		FROM orders
		WHERE ticker = $1 AND side = $2 AND kind = 'LIMIT' AND status IN ('NEW', 'PARTIALLY_EXECUTED')
		ORDER BY %s
		FOR UPDATE`, orderClause)

	rows, err := t.tx.QueryContext(ctx, query, ticker, string(side))
	if err != nil {
		return nil, fmt.Errorf("failed to list resting orders: %w", err)
	}
	defer rows.Close()

	var out []*models.Order
	for rows.Next() {
		o, err := scanOrderRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resting order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListRestingUnlocked is ListResting without FOR UPDATE, for read-only
// projections (book snapshots) outside a mutating transaction.
func (a *Adapter) ListRestingUnlocked(ctx context.Context, ticker string, side models.Side) ([]*models.Order, error) {
	orderClause := "price ASC, seq ASC, id ASC"
	if side == models.SideBuy {
		orderClause = "price DESC, seq ASC, id ASC"
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, ticker, side, kind, qty, price, filled, status, seq, created_at
		FROM orders
		WHERE ticker = $1 AND side = $2 AND kind = 'LIMIT' AND status IN ('NEW', 'PARTIALLY_EXECUTED')
		ORDER BY %s`, orderClause)

	rows, err := a.db.QueryContext(ctx, query, ticker, string(side))
	if err != nil {
		return nil, fmt.Errorf("failed to list resting orders: %w", err)
	}
	defer rows.Close()

	var out []*models.Order
	for rows.Next() {
		o, err := scanOrderRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resting order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// CancelOrder atomically cancels id if owned by userID and currently
// cancellable (§4.4 cancel_order), reporting whether the cancellation
// took effect.
func (t *Tx) CancelOrder(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE orders SET status = $3
		 WHERE id = $1 AND user_id = $2 AND status IN ('NEW', 'PARTIALLY_EXECUTED')`,
		id, userID, string(models.StatusCancelled),
	)
	if err != nil {
		return false, fmt.Errorf("failed to cancel order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read cancel result: %w", err)
	}
	return affected == 1, nil
}

// ListOrdersForUser returns every order owned by userID, newest first
// (§4.4 list_orders).
func (a *Adapter) ListOrdersForUser(ctx context.Context, userID uuid.UUID) ([]*models.Order, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, user_id, ticker, side, kind, qty, price, filled, status, seq, created_at
		 FROM orders WHERE user_id = $1 ORDER BY created_at DESC, seq DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var out []*models.Order
	for rows.Next() {
		o, err := scanOrderRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// NextSeq allocates the next monotonic admission sequence number within
// the transaction, generalizing the teacher's single-process in-memory
// counter into a durable one so that restarts preserve ordering (§4.3
// tie-break). internal/engine calls it before inserting the incoming order
// and before locking the resting set; concurrent admissions in one process
// are serialized by the settlement gate it holds around the transaction.
func (t *Tx) NextSeq(ctx context.Context) (uint64, error) {
	var seq int64
	err := t.tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM orders`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate sequence: %w", err)
	}
	return uint64(seq), nil
}
