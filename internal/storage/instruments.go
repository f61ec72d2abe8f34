package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tochka-exchange/internal/models"
)

func scanInstrument(row *sql.Row) (*models.Instrument, error) {
	var ins models.Instrument
	var typ string
	if err := row.Scan(&ins.Ticker, &ins.Name, &typ, &ins.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to scan instrument: %w", err)
	}
	ins.Type = models.InstrumentType(typ)
	return &ins, nil
}

// LookupInstrument resolves an instrument by ticker, or sql.ErrNoRows.
func (a *Adapter) LookupInstrument(ctx context.Context, ticker string) (*models.Instrument, error) {
	row := a.db.QueryRowContext(ctx,
		`SELECT ticker, name, type, created_at FROM instruments WHERE ticker = $1`, ticker)
	return scanInstrument(row)
}

// ListInstruments returns every instrument, for the public listing
// endpoint (§6.1).
func (a *Adapter) ListInstruments(ctx context.Context) ([]*models.Instrument, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT ticker, name, type, created_at FROM instruments ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("failed to list instruments: %w", err)
	}
	defer rows.Close()

	var out []*models.Instrument
	for rows.Next() {
		var ins models.Instrument
		var typ string
		if err := rows.Scan(&ins.Ticker, &ins.Name, &typ, &ins.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan instrument: %w", err)
		}
		ins.Type = models.InstrumentType(typ)
		out = append(out, &ins)
	}
	return out, rows.Err()
}

// EnsureDefaultInstruments seeds RUB and USD (both CURRENCY) on first
// startup if absent (§6.4, original_source main.py's
// init_default_instruments).
func (a *Adapter) EnsureDefaultInstruments(ctx context.Context) error {
	defaults := []models.Instrument{
		{Ticker: "RUB", Name: "Russian ruble", Type: models.InstrumentCurrency},
		{Ticker: "USD", Name: "US dollar", Type: models.InstrumentCurrency},
	}
	for _, ins := range defaults {
		_, err := a.db.ExecContext(ctx,
			`INSERT INTO instruments (ticker, name, type, created_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (ticker) DO NOTHING`,
			ins.Ticker, ins.Name, string(ins.Type), time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to seed instrument %s: %w", ins.Ticker, err)
		}
	}
	return nil
}

// CreateInstrument inserts a new instrument, failing with a Postgres
// unique-violation if the ticker already exists (translated to
// apperr.DuplicateInstrument by the caller, §6.1/§7).
func (t *Tx) CreateInstrument(ctx context.Context, ins *models.Instrument) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO instruments (ticker, name, type, created_at) VALUES ($1, $2, $3, $4)`,
		ins.Ticker, ins.Name, string(ins.Type), ins.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert instrument: %w", err)
	}
	return nil
}

// CascadeDeleteInstrument removes an instrument and every order, trade and
// balance referencing it (§4.1, §6.1 DELETE /admin/instrument/{ticker}).
// Caller must hold the settlement gate (§5).
func (t *Tx) CascadeDeleteInstrument(ctx context.Context, ticker string) error {
	stmts := []string{
		`DELETE FROM trades WHERE ticker = $1`,
		`DELETE FROM orders WHERE ticker = $1`,
		`DELETE FROM balances WHERE ticker = $1`,
		`DELETE FROM instruments WHERE ticker = $1`,
	}
	for _, s := range stmts {
		if _, err := t.tx.ExecContext(ctx, s, ticker); err != nil {
			return fmt.Errorf("cascade delete instrument: %w", err)
		}
	}
	return nil
}
