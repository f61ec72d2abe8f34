package storage

import "context"

// CreateSchema idempotently creates the five tables named in §3, the way
// the teacher's (absent) equivalent would sit next to Connect — a thin,
// declarative bootstrap, not a migration framework (database schema
// migration proper is an external collaborator per §1).
func (a *Adapter) CreateSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'USER',
			api_key TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS instruments (
			ticker TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'STOCK',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS balances (
			user_id UUID NOT NULL REFERENCES users(id),
			ticker TEXT NOT NULL REFERENCES instruments(ticker),
			amount BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, ticker)
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id),
			ticker TEXT NOT NULL REFERENCES instruments(ticker),
			side TEXT NOT NULL,
			kind TEXT NOT NULL,
			qty BIGINT NOT NULL,
			price BIGINT,
			filled BIGINT NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'NEW',
			seq BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_resting
			ON orders (ticker, side, status, price, seq)`,
		`CREATE TABLE IF NOT EXISTS trades (
			id BIGSERIAL PRIMARY KEY,
			ticker TEXT NOT NULL REFERENCES instruments(ticker),
			amount BIGINT NOT NULL,
			price BIGINT NOT NULL,
			buyer_id UUID NOT NULL REFERENCES users(id),
			seller_id UUID NOT NULL REFERENCES users(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_ticker_time
			ON trades (ticker, created_at DESC, id DESC)`,
	}

	for _, stmt := range stmts {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
