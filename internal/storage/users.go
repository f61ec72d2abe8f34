package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tochka-exchange/internal/models"
)

// CreateUser inserts a new user with the given generated api key.
func (t *Tx) CreateUser(ctx context.Context, u *models.User) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO users (id, name, role, api_key, created_at) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Name, string(u.Role), u.APIKey, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var role string
	if err := row.Scan(&u.ID, &u.Name, &role, &u.APIKey, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	u.Role = models.Role(role)
	return &u, nil
}

// LookupUserByAPIKey resolves the user owning apiKey, or sql.ErrNoRows.
func (a *Adapter) LookupUserByAPIKey(ctx context.Context, apiKey string) (*models.User, error) {
	row := a.db.QueryRowContext(ctx,
		`SELECT id, name, role, api_key, created_at FROM users WHERE api_key = $1`, apiKey)
	return scanUser(row)
}

// LookupUserByID resolves a user by id within a transaction.
func (t *Tx) LookupUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT id, name, role, api_key, created_at FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// EnsureBootstrapAdmin installs a fixed-token administrator on first
// startup if no admin with that token exists yet (§6.4, original_source
// main.py's startup_event).
func (a *Adapter) EnsureBootstrapAdmin(ctx context.Context, token string) error {
	var exists bool
	err := a.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE api_key = $1)`, token).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check bootstrap admin: %w", err)
	}
	if exists {
		return nil
	}
	_, err = a.db.ExecContext(ctx,
		`INSERT INTO users (id, name, role, api_key, created_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), "Admin", string(models.RoleAdmin), token, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert bootstrap admin: %w", err)
	}
	return nil
}

// CascadeDeleteUser removes a user and every order, trade and balance
// referencing it (§4.1, §6.1 DELETE /admin/user/{id}). Caller must hold
// the settlement gate (§5).
func (t *Tx) CascadeDeleteUser(ctx context.Context, id uuid.UUID) error {
	stmts := []struct {
		sql  string
		args []interface{}
	}{
		{`DELETE FROM trades WHERE buyer_id = $1 OR seller_id = $1`, []interface{}{id}},
		{`DELETE FROM orders WHERE user_id = $1`, []interface{}{id}},
		{`DELETE FROM balances WHERE user_id = $1`, []interface{}{id}},
		{`DELETE FROM users WHERE id = $1`, []interface{}{id}},
	}
	for _, s := range stmts {
		if _, err := t.tx.ExecContext(ctx, s.sql, s.args...); err != nil {
			return fmt.Errorf("cascade delete user: %w", err)
		}
	}
	return nil
}
