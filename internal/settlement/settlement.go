// Package settlement applies the net balance effect of a batch of trades
// atomically (§4.5), generalizing the teacher's single per-symbol mutex
// (internal/engine/engine.go's getSymbolMutex) into the spec's global
// settlement_gate (§5) plus a canonical per-(user,ticker) lock ordering
// to make concurrent settlements deadlock-free, and adding the
// randomized-backoff Conflict retry loop that the teacher's MySQL engine
// does not need (MySQL default isolation does not surface the
// serialization failures Postgres SERIALIZABLE/REPEATABLE READ can).
package settlement

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tochka-exchange/internal/storage"
)

// Gate is the process-wide settlement_gate (§5): every balance-mutating
// operation — order matching, deposits, withdrawals, cascade deletes —
// holds it for the duration of its transaction, so no two balance
// mutations interleave even across different tickers.
type Gate struct {
	mu sync.Mutex
}

// Lock blocks until the gate is acquired.
func (g *Gate) Lock() { g.mu.Lock() }

// Unlock releases the gate.
func (g *Gate) Unlock() { g.mu.Unlock() }

// delta is one (user, ticker) balance adjustment to apply.
type delta struct {
	UserID uuid.UUID
	Ticker string
	Amount int64
}

// Batch accumulates signed balance deltas produced while matching a
// single incoming order, merging repeated (user, ticker) pairs before
// application (§4.5 step 1).
type Batch struct {
	byKey map[string]*delta
	order []string
}

// NewBatch returns an empty delta batch.
func NewBatch() *Batch {
	return &Batch{byKey: make(map[string]*delta)}
}

// Add folds amount into the running delta for (userID, ticker).
func (b *Batch) Add(userID uuid.UUID, ticker string, amount int64) {
	key := userID.String() + "/" + ticker
	if d, ok := b.byKey[key]; ok {
		d.Amount += amount
		return
	}
	b.byKey[key] = &delta{UserID: userID, Ticker: ticker, Amount: amount}
	b.order = append(b.order, key)
}

// sorted returns the batch's deltas in canonical (user_id, ticker) order
// (§4.5, §5) so two concurrently settling batches touching overlapping
// users always acquire row locks in the same order and cannot deadlock.
func (b *Batch) sorted() []*delta {
	out := make([]*delta, 0, len(b.byKey))
	for _, k := range b.order {
		out = append(out, b.byKey[k])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID.String() < out[j].UserID.String()
		}
		return out[i].Ticker < out[j].Ticker
	})
	return out
}

// Config controls the Conflict retry loop (§4.5, §9 design note).
type Config struct {
	MaxRetries int
	BackoffMin time.Duration
	BackoffMax time.Duration
}

// ApplyInTx applies batch's deltas in canonical order within an
// already-open transaction, for callers (internal/engine's create_order)
// that must commit the balance changes atomically alongside other row
// mutations (the order and its trades) rather than in a standalone
// transaction. The caller owns retry-on-Conflict at its own transaction
// boundary, per §9's design note that retries re-run the whole
// create_order, not just settlement.
func ApplyInTx(ctx context.Context, tx *storage.Tx, batch *Batch) error {
	for _, d := range batch.sorted() {
		if err := tx.BalanceUpsertDelta(ctx, d.UserID, d.Ticker, d.Amount); err != nil {
			return err
		}
	}
	return nil
}

// Apply applies batch's deltas inside a fresh transaction, retrying the
// whole attempt on a storage.IsConflict error with randomized exponential
// backoff: up to cfg.MaxRetries retries after the first attempt
// (cfg.MaxRetries+1 attempts total), backoff ~ U(BackoffMin,BackoffMax)*2^k.
// Callers must already hold the Gate.
func Apply(ctx context.Context, db *storage.Adapter, batch *Batch, cfg Config) error {
	deltas := batch.sorted()
	if len(deltas) == 0 {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt-1, cfg); err != nil {
				return err
			}
		}

		err := db.WithTx(ctx, func(tx *storage.Tx) error {
			for _, d := range deltas {
				if err := tx.BalanceUpsertDelta(ctx, d.UserID, d.Ticker, d.Amount); err != nil {
					return err
				}
			}
			return nil
		})
		if err == nil {
			return nil
		}
		if !storage.IsConflict(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("settlement conflict after %d attempts: %w", cfg.MaxRetries+1, lastErr)
}

func sleepBackoff(ctx context.Context, attempt int, cfg Config) error {
	span := cfg.BackoffMax - cfg.BackoffMin
	if span < 0 {
		span = 0
	}
	base := cfg.BackoffMin
	if span > 0 {
		base += time.Duration(rand.Int63n(int64(span)))
	}
	wait := base * time.Duration(1<<uint(attempt))

	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
