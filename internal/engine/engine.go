// Package engine is the Engine Facade (§4.4): orchestrates admission
// checks, matcher invocation, settlement, and commit, and exposes the
// create/cancel/book-snapshot operations the transport layer calls.
//
// Grounded on the teacher's internal/engine/engine.go (Engine struct
// wiring db + matcher + order books, PlaceOrder's begin/match/persist/
// commit shape, CancelOrder's re-check-inside-transaction pattern), with
// the teacher's per-symbol sync.Mutex replaced by the spec's global
// settlement_gate (internal/settlement.Gate) and MySQL prepared
// statements replaced by the storage package's per-call queries.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tochka-exchange/internal/apperr"
	"tochka-exchange/internal/cache"
	"tochka-exchange/internal/config"
	"tochka-exchange/internal/ledger"
	"tochka-exchange/internal/matching"
	"tochka-exchange/internal/models"
	"tochka-exchange/internal/orderbook"
	"tochka-exchange/internal/settlement"
	"tochka-exchange/internal/storage"
)

var tickerPattern = regexp.MustCompile(`^[A-Z]{2,10}$`)

// Engine is the long-lived handle request processing is injected with
// (§9: "inject the handle into request-processing contexts rather than
// reaching for process globals").
type Engine struct {
	db          *storage.Adapter
	gate        *settlement.Gate
	instruments *cache.InstrumentCache
	ledger      *ledger.Publisher
	cfg         settlement.Config
	log         zerolog.Logger
}

// New constructs an Engine over an already-connected storage Adapter.
func New(db *storage.Adapter, instruments *cache.InstrumentCache, pub *ledger.Publisher, cfg *config.Config, log zerolog.Logger) *Engine {
	return &Engine{
		db:          db,
		gate:        &settlement.Gate{},
		instruments: instruments,
		ledger:      pub,
		cfg: settlement.Config{
			MaxRetries: cfg.SettlementMaxRetries,
			BackoffMin: cfg.SettlementBackoffMin,
			BackoffMax: cfg.SettlementBackoffMax,
		},
		log: log,
	}
}

// CreateOrderInput is the validated, discriminated order request body
// (§9's "tagged variant on kind" design note).
type CreateOrderInput struct {
	UserID uuid.UUID
	Ticker string
	Side   models.Side
	Kind   models.Kind
	Qty    int64
	Price  *int64
}

func (in CreateOrderInput) validate() error {
	if !tickerPattern.MatchString(in.Ticker) {
		return apperr.Validation("ticker must match ^[A-Z]{2,10}$")
	}
	if in.Side != models.SideBuy && in.Side != models.SideSell {
		return apperr.Validation("unknown direction")
	}
	if in.Qty < 1 {
		return apperr.Validation("qty must be >= 1")
	}
	switch in.Kind {
	case models.KindLimit:
		if in.Price == nil || *in.Price <= 0 {
			return apperr.Validation("price must be > 0 for a limit order")
		}
	case models.KindMarket:
		if in.Price != nil {
			return apperr.Validation("market order must not carry a price")
		}
	default:
		return apperr.Validation("unknown order kind")
	}
	return nil
}

// CreateOrder implements §4.4's create_order. The entire admission +
// match + settlement + commit sequence is retried as one unit on
// Conflict (§9: "the retry loop lives at the transaction boundary ...
// so that retries re-read the book"), up to cfg.MaxRetries+1 attempts.
func (e *Engine) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, []*models.Trade, error) {
	if err := in.validate(); err != nil {
		return nil, nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := e.backoff(ctx, attempt-1); err != nil {
				return nil, nil, err
			}
		}

		order, trades, err := e.attemptCreateOrder(ctx, in)
		if err == nil {
			if e.ledger != nil {
				e.ledger.PublishTrades(ctx, trades)
			}
			return order, trades, nil
		}
		if !storage.IsConflict(err) {
			return nil, nil, err
		}
		lastErr = err
		e.log.Warn().Err(err).Int("attempt", attempt+1).Msg("create_order: settlement conflict, retrying")
	}
	return nil, nil, apperr.Wrap(apperr.CodeConflict, "order could not be settled after retries", lastErr)
}

// attemptCreateOrder runs one admission+match+settlement attempt, holding
// the settlement gate for its entire duration (§9 open question #2: the
// gate is acquired before the funds check, not just around settlement).
func (e *Engine) attemptCreateOrder(ctx context.Context, in CreateOrderInput) (order *models.Order, trades []*models.Trade, err error) {
	e.gate.Lock()
	defer e.gate.Unlock()

	if _, err := e.instruments.Lookup(ctx, in.Ticker); err != nil {
		return nil, nil, apperr.NotFound(fmt.Sprintf("unknown instrument %s", in.Ticker))
	}

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()

	incoming := &models.Order{
		ID:        uuid.New(),
		UserID:    in.UserID,
		Ticker:    in.Ticker,
		Side:      in.Side,
		Kind:      in.Kind,
		Qty:       in.Qty,
		Price:     in.Price,
		Filled:    0,
		Status:    models.StatusNew,
		Timestamp: now,
	}

	var canAfford func(qty, price int64) bool

	if in.Side == models.SideBuy {
		rub, err := tx.LookupBalance(ctx, in.UserID, models.RUBTicker)
		if err != nil {
			return nil, nil, err
		}
		minRequired := in.Qty
		if in.Kind == models.KindLimit {
			minRequired = in.Qty * (*in.Price)
		}
		if rub.Amount < minRequired {
			return nil, nil, apperr.InsufficientFunds(fmt.Sprintf("insufficient %s balance", models.RUBTicker))
		}
		if in.Kind == models.KindMarket {
			spent := int64(0)
			canAfford = func(qty, price int64) bool {
				if rub.Amount-spent < qty*price {
					return false
				}
				spent += qty * price
				return true
			}
		}
	} else {
		bal, err := tx.LookupBalance(ctx, in.UserID, in.Ticker)
		if err != nil {
			return nil, nil, err
		}
		if bal.Amount < in.Qty {
			return nil, nil, apperr.InsufficientFunds(fmt.Sprintf("insufficient %s balance", in.Ticker))
		}
	}

	seq, err := tx.NextSeq(ctx)
	if err != nil {
		return nil, nil, err
	}
	incoming.Seq = seq

	if err := tx.InsertOrder(ctx, incoming); err != nil {
		return nil, nil, err
	}

	oppositeSide := models.SideSell
	if in.Side == models.SideSell {
		oppositeSide = models.SideBuy
	}
	resting, err := tx.ListResting(ctx, in.Ticker, oppositeSide)
	if err != nil {
		return nil, nil, err
	}

	var book *orderbook.OrderBook
	if oppositeSide == models.SideBuy {
		book = orderbook.Load(in.Ticker, resting, nil)
	} else {
		book = orderbook.Load(in.Ticker, nil, resting)
	}

	result := matching.MatchWithBudget(incoming, book, canAfford)

	incoming.Filled = result.IncomingFilled
	incoming.Status = matching.TerminalStatus(incoming)
	if err := tx.UpdateOrder(ctx, incoming); err != nil {
		return nil, nil, err
	}

	batch := settlement.NewBatch()
	for _, f := range result.Fills {
		if err := tx.UpdateOrder(ctx, f.RestingOrder); err != nil {
			return nil, nil, err
		}

		trade := matching.NewTrade(in.Ticker, incoming, f, now)
		if err := tx.InsertTrade(ctx, trade); err != nil {
			return nil, nil, err
		}
		trades = append(trades, trade)

		batch.Add(trade.BuyerID, in.Ticker, f.Qty)
		batch.Add(trade.SellerID, in.Ticker, -f.Qty)
		batch.Add(trade.BuyerID, models.RUBTicker, -f.Qty*f.Price)
		batch.Add(trade.SellerID, models.RUBTicker, f.Qty*f.Price)
	}

	if err := settlement.ApplyInTx(ctx, tx, batch); err != nil {
		// InsufficientFunds here would mean the admission check or the
		// live-budget callback let an unaffordable fill through — a fatal
		// invariant breach, not a user error (§4.5).
		if apperr.IsCode(err, apperr.CodeInsufficientFunds) {
			return nil, nil, apperr.Wrap(apperr.CodeConflict, "settlement invariant breach", err)
		}
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	commit = true

	return incoming, trades, nil
}

func (e *Engine) backoff(ctx context.Context, attempt int) error {
	span := e.cfg.BackoffMax - e.cfg.BackoffMin
	if span < 0 {
		span = 0
	}
	base := e.cfg.BackoffMin
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

// CancelOrder implements §4.4's cancel_order. The lookup, ownership
// check, cancel and the order returned to the caller all happen inside
// one transaction, so the response always reflects the exact row that
// was cancelled rather than a second, separately-read snapshot.
func (e *Engine) CancelOrder(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	var order *models.Order
	err := e.db.WithTx(ctx, func(tx *storage.Tx) error {
		existing, err := tx.LookupOrder(ctx, orderID)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("order not found")
		}
		if err != nil {
			return err
		}
		if existing.UserID != userID {
			return apperr.NotFound("order not found")
		}

		ok, err := tx.CancelOrder(ctx, orderID, userID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Validation("order is not in a cancellable state")
		}

		existing.Status = models.StatusCancelled
		order = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrderBook implements §4.2/§4.4's get_orderbook, clamping limit to
// [1, 25].
func (e *Engine) GetOrderBook(ctx context.Context, ticker string, limit int) (models.L2OrderBook, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 25 {
		limit = 25
	}
	if _, err := e.instruments.Lookup(ctx, ticker); err != nil {
		return models.L2OrderBook{}, apperr.NotFound(fmt.Sprintf("unknown instrument %s", ticker))
	}

	bids, err := e.db.ListRestingUnlocked(ctx, ticker, models.SideBuy)
	if err != nil {
		return models.L2OrderBook{}, err
	}
	asks, err := e.db.ListRestingUnlocked(ctx, ticker, models.SideSell)
	if err != nil {
		return models.L2OrderBook{}, err
	}
	return orderbook.Load(ticker, bids, asks).TopLevels(limit), nil
}

// GetOrder implements §4.4's get_order, scoped to the caller.
func (e *Engine) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	o, err := e.db.GetOrder(ctx, orderID)
	if err != nil {
		return nil, apperr.NotFound("order not found")
	}
	if o.UserID != userID {
		return nil, apperr.NotFound("order not found")
	}
	return o, nil
}

// ListOrders implements §4.4's list_orders.
func (e *Engine) ListOrders(ctx context.Context, userID uuid.UUID) ([]*models.Order, error) {
	return e.db.ListOrdersForUser(ctx, userID)
}

// ListTrades returns recent trades for ticker (§6.1 public trades feed).
func (e *Engine) ListTrades(ctx context.Context, ticker string, limit int) ([]*models.Trade, error) {
	return e.db.ListTrades(ctx, ticker, limit)
}

// ListBalances implements the §6.1 balance endpoint.
func (e *Engine) ListBalances(ctx context.Context, userID uuid.UUID) ([]*models.Balance, error) {
	return e.db.ListBalances(ctx, userID)
}

// ListInstruments implements the §6.1 public instrument listing.
func (e *Engine) ListInstruments(ctx context.Context) ([]*models.Instrument, error) {
	return e.db.ListInstruments(ctx)
}

// requireUser confirms userID exists before a balance mutation touches it,
// translating what would otherwise surface as an opaque foreign-key
// violation from balances.user_id into a clean apperr.NotFound.
func (e *Engine) requireUser(ctx context.Context, userID uuid.UUID) error {
	return e.db.WithTx(ctx, func(tx *storage.Tx) error {
		_, err := tx.LookupUserByID(ctx, userID)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("user not found")
		}
		return err
	})
}

// Deposit credits a user's balance (§6.1 admin deposit), under the
// settlement gate (§5).
func (e *Engine) Deposit(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error {
	if amount <= 0 {
		return apperr.Validation("amount must be > 0")
	}
	if err := e.requireUser(ctx, userID); err != nil {
		return err
	}
	e.gate.Lock()
	defer e.gate.Unlock()
	batch := settlement.NewBatch()
	batch.Add(userID, ticker, amount)
	return settlement.Apply(ctx, e.db, batch, e.cfg)
}

// Withdraw debits a user's balance (§6.1 admin withdraw), failing with
// InsufficientFunds if it would go negative.
func (e *Engine) Withdraw(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error {
	if amount <= 0 {
		return apperr.Validation("amount must be > 0")
	}
	if err := e.requireUser(ctx, userID); err != nil {
		return err
	}
	e.gate.Lock()
	defer e.gate.Unlock()
	batch := settlement.NewBatch()
	batch.Add(userID, ticker, -amount)
	return settlement.Apply(ctx, e.db, batch, e.cfg)
}

// CreateInstrument implements the §6.1 admin create-instrument endpoint.
func (e *Engine) CreateInstrument(ctx context.Context, ins *models.Instrument) error {
	if !tickerPattern.MatchString(ins.Ticker) {
		return apperr.Validation("ticker must match ^[A-Z]{2,10}$")
	}
	ins.CreatedAt = time.Now().UTC()
	err := e.db.WithTx(ctx, func(tx *storage.Tx) error {
		return tx.CreateInstrument(ctx, ins)
	})
	if storage.IsUniqueViolation(err) {
		return apperr.DuplicateInstrument(fmt.Sprintf("instrument %s already exists", ins.Ticker))
	}
	return err
}

// DeleteInstrument cascade-deletes an instrument under the settlement
// gate (§6.1, §4.1).
func (e *Engine) DeleteInstrument(ctx context.Context, ticker string) error {
	e.gate.Lock()
	defer e.gate.Unlock()
	err := e.db.WithTx(ctx, func(tx *storage.Tx) error {
		return tx.CascadeDeleteInstrument(ctx, ticker)
	})
	if err != nil {
		return err
	}
	e.instruments.Invalidate(ticker)
	return nil
}

// DeleteUser cascade-deletes a user under the settlement gate.
func (e *Engine) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	e.gate.Lock()
	defer e.gate.Unlock()
	return e.db.WithTx(ctx, func(tx *storage.Tx) error {
		return tx.CascadeDeleteUser(ctx, userID)
	})
}
