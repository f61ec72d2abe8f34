package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tochka-exchange/internal/apperr"
	"tochka-exchange/internal/models"
)

// connectTestDB connects to a database identified by DB_DSN, skipping the
// test entirely when it is unset, mirroring the teacher's integration_test.go.
func connectTestDB(t *testing.T) *Adapter {
	t.Helper()
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		t.Skip("DB_DSN environment variable not set, skipping integration test")
	}

	db, err := Connect(dsn)
	require.NoError(t, err, "failed to connect to test database")
	require.NoError(t, db.CreateSchema(context.Background()))
	require.NoError(t, db.EnsureDefaultInstruments(context.Background()))
	return db
}

// TestBalanceUpsertDelta_CreditThenDebit exercises the atomic
// upsert-with-delta path end to end against a live database.
func TestBalanceUpsertDelta_CreditThenDebit(t *testing.T) {
	db := connectTestDB(t)
	defer db.Close()
	ctx := context.Background()

	user := &models.User{ID: uuid.New(), Name: "alice", Role: models.RoleUser, APIKey: uuid.NewString(), CreatedAt: time.Now().UTC()}
	require.NoError(t, db.WithTx(ctx, func(tx *Tx) error { return tx.CreateUser(ctx, user) }))

	err := db.WithTx(ctx, func(tx *Tx) error {
		return tx.BalanceUpsertDelta(ctx, user.ID, "RUB", 1000)
	})
	require.NoError(t, err)

	err = db.WithTx(ctx, func(tx *Tx) error {
		return tx.BalanceUpsertDelta(ctx, user.ID, "RUB", -400)
	})
	require.NoError(t, err)

	balances, err := db.ListBalances(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.Equal(t, int64(600), balances[0].Amount)
}

// TestBalanceUpsertDelta_RejectsNegativeResult verifies a debit larger than
// the current balance fails closed with InsufficientFunds and leaves the
// balance untouched (I1).
func TestBalanceUpsertDelta_RejectsNegativeResult(t *testing.T) {
	db := connectTestDB(t)
	defer db.Close()
	ctx := context.Background()

	user := &models.User{ID: uuid.New(), Name: "bob", Role: models.RoleUser, APIKey: uuid.NewString(), CreatedAt: time.Now().UTC()}
	require.NoError(t, db.WithTx(ctx, func(tx *Tx) error { return tx.CreateUser(ctx, user) }))
	require.NoError(t, db.WithTx(ctx, func(tx *Tx) error {
		return tx.BalanceUpsertDelta(ctx, user.ID, "RUB", 100)
	}))

	err := db.WithTx(ctx, func(tx *Tx) error {
		return tx.BalanceUpsertDelta(ctx, user.ID, "RUB", -500)
	})
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.CodeInsufficientFunds, appErr.Code)

	balances, err := db.ListBalances(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.Equal(t, int64(100), balances[0].Amount, "rejected debit must not partially apply")
}

// TestListResting_OrdersByPriceTimePriority checks the resting-order query
// returns bids best-first (descending price, ascending seq) as the matcher
// and book-snapshot callers rely on.
func TestListResting_OrdersByPriceTimePriority(t *testing.T) {
	db := connectTestDB(t)
	defer db.Close()
	ctx := context.Background()

	user := &models.User{ID: uuid.New(), Name: "carol", Role: models.RoleUser, APIKey: uuid.NewString(), CreatedAt: time.Now().UTC()}
	require.NoError(t, db.WithTx(ctx, func(tx *Tx) error { return tx.CreateUser(ctx, user) }))

	ticker := "T" + uuid.NewString()[:6]
	require.NoError(t, db.WithTx(ctx, func(tx *Tx) error {
		return tx.CreateInstrument(ctx, &models.Instrument{Ticker: ticker, Name: ticker, Type: models.InstrumentStock})
	}))

	prices := []int64{100, 105, 100}
	var ids []uuid.UUID
	for _, p := range prices {
		price := p
		o := &models.Order{ID: uuid.New(), UserID: user.ID, Ticker: ticker, Side: models.SideBuy, Kind: models.KindLimit, Qty: 1, Price: &price, Status: models.StatusNew, Timestamp: time.Now().UTC()}
		require.NoError(t, db.WithTx(ctx, func(tx *Tx) error {
			seq, err := tx.NextSeq(ctx)
			require.NoError(t, err)
			o.Seq = seq
			return tx.InsertOrder(ctx, o)
		}))
		ids = append(ids, o.ID)
	}

	var resting []*models.Order
	require.NoError(t, db.WithTx(ctx, func(tx *Tx) error {
		var err error
		resting, err = tx.ListResting(ctx, ticker, models.SideBuy)
		return err
	}))

	require.Len(t, resting, 3)
	assert.Equal(t, int64(105), *resting[0].Price, "highest price must lead for bids")
	assert.Equal(t, ids[0], resting[1].ID, "equal-price orders must be seq-ordered (FIFO)")
	assert.Equal(t, ids[2].String(), resting[2].ID.String())
}

// TestListResting_BreaksEqualSeqTiesByID covers §9 open question #4: two
// resting orders that were somehow assigned the same admission sequence
// (e.g. a durable-sequence race across a restart) must still come back in
// a fully deterministic order, broken by order id byte order.
func TestListResting_BreaksEqualSeqTiesByID(t *testing.T) {
	db := connectTestDB(t)
	defer db.Close()
	ctx := context.Background()

	user := &models.User{ID: uuid.New(), Name: "dave", Role: models.RoleUser, APIKey: uuid.NewString(), CreatedAt: time.Now().UTC()}
	require.NoError(t, db.WithTx(ctx, func(tx *Tx) error { return tx.CreateUser(ctx, user) }))

	ticker := "T" + uuid.NewString()[:6]
	require.NoError(t, db.WithTx(ctx, func(tx *Tx) error {
		return tx.CreateInstrument(ctx, &models.Instrument{Ticker: ticker, Name: ticker, Type: models.InstrumentStock})
	}))

	price := int64(100)
	high := &models.Order{ID: uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff"), UserID: user.ID, Ticker: ticker, Side: models.SideSell, Kind: models.KindLimit, Qty: 1, Price: &price, Status: models.StatusNew, Seq: 1, Timestamp: time.Now().UTC()}
	low := &models.Order{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), UserID: user.ID, Ticker: ticker, Side: models.SideSell, Kind: models.KindLimit, Qty: 1, Price: &price, Status: models.StatusNew, Seq: 1, Timestamp: time.Now().UTC()}
	require.NoError(t, db.WithTx(ctx, func(tx *Tx) error { return tx.InsertOrder(ctx, high) }))
	require.NoError(t, db.WithTx(ctx, func(tx *Tx) error { return tx.InsertOrder(ctx, low) }))

	var resting []*models.Order
	require.NoError(t, db.WithTx(ctx, func(tx *Tx) error {
		var err error
		resting, err = tx.ListResting(ctx, ticker, models.SideSell)
		return err
	}))

	require.Len(t, resting, 2)
	assert.Equal(t, low.ID, resting[0].ID, "equal seq must fall back to ascending order id byte order")
	assert.Equal(t, high.ID, resting[1].ID)
}

// TestCancelOrder_OnlyOwnerCanCancelRestingOrder verifies the guarded
// UPDATE rejects cancelling another user's order and lets the owner cancel
// it while it is still resting.
func TestCancelOrder_OnlyOwnerCanCancelRestingOrder(t *testing.T) {
	db := connectTestDB(t)
	defer db.Close()
	ctx := context.Background()

	owner := &models.User{ID: uuid.New(), Name: "dan", Role: models.RoleUser, APIKey: uuid.NewString(), CreatedAt: time.Now().UTC()}
	other := &models.User{ID: uuid.New(), Name: "erin", Role: models.RoleUser, APIKey: uuid.NewString(), CreatedAt: time.Now().UTC()}
	require.NoError(t, db.WithTx(ctx, func(tx *Tx) error { return tx.CreateUser(ctx, owner) }))
	require.NoError(t, db.WithTx(ctx, func(tx *Tx) error { return tx.CreateUser(ctx, other) }))

	ticker := "T" + uuid.NewString()[:6]
	require.NoError(t, db.WithTx(ctx, func(tx *Tx) error {
		return tx.CreateInstrument(ctx, &models.Instrument{Ticker: ticker, Name: ticker, Type: models.InstrumentStock})
	}))

	price := int64(100)
	order := &models.Order{ID: uuid.New(), UserID: owner.ID, Ticker: ticker, Side: models.SideBuy, Kind: models.KindLimit, Qty: 1, Price: &price, Status: models.StatusNew, Timestamp: time.Now().UTC()}
	require.NoError(t, db.WithTx(ctx, func(tx *Tx) error {
		seq, err := tx.NextSeq(ctx)
		require.NoError(t, err)
		order.Seq = seq
		return tx.InsertOrder(ctx, order)
	}))

	var ok bool
	require.NoError(t, db.WithTx(ctx, func(tx *Tx) error {
		var err error
		ok, err = tx.CancelOrder(ctx, order.ID, other.ID)
		return err
	}))
	assert.False(t, ok, "a non-owner must not be able to cancel the order")

	require.NoError(t, db.WithTx(ctx, func(tx *Tx) error {
		var err error
		ok, err = tx.CancelOrder(ctx, order.ID, owner.ID)
		return err
	}))
	assert.True(t, ok)
}
