package matching

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tochka-exchange/internal/models"
	"tochka-exchange/internal/orderbook"
)

func resting(side models.Side, price, qty int64, seq uint64) *models.Order {
	p := price
	return &models.Order{
		ID:     uuid.New(),
		UserID: uuid.New(),
		Ticker: "BTC",
		Side:   side,
		Kind:   models.KindLimit,
		Qty:    qty,
		Price:  &p,
		Status: models.StatusNew,
		Seq:    seq,
	}
}

// TestMatch_LimitLimitFullMatch verifies a 1:1 limit/limit match produces one
// fill at the resting order's price and fully fills both sides.
func TestMatch_LimitLimitFullMatch(t *testing.T) {
	sell := resting(models.SideSell, 50000, 10, 1)
	book := orderbook.Load("BTC", nil, []*models.Order{sell})

	price := int64(50000)
	buy := &models.Order{ID: uuid.New(), UserID: uuid.New(), Ticker: "BTC", Side: models.SideBuy, Kind: models.KindLimit, Qty: 10, Price: &price, Seq: 2}

	res := Match(buy, book)

	require.Len(t, res.Fills, 1)
	assert.Equal(t, int64(50000), res.Fills[0].Price)
	assert.Equal(t, int64(10), res.Fills[0].Qty)
	assert.Equal(t, int64(10), res.IncomingFilled)
	assert.Equal(t, models.StatusExecuted, sell.Status)
}

// TestMatch_LimitLimitPartialFill ensures a larger incoming buy partially
// fills a smaller resting sell and leaves the remainder unfilled.
func TestMatch_LimitLimitPartialFill(t *testing.T) {
	sell := resting(models.SideSell, 50000, 5, 1)
	book := orderbook.Load("BTC", nil, []*models.Order{sell})

	price := int64(50000)
	buy := &models.Order{ID: uuid.New(), Ticker: "BTC", Side: models.SideBuy, Kind: models.KindLimit, Qty: 10, Price: &price}

	res := Match(buy, book)

	require.Len(t, res.Fills, 1)
	assert.Equal(t, int64(5), res.IncomingFilled)
	assert.Equal(t, models.StatusExecuted, sell.Status)
	assert.Equal(t, models.StatusPartiallyExecuted, TerminalStatus(buy))
	assert.Nil(t, book.BestAsk())
}

// TestMatch_MarketSweepsMultipleLevels confirms a market buy walks the book
// across ask levels in price order, producing one fill per level.
func TestMatch_MarketSweepsMultipleLevels(t *testing.T) {
	a1 := resting(models.SideSell, 50000, 3, 1)
	a2 := resting(models.SideSell, 50100, 4, 2)
	a3 := resting(models.SideSell, 50200, 5, 3)
	book := orderbook.Load("BTC", nil, []*models.Order{a1, a2, a3})

	buy := &models.Order{ID: uuid.New(), Ticker: "BTC", Side: models.SideBuy, Kind: models.KindMarket, Qty: 12}

	res := Match(buy, book)

	require.Len(t, res.Fills, 3)
	assert.Equal(t, int64(50000), res.Fills[0].Price)
	assert.Equal(t, int64(50100), res.Fills[1].Price)
	assert.Equal(t, int64(50200), res.Fills[2].Price)
	assert.Equal(t, int64(12), res.IncomingFilled)
	assert.Equal(t, models.StatusExecuted, TerminalStatus(buy))
}

// TestMatch_MarketOrderCancelledWhenUnfillable ensures a market order that
// cannot be filled at all terminates as CANCELLED, not NEW (§4.3: market
// orders never rest).
func TestMatch_MarketOrderCancelledWhenUnfillable(t *testing.T) {
	buy := &models.Order{ID: uuid.New(), Ticker: "BTC", Side: models.SideBuy, Kind: models.KindMarket, Qty: 10}
	book := orderbook.New("BTC")

	res := Match(buy, book)

	assert.Empty(t, res.Fills)
	assert.Equal(t, models.StatusCancelled, TerminalStatus(buy))
}

// TestMatch_MarketOrderPartiallyFilledIsPartiallyExecuted covers a market
// order that fills some but not all of its quantity: it does not rest, and
// terminates as PARTIALLY_EXECUTED rather than CANCELLED.
func TestMatch_MarketOrderPartiallyFilledIsPartiallyExecuted(t *testing.T) {
	sell := resting(models.SideSell, 50000, 3, 1)
	book := orderbook.Load("BTC", nil, []*models.Order{sell})

	buy := &models.Order{ID: uuid.New(), Ticker: "BTC", Side: models.SideBuy, Kind: models.KindMarket, Qty: 10}
	res := Match(buy, book)

	require.Len(t, res.Fills, 1)
	assert.Equal(t, int64(3), res.IncomingFilled)
	assert.Equal(t, models.StatusPartiallyExecuted, TerminalStatus(buy))
}

// TestMatch_FIFOWithinPriceLevel verifies price-time priority: at equal
// price, the earliest-admitted resting order fills first.
func TestMatch_FIFOWithinPriceLevel(t *testing.T) {
	first := resting(models.SideSell, 50000, 5, 1)
	second := resting(models.SideSell, 50000, 5, 2)
	book := orderbook.Load("BTC", nil, []*models.Order{first, second})

	price := int64(50000)
	buy := &models.Order{ID: uuid.New(), Ticker: "BTC", Side: models.SideBuy, Kind: models.KindLimit, Qty: 3, Price: &price}

	res := Match(buy, book)

	require.Len(t, res.Fills, 1)
	assert.Equal(t, first.ID, res.Fills[0].RestingOrder.ID)
	assert.Equal(t, int64(2), first.Remaining())
	assert.Equal(t, int64(5), second.Remaining(), "second order at the level must be untouched")
}

// TestMatch_PriceImprovementUsesRestingPrice verifies a marketable limit
// crossing the book executes at the resting order's price, not its own.
func TestMatch_PriceImprovementUsesRestingPrice(t *testing.T) {
	sell := resting(models.SideSell, 50000, 5, 1)
	book := orderbook.Load("BTC", nil, []*models.Order{sell})

	price := int64(50100)
	buy := &models.Order{ID: uuid.New(), Ticker: "BTC", Side: models.SideBuy, Kind: models.KindLimit, Qty: 5, Price: &price}

	res := Match(buy, book)

	require.Len(t, res.Fills, 1)
	assert.Equal(t, int64(50000), res.Fills[0].Price)
}

// TestMatch_LimitRestsWhenNotMarketable ensures a non-crossing limit order
// produces no fills and stays NEW.
func TestMatch_LimitRestsWhenNotMarketable(t *testing.T) {
	sell := resting(models.SideSell, 50000, 5, 1)
	book := orderbook.Load("BTC", nil, []*models.Order{sell})

	price := int64(49000)
	buy := &models.Order{ID: uuid.New(), Ticker: "BTC", Side: models.SideBuy, Kind: models.KindLimit, Qty: 5, Price: &price}

	res := Match(buy, book)

	assert.Empty(t, res.Fills)
	assert.Equal(t, models.StatusNew, TerminalStatus(buy))
}

// TestMatchWithBudget_StopsWhenUnaffordable verifies the canAfford callback
// can halt the sweep mid-walk without consuming the candidate it rejected.
func TestMatchWithBudget_StopsWhenUnaffordable(t *testing.T) {
	a1 := resting(models.SideSell, 100, 5, 1)
	a2 := resting(models.SideSell, 200, 5, 2)
	book := orderbook.Load("BTC", nil, []*models.Order{a1, a2})

	buy := &models.Order{ID: uuid.New(), Ticker: "BTC", Side: models.SideBuy, Kind: models.KindMarket, Qty: 10}

	var spent int64
	budget := int64(500) // enough for a1 (5*100=500) but not a1+a2 (500+1000)
	res := MatchWithBudget(buy, book, func(qty, price int64) bool {
		cost := qty * price
		if spent+cost > budget {
			return false
		}
		spent += cost
		return true
	})

	require.Len(t, res.Fills, 1)
	assert.Equal(t, int64(5), res.IncomingFilled)
	assert.Equal(t, int64(5), a2.Remaining(), "rejected candidate must remain untouched")
}
