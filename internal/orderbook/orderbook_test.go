package orderbook

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tochka-exchange/internal/models"
)

func limitOrder(side models.Side, price, qty int64, seq uint64) *models.Order {
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

func TestOrderBook_BestBidAsk(t *testing.T) {
	ob := New("BTC")
	ob.insert(limitOrder(models.SideBuy, 100, 5, 1))
	ob.insert(limitOrder(models.SideBuy, 105, 5, 2))
	ob.insert(limitOrder(models.SideSell, 110, 5, 3))
	ob.insert(limitOrder(models.SideSell, 108, 5, 4))

	require.NotNil(t, ob.BestBid())
	assert.Equal(t, int64(105), ob.BestBid().Price)

	require.NotNil(t, ob.BestAsk())
	assert.Equal(t, int64(108), ob.BestAsk().Price)
}

func TestOrderBook_FIFOWithinLevel(t *testing.T) {
	ob := New("BTC")
	first := limitOrder(models.SideSell, 100, 3, 1)
	second := limitOrder(models.SideSell, 100, 3, 2)
	ob.insert(first)
	ob.insert(second)

	pl := ob.BestAsk()
	require.NotNil(t, pl)
	assert.Equal(t, first.ID, pl.Front().ID, "oldest order at a level must be served first")

	popped := ob.ConsumeBestAsk()
	assert.Equal(t, first.ID, popped.ID)
	assert.Equal(t, second.ID, ob.BestAsk().Front().ID)
}

func TestOrderBook_DropsEmptyLevel(t *testing.T) {
	ob := New("BTC")
	ob.insert(limitOrder(models.SideBuy, 100, 5, 1))

	ob.ConsumeBestBid()
	assert.Nil(t, ob.BestBid(), "level must be removed once its last order is consumed")
}

func TestOrderBook_TopLevelsAggregatesQty(t *testing.T) {
	ob := New("BTC")
	ob.insert(limitOrder(models.SideBuy, 100, 3, 1))
	ob.insert(limitOrder(models.SideBuy, 100, 4, 2))
	ob.insert(limitOrder(models.SideBuy, 95, 10, 3))

	snap := ob.TopLevels(25)
	require.Len(t, snap.BidLevels, 2)
	assert.Equal(t, int64(100), snap.BidLevels[0].Price)
	assert.Equal(t, int64(7), snap.BidLevels[0].Qty)
	assert.Equal(t, int64(95), snap.BidLevels[1].Price)
}

func TestOrderBook_TopLevelsCapsAt25(t *testing.T) {
	ob := New("BTC")
	for i := int64(0); i < 30; i++ {
		ob.insert(limitOrder(models.SideSell, 100+i, 1, uint64(i)))
	}
	snap := ob.TopLevels(100)
	assert.Len(t, snap.AskLevels, 25)
}

func TestOrderBook_LoadPreservesOrder(t *testing.T) {
	bids := []*models.Order{
		limitOrder(models.SideBuy, 100, 1, 1),
		limitOrder(models.SideBuy, 100, 1, 2),
	}
	ob := Load("BTC", bids, nil)
	assert.Equal(t, bids[0].ID, ob.BestBid().Front().ID)
}
