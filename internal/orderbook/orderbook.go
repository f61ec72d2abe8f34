// Package orderbook builds the in-memory Level-2 view (§4.2) from resting
// orders read by storage.Tx.ListResting (locked, for matching) or
// storage.Adapter.ListRestingUnlocked (book snapshots).
// It is rebuilt fresh per matching/query call rather than held as
// long-lived mutable state, since the durable order-of-record lives in
// Postgres and is what's locked for correctness (§4.1, §5).
//
// Grounded on the teacher's internal/engine/orderbook.go (PriceLevel,
// Bids/Asks maps, GetBestBid/GetBestAsk, GetTopLevels), with the teacher's
// slice-splice PriceLevel.Orders replaced by a github.com/gammazero/deque
// FIFO queue for O(1) head removal on every fill.
package orderbook

import (
	"sort"

	"github.com/gammazero/deque"

	"tochka-exchange/internal/models"
)

// PriceLevel is a FIFO queue of resting orders at one price.
type PriceLevel struct {
	Price  int64
	Orders deque.Deque[*models.Order]
}

// Front returns the oldest order at this level, or nil if empty.
func (pl *PriceLevel) Front() *models.Order {
	if pl.Orders.Len() == 0 {
		return nil
	}
	return pl.Orders.Front()
}

// PopFront removes and returns the oldest order at this level.
func (pl *PriceLevel) PopFront() *models.Order {
	return pl.Orders.PopFront()
}

// IsEmpty reports whether the price level has no resting orders.
func (pl *PriceLevel) IsEmpty() bool {
	return pl.Orders.Len() == 0
}

// TotalQty sums the remaining quantity of every order at this level.
func (pl *PriceLevel) TotalQty() int64 {
	var total int64
	for i := 0; i < pl.Orders.Len(); i++ {
		total += pl.Orders.At(i).Remaining()
	}
	return total
}

// OrderBook is a snapshot of one instrument's resting LIMIT orders,
// indexed by price for both sides.
type OrderBook struct {
	Ticker string

	bids map[int64]*PriceLevel // by price, served highest-first
	asks map[int64]*PriceLevel // by price, served lowest-first

	bidPrices []int64 // cached, sorted descending
	askPrices []int64 // cached, sorted ascending
}

// New builds an empty book for ticker.
func New(ticker string) *OrderBook {
	return &OrderBook{
		Ticker: ticker,
		bids:   make(map[int64]*PriceLevel),
		asks:   make(map[int64]*PriceLevel),
	}
}

// Load populates the book from orders already sorted by storage.Tx.ListResting
// (price/seq order per side); Load preserves that order within each level.
func Load(ticker string, bids, asks []*models.Order) *OrderBook {
	ob := New(ticker)
	for _, o := range bids {
		ob.insert(o)
	}
	for _, o := range asks {
		ob.insert(o)
	}
	return ob
}

// insert adds o to its price level. Orders outside the resting set
// (§3: kind=LIMIT and status in {NEW, PARTIALLY_EXECUTED}) are dropped
// rather than trusted blindly — ListRestingUnlocked's callers read outside
// a locking transaction, so a row fetched a moment before a concurrent
// cancel or fill settled could otherwise leak a stale order onto the book.
func (ob *OrderBook) insert(o *models.Order) {
	if o.Price == nil || !o.IsResting() {
		return
	}
	levels, prices := ob.levelsFor(o.Side)
	price := *o.Price
	pl, ok := levels[price]
	if !ok {
		pl = &PriceLevel{Price: price}
		levels[price] = pl
		*prices = append(*prices, price)
		ob.resort(o.Side)
	}
	pl.Orders.PushBack(o)
}

func (ob *OrderBook) levelsFor(side models.Side) (map[int64]*PriceLevel, *[]int64) {
	if side == models.SideBuy {
		return ob.bids, &ob.bidPrices
	}
	return ob.asks, &ob.askPrices
}

func (ob *OrderBook) resort(side models.Side) {
	if side == models.SideBuy {
		sort.Slice(ob.bidPrices, func(i, j int) bool { return ob.bidPrices[i] > ob.bidPrices[j] })
		return
	}
	sort.Slice(ob.askPrices, func(i, j int) bool { return ob.askPrices[i] < ob.askPrices[j] })
}

// dropIfEmpty removes a price level once its queue drains, keeping
// bidPrices/askPrices free of stale entries for BestBid/BestAsk.
func (ob *OrderBook) dropIfEmpty(side models.Side, price int64) {
	levels, prices := ob.levelsFor(side)
	pl, ok := levels[price]
	if !ok || !pl.IsEmpty() {
		return
	}
	delete(levels, price)
	for i, p := range *prices {
		if p == price {
			*prices = append((*prices)[:i], (*prices)[i+1:]...)
			break
		}
	}
}

// BestBid returns the resting buy level with the highest price, or nil.
func (ob *OrderBook) BestBid() *PriceLevel {
	if len(ob.bidPrices) == 0 {
		return nil
	}
	return ob.bids[ob.bidPrices[0]]
}

// BestAsk returns the resting sell level with the lowest price, or nil.
func (ob *OrderBook) BestAsk() *PriceLevel {
	if len(ob.askPrices) == 0 {
		return nil
	}
	return ob.asks[ob.askPrices[0]]
}

// ConsumeBestBid pops the oldest order off the current best bid level,
// dropping the level itself once it is drained.
func (ob *OrderBook) ConsumeBestBid() *models.Order {
	pl := ob.BestBid()
	if pl == nil {
		return nil
	}
	o := pl.PopFront()
	ob.dropIfEmpty(models.SideBuy, pl.Price)
	return o
}

// ConsumeBestAsk pops the oldest order off the current best ask level,
// dropping the level itself once it is drained.
func (ob *OrderBook) ConsumeBestAsk() *models.Order {
	pl := ob.BestAsk()
	if pl == nil {
		return nil
	}
	o := pl.PopFront()
	ob.dropIfEmpty(models.SideSell, pl.Price)
	return o
}

// TopLevels returns up to limit aggregated price levels per side, for the
// public L2 order book endpoint (§6.1), capped at 25 levels per side (§4.2).
func (ob *OrderBook) TopLevels(limit int) models.L2OrderBook {
	if limit > 25 {
		limit = 25
	}
	var out models.L2OrderBook
	for i := 0; i < limit && i < len(ob.bidPrices); i++ {
		pl := ob.bids[ob.bidPrices[i]]
		out.BidLevels = append(out.BidLevels, models.Level{Price: pl.Price, Qty: pl.TotalQty()})
	}
	for i := 0; i < limit && i < len(ob.askPrices); i++ {
		pl := ob.asks[ob.askPrices[i]]
		out.AskLevels = append(out.AskLevels, models.Level{Price: pl.Price, Qty: pl.TotalQty()})
	}
	return out
}
