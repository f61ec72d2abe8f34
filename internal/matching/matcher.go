// Package matching implements price-time priority matching (§4.3),
// generalizing the teacher's internal/engine/matcher.go from
// decimal-quantity symbols to integer-quantity tickers. Candidates arrive
// already ordered by storage.Tx.ListResting — price, then admission
// sequence, then order id byte order as a final tiebreak (§9 open
// question #4) — so the matcher itself only ever needs the head of each
// price level.
package matching

import (
	"time"

	"tochka-exchange/internal/models"
	"tochka-exchange/internal/orderbook"
)

// Fill records one resting order's participation in a trade produced
// while matching an incoming order.
type Fill struct {
	RestingOrder *models.Order
	Qty          int64
	Price        int64
}

// Result is the outcome of matching one incoming order against a book.
type Result struct {
	Fills          []Fill
	IncomingFilled int64 // cumulative quantity filled on the incoming order
}

// Match consumes book in place, matching incoming against its resting
// orders. The caller (internal/engine) is responsible for admission
// checks, persisting updated orders/trades, and settlement — Match only
// computes the matching decision (§4.3's "matching loop" and "candidate
// selection").
func Match(incoming *models.Order, book *orderbook.OrderBook) Result {
	return MatchWithBudget(incoming, book, nil)
}

// MatchWithBudget is Match with an optional per-fill affordability check.
// canAfford, if non-nil, is consulted before a candidate fill is applied
// with the proposed (qty, price); returning false stops the loop without
// consuming that candidate, leaving it resting. This realizes the
// live-balance-check-and-abort strategy chosen for MARKET BUY admission
// (§9 open question #1): a market buy's RUB balance is only a lower-bound
// guess at admission, so each fill is re-checked against the live balance
// as the sweep proceeds instead of reserving funds up front.
func MatchWithBudget(incoming *models.Order, book *orderbook.OrderBook, canAfford func(qty, price int64) bool) Result {
	var res Result

	for res.IncomingFilled < incoming.Qty {
		remaining := incoming.Qty - res.IncomingFilled

		var resting *models.Order
		if incoming.Side == models.SideBuy {
			resting = bestMatchingAsk(incoming, book)
		} else {
			resting = bestMatchingBid(incoming, book)
		}
		if resting == nil {
			return res
		}

		restingRemaining := resting.Remaining()
		qty := remaining
		if restingRemaining < qty {
			qty = restingRemaining
		}

		// Price-time priority: the resting order sets the execution price
		// regardless of which side is incoming or what kind it is (§4.3).
		price := *resting.Price

		if canAfford != nil && !canAfford(qty, price) {
			return res
		}

		resting.Filled += qty
		incoming.Filled += qty
		res.IncomingFilled += qty
		res.Fills = append(res.Fills, Fill{RestingOrder: resting, Qty: qty, Price: price})

		if resting.Remaining() == 0 {
			resting.Status = models.StatusExecuted
			if incoming.Side == models.SideBuy {
				book.ConsumeBestAsk()
			} else {
				book.ConsumeBestBid()
			}
		} else {
			resting.Status = models.StatusPartiallyExecuted
		}
	}

	return res
}

func bestMatchingAsk(incoming *models.Order, book *orderbook.OrderBook) *models.Order {
	pl := book.BestAsk()
	if pl == nil {
		return nil
	}
	ask := pl.Front()
	if incoming.Kind == models.KindMarket {
		return ask
	}
	if *incoming.Price >= *ask.Price {
		return ask
	}
	return nil
}

func bestMatchingBid(incoming *models.Order, book *orderbook.OrderBook) *models.Order {
	pl := book.BestBid()
	if pl == nil {
		return nil
	}
	bid := pl.Front()
	if incoming.Kind == models.KindMarket {
		return bid
	}
	if *incoming.Price <= *bid.Price {
		return bid
	}
	return nil
}

// TerminalStatus decides the incoming order's own status once matching
// stops (§4.3). A LIMIT order with leftover quantity rests on the book as
// NEW or PARTIALLY_EXECUTED; a MARKET order never rests — an unfilled
// MARKET order is CANCELLED rather than left NEW.
func TerminalStatus(o *models.Order) models.Status {
	if o.Remaining() == 0 {
		return models.StatusExecuted
	}
	if o.Kind == models.KindMarket {
		if o.Filled > 0 {
			return models.StatusPartiallyExecuted
		}
		return models.StatusCancelled
	}
	if o.Filled > 0 {
		return models.StatusPartiallyExecuted
	}
	return models.StatusNew
}

// NewTrade builds the settlement-bound Trade record for one fill,
// resolving buyer/seller ids from incoming side and resting counterparty.
func NewTrade(ticker string, incoming *models.Order, f Fill, now time.Time) *models.Trade {
	buyer, seller := incoming.UserID, f.RestingOrder.UserID
	if incoming.Side == models.SideSell {
		buyer, seller = f.RestingOrder.UserID, incoming.UserID
	}
	return &models.Trade{
		Ticker:    ticker,
		Amount:    f.Qty,
		Price:     f.Price,
		BuyerID:   buyer,
		SellerID:  seller,
		Timestamp: now,
	}
}
