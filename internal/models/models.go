// Package models defines the domain types shared across the exchange:
// users, instruments, balances, orders and trades.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-set"
)

// Role is the privilege level of a User.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Kind distinguishes limit orders (resting, priced) from market orders
// (immediate, unpriced).
type Kind string

const (
	KindLimit  Kind = "LIMIT"
	KindMarket Kind = "MARKET"
)

// Status is the lifecycle state of an Order.
type Status string

const (
	StatusNew               Status = "NEW"
	StatusPartiallyExecuted Status = "PARTIALLY_EXECUTED"
	StatusExecuted          Status = "EXECUTED"
	StatusCancelled         Status = "CANCELLED"
)

// InstrumentType classifies a tradable instrument.
type InstrumentType string

const (
	InstrumentCurrency InstrumentType = "CURRENCY"
	InstrumentStock    InstrumentType = "STOCK"
)

// RUBTicker is the fixed quote currency every settlement debits/credits
// against.
const RUBTicker = "RUB"

// User identifies a registered account. Identity is a foreign key
// elsewhere (orders, trades reference UserID only) — no pointer graph.
type User struct {
	ID        uuid.UUID
	Name      string
	Role      Role
	APIKey    string
	CreatedAt time.Time
}

// Instrument is a tradable ticker.
type Instrument struct {
	Ticker    string
	Name      string
	Type      InstrumentType
	CreatedAt time.Time
}

// Balance is a (user, ticker) holding. Amount is always non-negative (I1).
type Balance struct {
	UserID    uuid.UUID
	Ticker    string
	Amount    int64
	UpdatedAt time.Time
}

// Order is a resting or terminal order. Price is present iff Kind is
// KindLimit.
type Order struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Ticker    string
	Side      Side
	Kind      Kind
	Qty       int64
	Price     *int64
	Filled    int64
	Status    Status
	Timestamp time.Time
	// Seq is a monotonic admission sequence number used to break price
	// ties deterministically (§4.3) independent of wall-clock resolution.
	// Seq is not persisted identity — it is allocated at admission time
	// from the orders table (storage.Tx.NextSeq, MAX(seq)+1) and stored
	// alongside Timestamp for tie-break.
	Seq uint64
}

// Remaining returns the unfilled quantity of the order.
func (o *Order) Remaining() int64 {
	return o.Qty - o.Filled
}

// restingStatuses is the status set an order must be in to occupy the
// book (§3: "resting iff kind=LIMIT ∧ status ∈ {NEW, PARTIALLY_EXECUTED}").
var restingStatuses = set.From([]Status{StatusNew, StatusPartiallyExecuted})

// IsResting reports whether the order currently occupies the book.
func (o *Order) IsResting() bool {
	return o.Kind == KindLimit && restingStatuses.Contains(o.Status)
}

// Trade is an immutable execution record.
type Trade struct {
	ID        int64
	Ticker    string
	Amount    int64
	Price     int64
	BuyerID   uuid.UUID
	SellerID  uuid.UUID
	Timestamp time.Time
}

// Level is a single aggregated L2 price level.
type Level struct {
	Price int64
	Qty   int64
}

// L2OrderBook is the aggregated snapshot returned by the Order Book View.
type L2OrderBook struct {
	BidLevels []Level
	AskLevels []Level
}
