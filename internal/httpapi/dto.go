package httpapi

import (
	"time"

	"tochka-exchange/internal/models"
)

type registerRequest struct {
	Name string `json:"name"`
}

type userResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	APIKey string `json:"api_key"`
}

type instrumentResponse struct {
	Name   string `json:"name"`
	Ticker string `json:"ticker"`
}

type levelResponse struct {
	Price int64 `json:"price"`
	Qty   int64 `json:"qty"`
}

type orderBookResponse struct {
	BidLevels []levelResponse `json:"bid_levels"`
	AskLevels []levelResponse `json:"ask_levels"`
}

func toOrderBookResponse(book models.L2OrderBook) orderBookResponse {
	resp := orderBookResponse{}
	for _, l := range book.BidLevels {
		resp.BidLevels = append(resp.BidLevels, levelResponse{Price: l.Price, Qty: l.Qty})
	}
	for _, l := range book.AskLevels {
		resp.AskLevels = append(resp.AskLevels, levelResponse{Price: l.Price, Qty: l.Qty})
	}
	return resp
}

type tradeResponse struct {
	Ticker    string    `json:"ticker"`
	Amount    int64     `json:"amount"`
	Price     int64     `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

func toTradeResponse(t *models.Trade) tradeResponse {
	return tradeResponse{Ticker: t.Ticker, Amount: t.Amount, Price: t.Price, Timestamp: t.Timestamp.UTC()}
}

type createOrderRequest struct {
	Direction string `json:"direction"`
	Ticker    string `json:"ticker"`
	Qty       int64  `json:"qty"`
	Price     *int64 `json:"price,omitempty"`
}

type createOrderResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"order_id"`
}

type orderResponse struct {
	ID        string  `json:"id"`
	Ticker    string  `json:"ticker"`
	Direction string  `json:"direction"`
	Kind      string  `json:"kind"`
	Qty       int64   `json:"qty"`
	Price     *int64  `json:"price,omitempty"`
	Filled    int64   `json:"filled"`
	Status    string  `json:"status"`
	Timestamp string  `json:"timestamp"`
}

func toOrderResponse(o *models.Order) orderResponse {
	return orderResponse{
		ID:        o.ID.String(),
		Ticker:    o.Ticker,
		Direction: string(o.Side),
		Kind:      string(o.Kind),
		Qty:       o.Qty,
		Price:     o.Price,
		Filled:    o.Filled,
		Status:    string(o.Status),
		Timestamp: o.Timestamp.UTC().Format(time.RFC3339),
	}
}

type depositRequest struct {
	UserID string `json:"user_id"`
	Ticker string `json:"ticker"`
	Amount int64  `json:"amount"`
}

type createInstrumentRequest struct {
	Name   string `json:"name"`
	Ticker string `json:"ticker"`
	Type   string `json:"type"`
}

type okResponse struct {
	Success bool `json:"success"`
}
