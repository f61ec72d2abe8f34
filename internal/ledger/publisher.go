// Package ledger publishes an audit trail of executed trades to an AMQP
// exchange, a best-effort supplemental feature (original_source's trade
// events were only ever written to the relational ledger; this adds an
// external audit stream without changing matching/settlement semantics
// or exposing streaming market data, which §1 excludes).
//
// Grounded on EggsyOnCode-anomi/storage/rabbitmq.go's
// Dial/Channel/QueueDeclare/Publish wrapper around
// github.com/rabbitmq/amqp091-go, adapted to a fire-and-forget
// publisher that must never block or fail order placement.
package ledger

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"tochka-exchange/internal/models"
)

const tradeExchange = "tochka.trades"

// Publisher best-effort publishes trade events to AMQP. A disconnected
// Publisher (as returned by Connect with an empty url or a failed dial) is
// valid and simply drops events — the trading path never depends on the
// broker being reachable.
type Publisher struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	log  zerolog.Logger
}

// Connect dials url and declares the trade exchange. If url is empty or
// the dial fails, Connect returns a disabled Publisher and logs a
// warning rather than an error — the broker is an optional collaborator.
func Connect(url string, log zerolog.Logger) *Publisher {
	if url == "" {
		return &Publisher{log: log}
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		log.Warn().Err(err).Msg("ledger publisher: failed to connect to amqp broker, trade events disabled")
		return &Publisher{log: log}
	}
	ch, err := conn.Channel()
	if err != nil {
		log.Warn().Err(err).Msg("ledger publisher: failed to open amqp channel, trade events disabled")
		conn.Close()
		return &Publisher{log: log}
	}
	if err := ch.ExchangeDeclare(tradeExchange, "fanout", true, false, false, false, nil); err != nil {
		log.Warn().Err(err).Msg("ledger publisher: failed to declare exchange, trade events disabled")
		ch.Close()
		conn.Close()
		return &Publisher{log: log}
	}

	return &Publisher{conn: conn, ch: ch, log: log}
}

// Close releases the underlying channel/connection, if any.
func (p *Publisher) Close() {
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

type tradeEvent struct {
	Ticker    string    `json:"ticker"`
	Amount    int64     `json:"amount"`
	Price     int64     `json:"price"`
	BuyerID   string    `json:"buyer_id"`
	SellerID  string    `json:"seller_id"`
	Timestamp time.Time `json:"timestamp"`
}

// PublishTrades fire-and-forgets a batch of executed trades. Errors are
// logged, never returned — a broker outage must not roll back a
// committed settlement (§4.5's atomicity is already final by the time
// this runs).
func (p *Publisher) PublishTrades(ctx context.Context, trades []*models.Trade) {
	if p.ch == nil || len(trades) == 0 {
		return
	}
	for _, tr := range trades {
		body, err := json.Marshal(tradeEvent{
			Ticker:    tr.Ticker,
			Amount:    tr.Amount,
			Price:     tr.Price,
			BuyerID:   tr.BuyerID.String(),
			SellerID:  tr.SellerID.String(),
			Timestamp: tr.Timestamp,
		})
		if err != nil {
			p.log.Warn().Err(err).Msg("ledger publisher: failed to marshal trade event")
			continue
		}
		err = p.ch.PublishWithContext(ctx, tradeExchange, "", false, false, amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
			Timestamp:   tr.Timestamp,
		})
		if err != nil {
			p.log.Warn().Err(err).Msg("ledger publisher: failed to publish trade event")
		}
	}
}
