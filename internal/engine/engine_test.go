package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tochka-exchange/internal/apperr"
	"tochka-exchange/internal/models"
)

func TestCreateOrderInput_Validate(t *testing.T) {
	price := int64(100)
	negPrice := int64(-5)

	cases := []struct {
		name    string
		in      CreateOrderInput
		wantErr bool
	}{
		{"valid limit", CreateOrderInput{Ticker: "BTC", Side: models.SideBuy, Kind: models.KindLimit, Qty: 1, Price: &price}, false},
		{"valid market", CreateOrderInput{Ticker: "BTC", Side: models.SideSell, Kind: models.KindMarket, Qty: 1}, false},
		{"bad ticker", CreateOrderInput{Ticker: "btc", Side: models.SideBuy, Kind: models.KindLimit, Qty: 1, Price: &price}, true},
		{"bad side", CreateOrderInput{Ticker: "BTC", Side: "UP", Kind: models.KindLimit, Qty: 1, Price: &price}, true},
		{"zero qty", CreateOrderInput{Ticker: "BTC", Side: models.SideBuy, Kind: models.KindLimit, Qty: 0, Price: &price}, true},
		{"limit missing price", CreateOrderInput{Ticker: "BTC", Side: models.SideBuy, Kind: models.KindLimit, Qty: 1}, true},
		{"limit negative price", CreateOrderInput{Ticker: "BTC", Side: models.SideBuy, Kind: models.KindLimit, Qty: 1, Price: &negPrice}, true},
		{"market with price", CreateOrderInput{Ticker: "BTC", Side: models.SideBuy, Kind: models.KindMarket, Qty: 1, Price: &price}, true},
		{"unknown kind", CreateOrderInput{Ticker: "BTC", Side: models.SideBuy, Kind: "STOP", Qty: 1, Price: &price}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.in.validate()
			if tc.wantErr {
				assert.Error(t, err)
				assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
