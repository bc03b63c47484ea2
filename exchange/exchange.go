// Package exchange defines the engine's view of the outside world: a candle
// provider and an order client. Real connectivity (request signing, REST/WS
// plumbing) lives elsewhere; the engine only depends on these contracts.
package exchange

import (
	"context"

	"github.com/dkwon-io/regimebot/types"
)

// CandleProvider returns the most recent limit candles for symbol/interval,
// ordered by open time. Transient failures are expected; the engine retries
// on the next tick.
type CandleProvider interface {
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]types.Candle, error)
}

// OrderClient places market orders and reports portfolio value. PlaceOrder
// returns the filled price; no position is recorded until a fill confirms.
type OrderClient interface {
	PlaceOrder(ctx context.Context, symbol string, side types.OrderSide, qty float64) (float64, error)
	GetBalance(ctx context.Context) (float64, error)
}
