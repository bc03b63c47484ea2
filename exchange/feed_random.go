package exchange

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/dkwon-io/regimebot/types"
)

// RandomFeed synthesizes a random-walk candle history per symbol, extending
// it by one bar per GetCandles call. It exists so the paper binary can run
// the full pipeline without real market connectivity.
type RandomFeed struct {
	mu      sync.Mutex
	rng     *rand.Rand
	vol     float64
	series  map[string][]types.Candle
	started time.Time
}

// NewRandomFeed seeds each requested symbol's walk at startPrice with the
// given per-bar volatility fraction (e.g. 0.005 = 0.5%).
func NewRandomFeed(seed int64, vol float64) *RandomFeed {
	return &RandomFeed{
		rng:     rand.New(rand.NewSource(seed)),
		vol:     vol,
		series:  make(map[string][]types.Candle),
		started: time.Now().UTC().Truncate(time.Minute),
	}
}

func (f *RandomFeed) GetCandles(_ context.Context, symbol, _ string, limit int) ([]types.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	candles := f.series[symbol]
	if len(candles) == 0 {
		candles = f.seedHistory(limit)
	} else {
		candles = append(candles, f.nextBar(candles[len(candles)-1]))
	}
	// Keep only the window callers ask for, copied so the backing array of
	// the untrimmed walk can be collected.
	if len(candles) > limit {
		trimmed := make([]types.Candle, limit)
		copy(trimmed, candles[len(candles)-limit:])
		candles = trimmed
	}
	f.series[symbol] = candles

	out := make([]types.Candle, len(candles))
	copy(out, candles)
	return out, nil
}

func (f *RandomFeed) seedHistory(limit int) []types.Candle {
	out := make([]types.Candle, 0, limit)
	last := types.Candle{
		OpenTime: f.started.Add(-time.Duration(limit) * time.Minute),
		Open:     20_000, High: 20_050, Low: 19_950, Close: 20_000, Volume: 1_000,
	}
	out = append(out, last)
	for len(out) < limit {
		last = f.nextBar(last)
		out = append(out, last)
	}
	return out
}

func (f *RandomFeed) nextBar(prev types.Candle) types.Candle {
	open := prev.Close
	ret := (f.rng.Float64() - 0.5) * 2 * f.vol
	close := open * (1 + ret)
	high := maxf(open, close) * (1 + f.rng.Float64()*f.vol*0.5)
	low := minf(open, close) * (1 - f.rng.Float64()*f.vol*0.5)
	return types.Candle{
		OpenTime: prev.OpenTime.Add(time.Minute),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    close,
		Volume:   10_000 + f.rng.Float64()*5_000,
	}
}

func maxf(a, b float64) float64 {
	if a < b {
		return b
	}
	return a
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
