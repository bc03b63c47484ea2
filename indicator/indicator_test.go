package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/dkwon-io/regimebot/types"
)

func testParams() Params {
	return Params{
		EMAFastPeriod:  9,
		EMASlowPeriod:  21,
		ATRPeriod:      14,
		RSIPeriod:      14,
		BBPeriod:       20,
		BBStdDev:       2.0,
		VolumeMAPeriod: 20,
	}
}

// candleSeries builds an ordered sequence from closing prices, with a small
// symmetric high/low range and constant volume.
func candleSeries(closes []float64) []types.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]types.Candle, len(closes))
	for i, c := range closes {
		out[i] = types.Candle{
			OpenTime: start.Add(time.Duration(i) * time.Minute),
			Open:     c,
			High:     c + 0.5,
			Low:      c - 0.5,
			Close:    c,
			Volume:   1000,
		}
	}
	return out
}

func constSeries(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestComputeInsufficientHistory(t *testing.T) {
	p := testParams()
	candles := candleSeries(constSeries(100, MinBars(p)-1))
	if _, err := Compute(candles, p); err != ErrInsufficientHistory {
		t.Fatalf("expected ErrInsufficientHistory, got %v", err)
	}
}

func TestComputeUnorderedHistory(t *testing.T) {
	p := testParams()
	candles := candleSeries(constSeries(100, MinBars(p)+5))
	candles[3].OpenTime = candles[10].OpenTime.Add(time.Hour)
	if _, err := Compute(candles, p); err != ErrUnorderedHistory {
		t.Fatalf("expected ErrUnorderedHistory, got %v", err)
	}
}

// For a constant price series of value v the EMA equals v once seeded.
func TestEMAConstantSeries(t *testing.T) {
	p := testParams()
	const v = 250.0
	snap, err := Compute(candleSeries(constSeries(v, 60)), p)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if math.Abs(snap.EMAFast-v) > 1e-9 {
		t.Fatalf("fast EMA of constant series should be %v, got %v", v, snap.EMAFast)
	}
	if math.Abs(snap.EMASlow-v) > 1e-9 {
		t.Fatalf("slow EMA of constant series should be %v, got %v", v, snap.EMASlow)
	}
	if math.Abs(snap.TrendGapPct) > 1e-12 {
		t.Fatalf("constant series must have zero trend gap, got %v", snap.TrendGapPct)
	}
}

func TestRSIBounds(t *testing.T) {
	p := testParams()
	series := [][]float64{
		// steady uptrend: average loss is zero, RSI must be exactly 100
		func() []float64 {
			out := make([]float64, 60)
			for i := range out {
				out[i] = 100 + float64(i)
			}
			return out
		}(),
		// steady downtrend
		func() []float64 {
			out := make([]float64, 60)
			for i := range out {
				out[i] = 200 - float64(i)
			}
			return out
		}(),
		// alternating
		func() []float64 {
			out := make([]float64, 60)
			for i := range out {
				out[i] = 100 + float64(i%2)*3
			}
			return out
		}(),
	}
	for i, closes := range series {
		snap, err := Compute(candleSeries(closes), p)
		if err != nil {
			t.Fatalf("series %d: compute: %v", i, err)
		}
		if snap.RSI < 0 || snap.RSI > 100 {
			t.Fatalf("series %d: RSI out of bounds: %v", i, snap.RSI)
		}
	}
	up, err := Compute(candleSeries(series[0]), p)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if math.Abs(up.RSI-100) > 1e-9 {
		t.Fatalf("pure uptrend should yield RSI 100, got %v", up.RSI)
	}
}

func TestUptrendRegimeGap(t *testing.T) {
	p := testParams()
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 50_000 + 100*float64(i)
	}
	snap, err := Compute(candleSeries(closes), p)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if snap.EMAFast <= snap.EMASlow {
		t.Fatalf("fast EMA should lead slow EMA in an uptrend: fast=%v slow=%v",
			snap.EMAFast, snap.EMASlow)
	}
	if snap.TrendGapPct <= 0.001 {
		t.Fatalf("trend gap should clear 0.1%% in a strong uptrend, got %v", snap.TrendGapPct)
	}
	if snap.ATR <= 0 {
		t.Fatalf("ATR must be positive, got %v", snap.ATR)
	}
}

func TestBollingerOrdering(t *testing.T) {
	p := testParams()
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + 5*math.Sin(float64(i)/4)
	}
	snap, err := Compute(candleSeries(closes), p)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !(snap.BBLower < snap.BBMiddle && snap.BBMiddle < snap.BBUpper) {
		t.Fatalf("band ordering violated: lower=%v mid=%v upper=%v",
			snap.BBLower, snap.BBMiddle, snap.BBUpper)
	}
}

// Identical input must produce identical output.
func TestComputeDeterministic(t *testing.T) {
	p := testParams()
	closes := make([]float64, 70)
	for i := range closes {
		closes[i] = 100 + 3*math.Sin(float64(i)/3) + float64(i)*0.2
	}
	a, err := Compute(candleSeries(closes), p)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	b, err := Compute(candleSeries(closes), p)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if a != b {
		t.Fatalf("snapshots differ for identical input:\n%+v\n%+v", a, b)
	}
}
