// Package indicator computes the per-tick indicator snapshot the evaluators
// consume. All functions are pure and deterministic for identical input,
// which keeps backtest and live evaluation in parity.
package indicator

import (
	"errors"
	"math"

	talib "github.com/markcheno/go-talib"

	"github.com/dkwon-io/regimebot/types"
)

// ErrInsufficientHistory is returned when fewer candles are supplied than the
// longest configured period needs. Recoverable: skip the tick and retry.
var ErrInsufficientHistory = errors.New("insufficient candle history")

// ErrUnorderedHistory is returned when the candle sequence is not sorted by
// open time.
var ErrUnorderedHistory = errors.New("candle history not ordered by open time")

// Params selects the periods for every indicator in the snapshot.
type Params struct {
	EMAFastPeriod  int
	EMASlowPeriod  int
	ATRPeriod      int
	RSIPeriod      int
	BBPeriod       int
	BBStdDev       float64
	VolumeMAPeriod int
}

// Snapshot holds the indicator values at the latest closed candle. Derived,
// never persisted; recomputed on every tick.
type Snapshot struct {
	Close       float64
	EMAFast     float64
	EMASlow     float64
	ATR         float64
	RSI         float64
	BBUpper     float64
	BBMiddle    float64
	BBLower     float64
	VolumeMA    float64
	TrendGapPct float64
}

// MinBars is the smallest history length Compute accepts for p.
func MinBars(p Params) int {
	longest := p.EMASlowPeriod
	for _, n := range []int{p.EMAFastPeriod, p.ATRPeriod, p.RSIPeriod, p.BBPeriod, p.VolumeMAPeriod} {
		if n > longest {
			longest = n
		}
	}
	return longest + 1
}

// Compute evaluates every indicator over the ordered candle sequence and
// returns the snapshot at the last candle.
//
// EMA is seeded with a simple moving average over the first period candles,
// then follows ema[t] = ema[t-1] + k*(close[t]-ema[t-1]) with k = 2/(period+1).
// ATR and RSI use Wilder smoothing; RSI is 100 when the average loss is zero.
func Compute(candles []types.Candle, p Params) (Snapshot, error) {
	if len(candles) < MinBars(p) {
		return Snapshot{}, ErrInsufficientHistory
	}

	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		if i > 0 && c.OpenTime.Before(candles[i-1].OpenTime) {
			return Snapshot{}, ErrUnorderedHistory
		}
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
		volumes[i] = c.Volume
	}

	emaFast := talib.Ema(closes, p.EMAFastPeriod)
	emaSlow := talib.Ema(closes, p.EMASlowPeriod)
	atr := talib.Atr(highs, lows, closes, p.ATRPeriod)
	rsi := talib.Rsi(closes, p.RSIPeriod)
	upper, middle, lower := talib.BBands(closes, p.BBPeriod, p.BBStdDev, p.BBStdDev, talib.SMA)
	volMA := talib.Sma(volumes, p.VolumeMAPeriod)

	last := len(candles) - 1
	snap := Snapshot{
		Close:    closes[last],
		EMAFast:  emaFast[last],
		EMASlow:  emaSlow[last],
		ATR:      atr[last],
		RSI:      rsi[last],
		BBUpper:  upper[last],
		BBMiddle: middle[last],
		BBLower:  lower[last],
		VolumeMA: volMA[last],
	}
	if snap.EMASlow != 0 {
		snap.TrendGapPct = (snap.EMAFast - snap.EMASlow) / snap.EMASlow
	}
	if !snap.valid() {
		return Snapshot{}, ErrInsufficientHistory
	}
	return snap, nil
}

func (s Snapshot) valid() bool {
	for _, v := range []float64{s.Close, s.EMAFast, s.EMASlow, s.ATR, s.RSI, s.BBUpper, s.BBLower, s.VolumeMA} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
