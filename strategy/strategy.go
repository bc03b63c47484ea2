// Package strategy holds the closed set of signal evaluators. An evaluator is
// a state machine over two states, flat and in-position, driven entirely by
// the current indicator snapshot plus the per-symbol strategy state the
// execution loop owns. Evaluators never touch price history or shared state.
package strategy

import (
	"fmt"
	"time"

	"github.com/dkwon-io/regimebot/config"
	"github.com/dkwon-io/regimebot/indicator"
	"github.com/dkwon-io/regimebot/types"
)

// EvalContext carries the only mutable inputs an evaluator may read: the
// remaining cooldown and the open position for this symbol, if any.
type EvalContext struct {
	CooldownRemaining int
	Position          *types.Position
}

// Evaluator turns an indicator snapshot into a trading signal.
type Evaluator interface {
	Name() string
	Evaluate(snap indicator.Snapshot, ec EvalContext) types.Signal
}

// New selects an evaluator implementation at construction time. The set is
// closed; unknown names are a configuration error.
func New(params config.StrategyParams) (Evaluator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	switch params.Strategy {
	case "", "regime_trend":
		return NewRegimeTrend(params), nil
	case "mean_reversion":
		return NewMeanReversion(params), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", params.Strategy)
	}
}

// IndicatorParams maps the configured periods onto the indicator contract.
func IndicatorParams(p config.StrategyParams) indicator.Params {
	return indicator.Params{
		EMAFastPeriod:  p.EMAFastPeriod,
		EMASlowPeriod:  p.EMASlowPeriod,
		ATRPeriod:      p.ATRPeriod,
		RSIPeriod:      p.RSIPeriod,
		BBPeriod:       p.BBPeriod,
		BBStdDev:       p.BBStdDev,
		VolumeMAPeriod: p.VolumeMAPeriod,
	}
}

func signal(symbol string, kind types.SignalKind, reason string) types.Signal {
	return types.Signal{
		Symbol:      symbol,
		Kind:        kind,
		Reason:      reason,
		GeneratedAt: time.Now().UTC(),
	}
}

// stopBreached reports whether price has crossed the protective stop of pos.
// The stop check always runs before any regime or target logic.
func stopBreached(pos *types.Position, price float64) bool {
	stop := pos.StopPrice()
	if stop == 0 {
		return false
	}
	if pos.Side == types.Long {
		return price <= stop
	}
	return price >= stop
}
