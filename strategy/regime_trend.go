package strategy

import (
	"github.com/dkwon-io/regimebot/config"
	"github.com/dkwon-io/regimebot/indicator"
	"github.com/dkwon-io/regimebot/types"
)

// RegimeTrend is the long-only dual-EMA regime follower. It enters when the
// fast EMA clears the slow EMA by at least the configured gap and price
// trades above the fast EMA, and exits on stop breach or regime reversal.
type RegimeTrend struct {
	params config.StrategyParams
}

func NewRegimeTrend(params config.StrategyParams) *RegimeTrend {
	return &RegimeTrend{params: params}
}

func (s *RegimeTrend) Name() string { return "regime_trend" }

func (s *RegimeTrend) Evaluate(snap indicator.Snapshot, ec EvalContext) types.Signal {
	sym := s.params.Symbol
	bullish := snap.TrendGapPct >= s.params.MinTrendGapPct

	if pos := ec.Position; pos != nil {
		// Protect capital first: the stop check outranks the regime check.
		if stopBreached(pos, snap.Close) {
			return signal(sym, types.Exit, "trailing_stop_hit")
		}
		if !bullish {
			return signal(sym, types.Exit, "regime_exit")
		}
		return signal(sym, types.Hold, "in_position_hold")
	}

	if ec.CooldownRemaining > 0 {
		return signal(sym, types.Hold, "cooldown")
	}
	if bullish && snap.Close > snap.EMAFast {
		return signal(sym, types.EnterLong, "bullish_regime_breakout")
	}
	return signal(sym, types.Hold, "no_entry")
}
