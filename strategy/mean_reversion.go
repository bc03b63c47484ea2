package strategy

import (
	"github.com/dkwon-io/regimebot/config"
	"github.com/dkwon-io/regimebot/indicator"
	"github.com/dkwon-io/regimebot/types"
)

// MeanReversion fades oversold and overbought extremes: long when RSI is
// oversold with price at or below the lower Bollinger band, short on the
// mirrored condition, exiting when price reverts to the band midline or the
// oscillator crosses the opposite threshold.
type MeanReversion struct {
	params config.StrategyParams
}

func NewMeanReversion(params config.StrategyParams) *MeanReversion {
	return &MeanReversion{params: params}
}

func (s *MeanReversion) Name() string { return "mean_reversion" }

func (s *MeanReversion) Evaluate(snap indicator.Snapshot, ec EvalContext) types.Signal {
	sym := s.params.Symbol

	if pos := ec.Position; pos != nil {
		if stopBreached(pos, snap.Close) {
			return signal(sym, types.Exit, "stop_hit")
		}
		if pos.Side == types.Long {
			if snap.RSI >= s.params.RSIOverbought {
				return signal(sym, types.Exit, "rsi_overbought")
			}
			if snap.Close >= snap.BBMiddle {
				return signal(sym, types.Exit, "bb_mid_reached")
			}
		} else {
			if snap.RSI <= s.params.RSIOversold {
				return signal(sym, types.Exit, "rsi_oversold")
			}
			if snap.Close <= snap.BBMiddle {
				return signal(sym, types.Exit, "bb_mid_reached")
			}
		}
		return signal(sym, types.Hold, "in_position_hold")
	}

	if ec.CooldownRemaining > 0 {
		return signal(sym, types.Hold, "cooldown")
	}
	if snap.RSI <= s.params.RSIOversold && snap.Close <= snap.BBLower {
		return signal(sym, types.EnterLong, "rsi_oversold_bb_lower")
	}
	if snap.RSI >= s.params.RSIOverbought && snap.Close >= snap.BBUpper {
		return signal(sym, types.EnterShort, "rsi_overbought_bb_upper")
	}
	return signal(sym, types.Hold, "no_entry")
}
