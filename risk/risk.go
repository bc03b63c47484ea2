// Package risk converts signals into risk-sized trade proposals.
package risk

import (
	"math"

	"github.com/dkwon-io/regimebot/config"
	"github.com/dkwon-io/regimebot/indicator"
	"github.com/dkwon-io/regimebot/types"
)

// Size turns an entry signal into a proposed trade. Pure function of its
// inputs; it never mutates state.
//
// The initial stop sits InitialStopATRMult ATRs away from entry, the dollar
// risk is RiskPerTradePct of portfolio value, and quantity is risk divided by
// stop distance. A types.Rejection is returned for proposals that cannot be
// traded; anything else is a programming error upstream.
func Size(sig types.Signal, snap indicator.Snapshot, portfolioValue float64,
	limits config.RiskLimits, params config.StrategyParams) (types.ProposedTrade, error) {

	var side types.Side
	switch sig.Kind {
	case types.EnterLong:
		side = types.Long
	case types.EnterShort:
		side = types.Short
	default:
		return types.ProposedTrade{}, types.Rejection{Reason: "not_an_entry_signal"}
	}

	entry := snap.Close
	if !isFinitePositive(entry) {
		return types.ProposedTrade{}, types.Rejection{Reason: "invalid_entry_price"}
	}
	if !isFinitePositive(snap.ATR) {
		return types.ProposedTrade{}, types.Rejection{Reason: "invalid_atr"}
	}
	if !isFinitePositive(portfolioValue) {
		return types.ProposedTrade{}, types.Rejection{Reason: "invalid_portfolio_value"}
	}

	stop := entry - side.Sign()*params.InitialStopATRMult*snap.ATR
	stopDist := math.Abs(entry - stop)
	if stopDist <= 0 {
		return types.ProposedTrade{}, types.Rejection{Reason: "zero_stop_distance"}
	}

	riskUSD := portfolioValue * limits.RiskPerTradePct
	quantity := riskUSD / stopDist
	dollarAmount := quantity * entry
	if dollarAmount < limits.MinOrderUSD {
		return types.ProposedTrade{}, types.Rejection{Reason: "below_min_order"}
	}

	return types.ProposedTrade{
		Symbol:           sig.Symbol,
		Side:             side,
		EntryPrice:       entry,
		Quantity:         quantity,
		DollarAmount:     dollarAmount,
		InitialStopPrice: stop,
		TrailingATRMult:  params.TrailingStopATRMult,
		Reason:           sig.Reason,
	}, nil
}

func isFinitePositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
