// Package portfolio enforces portfolio-wide exposure ceilings across every
// symbol's execution loop. The allocator is the single synchronization point
// for aggregate risk: check-then-open is atomic under its mutex, so two
// concurrent approvals can never jointly exceed the ceiling.
package portfolio

import (
	"sync"

	"github.com/dkwon-io/regimebot/config"
	"github.com/dkwon-io/regimebot/position"
	"github.com/dkwon-io/regimebot/types"
)

// Rejection reasons surfaced to the caller's signal log.
const (
	ReasonTotalExposure     = "total-exposure-exceeded"
	ReasonSingleAssetWeight = "single-asset-weight-exceeded"
)

// Reservation is an exposure hold taken before the order round-trips to the
// exchange. Commit converts it into an open position; Release drops it when
// the order fails. Either way the hold is consumed exactly once.
type Reservation struct {
	trade          types.ProposedTrade
	portfolioValue float64
	done           bool
}

// Allocator aggregates exposure across all symbols. Reserving counts the
// proposal against the ceiling immediately, so the lock never spans the
// order-placement I/O.
type Allocator struct {
	mu       sync.Mutex
	limits   config.RiskLimits
	store    *position.Store
	reserved float64
}

func NewAllocator(limits config.RiskLimits, store *position.Store) *Allocator {
	return &Allocator{limits: limits, store: store}
}

// Reserve checks the proposal against the portfolio ceilings and, when it
// passes, holds its dollar amount against the exposure budget. Returns a
// types.Rejection when a ceiling would be breached.
func (a *Allocator) Reserve(trade types.ProposedTrade, portfolioValue float64) (*Reservation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if trade.DollarAmount > a.limits.MaxSingleAssetWeightPct*portfolioValue {
		return nil, types.Rejection{Reason: ReasonSingleAssetWeight}
	}
	current := a.store.OpenExposure() + a.reserved
	if current+trade.DollarAmount > a.limits.MaxTotalExposureUSD {
		return nil, types.Rejection{Reason: ReasonTotalExposure}
	}
	a.reserved += trade.DollarAmount
	return &Reservation{trade: trade, portfolioValue: portfolioValue}, nil
}

// Commit opens the reserved trade in the position store and releases the
// hold. trade may differ from the reserved proposal in fill price, so the
// ceilings are re-checked against the fill-adjusted dollar amount: adverse
// slippage between reserve and fill must not push exposure through a limit.
// On a re-check rejection the hold is released and no position is opened; the
// caller owns the already-filled order and must unwind it.
func (a *Allocator) Commit(res *Reservation, trade types.ProposedTrade) (types.Position, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !res.done {
		a.reserved -= res.trade.DollarAmount
		res.done = true
	}
	if trade.DollarAmount > a.limits.MaxSingleAssetWeightPct*res.portfolioValue {
		return types.Position{}, types.Rejection{Reason: ReasonSingleAssetWeight}
	}
	if a.store.OpenExposure()+a.reserved+trade.DollarAmount > a.limits.MaxTotalExposureUSD {
		return types.Position{}, types.Rejection{Reason: ReasonTotalExposure}
	}
	return a.store.Open(trade)
}

// Release drops the hold without opening a position, used when order
// placement fails after approval.
func (a *Allocator) Release(res *Reservation) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !res.done {
		a.reserved -= res.trade.DollarAmount
		res.done = true
	}
}

// Limits returns the read-only limits the allocator was built with.
func (a *Allocator) Limits() config.RiskLimits { return a.limits }
