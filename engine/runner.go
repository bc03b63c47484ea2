package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkwon-io/regimebot/config"
	"github.com/dkwon-io/regimebot/indicator"
	"github.com/dkwon-io/regimebot/logger"
	"github.com/dkwon-io/regimebot/metrics"
	"github.com/dkwon-io/regimebot/position"
	"github.com/dkwon-io/regimebot/risk"
	"github.com/dkwon-io/regimebot/strategy"
	"github.com/dkwon-io/regimebot/types"
)

// State is the per-symbol strategy state. It is owned by the symbol's runner;
// the engine only touches it under the runner's lock for rehydration and
// manual overrides.
type State struct {
	BarsSinceTrade    int
	CooldownRemaining int
	PositionID        string
}

// runner drives one symbol's tick loop. Everything per-symbol lives here so
// loops never contend with each other; the allocator is the only shared
// boundary.
type runner struct {
	eng  *Engine
	eval strategy.Evaluator

	mu         sync.Mutex
	params     config.StrategyParams
	pending    *config.StrategyParams
	state      State
	lastSignal types.Signal
}

func newRunner(eng *Engine, params config.StrategyParams) (*runner, error) {
	eval, err := strategy.New(params)
	if err != nil {
		return nil, err
	}
	return &runner{eng: eng, eval: eval, params: params}, nil
}

// run executes the tick pipeline once per interval until ctx is cancelled.
// Cancellation is only observed between ticks: an in-flight tick always
// finishes its mutations.
func (r *runner) run(ctx context.Context) {
	interval := r.loopInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		r.tick(ctx)
		if next := r.loopInterval(); next != interval {
			interval = next
			ticker.Reset(interval)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *runner) loopInterval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Duration(r.params.LoopSeconds) * time.Second
}

// applyPending swaps in hot-reloaded parameters at the tick boundary, never
// mid-pipeline. A change of strategy variant rebuilds the evaluator.
func (r *runner) applyPending() config.StrategyParams {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending != nil {
		next := *r.pending
		r.pending = nil
		if next.Strategy != r.params.Strategy {
			if eval, err := strategy.New(next); err == nil {
				r.eval = eval
			} else {
				r.eng.log.Error("strategy_rebuild_failed",
					logger.String("symbol", r.params.Symbol),
					logger.Err(err),
				)
				return r.params
			}
		}
		r.params = next
		r.eng.log.Info("params_reloaded", logger.String("symbol", r.params.Symbol))
	}
	return r.params
}

// tick runs the full pipeline: fetch, indicators, trail update, evaluate,
// size, approve, execute, persist. Every failure is contained to this tick.
func (r *runner) tick(ctx context.Context) {
	p := r.applyPending()
	sym := p.Symbol

	cctx, cancel := context.WithTimeout(ctx, r.eng.callTimeout)
	candles, err := r.eng.candles.GetCandles(cctx, sym, p.Interval, p.LookbackBars)
	cancel()
	if err != nil {
		r.eng.log.Warn("candle_fetch_failed", logger.String("symbol", sym), logger.Err(err))
		metrics.TickErrors.WithLabelValues(sym).Inc()
		return
	}
	if len(candles) == 0 {
		r.eng.log.Warn("no_candle_data", logger.String("symbol", sym))
		metrics.TickErrors.WithLabelValues(sym).Inc()
		return
	}

	snap, err := indicator.Compute(candles, strategy.IndicatorParams(p))
	if err != nil {
		if errors.Is(err, indicator.ErrInsufficientHistory) {
			r.eng.log.Info("insufficient_history", logger.String("symbol", sym),
				logger.Int("bars", len(candles)))
		} else {
			r.eng.log.Warn("indicator_error", logger.String("symbol", sym), logger.Err(err))
		}
		metrics.TickErrors.WithLabelValues(sym).Inc()
		return
	}

	if ms, ok := r.eng.orders.(markSetter); ok {
		ms.SetMark(sym, snap.Close)
	}

	cctx, cancel = context.WithTimeout(ctx, r.eng.callTimeout)
	balance, err := r.eng.orders.GetBalance(cctx)
	cancel()
	if err != nil {
		r.eng.log.Warn("balance_fetch_failed", logger.String("symbol", sym), logger.Err(err))
		metrics.TickErrors.WithLabelValues(sym).Inc()
		return
	}
	metrics.EquityGauge.Set(balance)

	pos := r.refreshPosition(snap)

	sig := r.eval.Evaluate(snap, strategy.EvalContext{
		CooldownRemaining: r.cooldownRemaining(),
		Position:          pos,
	})
	metrics.SignalsTotal.WithLabelValues(sym, string(sig.Kind)).Inc()
	r.setLastSignal(sig)

	switch sig.Kind {
	case types.EnterLong, types.EnterShort:
		r.enter(ctx, sig, snap, balance, p)
	case types.Exit:
		if pos != nil {
			r.exit(ctx, pos, sig)
		} else {
			r.advanceBar()
		}
	default:
		r.eng.log.Info("signal_hold",
			logger.String("symbol", sym),
			logger.String("reason", sig.Reason),
			logger.Float64("close", snap.Close),
		)
		r.advanceBar()
	}

	r.eng.persistPositions()
}

// refreshPosition re-reads the open position, marks it at the latest close
// and tightens the trailing stop before evaluation. Returns nil when flat.
func (r *runner) refreshPosition(snap indicator.Snapshot) *types.Position {
	id := r.positionID()
	if id == "" {
		return nil
	}
	if err := r.eng.store.UpdateTrailingStop(id, snap.Close, snap.ATR); err != nil {
		// The store disagrees with our state: drop the stale link, never
		// corrupt the store.
		r.eng.log.Error("trailing_update_failed",
			logger.String("symbol", r.symbol()),
			logger.String("position_id", id),
			logger.Err(err),
		)
		r.clearPosition(0)
		return nil
	}
	pos, err := r.eng.store.Get(id)
	if err != nil || pos.Status != types.StatusOpen {
		r.clearPosition(0)
		return nil
	}
	return &pos
}

func (r *runner) enter(ctx context.Context, sig types.Signal, snap indicator.Snapshot,
	balance float64, p config.StrategyParams) {

	sym := p.Symbol
	trade, err := risk.Size(sig, snap, balance, r.eng.alloc.Limits(), p)
	if err != nil {
		r.logRejection(sym, "risk_rejected", err)
		r.advanceBar()
		return
	}

	res, err := r.eng.alloc.Reserve(trade, balance)
	if err != nil {
		r.logRejection(sym, "allocator_rejected", err)
		r.advanceBar()
		return
	}

	cctx, cancel := context.WithTimeout(ctx, r.eng.callTimeout)
	fill, err := r.eng.orders.PlaceOrder(cctx, sym, trade.Side.EntryOrderSide(), trade.Quantity)
	cancel()
	if err != nil {
		// No fill confirmed: release the exposure hold and leave the
		// strategy state untouched so the entry retries next tick.
		r.eng.alloc.Release(res)
		r.eng.log.Warn("entry_order_failed", logger.String("symbol", sym), logger.Err(err))
		metrics.TickErrors.WithLabelValues(sym).Inc()
		r.advanceBar()
		return
	}
	metrics.OrdersSubmitted.WithLabelValues(sym, string(trade.Side.EntryOrderSide())).Inc()

	filled := trade
	filled.EntryPrice = fill
	filled.DollarAmount = fill * trade.Quantity

	pos, err := r.eng.alloc.Commit(res, filled)
	switch {
	case err == nil:
	case errors.Is(err, position.ErrAuditAppend):
		// The position is live; a failed audit write must not orphan it.
		r.eng.log.Warn("trade_log_append_failed", logger.String("symbol", sym), logger.Err(err))
	default:
		if reason, ok := types.RejectionReason(err); ok {
			// Slippage pushed the fill past a ceiling: the order is real, so
			// flatten it rather than carry unapproved exposure.
			r.unwind(ctx, filled, reason)
			r.advanceBar()
			return
		}
		// Invariant violation (e.g. duplicate slot): the fill stands on the
		// exchange but the store stays consistent.
		r.eng.log.Error("position_open_failed", logger.String("symbol", sym), logger.Err(err))
		return
	}

	r.setPosition(pos.ID, p.CooldownBars)
	r.eng.log.Info("position_opened",
		logger.String("symbol", sym),
		logger.String("side", string(pos.Side)),
		logger.Float64("entry", pos.EntryPrice),
		logger.Float64("qty", pos.Quantity),
		logger.Float64("stop", pos.InitialStopPrice),
		logger.String("reason", sig.Reason),
	)
}

// unwind flattens an order the allocator refused to commit. Best effort: a
// failed unwind leaves real exposure, so it is logged at error level.
func (r *runner) unwind(ctx context.Context, trade types.ProposedTrade, reason string) {
	r.eng.log.Warn("fill_exceeded_ceiling",
		logger.String("symbol", trade.Symbol),
		logger.String("reason", reason),
		logger.Float64("dollar_amount", trade.DollarAmount),
	)
	cctx, cancel := context.WithTimeout(ctx, r.eng.callTimeout)
	_, err := r.eng.orders.PlaceOrder(cctx, trade.Symbol, trade.Side.ExitOrderSide(), trade.Quantity)
	cancel()
	if err != nil {
		r.eng.log.Error("unwind_order_failed",
			logger.String("symbol", trade.Symbol),
			logger.Err(err),
		)
		metrics.TickErrors.WithLabelValues(trade.Symbol).Inc()
		return
	}
	metrics.OrdersSubmitted.WithLabelValues(trade.Symbol, string(trade.Side.ExitOrderSide())).Inc()
}

func (r *runner) exit(ctx context.Context, pos *types.Position, sig types.Signal) {
	sym := pos.Symbol

	if !r.eng.beginClose(pos.ID) {
		// Another closer (manual override) owns this position right now.
		r.advanceBar()
		return
	}
	defer r.eng.endClose(pos.ID)

	// Re-read under the claim: the position may have been flattened between
	// evaluation and here.
	if cur, err := r.eng.store.Get(pos.ID); err != nil || cur.Status != types.StatusOpen {
		r.clearPosition(r.cooldownBars())
		return
	}

	cctx, cancel := context.WithTimeout(ctx, r.eng.callTimeout)
	fill, err := r.eng.orders.PlaceOrder(cctx, sym, pos.Side.ExitOrderSide(), pos.Quantity)
	cancel()
	if err != nil {
		// Position stays open; the exit retries next tick.
		r.eng.log.Warn("exit_order_failed", logger.String("symbol", sym), logger.Err(err))
		metrics.TickErrors.WithLabelValues(sym).Inc()
		r.advanceBar()
		return
	}
	metrics.OrdersSubmitted.WithLabelValues(sym, string(pos.Side.ExitOrderSide())).Inc()

	realized, err := r.eng.store.Close(pos.ID, fill, sig.Reason)
	if err != nil && !errors.Is(err, position.ErrAuditAppend) {
		r.eng.log.Error("position_close_failed",
			logger.String("symbol", sym),
			logger.String("position_id", pos.ID),
			logger.Err(err),
		)
		return
	}
	if err != nil {
		// The close took effect; only the audit write was lost.
		r.eng.log.Warn("trade_log_append_failed", logger.String("symbol", sym), logger.Err(err))
	}

	cooldown := r.cooldownBars()
	r.clearPosition(cooldown)
	r.eng.log.Info("position_closed",
		logger.String("symbol", sym),
		logger.Float64("close", fill),
		logger.Float64("realized_pnl", realized),
		logger.String("reason", sig.Reason),
	)
}

func (r *runner) logRejection(sym, msg string, err error) {
	reason, ok := types.RejectionReason(err)
	if !ok {
		reason = err.Error()
	}
	r.eng.log.Info(msg, logger.String("symbol", sym), logger.String("reason", reason))
}

// ---- locked state accessors ------------------------------------------------

func (r *runner) symbol() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.params.Symbol
}

func (r *runner) cooldownBars() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.params.CooldownBars
}

func (r *runner) positionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.PositionID
}

func (r *runner) cooldownRemaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.CooldownRemaining
}

func (r *runner) advanceBar() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.BarsSinceTrade++
	if r.state.CooldownRemaining > 0 {
		r.state.CooldownRemaining--
	}
}

func (r *runner) setPosition(id string, cooldown int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.PositionID = id
	r.state.BarsSinceTrade = 0
	r.state.CooldownRemaining = cooldown
}

func (r *runner) clearPosition(cooldown int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.PositionID = ""
	r.state.BarsSinceTrade = 0
	r.state.CooldownRemaining = cooldown
}

func (r *runner) setLastSignal(sig types.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSignal = sig
}

func (r *runner) snapshotState() (config.StrategyParams, State, types.Signal, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.params, r.state, r.lastSignal, r.eval.Name()
}

func (r *runner) stageParams(next config.StrategyParams) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = &next
}

func (r *runner) relinkPosition(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.PositionID = id
}
