// Package engine wires the full pipeline together: one goroutine per symbol
// runs fetch → indicators → evaluate → size → approve → execute against the
// shared position store and portfolio allocator.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkwon-io/regimebot/config"
	"github.com/dkwon-io/regimebot/exchange"
	"github.com/dkwon-io/regimebot/logger"
	"github.com/dkwon-io/regimebot/portfolio"
	"github.com/dkwon-io/regimebot/position"
	"github.com/dkwon-io/regimebot/types"
)

const defaultCallTimeout = 10 * time.Second

// Persister snapshots the position set to durable storage and loads the open
// positions back on startup.
type Persister interface {
	Save(positions []types.Position) error
	LoadOpen() ([]types.Position, error)
}

// markSetter is satisfied by paper exchanges that need the latest close to
// value fills. Live clients don't implement it and are left alone.
type markSetter interface {
	SetMark(symbol string, price float64)
}

// Status is the point-in-time view of one symbol's loop, served to operators.
type Status struct {
	Symbol     string
	Active     bool
	Strategy   string
	Params     config.StrategyParams
	State      State
	LastSignal types.Signal
	Position   *types.Position
}

// Engine owns the per-symbol runners and the shared trading services.
type Engine struct {
	log     logger.Logger
	candles exchange.CandleProvider
	orders  exchange.OrderClient
	store   *position.Store
	alloc   *portfolio.Allocator
	persist Persister

	callTimeout time.Duration

	mu      sync.Mutex
	runners map[string]*runner
	closing map[string]struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// Options collects the collaborators the engine needs. Persist may be nil for
// an in-memory run.
type Options struct {
	Log     logger.Logger
	Candles exchange.CandleProvider
	Orders  exchange.OrderClient
	Store   *position.Store
	Limits  config.RiskLimits
	Persist Persister
}

// New builds an engine with one runner per configured symbol.
func New(opts Options, symbols []config.StrategyParams) (*Engine, error) {
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	if opts.Candles == nil || opts.Orders == nil {
		return nil, errors.New("engine requires a candle provider and an order client")
	}
	if opts.Store == nil {
		return nil, errors.New("engine requires a position store")
	}
	if len(symbols) == 0 {
		return nil, errors.New("no symbols configured")
	}
	if err := opts.Limits.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		log:         opts.Log,
		candles:     opts.Candles,
		orders:      opts.Orders,
		store:       opts.Store,
		alloc:       portfolio.NewAllocator(opts.Limits, opts.Store),
		persist:     opts.Persist,
		callTimeout: defaultCallTimeout,
		runners:     make(map[string]*runner, len(symbols)),
		closing:     make(map[string]struct{}),
	}
	for _, p := range symbols {
		if _, dup := e.runners[p.Symbol]; dup {
			return nil, fmt.Errorf("duplicate symbol %q", p.Symbol)
		}
		r, err := newRunner(e, p)
		if err != nil {
			return nil, fmt.Errorf("symbol %s: %w", p.Symbol, err)
		}
		e.runners[p.Symbol] = r
	}
	return e, nil
}

// Start rehydrates persisted positions and launches the symbol loops. It is
// an error to start a running engine.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return errors.New("engine already running")
	}
	if err := e.rehydrate(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.running = true

	for _, r := range e.runners {
		e.wg.Add(1)
		go func(r *runner) {
			defer e.wg.Done()
			r.run(runCtx)
		}(r)
	}
	e.log.Info("engine_started", logger.Int("symbols", len(e.runners)))
	return nil
}

// Stop cancels every loop and waits for in-flight ticks to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.cancel()
	e.running = false
	e.mu.Unlock()

	e.wg.Wait()
	e.persistPositions()
	e.log.Info("engine_stopped")
}

// rehydrate loads open positions from the persister, seeds the store, and
// relinks each position to the runner driving its symbol. Open positions on
// symbols no longer configured stay in the store so operators can close them
// manually, but no loop manages them.
func (e *Engine) rehydrate() error {
	if e.persist == nil {
		return nil
	}
	open, err := e.persist.LoadOpen()
	if err != nil {
		return fmt.Errorf("load persisted positions: %w", err)
	}
	if len(open) == 0 {
		return nil
	}
	if err := e.store.Rehydrate(open); err != nil {
		return fmt.Errorf("rehydrate positions: %w", err)
	}
	for _, pos := range open {
		r, ok := e.runners[pos.Symbol]
		if !ok {
			e.log.Warn("orphan_position",
				logger.String("symbol", pos.Symbol),
				logger.String("position_id", pos.ID),
			)
			continue
		}
		r.relinkPosition(pos.ID)
	}
	e.log.Info("positions_rehydrated", logger.Int("count", len(open)))
	return nil
}

func (e *Engine) persistPositions() {
	if e.persist == nil {
		return
	}
	if err := e.persist.Save(e.store.All()); err != nil {
		e.log.Error("position_persist_failed", logger.Err(err))
	}
}

// Status reports one symbol's loop state, or an error for unknown symbols.
func (e *Engine) Status(symbol string) (Status, error) {
	e.mu.Lock()
	r, ok := e.runners[symbol]
	active := e.running
	e.mu.Unlock()
	if !ok {
		return Status{}, fmt.Errorf("unknown symbol %q", symbol)
	}

	params, state, lastSig, name := r.snapshotState()
	st := Status{
		Symbol:     symbol,
		Active:     active,
		Strategy:   name,
		Params:     params,
		State:      state,
		LastSignal: lastSig,
	}
	if state.PositionID != "" {
		if pos, err := e.store.Get(state.PositionID); err == nil {
			st.Position = &pos
		}
	}
	return st, nil
}

// UpdateParams validates and stages new parameters for a symbol. The change
// takes effect at the start of the symbol's next tick.
func (e *Engine) UpdateParams(symbol string, params config.StrategyParams) error {
	e.mu.Lock()
	r, ok := e.runners[symbol]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown symbol %q", symbol)
	}
	params.Symbol = symbol
	if err := params.Validate(); err != nil {
		return err
	}
	r.stageParams(params)
	return nil
}

// ListOpenPositions returns every open position across all symbols.
func (e *Engine) ListOpenPositions() []types.Position { return e.store.OpenPositions() }

// ListClosedPositions returns the closed-position history.
func (e *Engine) ListClosedPositions() []types.Position { return e.store.ClosedPositions() }

// beginClose claims the exclusive right to flatten the position with the
// given id. Exactly one closer (a runner's exit or a manual ClosePosition)
// may hold the claim at a time, so two exit orders can never be in flight for
// the same position.
func (e *Engine) beginClose(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.closing[id]; busy {
		return false
	}
	e.closing[id] = struct{}{}
	return true
}

func (e *Engine) endClose(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.closing, id)
}

// ClosePosition flattens one position at market, outside the strategy logic.
// The owning runner's state is cleared so its loop doesn't act on a position
// that no longer exists.
func (e *Engine) ClosePosition(ctx context.Context, id string) (float64, error) {
	if !e.beginClose(id) {
		return 0, fmt.Errorf("close already in flight for position %s", id)
	}
	defer e.endClose(id)

	pos, err := e.store.Get(id)
	if err != nil {
		return 0, err
	}
	if pos.Status != types.StatusOpen {
		return 0, position.ErrAlreadyClosed
	}

	cctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	fill, err := e.orders.PlaceOrder(cctx, pos.Symbol, pos.Side.ExitOrderSide(), pos.Quantity)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("close order for %s: %w", pos.Symbol, err)
	}

	realized, err := e.store.Close(id, fill, "manual_close")
	if err != nil && !errors.Is(err, position.ErrAuditAppend) {
		return 0, err
	}
	if err != nil {
		e.log.Warn("trade_log_append_failed",
			logger.String("position_id", id),
			logger.Err(err),
		)
	}

	e.mu.Lock()
	r, ok := e.runners[pos.Symbol]
	e.mu.Unlock()
	if ok && r.positionID() == id {
		r.clearPosition(r.cooldownBars())
	}

	e.persistPositions()
	e.log.Info("position_closed_manually",
		logger.String("symbol", pos.Symbol),
		logger.String("position_id", id),
		logger.Float64("realized_pnl", realized),
	)
	return realized, nil
}
