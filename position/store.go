// Package position owns the authoritative set of open and closed positions.
package position

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dkwon-io/regimebot/metrics"
	"github.com/dkwon-io/regimebot/types"
)

var (
	// ErrDuplicatePosition: an open position already exists for (symbol, side).
	ErrDuplicatePosition = errors.New("duplicate open position")
	// ErrNotFound: no position with that id.
	ErrNotFound = errors.New("position not found")
	// ErrAlreadyClosed: the position was closed by an earlier call.
	ErrAlreadyClosed = errors.New("position already closed")
	// ErrAuditAppend: the lifecycle change took effect but the audit-trail
	// write failed. The returned position/P&L is valid and must be used.
	ErrAuditAppend = errors.New("trade log append failed")
)

// TradeLog receives one immutable entry per trade event. Implementations live
// in the storage package; tests inject an in-memory recorder.
type TradeLog interface {
	Append(entry types.TradeLogEntry) error
}

// NopLog discards entries.
type NopLog struct{}

func (NopLog) Append(types.TradeLogEntry) error { return nil }

// Store enforces the at-most-one-open-position-per-(symbol, side) invariant
// and computes realized/unrealized P&L. All access is mutex-guarded; callers
// receive copies, never pointers into the store.
type Store struct {
	mu        sync.RWMutex
	positions map[string]*types.Position
	openIdx   map[string]string // symbol|side -> position id
	log       TradeLog
	feeRate   float64
	now       func() time.Time
}

// NewStore builds an empty store. feeRate is the per-side fee fraction
// applied to notional on entry and exit when realizing P&L.
func NewStore(log TradeLog, feeRate float64) *Store {
	if log == nil {
		log = NopLog{}
	}
	return &Store{
		positions: make(map[string]*types.Position),
		openIdx:   make(map[string]string),
		log:       log,
		feeRate:   feeRate,
		now:       time.Now,
	}
}

func openKey(symbol string, side types.Side) string {
	return symbol + "|" + string(side)
}

// Open records an approved trade as a new open position.
func (s *Store) Open(trade types.ProposedTrade) (types.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := openKey(trade.Symbol, trade.Side)
	if _, exists := s.openIdx[key]; exists {
		return types.Position{}, fmt.Errorf("%w: %s %s", ErrDuplicatePosition, trade.Symbol, trade.Side)
	}

	now := s.now().UTC()
	pos := &types.Position{
		ID:               uuid.NewString(),
		Symbol:           trade.Symbol,
		Side:             trade.Side,
		EntryPrice:       trade.EntryPrice,
		Quantity:         trade.Quantity,
		DollarAmount:     trade.DollarAmount,
		InitialStopPrice: trade.InitialStopPrice,
		TrailingStop:     trade.InitialStopPrice,
		TrailingATRMult:  trade.TrailingATRMult,
		CurrentPrice:     trade.EntryPrice,
		OpenTime:         now,
		Status:           types.StatusOpen,
		Reason:           trade.Reason,
	}
	s.positions[pos.ID] = pos
	s.openIdx[key] = pos.ID
	s.updateGauges()

	if err := s.log.Append(types.TradeLogEntry{
		Time:         now,
		Symbol:       pos.Symbol,
		Side:         pos.Side.EntryOrderSide(),
		Price:        pos.EntryPrice,
		Quantity:     pos.Quantity,
		DollarAmount: pos.DollarAmount,
		Reason:       trade.Reason,
		PositionID:   pos.ID,
	}); err != nil {
		// The position stands either way; callers check ErrAuditAppend and
		// must not treat the open as failed.
		return *pos, fmt.Errorf("%w: %v", ErrAuditAppend, err)
	}
	return *pos, nil
}

// UpdateTrailingStop moves the trailing stop toward the current price when
// that tightens it, using the ATR multiple frozen on the position at entry.
// A candidate stop that would loosen the position is ignored, which makes the
// call idempotent under repeated polling. The mark price is refreshed either
// way.
func (s *Store) UpdateTrailingStop(id string, currentPrice, atr float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.positions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if pos.Status != types.StatusOpen {
		return fmt.Errorf("%w: %s", ErrAlreadyClosed, id)
	}

	pos.CurrentPrice = currentPrice
	if atr <= 0 || pos.TrailingATRMult <= 0 {
		return nil
	}
	candidate := currentPrice - pos.Side.Sign()*pos.TrailingATRMult*atr
	if pos.Side == types.Long {
		if candidate > pos.TrailingStop {
			pos.TrailingStop = candidate
		}
	} else {
		if candidate < pos.TrailingStop {
			pos.TrailingStop = candidate
		}
	}
	return nil
}

// Close transitions the position to closed and returns the realized P&L net
// of fees. Fees are charged on entry and exit notional at the store fee rate.
func (s *Store) Close(id string, closePrice float64, reason string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.positions[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if pos.Status != types.StatusOpen {
		return 0, fmt.Errorf("%w: %s", ErrAlreadyClosed, id)
	}

	now := s.now().UTC()
	gross := (closePrice - pos.EntryPrice) * pos.Quantity * pos.Side.Sign()
	fees := s.feeRate * pos.Quantity * (pos.EntryPrice + closePrice)
	realized := gross - fees

	pos.Status = types.StatusClosed
	pos.CloseTime = now
	pos.CurrentPrice = closePrice
	pos.RealizedPnL = realized
	pos.Reason = reason
	delete(s.openIdx, openKey(pos.Symbol, pos.Side))
	s.updateGauges()

	if err := s.log.Append(types.TradeLogEntry{
		Time:         now,
		Symbol:       pos.Symbol,
		Side:         pos.Side.ExitOrderSide(),
		Price:        closePrice,
		Quantity:     pos.Quantity,
		DollarAmount: closePrice * pos.Quantity,
		Reason:       reason,
		PositionID:   pos.ID,
		PnL:          realized,
	}); err != nil {
		return realized, fmt.Errorf("%w: %v", ErrAuditAppend, err)
	}
	return realized, nil
}

// UnrealizedPnL is a pure read of the mark-to-market profit at price.
func (s *Store) UnrealizedPnL(id string, price float64) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.positions[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return pos.UnrealizedPnL(price), nil
}

// Get returns a copy of the position with the given id.
func (s *Store) Get(id string) (types.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.positions[id]
	if !ok {
		return types.Position{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *pos, nil
}

// OpenPositions returns copies of every open position.
func (s *Store) OpenPositions() []types.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Position, 0, len(s.openIdx))
	for _, id := range s.openIdx {
		out = append(out, *s.positions[id])
	}
	return out
}

// ClosedPositions returns copies of every closed position.
func (s *Store) ClosedPositions() []types.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Position
	for _, pos := range s.positions {
		if pos.Status == types.StatusClosed {
			out = append(out, *pos)
		}
	}
	return out
}

// OpenExposure is the sum of dollar amounts across open positions.
func (s *Store) OpenExposure() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.openExposureLocked()
}

func (s *Store) openExposureLocked() float64 {
	total := 0.0
	for _, id := range s.openIdx {
		total += s.positions[id].DollarAmount
	}
	return total
}

// Rehydrate loads previously persisted positions on process restart. Closed
// positions are kept for listings; open ones rebuild the per-(symbol, side)
// index.
func (s *Store) Rehydrate(positions []types.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range positions {
		pos := positions[i]
		if _, exists := s.positions[pos.ID]; exists {
			continue
		}
		if pos.Status == types.StatusOpen {
			key := openKey(pos.Symbol, pos.Side)
			if _, taken := s.openIdx[key]; taken {
				return fmt.Errorf("%w: %s %s (rehydrate)", ErrDuplicatePosition, pos.Symbol, pos.Side)
			}
			s.openIdx[key] = pos.ID
		}
		s.positions[pos.ID] = &pos
	}
	s.updateGauges()
	return nil
}

// All returns copies of every position, open and closed. Used by persistence.
func (s *Store) All() []types.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Position, 0, len(s.positions))
	for _, pos := range s.positions {
		out = append(out, *pos)
	}
	return out
}

func (s *Store) updateGauges() {
	metrics.PositionsOpen.Set(float64(len(s.openIdx)))
	metrics.ExposureGauge.Set(s.openExposureLocked())
}
