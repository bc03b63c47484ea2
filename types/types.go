package types

import (
	"fmt"
	"time"
)

// Side is the direction of a position.
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// Sign returns +1 for long and -1 for short, the multiplier used in P&L math.
func (s Side) Sign() float64 {
	if s == Short {
		return -1
	}
	return 1
}

// OrderSide is the direction of an order sent to the exchange.
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// EntryOrderSide maps a position side to the order side that opens it.
func (s Side) EntryOrderSide() OrderSide {
	if s == Short {
		return Sell
	}
	return Buy
}

// ExitOrderSide maps a position side to the order side that flattens it.
func (s Side) ExitOrderSide() OrderSide {
	if s == Short {
		return Buy
	}
	return Sell
}

// Candle is a single OHLCV bar. Sequences are ordered by OpenTime and
// immutable once ingested.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// SignalKind enumerates the decisions an evaluator can emit.
type SignalKind string

const (
	EnterLong  SignalKind = "enter_long"
	EnterShort SignalKind = "enter_short"
	Exit       SignalKind = "exit"
	Hold       SignalKind = "hold"
)

// Signal is the transient output of one evaluation tick. It is consumed
// immediately by the risk sizer and never persisted.
type Signal struct {
	Symbol      string
	Kind        SignalKind
	Reason      string
	GeneratedAt time.Time
}

// ProposedTrade is a risk-sized entry awaiting allocator approval.
type ProposedTrade struct {
	Symbol           string
	Side             Side
	EntryPrice       float64
	Quantity         float64
	DollarAmount     float64
	InitialStopPrice float64
	TrailingATRMult  float64
	Reason           string
}

// PositionStatus is the lifecycle state of a position.
type PositionStatus string

const (
	StatusOpen   PositionStatus = "open"
	StatusClosed PositionStatus = "closed"
)

// Position is an open or closed directional holding. Owned exclusively by the
// position store; callers only ever see copies.
type Position struct {
	ID               string  `json:"id"`
	Symbol           string  `json:"symbol"`
	Side             Side    `json:"side"`
	EntryPrice       float64 `json:"entry_price"`
	Quantity         float64 `json:"quantity"`
	DollarAmount     float64 `json:"dollar_amount"`
	InitialStopPrice float64 `json:"initial_stop_price"`
	TrailingStop     float64 `json:"trailing_stop_price"`
	// TrailingATRMult is frozen at entry time; a later parameter reload does
	// not change the stop distance of an in-flight position.
	TrailingATRMult float64        `json:"trailing_atr_mult"`
	CurrentPrice    float64        `json:"current_price"`
	OpenTime        time.Time      `json:"open_time"`
	CloseTime       time.Time      `json:"close_time,omitempty"`
	Status          PositionStatus `json:"status"`
	RealizedPnL     float64        `json:"realized_pnl"`
	Reason          string         `json:"reason"`
}

// UnrealizedPnL is the mark-to-market profit of the position at price.
func (p *Position) UnrealizedPnL(price float64) float64 {
	return (price - p.EntryPrice) * p.Quantity * p.Side.Sign()
}

// StopPrice returns the active protective stop: the trailing stop once one
// has been set, otherwise the initial stop from entry.
func (p *Position) StopPrice() float64 {
	if p.TrailingStop != 0 {
		return p.TrailingStop
	}
	return p.InitialStopPrice
}

// TradeLogEntry is one row of the append-only audit trail emitted on every
// position mutation.
type TradeLogEntry struct {
	Time         time.Time `json:"time"`
	Symbol       string    `json:"symbol"`
	Side         OrderSide `json:"side"`
	Price        float64   `json:"price"`
	Quantity     float64   `json:"quantity"`
	DollarAmount float64   `json:"dollar_amount"`
	Reason       string    `json:"reason"`
	PositionID   string    `json:"position_id"`
	PnL          float64   `json:"pnl,omitempty"`
}

// Rejection is the expected, non-error outcome of a risk or allocator check
// declining a trade. It terminates only the current tick's proposal.
type Rejection struct {
	Reason string
}

func (r Rejection) Error() string { return fmt.Sprintf("rejected: %s", r.Reason) }

// RejectionReason extracts the reason when err is a Rejection.
func RejectionReason(err error) (string, bool) {
	if r, ok := err.(Rejection); ok {
		return r.Reason, true
	}
	return "", false
}
