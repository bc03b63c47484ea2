// Package testutils holds in-memory fakes shared by the package tests.
package testutils

import (
	"context"
	"sync"

	"github.com/dkwon-io/regimebot/logger"
	"github.com/dkwon-io/regimebot/types"
)

// MockCandleProvider serves a preset candle series and can be told to fail.
type MockCandleProvider struct {
	mu      sync.Mutex
	candles []types.Candle
	err     error
}

func NewMockCandleProvider() *MockCandleProvider { return &MockCandleProvider{} }

// Set replaces the served series.
func (m *MockCandleProvider) Set(candles []types.Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candles = append([]types.Candle(nil), candles...)
}

// FailWith makes every subsequent call return err; nil restores service.
func (m *MockCandleProvider) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockCandleProvider) GetCandles(_ context.Context, _, _ string, limit int) ([]types.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	candles := m.candles
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	out := make([]types.Candle, len(candles))
	copy(out, candles)
	return out, nil
}

// PlacedOrder captures one PlaceOrder invocation for assertions.
type PlacedOrder struct {
	Symbol string
	Side   types.OrderSide
	Qty    float64
	Fill   float64
}

// MockOrderClient records orders, fills at a settable price, and can be told
// to fail placements.
type MockOrderClient struct {
	mu      sync.Mutex
	balance float64
	fill    float64
	err     error
	orders  []PlacedOrder
}

func NewMockOrderClient(balance float64) *MockOrderClient {
	return &MockOrderClient{balance: balance}
}

// SetFill fixes the price returned for subsequent fills.
func (m *MockOrderClient) SetFill(price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fill = price
}

// SetBalance adjusts the reported portfolio value.
func (m *MockOrderClient) SetBalance(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balance = v
}

// FailWith makes every subsequent placement return err; nil restores fills.
func (m *MockOrderClient) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockOrderClient) PlaceOrder(_ context.Context, symbol string, side types.OrderSide, qty float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.orders = append(m.orders, PlacedOrder{Symbol: symbol, Side: side, Qty: qty, Fill: m.fill})
	return m.fill, nil
}

func (m *MockOrderClient) GetBalance(context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance, nil
}

// Orders returns a copy of every placement so far.
func (m *MockOrderClient) Orders() []PlacedOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PlacedOrder, len(m.orders))
	copy(out, m.orders)
	return out
}

// FailingTradeLog rejects every append with Err, simulating a broken audit
// sink.
type FailingTradeLog struct {
	Err error
}

func (f FailingTradeLog) Append(types.TradeLogEntry) error { return f.Err }

type logEntry struct {
	level  string
	msg    string
	fields []logger.Field
}

// MockLogger implements logger.Logger and stores entries in memory.
type MockLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func NewMockLogger() *MockLogger { return &MockLogger{} }

func (l *MockLogger) record(level, msg string, fields ...logger.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: append([]logger.Field(nil), fields...)})
}

func (l *MockLogger) Info(msg string, fields ...logger.Field)  { l.record("info", msg, fields...) }
func (l *MockLogger) Warn(msg string, fields ...logger.Field)  { l.record("warn", msg, fields...) }
func (l *MockLogger) Error(msg string, fields ...logger.Field) { l.record("error", msg, fields...) }

// LastMessage returns the message of the most recent entry.
func (l *MockLogger) LastMessage() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return ""
	}
	return l.entries[len(l.entries)-1].msg
}

// Messages returns every logged message in order.
func (l *MockLogger) Messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.msg
	}
	return out
}
