package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkwon-io/regimebot/types"
)

// PaperExchange fills every order at the latest mark price with no slippage.
// Cash and per-symbol holdings are tracked so GetBalance reports a live
// portfolio value (cash plus marked holdings).
type PaperExchange struct {
	mu       sync.RWMutex
	cash     float64
	marks    map[string]float64
	holdings map[string]float64 // signed qty, negative = short
}

func NewPaperExchange(startCash float64) *PaperExchange {
	return &PaperExchange{
		cash:     startCash,
		marks:    make(map[string]float64),
		holdings: make(map[string]float64),
	}
}

// SetMark records the latest traded price for symbol. The engine feeds it the
// close of every fetched candle before placing orders.
func (p *PaperExchange) SetMark(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marks[symbol] = price
}

// PlaceOrder fills at the current mark. Buys require sufficient cash; shorts
// are allowed and simply go negative on holdings.
func (p *PaperExchange) PlaceOrder(_ context.Context, symbol string, side types.OrderSide, qty float64) (float64, error) {
	if qty <= 0 {
		return 0, fmt.Errorf("paper: non-positive qty %v", qty)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	mark, ok := p.marks[symbol]
	if !ok || mark <= 0 {
		return 0, fmt.Errorf("paper: no mark price for %s", symbol)
	}
	cost := mark * qty
	if side == types.Buy {
		if cost > p.cash {
			return 0, fmt.Errorf("paper: insufficient cash %.2f for %.2f", p.cash, cost)
		}
		p.cash -= cost
		p.holdings[symbol] += qty
	} else {
		p.cash += cost
		p.holdings[symbol] -= qty
	}
	return mark, nil
}

// GetBalance returns cash plus every holding at its latest mark.
func (p *PaperExchange) GetBalance(context.Context) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	total := p.cash
	for symbol, qty := range p.holdings {
		total += qty * p.marks[symbol]
	}
	return total, nil
}

// Holding returns the signed quantity held for symbol.
func (p *PaperExchange) Holding(symbol string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.holdings[symbol]
}
