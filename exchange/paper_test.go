package exchange

import (
	"context"
	"math"
	"testing"

	"github.com/dkwon-io/regimebot/types"
)

func TestPaperFillAndBalance(t *testing.T) {
	ctx := context.Background()
	paper := NewPaperExchange(10_000)
	paper.SetMark("BTCUSDT", 50_000)

	fill, err := paper.PlaceOrder(ctx, "BTCUSDT", types.Buy, 0.1)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if fill != 50_000 {
		t.Fatalf("expected fill at mark, got %v", fill)
	}
	if got := paper.Holding("BTCUSDT"); math.Abs(got-0.1) > 1e-12 {
		t.Fatalf("holding: want 0.1, got %v", got)
	}

	// Cash 5,000 + 0.1 BTC at 50,000 = 10,000; value follows the mark.
	bal, err := paper.GetBalance(ctx)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if math.Abs(bal-10_000) > 1e-6 {
		t.Fatalf("balance should be unchanged after a fill, got %v", bal)
	}
	paper.SetMark("BTCUSDT", 52_000)
	bal, _ = paper.GetBalance(ctx)
	if math.Abs(bal-10_200) > 1e-6 {
		t.Fatalf("balance should track the mark, got %v", bal)
	}
}

func TestPaperRejectsOverspend(t *testing.T) {
	paper := NewPaperExchange(100)
	paper.SetMark("BTCUSDT", 50_000)
	if _, err := paper.PlaceOrder(context.Background(), "BTCUSDT", types.Buy, 1); err == nil {
		t.Fatalf("buy beyond cash must fail")
	}
}

func TestPaperNeedsMark(t *testing.T) {
	paper := NewPaperExchange(10_000)
	if _, err := paper.PlaceOrder(context.Background(), "BTCUSDT", types.Buy, 0.1); err == nil {
		t.Fatalf("order without a mark price must fail")
	}
}

func TestRandomFeedShape(t *testing.T) {
	feed := NewRandomFeed(42, 0.005)
	ctx := context.Background()

	candles, err := feed.GetCandles(ctx, "BTCUSDT", "1", 120)
	if err != nil {
		t.Fatalf("get candles: %v", err)
	}
	if len(candles) != 120 {
		t.Fatalf("expected 120 candles, got %d", len(candles))
	}
	for i, c := range candles {
		if c.High < c.Low || c.High < c.Close || c.Low > c.Close {
			t.Fatalf("bar %d violates OHLC ordering: %+v", i, c)
		}
		if i > 0 && !candles[i-1].OpenTime.Before(c.OpenTime) {
			t.Fatalf("bars must be time-ordered at %d", i)
		}
	}

	// The next call extends the walk by one bar and stays continuous.
	again, err := feed.GetCandles(ctx, "BTCUSDT", "1", 120)
	if err != nil {
		t.Fatalf("get candles: %v", err)
	}
	if got, want := again[len(again)-1].Open, candles[len(candles)-1].Close; got != want {
		t.Fatalf("new bar should open at the previous close: %v vs %v", got, want)
	}
}

// Long-running loops poll the feed forever; the retained walk must stay
// bounded by the requested window instead of growing a bar per call.
func TestRandomFeedBoundsRetainedHistory(t *testing.T) {
	feed := NewRandomFeed(7, 0.005)
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		if _, err := feed.GetCandles(ctx, "BTCUSDT", "1", 30); err != nil {
			t.Fatalf("get candles: %v", err)
		}
	}

	feed.mu.Lock()
	retained := len(feed.series["BTCUSDT"])
	feed.mu.Unlock()
	if retained > 30 {
		t.Fatalf("retained series must stay within the window, got %d bars", retained)
	}
}
