package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultParamsValidate(t *testing.T) {
	p := DefaultStrategyParams("BTCUSDT")
	if err := p.Validate(); err != nil {
		t.Fatalf("default params should validate, got %v", err)
	}
	l := DefaultRiskLimits()
	if err := l.Validate(); err != nil {
		t.Fatalf("default limits should validate, got %v", err)
	}
}

func TestValidateRejectsBadParams(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*StrategyParams)
	}{
		{"fast above slow", func(p *StrategyParams) { p.EMAFastPeriod = 300 }},
		{"zero atr period", func(p *StrategyParams) { p.ATRPeriod = 0 }},
		{"negative cooldown", func(p *StrategyParams) { p.CooldownBars = -1 }},
		{"lookback too short", func(p *StrategyParams) { p.LookbackBars = 100 }},
		{"inverted rsi bands", func(p *StrategyParams) { p.RSIOversold = 80 }},
		{"zero loop seconds", func(p *StrategyParams) { p.LoopSeconds = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := DefaultStrategyParams("BTCUSDT")
			tc.mutate(&p)
			if err := p.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLimitsValidate(t *testing.T) {
	l := DefaultRiskLimits()
	l.MaxSingleAssetWeightPct = 1.5
	if err := l.Validate(); err == nil {
		t.Fatalf("weight above 100%% must be rejected")
	}
	l = DefaultRiskLimits()
	l.RiskPerTradePct = 0
	if err := l.Validate(); err == nil {
		t.Fatalf("zero risk per trade must be rejected")
	}
}

const validYAML = `
app:
  name: regimebot
  metrics_addr: ":9100"
  log_level: info
  paper_equity: 10000
limits:
  max_total_exposure_usd: 80
  max_single_asset_weight_pct: 0.4
  risk_per_trade_pct: 0.02
  min_order_usd: 5
  fee_rate: 0.0006
symbols:
  - symbol: BTCUSDT
    strategy: regime_trend
    interval: "15"
    lookback_bars: 260
    ema_fast_period: 50
    ema_slow_period: 200
    min_trend_gap_pct: 0.001
    rsi_period: 14
    rsi_oversold: 30
    rsi_overbought: 70
    bb_period: 20
    bb_std_dev: 2.0
    volume_ma_period: 20
    atr_period: 14
    initial_stop_atr_mult: 2.5
    trailing_stop_atr_mult: 3.0
    loop_seconds: 60
    cooldown_bars: 2
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValidYAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Symbols) != 1 || cfg.Symbols[0].Symbol != "BTCUSDT" {
		t.Fatalf("unexpected symbols: %+v", cfg.Symbols)
	}
	if cfg.Limits.MaxTotalExposureUSD != 80 {
		t.Fatalf("unexpected limits: %+v", cfg.Limits)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	body := strings.Replace(validYAML, "cooldown_bars: 2", "cooldown_bars: 2\n    warp_factor: 9", 1)
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatalf("unknown key must fail the load")
	}
}

func TestLoadRejectsDuplicateSymbols(t *testing.T) {
	cfg := validYAML + `
  - symbol: BTCUSDT
    strategy: regime_trend
    interval: "15"
    lookback_bars: 260
    ema_fast_period: 50
    ema_slow_period: 200
    min_trend_gap_pct: 0.001
    rsi_period: 14
    rsi_oversold: 30
    rsi_overbought: 70
    bb_period: 20
    bb_std_dev: 2.0
    volume_ma_period: 20
    atr_period: 14
    initial_stop_atr_mult: 2.5
    trailing_stop_atr_mult: 3.0
    loop_seconds: 60
    cooldown_bars: 2
`
	if _, err := Load(writeConfig(t, cfg)); err == nil {
		t.Fatalf("duplicate symbol must fail the load")
	}
}
