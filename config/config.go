// Package config exposes strongly typed engine configuration loaded from YAML.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StrategyParams holds all tunable parameters for one symbol's strategy.
// Unknown YAML keys are rejected at load time rather than silently ignored.
type StrategyParams struct {
	Symbol       string `yaml:"symbol"`
	Strategy     string `yaml:"strategy"` // regime_trend | mean_reversion
	Interval     string `yaml:"interval"`
	LookbackBars int    `yaml:"lookback_bars"`

	// Trend regime filter
	EMAFastPeriod  int     `yaml:"ema_fast_period"`
	EMASlowPeriod  int     `yaml:"ema_slow_period"`
	MinTrendGapPct float64 `yaml:"min_trend_gap_pct"`

	// Oscillator / band settings (mean reversion variant)
	RSIPeriod      int     `yaml:"rsi_period"`
	RSIOversold    float64 `yaml:"rsi_oversold"`
	RSIOverbought  float64 `yaml:"rsi_overbought"`
	BBPeriod       int     `yaml:"bb_period"`
	BBStdDev       float64 `yaml:"bb_std_dev"`
	VolumeMAPeriod int     `yaml:"volume_ma_period"`

	// Risk and exits
	ATRPeriod           int     `yaml:"atr_period"`
	InitialStopATRMult  float64 `yaml:"initial_stop_atr_mult"`
	TrailingStopATRMult float64 `yaml:"trailing_stop_atr_mult"`

	// Execution controls
	LoopSeconds  int `yaml:"loop_seconds"`
	CooldownBars int `yaml:"cooldown_bars"`
}

// DefaultStrategyParams mirrors the stock regime-trend tuning.
func DefaultStrategyParams(symbol string) StrategyParams {
	return StrategyParams{
		Symbol:              symbol,
		Strategy:            "regime_trend",
		Interval:            "15",
		LookbackBars:        260,
		EMAFastPeriod:       50,
		EMASlowPeriod:       200,
		MinTrendGapPct:      0.001,
		RSIPeriod:           14,
		RSIOversold:         30,
		RSIOverbought:       70,
		BBPeriod:            20,
		BBStdDev:            2.0,
		VolumeMAPeriod:      20,
		ATRPeriod:           14,
		InitialStopATRMult:  2.5,
		TrailingStopATRMult: 3.0,
		LoopSeconds:         60,
		CooldownBars:        2,
	}
}

// Validate checks that all numeric fields are within sensible bounds.
// It returns the first encountered error, allowing the caller to surface a
// clear configuration problem before any trading starts.
func (p *StrategyParams) Validate() error {
	if p.Symbol == "" {
		return errors.New("symbol must not be empty")
	}
	if p.LookbackBars <= 0 {
		return errors.New("lookback_bars must be positive")
	}
	if p.EMAFastPeriod <= 0 || p.EMASlowPeriod <= 0 {
		return errors.New("EMA periods must be positive")
	}
	if p.EMAFastPeriod >= p.EMASlowPeriod {
		return fmt.Errorf("ema_fast_period (%d) must be below ema_slow_period (%d)",
			p.EMAFastPeriod, p.EMASlowPeriod)
	}
	if p.MinTrendGapPct < 0 || p.MinTrendGapPct > 0.5 {
		return fmt.Errorf("min_trend_gap_pct (%f) must be in [0, 0.5]", p.MinTrendGapPct)
	}
	if p.RSIPeriod <= 0 {
		return errors.New("rsi_period must be positive")
	}
	if p.RSIOversold >= p.RSIOverbought {
		return fmt.Errorf("rsi_oversold (%f) must be below rsi_overbought (%f)",
			p.RSIOversold, p.RSIOverbought)
	}
	if p.BBPeriod <= 0 {
		return errors.New("bb_period must be positive")
	}
	if p.BBStdDev <= 0 {
		return errors.New("bb_std_dev must be positive")
	}
	if p.VolumeMAPeriod <= 0 {
		return errors.New("volume_ma_period must be positive")
	}
	if p.ATRPeriod <= 0 {
		return errors.New("atr_period must be positive")
	}
	if p.InitialStopATRMult <= 0 {
		return errors.New("initial_stop_atr_mult must be positive")
	}
	if p.TrailingStopATRMult <= 0 {
		return errors.New("trailing_stop_atr_mult must be positive")
	}
	if p.LoopSeconds <= 0 {
		return errors.New("loop_seconds must be positive")
	}
	if p.CooldownBars < 0 {
		return errors.New("cooldown_bars cannot be negative")
	}
	minHistory := p.EMASlowPeriod
	for _, n := range []int{p.ATRPeriod, p.RSIPeriod, p.BBPeriod, p.VolumeMAPeriod} {
		if n > minHistory {
			minHistory = n
		}
	}
	if p.LookbackBars <= minHistory {
		return fmt.Errorf("lookback_bars (%d) must exceed the longest indicator period (%d)",
			p.LookbackBars, minHistory)
	}
	return nil
}

// RiskLimits is the process-wide risk configuration, read-only during a run
// and owned by the portfolio allocator.
type RiskLimits struct {
	MaxTotalExposureUSD     float64 `yaml:"max_total_exposure_usd"`
	MaxSingleAssetWeightPct float64 `yaml:"max_single_asset_weight_pct"`
	RiskPerTradePct         float64 `yaml:"risk_per_trade_pct"`
	MinOrderUSD             float64 `yaml:"min_order_usd"`
	FeeRate                 float64 `yaml:"fee_rate"`
}

// DefaultRiskLimits matches the stock portfolio tuning.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxTotalExposureUSD:     80.0,
		MaxSingleAssetWeightPct: 0.4,
		RiskPerTradePct:         0.02,
		MinOrderUSD:             5.0,
		FeeRate:                 0.0006,
	}
}

// Validate checks the portfolio-wide limits.
func (l *RiskLimits) Validate() error {
	if l.MaxTotalExposureUSD <= 0 {
		return errors.New("max_total_exposure_usd must be positive")
	}
	if l.MaxSingleAssetWeightPct <= 0 || l.MaxSingleAssetWeightPct > 1 {
		return fmt.Errorf("max_single_asset_weight_pct (%f) must be in (0, 1]", l.MaxSingleAssetWeightPct)
	}
	if l.RiskPerTradePct <= 0 || l.RiskPerTradePct > 0.5 {
		return fmt.Errorf("risk_per_trade_pct (%f) must be >0 and <=0.5", l.RiskPerTradePct)
	}
	if l.MinOrderUSD < 0 {
		return errors.New("min_order_usd cannot be negative")
	}
	if l.FeeRate < 0 || l.FeeRate > 0.05 {
		return fmt.Errorf("fee_rate (%f) out of realistic range", l.FeeRate)
	}
	return nil
}

// App captures process-wide runtime settings.
type App struct {
	Name          string  `yaml:"name"`
	MetricsAddr   string  `yaml:"metrics_addr"`
	LogLevel      string  `yaml:"log_level"`
	PositionsPath string  `yaml:"positions_path"`
	TradeLogPath  string  `yaml:"trade_log_path"`
	PaperEquity   float64 `yaml:"paper_equity"`
}

// Config collects every configuration leaf.
type Config struct {
	App     App              `yaml:"app"`
	Limits  RiskLimits       `yaml:"limits"`
	Symbols []StrategyParams `yaml:"symbols"`
}

// Load reads a YAML file and hydrates a validated Config. Decoding is strict:
// keys that do not map to a known field fail the load.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the whole tree and rejects duplicate symbols.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return errors.New("at least one symbol must be configured")
	}
	if err := c.Limits.Validate(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Symbols))
	for i := range c.Symbols {
		p := &c.Symbols[i]
		if seen[p.Symbol] {
			return fmt.Errorf("duplicate symbol %q", p.Symbol)
		}
		seen[p.Symbol] = true
		if err := p.Validate(); err != nil {
			return fmt.Errorf("symbol %s: %w", p.Symbol, err)
		}
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	return nil
}
