package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dkwon-io/regimebot/config"
	"github.com/dkwon-io/regimebot/engine"
	"github.com/dkwon-io/regimebot/exchange"
	"github.com/dkwon-io/regimebot/logger"
	"github.com/dkwon-io/regimebot/metrics"
	"github.com/dkwon-io/regimebot/position"
	"github.com/dkwon-io/regimebot/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	seed := flag.Int64("seed", time.Now().UnixNano(), "seed for the simulated price feed")
	flag.Parse()

	if err := run(*configPath, *seed); err != nil {
		fmt.Fprintln(os.Stderr, "regimebot:", err)
		os.Exit(1)
	}
}

func run(configPath string, seed int64) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.App.LogLevel)
	if err != nil {
		return err
	}

	tradeLog, err := storage.NewTradeLog(cfg.App.TradeLogPath)
	if err != nil {
		return err
	}
	positionFile, err := storage.NewPositionFile(cfg.App.PositionsPath)
	if err != nil {
		return err
	}

	store := position.NewStore(tradeLog, cfg.Limits.FeeRate)

	paper := exchange.NewPaperExchange(cfg.App.PaperEquity)
	feed := exchange.NewRandomFeed(seed, 0.005)

	eng, err := engine.New(engine.Options{
		Log:     log,
		Candles: feed,
		Orders:  paper,
		Store:   store,
		Limits:  cfg.Limits,
		Persist: positionFile,
	}, cfg.Symbols)
	if err != nil {
		return err
	}

	srv := metrics.Serve(cfg.App.MetricsAddr)
	log.Info("metrics_up", logger.String("addr", cfg.App.MetricsAddr))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := eng.Start(ctx); err != nil {
		return err
	}
	log.Info("paper_trading_started",
		logger.String("config", configPath),
		logger.Int("symbols", len(cfg.Symbols)),
		logger.Float64("equity", cfg.App.PaperEquity),
	)

	<-ctx.Done()
	log.Info("shutting_down")
	eng.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
