package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bcdannyboy/bahra/config"
	"github.com/bcdannyboy/bahra/estimate"
	"github.com/bcdannyboy/bahra/fred"
	rndslack "github.com/bcdannyboy/bahra/slack"
	"github.com/bcdannyboy/bahra/tradier"
	"github.com/xhhuango/json"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chains := tradier.NewClient(cfg.TradierKey, tradier.WithDTEWindow(cfg.MinDTE, cfg.MaxDTE))
	var rates estimate.RateProvider = fred.StaticRate(cfg.RiskFreeRate)
	if cfg.FredKey != "" {
		rates = fred.NewSOFRRateProvider(cfg.FredKey)
	} else {
		logger.Warn("no FRED key configured, using static risk-free rate", "rate", cfg.RiskFreeRate)
	}
	estimator := estimate.New(chains, rates, logger)

	if cfg.SlackEnabled() {
		// The bot fetches one expiry at a time so the DTE window does not apply.
		botChains := tradier.NewClient(cfg.TradierKey)
		bot := rndslack.NewSlackBot(cfg.SlackAppToken, cfg.SlackBotToken,
			estimate.New(botChains, rates, logger), cfg.FitTimeout, logger)
		logger.Info("starting slack bot")
		if err := bot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("slack bot stopped", "error", err)
			os.Exit(1)
		}
		return
	}

	var all []*estimate.Estimate
	for _, symbol := range cfg.Symbols {
		symbolCtx, cancel := context.WithTimeout(ctx, cfg.FitTimeout)
		estimates, err := estimator.EstimateAll(symbolCtx, symbol, cfg.MinDTE, cfg.MaxDTE, os.Stderr)
		cancel()
		if err != nil {
			logger.Error("failed to estimate densities", "symbol", symbol, "error", err)
			continue
		}
		all = append(all, estimates...)
	}

	if len(all) == 0 {
		logger.Error("no densities calibrated, check symbols and DTE window")
		os.Exit(1)
	}

	out, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		logger.Error("failed to marshal estimates", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(cfg.Output, out, 0o644); err != nil {
		logger.Error("failed to write output", "file", cfg.Output, "error", err)
		os.Exit(1)
	}
	logger.Info("wrote estimates", "count", len(all), "file", cfg.Output)
}
