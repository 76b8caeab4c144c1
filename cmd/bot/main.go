package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"BreakoutSentinel/internal/collector"
	"BreakoutSentinel/internal/config"
	"BreakoutSentinel/internal/exchange"
	"BreakoutSentinel/internal/ledger"
	"BreakoutSentinel/internal/notifier"
	"BreakoutSentinel/internal/predictor"
	"BreakoutSentinel/internal/recorder"
	"BreakoutSentinel/internal/retry"
	"BreakoutSentinel/internal/risk"
	"BreakoutSentinel/internal/scheduler"
	"BreakoutSentinel/internal/server"
	"BreakoutSentinel/internal/strategy"
	"BreakoutSentinel/internal/telemetry"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] BreakoutSentinel starting...")

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	policy := retry.New(cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay, retry.Always)

	// Init exchange
	fx := exchange.NewFutures(exchange.Options{
		APIKey:         cfg.Exchange.APIKey,
		APISecret:      cfg.Exchange.APISecret,
		Testnet:        cfg.Exchange.Testnet,
		Symbol:         cfg.Exchange.Symbol,
		QtyPrecision:   cfg.Exchange.QtyPrecision,
		PricePrecision: cfg.Exchange.PricePrecision,
	}, policy)
	if err := fx.Setup(ctx, cfg.Exchange.Leverage); err != nil {
		log.Fatalf("[FATAL] exchange setup: %v", err)
	}

	// Init collector
	fetcher := collector.NewBinanceFetcher(fx.Client(), policy.With(exchange.IsTransient))
	log.Printf("[INFO] data source: %s", fetcher.Name())
	col := collector.NewCollector(fetcher, cfg.Exchange.Symbol, cfg.Exchange.Interval,
		collector.Window{StartHour: cfg.Strategy.RangeStartHour, EndHour: cfg.Strategy.RangeEndHour},
		cfg.Strategy.MinRangeCandles, cfg.Strategy.PostLookback)

	// Init model
	mdl, err := predictor.Load(cfg.Model.Backend, cfg.Model.Path, cfg.Model.ORTLibrary, cfg.Model.InputName, cfg.Model.OutputName)
	if err != nil {
		log.Fatalf("[FATAL] load model: %v", err)
	}
	defer mdl.Close()
	eval := strategy.NewEvaluator(mdl, policy, cfg.Strategy.MinRewardMultiple, cfg.Strategy.ATRPeriod, cfg.Strategy.MinPostCandles)

	sizer := risk.NewSizer(risk.SizerConfig{
		TargetRiskPct:     cfg.Risk.TargetRiskPct,
		MinRiskPct:        cfg.Risk.MinRiskPct,
		MaxRiskPct:        cfg.Risk.MaxRiskPct,
		Leverage:          float64(cfg.Exchange.Leverage),
		MinQty:            cfg.Risk.MinQty,
		MinNotional:       cfg.Risk.MinNotional,
		NotionalBuffer:    cfg.Risk.NotionalBuffer,
		MinStopPct:        cfg.Risk.MinStopPct,
		MaxMarginFraction: cfg.Risk.MaxMarginFraction,
		QtyPrecision:      cfg.Exchange.QtyPrecision,
	})
	guard := risk.NewGuard(cfg.Risk.MarginWarningPct, cfg.Risk.MarginCriticalPct)

	// Init ledger
	ldg, err := ledger.Open(cfg.State.LedgerFile)
	if err != nil {
		log.Fatalf("[FATAL] open ledger: %v", err)
	}
	log.Printf("[INFO] ledger loaded: %d days traded", ldg.Count())

	// Init recorder
	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.Printf("[WARN] init sqlite recorder failed, using noop: %v", err)
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
			defer sr.Close()
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	// Init Telegram notifier
	var tn *notifier.TelegramNotifier
	var notify notifier.Notifier = notifier.Noop{}
	if cfg.TelegramEnabled() {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, policy)
		notify = tn
	} else {
		log.Println("[WARN] Telegram not configured, notifications disabled")
	}

	// Ops server
	board := telemetry.NewBoard()
	hub := telemetry.NewHub()
	go hub.Run(ctx)
	srv := server.New(cfg.Server.Addr, board, hub)
	srv.Start()

	// Init trading loop
	loop, err := scheduler.New(scheduler.Deps{
		Collector: col,
		Evaluator: eval,
		Provider:  fx,
		Sizer:     sizer,
		Guard:     guard,
		Ledger:    ldg,
		Recorder:  rec,
		Notifier:  notify,
		Board:     board,
		Hub:       hub,
	}, scheduler.Settings{
		Symbol:            cfg.Exchange.Symbol,
		Leverage:          float64(cfg.Exchange.Leverage),
		MinBalance:        cfg.Risk.MinBalance,
		MarginWarningPct:  cfg.Risk.MarginWarningPct,
		MarginCriticalPct: cfg.Risk.MarginCriticalPct,
		ScanInterval:      cfg.Schedule.ScanInterval,
		IdleInterval:      cfg.Schedule.IdleInterval,
		PostTradeDelay:    cfg.Schedule.PostTradeDelay,
		SettleDelay:       cfg.Schedule.SettleDelay,
		HeartbeatCron:     cfg.Schedule.HeartbeatCron,
		StatusCron:        cfg.Schedule.StatusCron,
	})
	if err != nil {
		log.Fatalf("[FATAL] init trading loop: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		loop.Run(ctx)
	}()

	// Start Telegram polling
	if tn != nil {
		opts := notifier.FormatOptions{
			Leverage:          float64(cfg.Exchange.Leverage),
			MarginWarningPct:  cfg.Risk.MarginWarningPct,
			MarginCriticalPct: cfg.Risk.MarginCriticalPct,
		}
		go tn.StartPolling(ctx, notifier.NewCommandHandler(board, opts))
		log.Println("[INFO] Telegram polling started")
	}

	log.Println("[INFO] BreakoutSentinel is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	cancel()
	<-done

	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	loop.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[WARN] ops server shutdown: %v", err)
	}
	log.Println("[INFO] BreakoutSentinel stopped")
}
