package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/fortuna/config"
	"github.com/alejandrodnm/fortuna/internal/adapters/httpapi"
	"github.com/alejandrodnm/fortuna/internal/adapters/notify"
	"github.com/alejandrodnm/fortuna/internal/adapters/storage"
	"github.com/alejandrodnm/fortuna/internal/application/ledger"
	"github.com/alejandrodnm/fortuna/internal/application/monitor"
	"github.com/alejandrodnm/fortuna/internal/domain"
	"github.com/alejandrodnm/fortuna/internal/ports"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print ledger events as tables (default: compact 1-line)")
	initProtocol := flag.Bool("init", false, "initialize the protocol from the config and exit")
	serve := flag.Bool("serve", false, "run the HTTP API")
	report := flag.Uint64("report", 0, "print the outcome and payout table of a market and exit")
	audit := flag.Bool("monitor", false, "run the periodic ledger audit")
	once := flag.Bool("once", false, "with -monitor: run one audit cycle and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("fortuna starting",
		"config", *configPath,
		"dsn", cfg.Storage.DSN,
		"init", *initProtocol,
		"serve", *serve,
		"report", *report,
		"monitor", *audit,
	)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	console := notify.NewConsole(*table, cfg.Protocol.TokenDecimals)
	notifiers := []ports.Notifier{console}
	if cfg.Events.AMQPURL != "" {
		pub, err := notify.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			slog.Error("failed to connect to AMQP broker", "err", err)
			os.Exit(1)
		}
		defer pub.Close()
		notifiers = append(notifiers, pub)
	}

	clock := ledger.SystemClock{}
	l := ledger.New(store, clock, notifiers...)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case *initProtocol:
		runInit(ctx, l, cfg.Protocol)
	case *report != 0:
		runReport(ctx, l, console, *report)
	case *serve && *audit:
		// la API y el monitor comparten el ledger
		go runMonitor(ctx, l, store, clock, console, cfg, false)
		runServe(ctx, l, store, cfg.HTTP)
	case *serve:
		runServe(ctx, l, store, cfg.HTTP)
	case *audit:
		runMonitor(ctx, l, store, clock, console, cfg, *once)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

// runInit inicializa el protocolo con la authority del config. Si ya está
// inicializado no hace nada.
func runInit(ctx context.Context, l *ledger.Ledger, cfg config.ProtocolConfig) {
	authority := domain.Address(cfg.Authority)
	err := l.InitializeProtocol(ctx, authority, domain.Address(cfg.Treasury), cfg.Fees)
	switch {
	case errors.Is(err, domain.ErrProtocolAlreadyExists):
		slog.Warn("protocol already initialized, nothing to do")
		return
	case err != nil:
		slog.Error("initialize protocol failed", "err", err)
		os.Exit(1)
	}

	if cfg.RequireLicense {
		if err := l.SetRequireLicense(ctx, authority, true); err != nil {
			slog.Error("enable license gating failed", "err", err)
			os.Exit(1)
		}
	}
	slog.Info("protocol initialized",
		"authority", cfg.Authority,
		"treasury", cfg.Treasury,
		"fee_bps_total", cfg.Fees.Total(),
		"require_license", cfg.RequireLicense,
	)
}

func runReport(ctx context.Context, l *ledger.Ledger, console *notify.Console, marketID uint64) {
	m, err := l.Market(ctx, marketID)
	if err != nil {
		slog.Error("load market failed", "err", err, "market", marketID)
		os.Exit(1)
	}
	bets, err := l.ListBets(ctx, marketID)
	if err != nil {
		slog.Error("load bets failed", "err", err, "market", marketID)
		os.Exit(1)
	}
	console.PrintMarket(m, bets)
}

func runServe(ctx context.Context, l *ledger.Ledger, store *storage.SQLiteStorage, cfg config.HTTPConfig) {
	if cfg.Faucet {
		slog.Warn("dev faucet enabled: any caller can mint balance")
	}
	srv := httpapi.NewServer(l, store, httpapi.Options{
		RatePerSec:     cfg.RatePerSec,
		Burst:          cfg.Burst,
		AllowedOrigins: cfg.AllowedOrigins,
		Faucet:         cfg.Faucet,
	})
	if err := srv.Start(ctx, cfg.Addr); err != nil {
		slog.Error("http api exited with error", "err", err)
		os.Exit(1)
	}
	slog.Info("fortuna stopped cleanly")
}

func runMonitor(ctx context.Context, l *ledger.Ledger, store *storage.SQLiteStorage, clock ports.Clock, console *notify.Console, cfg *config.Config, once bool) {
	if err := store.ApplyAuditSchema(ctx); err != nil {
		slog.Error("failed to create audit tables", "err", err)
		os.Exit(1)
	}
	mon := monitor.New(monitor.Config{
		Interval: cfg.MonitorInterval(),
		Workers:  cfg.Monitor.Workers,
		Once:     once,
	}, l, clock, store, console)
	if err := mon.Run(ctx); err != nil {
		slog.Error("monitor exited with error", "err", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
