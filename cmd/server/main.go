// Command server runs the kurukin orchestration API: WhatsApp gateway
// connections, the prepaid credit ledger and the engine config endpoint.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	_ "modernc.org/sqlite"

	"github.com/soyjavierquiroz/kurukin-core/api"
	"github.com/soyjavierquiroz/kurukin-core/billing"
	"github.com/soyjavierquiroz/kurukin-core/config"
	"github.com/soyjavierquiroz/kurukin-core/gateway"
	"github.com/soyjavierquiroz/kurukin-core/ledger"
	"github.com/soyjavierquiroz/kurukin-core/registry"
	"github.com/soyjavierquiroz/kurukin-core/routing"
	"github.com/soyjavierquiroz/kurukin-core/store"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to the configuration file")
		addr       = flag.String("addr", "", "listen address (overrides the config file)")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(*configPath, *addr, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath, addr string, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Listen = addr
	}

	db, err := sql.Open("sqlite", cfg.Database+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	stores, err := buildStores(db)
	if err != nil {
		return err
	}

	var stacks []registry.Stack
	if cfg.StacksFile != "" {
		stacks, err = registry.LoadStacksFile(cfg.StacksFile)
		if err != nil {
			return fmt.Errorf("load stacks file: %w", err)
		}
	}
	reg := registry.New(stacks, stores.pointers, logger)
	logger.Info("stack inventory loaded", "stacks", len(stacks))

	router := routing.New(stores.records, reg, routing.Defaults{
		Endpoint:    cfg.Gateway.DefaultEndpoint,
		Credential:  cfg.Gateway.DefaultCredential,
		WebhookBase: cfg.Gateway.DefaultWebhookBase,
	}, logger)

	gwMetrics := gateway.NewMetrics(prometheus.DefaultRegisterer)
	gw := gateway.NewClient(gateway.Config{
		FallbackCredential: cfg.Gateway.FallbackCredential,
		Timeout:            cfg.GatewayTimeout(),
		Debug:              cfg.Gateway.Debug,
	}, logger, gwMetrics)

	led, err := ledger.New(stores.entries, stores.balances, stores.markers, stores.grace,
		stores.subs, ledger.Config{
			MinRequired: cfg.Credits.MinRequired,
			GraceDays:   cfg.Credits.GraceDays,
			Currency:    cfg.Credits.Currency,
		}, logger)
	if err != nil {
		return err
	}
	led.WithMetrics(ledger.NewMetrics(prometheus.DefaultRegisterer))

	applier := billing.NewApplier(led, stores.subs, cfg.Rules, logger)

	mw := api.NewMiddleware([]byte(cfg.JWTSecret), cfg.AdminSecret)
	defer mw.Stop()

	mux := api.NewRouter(api.Handlers{
		Middleware: mw,
		Connection: api.NewConnectionHandler(router, gw, logger),
		Wallet:     api.NewWalletHandler(led, logger),
		Settings: api.NewSettingsHandler(stores.settings, router,
			api.NewElevenLabsValidator(cfg.ElevenLabsEndpoint), logger),
		Admin:   api.NewAdminHandler(led, logger),
		Billing: api.NewBillingHandler(applier, logger),
		Engine:  api.NewEngineHandler(router, stores.settings, stores.subs, led, logger),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.StacksFile != "" {
		watcher := config.NewStacksWatcher(cfg.StacksFile, reg.Replace, logger)
		if err := watcher.Start(); err != nil {
			logger.Warn("stacks watcher disabled", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	go led.RunSweeper(ctx, time.Duration(cfg.Credits.SweepIntervalHours)*time.Hour)

	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// sqlStores bundles the persistent stores built over one database handle.
type sqlStores struct {
	records  store.RoutingStore
	entries  store.LedgerStore
	balances store.BalanceStore
	markers  store.MarkerStore
	grace    store.GraceStore
	pointers store.PointerStore
	subs     store.SubscriptionStore
	settings store.SettingsStore
}

func buildStores(db *sql.DB) (*sqlStores, error) {
	records, err := store.NewSQLiteRoutingStore(db)
	if err != nil {
		return nil, err
	}
	entries, err := store.NewSQLiteLedgerStore(db)
	if err != nil {
		return nil, err
	}
	balances, err := store.NewSQLiteBalanceStore(db)
	if err != nil {
		return nil, err
	}
	markers, err := store.NewSQLiteMarkerStore(db)
	if err != nil {
		return nil, err
	}
	grace, err := store.NewSQLiteGraceStore(db)
	if err != nil {
		return nil, err
	}
	pointers, err := store.NewSQLitePointerStore(db)
	if err != nil {
		return nil, err
	}
	subs, err := store.NewSQLiteSubscriptionStore(db)
	if err != nil {
		return nil, err
	}
	settings, err := store.NewSQLiteSettingsStore(db)
	if err != nil {
		return nil, err
	}
	return &sqlStores{
		records:  records,
		entries:  entries,
		balances: balances,
		markers:  markers,
		grace:    grace,
		pointers: pointers,
		subs:     subs,
		settings: settings,
	}, nil
}
