package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sandai/pkbattle/src/app/battles"
	apphistory "github.com/sandai/pkbattle/src/app/history"
	leaderboardsvc "github.com/sandai/pkbattle/src/app/leaderboard"
	"github.com/sandai/pkbattle/src/app/settlement"
	"github.com/sandai/pkbattle/src/domain/activity"
	"github.com/sandai/pkbattle/src/domain/battle"
	"github.com/sandai/pkbattle/src/domain/economy"
	"github.com/sandai/pkbattle/src/domain/history"
	activityinfra "github.com/sandai/pkbattle/src/infra/activity"
	battleinfra "github.com/sandai/pkbattle/src/infra/battle"
	"github.com/sandai/pkbattle/src/infra/catalog"
	economyinfra "github.com/sandai/pkbattle/src/infra/economy"
	historyinfra "github.com/sandai/pkbattle/src/infra/history"
	"github.com/sandai/pkbattle/src/infra/live"
	"github.com/sandai/pkbattle/src/infra/metrics"
	"github.com/sandai/pkbattle/src/infra/scheduler"
)

func main() {
	configPath := flag.String("config", getEnv("PKBATTLE_CONFIG", ""), "path to YAML config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	baseCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	battleStore, inviteStore, historyRepo, closeStore, err := openStores(baseCtx, cfg.Store)
	if err != nil {
		logger.Fatal("failed to open stores", zap.Error(err))
	}
	defer closeStore()

	ledger, err := newLedger(cfg.Economy)
	if err != nil {
		logger.Fatal("failed to configure economy", zap.Error(err))
	}
	giftCatalog := catalog.NewMemoryCatalog(cfg.Gifts)

	dispatcher, closeActivity := newDispatcher(cfg, logger)
	defer closeActivity()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	battleMetrics := metrics.NewBattle(registry)
	hub := live.NewHub(logger.Named("live"))
	clock := clockwork.NewRealClock()

	historyService := apphistory.NewService(historyRepo)
	historyService.Clock = clock

	engine := settlement.NewEngine(battleStore, ledger, historyService)
	engine.Metrics = battleMetrics
	engine.Clock = clock
	engine.Logger = logger.Named("settlement")

	ids, err := battles.NewIDGenerator(cfg.Battle.NodeID)
	if err != nil {
		logger.Fatal("failed to create id generator", zap.Error(err))
	}
	battleService := battles.NewService(battleStore, inviteStore, engine, ids)
	battleService.Live = hub
	battleService.Activity = dispatcher
	battleService.Metrics = battleMetrics
	battleService.Clock = clock
	battleService.Logger = logger.Named("battles")
	battleService.Options = cfg.battleOptions()
	defer battleService.Close()

	leaderboardService := leaderboardsvc.NewService(battleStore, historyService)
	leaderboardService.Logger = logger.Named("leaderboard")

	report, err := battleService.Recover(baseCtx)
	if err != nil {
		logger.Warn("startup recovery incomplete", zap.Error(err))
	}
	logger.Info("startup recovery",
		zap.Int("timers_armed", report.TimersArmed),
		zap.Int("activated", report.Activated),
		zap.Int("finished", report.Finished),
		zap.Int("resettled", report.Resettled),
		zap.Int("invites_expired", report.InvitesExpired),
	)
	recovery, err := scheduler.StartRecovery(clock, cfg.Battle.RecoveryInterval, battleService, logger.Named("recovery"))
	if err != nil {
		logger.Fatal("failed to start recovery scheduler", zap.Error(err))
	}
	defer func() { _ = recovery.Stop() }()

	server := NewServer(ServerConfig{
		Logger:             logger,
		BattleService:      battleService,
		HistoryService:     historyService,
		LeaderboardService: leaderboardService,
		Catalog:            giftCatalog,
		Ledger:             ledger,
		Hub:                hub,
		JWTSecret:          []byte(cfg.Auth.JWTSecret),
		Registry:           registry,
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.HTTPAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-baseCtx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	hub.Shutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func openStores(ctx context.Context, cfg StoreConfig) (battle.Store, battle.InviteStore, history.Repository, func(), error) {
	if cfg.Driver != "postgres" {
		return battleinfra.NewMemoryStore(), battleinfra.NewMemoryInviteStore(), historyinfra.NewMemoryRepository(), func() {}, nil
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, nil, err
	}
	store := battleinfra.NewPostgresStore(pool)
	repo := historyinfra.NewPostgresRepository(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, nil, err
	}
	if err := repo.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, nil, err
	}
	return store, store.Invites(), repo, pool.Close, nil
}

func newLedger(cfg EconomyConfig) (economy.Ledger, error) {
	switch cfg.Driver {
	case "http":
		return economyinfra.NewHTTPLedger(cfg.BaseURL, cfg.APIKey), nil
	case "memory":
		return economyinfra.NewMemoryLedger(cfg.StartingCoins), nil
	}
	return nil, fmt.Errorf("unknown economy driver %q", cfg.Driver)
}

func newDispatcher(cfg Config, logger *zap.Logger) (activity.Dispatcher, func()) {
	fanout := activityinfra.Fanout{activityinfra.LogDispatcher{Logger: logger.Named("activity")}}
	closers := []func(){}
	if cfg.Segment.WriteKey != "" {
		fanout = append(fanout, activityinfra.NewSegmentDispatcher(cfg.Segment.WriteKey, cfg.Segment.Endpoint))
	}
	if cfg.Redis.Addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{cfg.Redis.Addr},
			DB:    cfg.Redis.DB,
		})
		fanout = append(fanout, activityinfra.NewRedisDispatcher(client, cfg.Redis.Channel))
		closers = append(closers, func() { _ = client.Close() })
	}
	return fanout, func() {
		for _, c := range closers {
			c()
		}
	}
}
