package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"hermes/internal/adapters/clickhouse"
	"hermes/internal/adapters/config"
	"hermes/internal/adapters/errors/noop"
	"hermes/internal/adapters/errors/sentry"
	"hermes/internal/adapters/ethchain"
	"hermes/internal/adapters/notify"
	"hermes/internal/adapters/pricefeed"
	redisadapter "hermes/internal/adapters/redis"
	"hermes/internal/domain/option"
	"hermes/internal/domain/trade"
	"hermes/internal/metrics"
	chrepo "hermes/internal/repository/clickhouse"
	redisrepo "hermes/internal/repository/redis"
	"hermes/internal/server"
	"hermes/internal/services/approval"
	"hermes/internal/services/desk"
	"hermes/internal/services/executor"
	"hermes/internal/services/greeks"
	"hermes/internal/services/router"
	"hermes/internal/workers"
	"hermes/pkg/errors"
	"hermes/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger
	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()
	log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	// Initialize error tracker
	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	// Initialize metrics
	metrics.Init()
	startMetricsServer(cfg.App.MetricsAddr, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Chain access
	client, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		log.Fatalf("Failed to connect to RPC node: %v", err)
	}
	defer client.Close()

	reader := ethchain.NewReader(client, ethchain.ReaderConfig{
		Factory:   common.HexToAddress(cfg.Chain.Factory),
		RateLimit: cfg.Chain.RateLimit,
		RateBurst: cfg.Chain.RateBurst,
	})
	signer, err := ethchain.NewSigner(client, cfg.Chain.PrivateKey, cfg.Chain.ChainID, nil)
	if err != nil {
		log.Fatalf("Failed to initialize signer: %v", err)
	}
	errorTracker.SetWallet(ctx, signer.Address().Hex())
	log.Infow("Wallet ready", "address", signer.Address().Hex())

	// Storage
	redisClient, err := redisadapter.NewClient(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	submissions := redisrepo.NewSubmissionRepository(redisClient.Client())

	var history greeks.HistoryRepository
	if cfg.ClickHouse.Enabled {
		chClient, err := clickhouse.NewClient(cfg.ClickHouse)
		if err != nil {
			log.Fatalf("Failed to connect to ClickHouse: %v", err)
		}
		defer chClient.Close()
		greeksRepo := chrepo.NewGreeksRepository(chClient.Conn())
		greeksRepo.Start()
		defer greeksRepo.Stop()
		history = greeksRepo
	}

	// Price feed
	feed := pricefeed.New(pricefeed.Config{
		URL:     cfg.PriceFeed.URL,
		Symbols: cfg.PriceFeed.Symbols,
		Timeout: cfg.PriceFeed.Timeout,
		MaxAge:  cfg.PriceFeed.MaxAge,
	})
	go func() {
		if err := feed.Start(ctx); err != nil && ctx.Err() == nil {
			log.Errorf("Price feed stopped: %v", err)
		}
	}()

	// Services
	settings := trade.Settings{
		SlippageBps: uint64(cfg.Engine.SlippageBps),
		Deadline:    cfg.Engine.Deadline,
		Receiver:    signer.Address(),
	}
	contracts := router.Contracts{
		Factory:   common.HexToAddress(cfg.Chain.Factory),
		Router:    common.HexToAddress(cfg.Chain.Router),
		Connector: common.HexToAddress(cfg.Chain.Connector),
		Trader:    common.HexToAddress(cfg.Chain.Trader),
	}

	routerSvc := router.NewService(reader, contracts, settings)
	approvalSvc := approval.NewService(reader, signer)
	deskSvc := desk.NewService(routerSvc, approvalSvc)
	greeksSvc := greeks.NewService(feed, cfg.Engine.RiskFreeRate, history)
	executorSvc := executor.NewService(signer, approvalSvc, submissions, initNotifier(cfg, log))

	// Watchlist
	watch, err := option.LoadWatchlist(cfg.Engine.WatchlistPath)
	if err != nil {
		log.Fatalf("Failed to load watchlist: %v", err)
	}
	log.Infow("Watchlist loaded", "series", len(watch))

	// API
	api := server.New(cfg.App.APIAddr, server.Deps{
		Router:      routerSvc,
		Desk:        deskSvc,
		Approvals:   approvalSvc,
		Executor:    executorSvc,
		Greeks:      greeksSvc,
		Submissions: submissions,
		Watchlist:   watch,
	})
	go func() {
		if err := api.Start(); err != nil {
			log.Errorf("API server failed: %v", err)
		}
	}()

	// Workers
	scheduler := workers.NewScheduler()
	scheduler.RegisterWorker(workers.NewGreeksWorker(
		routerSvc, greeksSvc, watch,
		cfg.Workers.GreeksInterval, cfg.Workers.GreeksEnabled,
	))
	scheduler.RegisterWorker(workers.NewAllowanceWorker(
		deskSvc,
		cfg.Workers.AllowanceInterval, cfg.Workers.AllowanceEnabled,
	))
	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start workers: %v", err)
	}

	log.Info("System initialized successfully")

	waitForShutdown(ctx, cancel, api, scheduler, errorTracker, log)
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// initNotifier wires the alert channel (Telegram when configured)
func initNotifier(cfg *config.Config, log *logger.Logger) notify.Sink {
	sinks := notify.MultiSink{notify.NewLogSink()}

	if cfg.Telegram.Enabled {
		tg, err := notify.NewTelegramSink(notify.TelegramConfig{
			Token:  cfg.Telegram.BotToken,
			ChatID: cfg.Telegram.ChatID,
			Debug:  cfg.App.Debug,
		})
		if err != nil {
			log.Warnf("Failed to initialize Telegram alerts: %v", err)
		} else {
			sinks = append(sinks, tg)
			log.Info("Telegram alerts initialized")
		}
	}

	return sinks
}

// startMetricsServer exposes the Prometheus handler
func startMetricsServer(addr string, log *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	go func() {
		log.Infow("Metrics server listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			log.Errorf("Metrics server failed: %v", err)
		}
	}()
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, api *server.Server, scheduler *workers.Scheduler, errorTracker errors.Tracker, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("Shutting down...")

	cancel()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer drainCancel()
	if err := api.Shutdown(drainCtx); err != nil {
		log.Warnf("API shutdown: %v", err)
	}

	if err := scheduler.Stop(); err != nil {
		log.Warnf("Worker shutdown: %v", err)
	}

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := errorTracker.Flush(flushCtx); err != nil {
		log.Warnf("Failed to flush error tracker: %v", err)
	}

	log.Info("Shutdown complete")
}
