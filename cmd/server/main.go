package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/diffduel/internal/config"
	"github.com/diffduel/internal/handler"
	"github.com/diffduel/internal/history"
	"github.com/diffduel/internal/kafka"
	"github.com/diffduel/internal/matchmaking"
	"github.com/diffduel/internal/postgres"
	"github.com/diffduel/internal/protocol"
	"github.com/diffduel/internal/ranking"
	"github.com/diffduel/internal/redis"
	"github.com/diffduel/internal/router"
	"github.com/diffduel/internal/service"
	"github.com/diffduel/internal/session"
	"github.com/diffduel/internal/validation"
	"github.com/diffduel/internal/websocket"
	"github.com/diffduel/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewRealClock()

	// Initialize Redis
	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	redisRepo, err := redis.NewRankingRepository(&cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisRepo.Close()
	logger.Info("connected to Redis")

	// Initialize PostgreSQL
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	postgresRepo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer postgresRepo.Close()
	logger.Info("connected to PostgreSQL")

	if err := postgresRepo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	rankingStore := ranking.NewStore(redisRepo, logger)
	historyService := history.NewService(postgresRepo, logger)

	// Restore snapshots before any client can read rankings
	syncWorker := worker.NewSyncWorker(redisRepo, postgresRepo, &cfg.Sync, clock, logger)
	logger.Info("restoring rankings from database")
	if err := syncWorker.SyncAllFromDatabase(ctx); err != nil {
		logger.Warn("failed to restore rankings on startup", "error", err)
	}
	if cfg.Sync.Enabled {
		if err := syncWorker.Start(ctx); err != nil {
			logger.Error("failed to start sync worker", "error", err)
			os.Exit(1)
		}
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	// Initialize the event router over the in-memory game state
	eventRouter := router.NewRouter(router.Deps{
		Sessions:  session.NewRegistry(&cfg.Game, logger),
		Queue:     matchmaking.NewQueue(logger),
		Pool:      matchmaking.NewTimedPool(),
		Usernames: matchmaking.NewUsernameRegistry(),
		Rankings:  rankingStore,
		History:   historyService,
		Validator: validation.NewValidator(),
	}, wsHub, logger)
	go eventRouter.Run(ctx)

	scheduler := session.NewScheduler(clock, cfg.Game.TickInterval, func(ctx context.Context) {
		if err := eventRouter.Dispatch(ctx, protocol.Event{Type: protocol.EventTick}); err != nil {
			logger.Debug("tick dropped", "error", err)
		}
	}, logger)
	scheduler.Start(ctx)

	// Score submissions from other services
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, eventRouter, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else if err := kafkaConsumer.Start(); err != nil {
			logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
			kafkaConsumer = nil
		} else {
			logger.Info("Kafka consumer started successfully")
		}
	}

	gameService := service.NewGameService(rankingStore, historyService, wsHub, logger)
	httpHandler := handler.NewHandler(
		gameService,
		wsHub,
		eventRouter,
		&cfg.WebSocket,
		map[string]handler.Pinger{
			"redis":    redisRepo,
			"postgres": postgresRepo,
		},
		logger,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		logger.Info("WebSocket endpoint available at /ws")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	scheduler.Stop()
	cancel()
	wsHub.Stop()

	// Final snapshot so a restart sees the latest rankings
	if err := syncWorker.Stop(); err != nil {
		logger.Error("failed to stop sync worker", "error", err)
	}
	if err := syncWorker.RunOnce(shutdownCtx); err != nil {
		logger.Error("failed to write final snapshot", "error", err)
	}

	logger.Info("server stopped")
}
