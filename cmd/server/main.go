// Package main provides the API server entry point for the fund ledger service.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fund-ledger/internal/adapter"
	"github.com/fund-ledger/internal/api"
	"github.com/fund-ledger/internal/config"
	"github.com/fund-ledger/internal/logging"
	"github.com/fund-ledger/internal/scheduler"
	"github.com/fund-ledger/internal/service"
	"github.com/fund-ledger/internal/storage"
)

func main() {
	fmt.Println("Fund Ledger API Server")
	log.Println("Server starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Initialize database connections
	logger.Info("Connecting to databases...")

	// Connect to Postgres
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	// Connect to ClickHouse
	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	defer clickhouse.Close()

	// Connect to Redis
	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	// Initialize the stablecoin custody client
	stablecoin, err := adapter.NewStablecoinClient(cfg.Chain)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize stablecoin client")
	}
	defer stablecoin.Close()

	if cfg.Chain.RPCURL == "" {
		logger.Info("Running in offline custody mode")
	} else {
		logger.WithFields(map[string]interface{}{
			"chain_id":   cfg.Chain.ChainID,
			"stablecoin": cfg.Chain.Stablecoin,
		}).Info("Connected to stablecoin chain")
	}

	// Initialize repositories
	fundRepo := storage.NewFundRepository(postgres)
	invRepo := storage.NewInvestmentRepository(postgres)
	navRepo := storage.NewNavRepository(postgres)
	eventSink := storage.NewEventSink(clickhouse)
	navCache := storage.NewNavCache(redis, cfg.Cache.NavTTL)

	// Initialize services
	logger.Info("Initializing services...")

	registryService := service.NewRegistryService(fundRepo, eventSink, cfg.Protocol)
	fundService := service.NewFundService(fundRepo, invRepo, navRepo, navCache, eventSink, stablecoin)

	logger.Info("Services initialized")

	// Start the fee sweep scheduler
	sweepScheduler, err := scheduler.NewScheduler(cfg.Sweeper, registryService, invRepo, fundService, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize fee sweep scheduler")
	}
	sweepScheduler.Start()
	defer sweepScheduler.Stop()

	// Create server configuration
	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		FreeTierRPS:     cfg.RateLimit.FreeTier,
		BasicTierRPS:    cfg.RateLimit.BasicTier,
		PremiumTierRPS:  cfg.RateLimit.PremiumTier,
	}

	server := api.NewServer(serverConfig, registryService, fundService)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	// Attempt graceful shutdown
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
