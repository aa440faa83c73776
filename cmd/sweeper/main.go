// Package main provides the standalone fee sweeper entry point. It runs the
// same sweep the API server schedules, either once (-once) or on the
// configured cron schedule, for deployments that separate the sweeper from
// the API process.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fund-ledger/internal/adapter"
	"github.com/fund-ledger/internal/config"
	"github.com/fund-ledger/internal/logging"
	"github.com/fund-ledger/internal/scheduler"
	"github.com/fund-ledger/internal/service"
	"github.com/fund-ledger/internal/storage"
)

func main() {
	onceFlag := flag.Bool("once", false, "Run a single sweep pass and exit")
	flag.Parse()

	fmt.Println("Fund Ledger Fee Sweeper")
	log.Println("Sweeper starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()

	// Initialize database connections
	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	defer clickhouse.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	stablecoin, err := adapter.NewStablecoinClient(cfg.Chain)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize stablecoin client")
	}
	defer stablecoin.Close()

	// Wire the fund service the sweeper drives
	fundRepo := storage.NewFundRepository(postgres)
	invRepo := storage.NewInvestmentRepository(postgres)
	navRepo := storage.NewNavRepository(postgres)
	eventSink := storage.NewEventSink(clickhouse)
	navCache := storage.NewNavCache(redis, cfg.Cache.NavTTL)

	registryService := service.NewRegistryService(fundRepo, eventSink, cfg.Protocol)
	fundService := service.NewFundService(fundRepo, invRepo, navRepo, navCache, eventSink, stablecoin)

	sweepScheduler, err := scheduler.NewScheduler(cfg.Sweeper, registryService, invRepo, fundService, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize fee sweep scheduler")
	}

	if *onceFlag {
		logger.Info("Running single sweep pass")
		sweepScheduler.RunNow()
		return
	}

	if cfg.Sweeper.Schedule == "" {
		logger.Fatal("SWEEPER_SCHEDULE is empty; nothing to do (use -once for a manual pass)")
	}

	sweepScheduler.Start()
	logger.WithField("schedule", cfg.Sweeper.Schedule).Info("Sweeper running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down sweeper...")
	sweepScheduler.Stop()
	logger.Info("Sweeper exited")
}
