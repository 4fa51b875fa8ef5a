package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"copycontrol/internal/replication"
	"copycontrol/pkg/config"
	"copycontrol/pkg/execution"

	"github.com/joho/godotenv"
	logrus "github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	// Initialize database, RabbitMQ and Redis
	config.InitDB()
	config.InitRabbitMQ()
	defer config.RabbitMQ.Close()
	if err := config.DeclareQueues(); err != nil {
		logrus.Fatal("Failed to declare queues: ", err)
	}
	config.InitRedis()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Wire the replication engine
	publisher, err := config.NewPublisher()
	if err != nil {
		logrus.Fatal("Failed to create publisher: ", err)
	}
	defer publisher.Close()

	registry := replication.NewRegistry(config.DB)
	ledger := replication.NewLedger(config.DB)
	trades := replication.NewTradeStore(config.DB)
	commissions := replication.NewCommissionStore(config.DB)
	cursors := replication.NewCursorStore(config.DB, config.Redis)
	alerts := replication.NewAlerter(config.DB, publisher)

	executionAPI := execution.NewClient()
	priceFeed := execution.NewPriceFeed(executionAPI, config.Redis)
	go priceFeed.Run(ctx)
	defer priceFeed.Stop()

	wallet := execution.NewWalletPublisher(publisher)
	settler := replication.NewSettler(registry, commissions, wallet)

	coordinator := replication.NewCoordinator(
		registry,
		ledger,
		trades,
		priceFeed,
		executionAPI,
		settler,
		alerts,
		replication.DefaultCoordinatorOptions(),
	)
	detector := replication.NewDetector(registry, cursors, trades, coordinator)

	// Shut down cleanly on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logrus.Infof("Received signal %s, shutting down", sig)
		cancel()
	}()

	// Create consumer for master trade events
	msgConsumer, err := config.NewConsumer(config.QueueMasterTradeEvents)
	if err != nil {
		logrus.Fatal("Failed to create consumer: ", err)
	}
	defer msgConsumer.Close()

	logrus.Info("Trade replication worker started, waiting for messages...")

	if err := msgConsumer.Consume(ctx, func(body []byte) error {
		return detector.HandleMessage(ctx, body)
	}); err != nil && err != context.Canceled {
		logrus.Fatal("Consumer stopped: ", err)
	}
}
