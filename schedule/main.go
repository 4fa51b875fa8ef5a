package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"copycontrol/internal/models"
	"copycontrol/internal/replication"
	dbconfig "copycontrol/pkg/config"
	"copycontrol/pkg/execution"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	logger "github.com/sirupsen/logrus"
)

func main() {
	logger.SetFormatter(&logger.JSONFormatter{})
	logger.SetLevel(logger.InfoLevel)

	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using environment variables")
	}

	dbconfig.InitDB()
	dbconfig.InitRabbitMQ()
	defer dbconfig.RabbitMQ.Close()
	dbconfig.InitRedis()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	publisher, err := dbconfig.NewPublisher()
	if err != nil {
		logger.Fatal("Failed to create publisher: ", err)
	}
	defer publisher.Close()

	registry := replication.NewRegistry(dbconfig.DB)
	ledger := replication.NewLedger(dbconfig.DB)
	trades := replication.NewTradeStore(dbconfig.DB)
	commissions := replication.NewCommissionStore(dbconfig.DB)
	cursors := replication.NewCursorStore(dbconfig.DB, dbconfig.Redis)
	alerts := replication.NewAlerter(dbconfig.DB, publisher)

	executionAPI := execution.NewClient()
	priceFeed := execution.NewPriceFeed(executionAPI, dbconfig.Redis)
	go priceFeed.Run(ctx)
	defer priceFeed.Stop()

	wallet := execution.NewWalletPublisher(publisher)
	settler := replication.NewSettler(registry, commissions, wallet)
	coordinator := replication.NewCoordinator(
		registry, ledger, trades, priceFeed, executionAPI, settler, alerts,
		replication.DefaultCoordinatorOptions(),
	)
	detector := replication.NewDetector(registry, cursors, trades, coordinator)
	sweeper := replication.NewSweeper(ledger, trades, registry, coordinator, alerts, sweepGrace())

	c := cron.New()

	// Recovery sweep: re-drive replication intents stuck in PENDING
	if _, err := c.AddFunc("@every 1m", func() {
		count, err := sweeper.Run(ctx)
		if err != nil {
			logger.Errorf("Recovery sweep failed: %v", err)
			return
		}
		if count > 0 {
			logger.Infof("Recovery sweep re-drove %d intents", count)
		}
	}); err != nil {
		logger.Fatal("Failed to register sweep job: ", err)
	}

	// Close reconciliation: catch master closes missed by the live feed
	if _, err := c.AddFunc("@every 2m", func() {
		count, err := detector.ReconcileClosedMasters(ctx)
		if err != nil {
			logger.Errorf("Close reconciliation failed: %v", err)
			return
		}
		if count > 0 {
			logger.Infof("Close reconciliation handled %d trades", count)
		}
	}); err != nil {
		logger.Fatal("Failed to register reconcile job: ", err)
	}

	// Stale cursor check: warn when an active master has produced no
	// events for a while, usually a feed outage
	if _, err := c.AddFunc("@every 5m", func() {
		warnStaleCursors()
	}); err != nil {
		logger.Fatal("Failed to register cursor check job: ", err)
	}

	c.Start()
	logger.Info("Replication schedule started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Infof("Received signal %s, shutting down", sig)

	cronCtx := c.Stop()
	<-cronCtx.Done()
}

func sweepGrace() time.Duration {
	if v := os.Getenv("SWEEP_GRACE_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return time.Duration(parsed) * time.Second
		}
	}
	return 2 * time.Minute
}

// warnStaleCursors logs a warning for active masters whose event cursor
// has not moved in over an hour.
func warnStaleCursors() {
	cutoff := time.Now().Add(-1 * time.Hour)

	var cursors []models.EventCursor
	if err := dbconfig.DB.
		Joins("JOIN master_trader ON master_trader.trading_account_id = event_cursor.master_account_id").
		Where("master_trader.status = ? AND event_cursor.last_event_at < ?", models.MasterTraderActive, cutoff).
		Find(&cursors).Error; err != nil {
		logger.Errorf("Stale cursor check failed: %v", err)
		return
	}

	for _, cur := range cursors {
		logger.WithFields(logger.Fields{
			"master_account_id": cur.MasterAccountID,
			"last_sequence":     cur.LastSequence,
			"last_event_at":     cur.LastEventAt,
		}).Warn("No trade events from active master in over an hour")
	}
}
