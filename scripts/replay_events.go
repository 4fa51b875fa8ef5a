package main

import (
	"flag"
	"log"
	"strings"
	"time"

	"copycontrol/internal/models"
	"copycontrol/pkg/config"

	"github.com/joho/godotenv"
)

// Republishes a master trade event onto the events queue so the worker
// reprocesses it. Safe to run against live data: the replication ledger
// makes reprocessing a no-op for already applied legs.
//
// Usage:
//
//	go run scripts/replay_events.go -trade-id MT-1001 -event CLOSE
func main() {
	tradeID := flag.String("trade-id", "", "master trade external id")
	eventType := flag.String("event", "OPEN", "event type: OPEN, CLOSE or MODIFY")
	flag.Parse()

	if *tradeID == "" {
		log.Fatal("Provide a master trade id with -trade-id")
	}
	evType := strings.ToUpper(*eventType)
	switch evType {
	case models.EventOpen, models.EventClose, models.EventModify:
	default:
		log.Fatalf("Unknown event type %q", evType)
	}

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config.InitDB()
	config.InitRabbitMQ()
	defer config.RabbitMQ.Close()

	var trade models.Trade
	if err := config.DB.Where("external_id = ?", *tradeID).First(&trade).Error; err != nil {
		log.Fatalf("Trade %s not found: %v", *tradeID, err)
	}
	if trade.OriginMasterTradeID != nil {
		log.Fatalf("Trade %s is a replica, not a master trade", *tradeID)
	}

	price := trade.OpenPrice
	if evType == models.EventClose {
		if trade.ClosePrice == nil {
			log.Fatalf("Trade %s has no close price, cannot replay CLOSE", *tradeID)
		}
		price = *trade.ClosePrice
	}

	event := map[string]interface{}{
		"event_type": evType,
		"trade_id":   trade.ExternalID,
		"account_id": trade.TradingAccountID,
		"symbol":     trade.Symbol,
		"side":       trade.Side,
		"quantity":   trade.Quantity,
		"price":      price,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}

	publisher, err := config.NewPublisher()
	if err != nil {
		log.Fatal("Failed to create publisher:", err)
	}
	defer publisher.Close()

	if err := publisher.Publish(config.QueueMasterTradeEvents, event); err != nil {
		log.Fatal("Failed to publish event:", err)
	}
	log.Printf("Republished %s event for trade %s", evType, trade.ExternalID)
}
