package config

import (
	"fmt"
	"log"
	"os"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var RabbitMQ *amqp.Connection

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// brokerURL assembles the AMQP URL from environment variables with
// local-development defaults.
func brokerURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/%s",
		envOr("RABBITMQ_USER", "guest"),
		envOr("RABBITMQ_PASSWORD", "guest"),
		envOr("RABBITMQ_HOST", "localhost"),
		envOr("RABBITMQ_PORT", "5672"),
		os.Getenv("RABBITMQ_VHOST"),
	)
}

// InitRabbitMQ dials the broker, backing off between attempts so the
// worker survives the broker coming up after it in compose environments.
func InitRabbitMQ() {
	url := brokerURL()
	delay := time.Second

	var err error
	for attempt := 1; attempt <= 8; attempt++ {
		var conn *amqp.Connection
		if conn, err = amqp.Dial(url); err == nil {
			RabbitMQ = conn
			log.Printf("Connected to RabbitMQ at %s", envOr("RABBITMQ_HOST", "localhost"))
			return
		}
		log.Printf("RabbitMQ dial attempt %d failed: %v, retrying in %v", attempt, err, delay)
		time.Sleep(delay)
		if delay < 8*time.Second {
			delay *= 2
		}
	}

	log.Fatalf("Could not reach RabbitMQ: %v", err)
}

// DeclareQueues declares every queue the engine touches so consumers
// and publishers agree on durability regardless of start order.
func DeclareQueues() error {
	if RabbitMQ == nil {
		return fmt.Errorf("RabbitMQ connection not initialized")
	}

	ch, err := RabbitMQ.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	for _, name := range []string{QueueMasterTradeEvents, QueueWalletCredits, QueueOperatorAlerts} {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", name, err)
		}
	}
	return nil
}
