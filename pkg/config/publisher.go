package config

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Queue names used by the replication engine.
const (
	QueueMasterTradeEvents = "master_trade_events"
	QueueWalletCredits     = "wallet_credits"
	QueueOperatorAlerts    = "operator_alerts"
)

// Publisher writes persistent JSON messages to named queues over a
// dedicated channel. Safe for concurrent use.
type Publisher struct {
	channel *amqp.Channel

	mu       sync.Mutex
	declared map[string]bool
}

// NewPublisher opens a channel on the shared broker connection.
func NewPublisher() (*Publisher, error) {
	if RabbitMQ == nil {
		return nil, fmt.Errorf("RabbitMQ connection not initialized")
	}

	ch, err := RabbitMQ.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return &Publisher{channel: ch, declared: make(map[string]bool)}, nil
}

func (p *Publisher) ensureQueue(queueName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.declared[queueName] {
		return nil
	}
	if _, err := p.channel.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}
	p.declared[queueName] = true
	return nil
}

// Publish marshals message to JSON and delivers it to queueName as a
// persistent message.
func (p *Publisher) Publish(queueName string, message interface{}) error {
	if err := p.ensureQueue(queueName); err != nil {
		return err
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = p.channel.PublishWithContext(context.Background(),
		"",        // exchange
		queueName, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queueName, err)
	}
	return nil
}

// Close closes the publisher's channel.
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}
