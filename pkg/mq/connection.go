package mq

import (
	"fmt"
	"os"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"cogmanager/contracts/mq"
)

const ExchangeName = mq.ExchangeEvents

const (
	dialAttempts = 5
	dialBackoff  = time.Second
)

// NewConnection dials RabbitMQ, retrying with linear backoff while the broker
// is unreachable. A malformed URL fails immediately.
func NewConnection(url string) (*amqp091.Connection, error) {
	if _, err := amqp091.ParseURI(url); err != nil {
		return nil, fmt.Errorf("invalid RabbitMQ url: %w", err)
	}

	cfg := amqp091.Config{
		Heartbeat:  10 * time.Second,
		Properties: amqp091.NewConnectionProperties(),
	}
	cfg.Properties.SetClientConnectionName(connectionName())

	var lastErr error
	for attempt := 1; attempt <= dialAttempts; attempt++ {
		conn, err := amqp091.DialConfig(url, cfg)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if attempt < dialAttempts {
			time.Sleep(retryDelay(attempt))
		}
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", dialAttempts, lastErr)
}

func retryDelay(attempt int) time.Duration {
	return time.Duration(attempt) * dialBackoff
}

// connectionName shows up in the management UI as "cogmanager@<host>".
func connectionName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return "cogmanager@" + host
}

// DeclareExchange declares the events topic exchange.
func DeclareExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(
		ExchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}
