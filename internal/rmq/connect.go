// Package rmq publishes trip lifecycle events to RabbitMQ.
package rmq

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Client holds a RabbitMQ connection and channel bound to one topic exchange.
type Client struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	url      string
}

// NewClient dials RabbitMQ with exponential backoff and declares the topic
// exchange used for trip events.
func NewClient(url, exchange string) (*Client, error) {
	c := &Client{url: url, exchange: exchange}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	var conn *amqp.Connection
	var err error

	for attempt := 1; attempt <= 5; attempt++ {
		conn, err = amqp.Dial(c.url)
		if err == nil {
			ch, chErr := conn.Channel()
			if chErr != nil {
				_ = conn.Close()
				return fmt.Errorf("failed to open channel: %w", chErr)
			}

			if err := ch.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
				_ = ch.Close()
				_ = conn.Close()
				return fmt.Errorf("failed to declare exchange: %w", err)
			}

			c.conn = conn
			c.channel = ch
			slog.Info("connected to RabbitMQ", "exchange", c.exchange)
			return nil
		}

		slog.Warn("RabbitMQ connect attempt failed", "attempt", attempt, "error", err)
		time.Sleep(time.Second * time.Duration(math.Pow(2, float64(attempt))))
	}

	return fmt.Errorf("failed to connect to RabbitMQ after retries: %w", err)
}

// Close closes the channel and connection.
func (c *Client) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn, c.channel = nil, nil
}
