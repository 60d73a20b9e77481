package rabbitmq

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"

	"github.com/LordWorm1996/DormNet/pkg/config"
)

// Client holds one AMQP connection with a publishing channel and a declared
// topic exchange. Dropped connections are re-established in the background.
type Client struct {
	config     *config.RabbitMQConfig
	connection *amqp.Connection
	channel    *amqp.Channel
	mu         sync.RWMutex
	isClosing  bool
}

// NewClient creates a client; Connect must be called before use
func NewClient(cfg *config.RabbitMQConfig) *Client {
	return &Client{config: cfg}
}

// Exchange returns the topic exchange name
func (c *Client) Exchange() string {
	return c.config.Exchange
}

// Connect dials the broker, retrying RetryCount times, and declares the exchange
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *Client) connectLocked() error {
	attempts := c.config.RetryCount
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		c.connection, err = amqp.Dial(c.config.ConnectionURL())
		if err != nil {
			log.Warn().Err(err).Int("attempt", i+1).Int("max_attempts", attempts).Msg("RabbitMQ connection error")
			if i < attempts-1 {
				time.Sleep(c.config.RetryDelay)
			}
			continue
		}

		c.channel, err = c.connection.Channel()
		if err != nil {
			c.connection.Close()
			return fmt.Errorf("failed to open RabbitMQ channel: %w", err)
		}

		err = c.channel.ExchangeDeclare(
			c.config.Exchange, // name
			"topic",           // type
			true,              // durable
			false,             // auto-deleted
			false,             // internal
			false,             // no-wait
			nil,               // arguments
		)
		if err != nil {
			c.channel.Close()
			c.connection.Close()
			return fmt.Errorf("failed to declare exchange: %w", err)
		}

		log.Info().Str("host", c.config.Host).Str("exchange", c.config.Exchange).Msg("Successfully connected to RabbitMQ")

		go c.handleReconnection(c.connection)
		return nil
	}

	return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
}

func (c *Client) handleReconnection(conn *amqp.Connection) {
	notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))

	err, ok := <-notifyClose
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosing {
		return
	}

	log.Warn().Err(err).Msg("RabbitMQ connection lost, reconnecting")
	time.Sleep(2 * time.Second)
	if reconnectErr := c.connectLocked(); reconnectErr != nil {
		log.Error().Err(reconnectErr).Msg("RabbitMQ reconnect failed")
	}
}

// Publish sends body to the exchange with routingKey
func (c *Client) Publish(routingKey string, msg amqp.Publishing) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.channel == nil || c.connection == nil || c.connection.IsClosed() {
		return fmt.Errorf("there is no connection to RabbitMQ")
	}
	return c.channel.Publish(c.config.Exchange, routingKey, false, false, msg)
}

// OpenChannel opens a dedicated channel, used for consumers
func (c *Client) OpenChannel() (*amqp.Channel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.connection == nil || c.connection.IsClosed() {
		return nil, fmt.Errorf("there is no connection to RabbitMQ")
	}
	return c.connection.Channel()
}

// IsConnected reports whether the connection is open
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.connection != nil && !c.connection.IsClosed()
}

// Close closes the channel and connection; it is safe to call more than once
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isClosing {
		return nil
	}
	c.isClosing = true

	var closeErr error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			closeErr = fmt.Errorf("channel close error: %w", err)
		}
	}
	if c.connection != nil {
		if err := c.connection.Close(); err != nil && closeErr == nil {
			closeErr = fmt.Errorf("connection close error: %w", err)
		}
	}

	if closeErr == nil {
		log.Info().Msg("RabbitMQ connection closed")
	}
	return closeErr
}
