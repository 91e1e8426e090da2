package rabbitmq

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/mit-27/panora-sync/internal/config"
)

const (
	initialBackoff     = time.Second
	maxBackoff         = 30 * time.Second
	maxInitialAttempts = 10
	maxPublishRetries  = 3
)

// Connection owns one AMQP connection and channel and re-establishes both when the broker drops them
type Connection struct {
	conn         *amqp.Connection
	channel      *amqp.Channel
	config       *config.RabbitMQConfig
	logger       *zap.Logger
	stopChan     chan struct{}
	mu           sync.RWMutex
	reconnecting bool
	reconnectMu  sync.Mutex

	// onReconnect runs after every successful reconnect, e.g. to redeclare topology
	onReconnect []func(ch *amqp.Channel) error
}

func NewConnection(rabbitMQConfig *config.RabbitMQConfig, logger *zap.Logger) *Connection {
	return &Connection{
		config:   rabbitMQConfig,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Connect dials with exponential backoff and then watches the connection for drops
func (c *Connection) Connect(ctx context.Context) error {
	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		c.logger.Info("Attempting initial connection to RabbitMQ",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxInitialAttempts),
		)

		err := c.connect()
		if err == nil {
			c.logger.Info("Initial connection to RabbitMQ established", zap.Int("attempt", attempt))
			break
		}
		if attempt >= maxInitialAttempts {
			return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxInitialAttempts, err)
		}

		c.logger.Warn("Initial connection to RabbitMQ failed, retrying...",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff)
	}

	go c.monitorConnection()
	return nil
}

func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil && !c.channel.IsClosed() {
		c.channel.Close()
	}
	if c.conn != nil && !c.conn.IsClosed() {
		c.conn.Close()
	}

	amqpConfig := amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Vhost:     c.config.VHost,
		Properties: amqp.Table{
			"connection_name": "panora-sync",
		},
	}

	conn, err := amqp.DialConfig(c.config.ConnectionURL(), amqpConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	for _, hook := range c.onReconnect {
		if err := hook(channel); err != nil {
			channel.Close()
			conn.Close()
			return err
		}
	}

	c.conn = conn
	c.channel = channel
	c.logger.Info("Successfully connected to RabbitMQ",
		zap.String("host", c.config.Host),
		zap.String("vhost", c.config.VHost),
		zap.Duration("heartbeat", amqpConfig.Heartbeat),
	)
	return nil
}

func (c *Connection) monitorConnection() {
	for {
		c.mu.RLock()
		if c.conn == nil || c.channel == nil {
			c.mu.RUnlock()
			c.logger.Error("Connection or channel not initialized, cannot monitor connection")
			return
		}
		connClose := c.conn.NotifyClose(make(chan *amqp.Error, 1))
		channelClose := c.channel.NotifyClose(make(chan *amqp.Error, 1))
		c.mu.RUnlock()

		var closeErr *amqp.Error
		select {
		case <-c.stopChan:
			return
		case closeErr = <-connClose:
		case closeErr = <-channelClose:
		}
		if closeErr == nil {
			// graceful close
			return
		}

		c.logger.Error("RabbitMQ connection lost, attempting to reconnect",
			zap.Error(closeErr),
			zap.String("reason", closeErr.Reason),
		)
		c.reconnect()
	}
}

func (c *Connection) reconnect() {
	c.reconnectMu.Lock()
	if c.reconnecting {
		c.reconnectMu.Unlock()
		return
	}
	c.reconnecting = true
	c.reconnectMu.Unlock()

	defer func() {
		c.reconnectMu.Lock()
		c.reconnecting = false
		c.reconnectMu.Unlock()
	}()

	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		select {
		case <-c.stopChan:
			return
		default:
		}

		if err := c.connect(); err != nil {
			c.logger.Warn("Failed to reconnect to RabbitMQ, retrying...",
				zap.Error(err),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-c.stopChan:
				return
			case <-time.After(backoff):
			}
			backoff = nextBackoff(backoff)
			continue
		}

		c.logger.Info("Successfully reconnected to RabbitMQ", zap.Int("attempt", attempt))
		return
	}
}

func nextBackoff(current time.Duration) time.Duration {
	current *= 2
	if current > maxBackoff {
		return maxBackoff
	}
	return current
}

// Close stops reconnection and closes the channel and connection
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.stopChan:
	default:
		close(c.stopChan)
	}

	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.logger.Info("RabbitMQ connection closed")
	}
}

// OnReconnect registers a hook run on the fresh channel of every (re)connect.
// Hooks registered before Connect also run on the first connect.
func (c *Connection) OnReconnect(hook func(ch *amqp.Channel) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReconnect = append(c.onReconnect, hook)
}

// Publish sends a persistent JSON message, retrying while the channel is being re-established.
// A positive expiration sets the per-message TTL.
func (c *Connection) Publish(ctx context.Context, exchange, routingKey string, body []byte, expiration time.Duration) error {
	retryDelay := 100 * time.Millisecond

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	}
	if expiration > 0 {
		msg.Expiration = strconv.FormatInt(expiration.Milliseconds(), 10)
	}

	var lastErr error
	for attempt := 1; attempt <= maxPublishRetries; attempt++ {
		c.mu.RLock()
		ch := c.channel
		conn := c.conn
		c.mu.RUnlock()

		if ch == nil || ch.IsClosed() || conn == nil || conn.IsClosed() {
			lastErr = fmt.Errorf("RabbitMQ channel is not initialized or closed")
		} else if err := ch.PublishWithContext(ctx, exchange, routingKey, false, false, msg); err != nil {
			lastErr = fmt.Errorf("failed to publish message: %w", err)
			if !ch.IsClosed() && !conn.IsClosed() {
				return lastErr
			}
		} else {
			return nil
		}

		if attempt == maxPublishRetries {
			break
		}
		c.logger.Warn("Publish failed, retrying...",
			zap.Error(lastErr),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxPublishRetries),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
		retryDelay *= 2
	}
	return fmt.Errorf("failed to publish message after %d attempts: %w", maxPublishRetries, lastErr)
}

// Consume registers a manual-ack consumer on queue
func (c *Connection) Consume(queue, consumerTag string) (<-chan amqp.Delivery, error) {
	ch, err := c.liveChannel()
	if err != nil {
		return nil, err
	}
	messages, err := ch.Consume(queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}
	return messages, nil
}

// CancelConsumer stops deliveries to consumerTag
func (c *Connection) CancelConsumer(consumerTag string) error {
	ch, err := c.liveChannel()
	if err != nil {
		return err
	}
	return ch.Cancel(consumerTag, false)
}

func (c *Connection) SetQoS(prefetchCount int) error {
	ch, err := c.liveChannel()
	if err != nil {
		return err
	}
	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	return nil
}

func (c *Connection) liveChannel() (*amqp.Channel, error) {
	c.mu.RLock()
	ch := c.channel
	c.mu.RUnlock()
	if ch == nil || ch.IsClosed() {
		return nil, fmt.Errorf("RabbitMQ channel is not initialized or closed")
	}
	return ch, nil
}

func (c *Connection) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed() && c.channel != nil && !c.channel.IsClosed()
}
