package webhook

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/mit-27/panora-sync/internal/config"
	"github.com/mit-27/panora-sync/internal/consumer"
	"github.com/mit-27/panora-sync/internal/models"
	"github.com/mit-27/panora-sync/internal/rabbitmq"
)

const consumerRestartDelay = 2 * time.Second

// AMQPQueue publishes jobs to the delivery exchange and delays retries through
// a TTL queue that dead-letters back onto the delivery queue
type AMQPQueue struct {
	conn        *rabbitmq.Connection
	cfg         *config.WebhookConfig
	logger      *zap.Logger
	consumerTag string
}

// NewAMQPQueue registers topology declaration on conn; call it before conn.Connect
func NewAMQPQueue(conn *rabbitmq.Connection, cfg *config.WebhookConfig, logger *zap.Logger) *AMQPQueue {
	conn.OnReconnect(func(ch *amqp.Channel) error {
		return rabbitmq.DeclareTopology(ch, cfg)
	})
	return &AMQPQueue{
		conn:        conn,
		cfg:         cfg,
		logger:      logger,
		consumerTag: fmt.Sprintf("panora-webhook-worker-%d", time.Now().Unix()),
	}
}

func (q *AMQPQueue) Publish(ctx context.Context, job models.DeliveryJob) error {
	body, err := encodeJob(job)
	if err != nil {
		return err
	}
	return q.conn.Publish(ctx, q.cfg.DeliveryExchange, q.cfg.DeliveryRoutingKey, body, 0)
}

func (q *AMQPQueue) PublishDelayed(ctx context.Context, job models.DeliveryJob, delay time.Duration) error {
	if delay <= 0 {
		return q.Publish(ctx, job)
	}
	body, err := encodeJob(job)
	if err != nil {
		return err
	}
	// default exchange routes by queue name
	return q.conn.Publish(ctx, "", q.cfg.RetryQueue, body, delay)
}

// Consume blocks until ctx is cancelled, re-registering the consumer whenever the channel drops
func (q *AMQPQueue) Consume(ctx context.Context, handler consumer.Handler) error {
	for {
		messages, err := q.register()
		if err != nil {
			q.logger.Error("Failed to start consuming, will retry",
				zap.String("queue", q.cfg.DeliveryQueue),
				zap.Error(err),
			)
		} else {
			q.logger.Info("Consumer registered successfully",
				zap.String("queue", q.cfg.DeliveryQueue),
				zap.String("consumer_tag", q.consumerTag),
			)
			if done := q.drain(ctx, messages, handler); done {
				return nil
			}
			q.logger.Warn("Message channel closed, restarting consumer",
				zap.String("queue", q.cfg.DeliveryQueue),
			)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(consumerRestartDelay):
		}
	}
}

func (q *AMQPQueue) register() (<-chan amqp.Delivery, error) {
	if !q.conn.IsHealthy() {
		return nil, fmt.Errorf("connection not healthy")
	}
	if err := q.conn.SetQoS(q.cfg.PrefetchCount); err != nil {
		return nil, err
	}
	return q.conn.Consume(q.cfg.DeliveryQueue, q.consumerTag)
}

// drain returns true when ctx ended, false when the delivery channel closed
func (q *AMQPQueue) drain(ctx context.Context, messages <-chan amqp.Delivery, handler consumer.Handler) bool {
	for {
		select {
		case <-ctx.Done():
			if err := q.conn.CancelConsumer(q.consumerTag); err != nil {
				q.logger.Warn("Failed to cancel consumer",
					zap.String("consumer_tag", q.consumerTag),
					zap.Error(err),
				)
			}
			return true
		case msg, ok := <-messages:
			if !ok {
				return false
			}
			consumer.Process(ctx, q.logger, q.cfg.DeliveryQueue, msg, handler)
		}
	}
}

func (q *AMQPQueue) Healthy() bool {
	return q.conn.IsHealthy()
}
