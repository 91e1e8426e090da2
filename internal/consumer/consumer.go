package consumer

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Handler processes one message body
type Handler interface {
	HandleMessage(ctx context.Context, body []byte) error
}

type HandlerFunc func(ctx context.Context, body []byte) error

func (f HandlerFunc) HandleMessage(ctx context.Context, body []byte) error {
	return f(ctx, body)
}

// Process runs the handler on msg. It acks on success and nacks without
// requeue on failure; redelivery is driven by the handler's own retry scheduling.
func Process(ctx context.Context, logger *zap.Logger, queue string, msg amqp.Delivery, handler Handler) {
	logger.Debug("Received message from queue",
		zap.String("queue", queue),
		zap.Uint64("delivery_tag", msg.DeliveryTag),
	)

	if err := handler.HandleMessage(ctx, msg.Body); err != nil {
		logger.Error("Failed to process message from queue",
			zap.String("queue", queue),
			zap.Uint64("delivery_tag", msg.DeliveryTag),
			zap.ByteString("body", msg.Body),
			zap.Error(err),
		)
		reject(logger, queue, msg)
		return
	}

	if err := msg.Ack(false); err != nil {
		logger.Error("Failed to ack message from queue",
			zap.String("queue", queue),
			zap.Uint64("delivery_tag", msg.DeliveryTag),
			zap.Error(err),
		)
		reject(logger, queue, msg)
		return
	}

	logger.Debug("Message from queue processed successfully",
		zap.String("queue", queue),
		zap.Uint64("delivery_tag", msg.DeliveryTag),
	)
}

func reject(logger *zap.Logger, queue string, msg amqp.Delivery) {
	if err := msg.Nack(false, false); err != nil {
		// the broker requeues unacked messages when the channel closes
		logger.Error("Failed to nack message",
			zap.String("queue", queue),
			zap.Uint64("delivery_tag", msg.DeliveryTag),
			zap.Error(err),
		)
	}
}
