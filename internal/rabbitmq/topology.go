package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mit-27/panora-sync/internal/config"
)

// DeclareTopology declares the delivery exchange and queue, plus a retry queue
// whose expired messages dead-letter back onto the delivery queue.
func DeclareTopology(ch *amqp.Channel, cfg *config.WebhookConfig) error {
	if err := ch.ExchangeDeclare(cfg.DeliveryExchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", cfg.DeliveryExchange, err)
	}

	if _, err := ch.QueueDeclare(cfg.DeliveryQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", cfg.DeliveryQueue, err)
	}
	if err := ch.QueueBind(cfg.DeliveryQueue, cfg.DeliveryRoutingKey, cfg.DeliveryExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", cfg.DeliveryQueue, err)
	}

	if _, err := ch.QueueDeclare(cfg.RetryQueue, true, false, false, false, RetryQueueArgs(cfg)); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", cfg.RetryQueue, err)
	}
	return nil
}

func RetryQueueArgs(cfg *config.WebhookConfig) amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    cfg.DeliveryExchange,
		"x-dead-letter-routing-key": cfg.DeliveryRoutingKey,
	}
}
