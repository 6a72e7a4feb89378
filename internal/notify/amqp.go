package notify

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultQueue is the RabbitMQ queue notifications are published to.
const DefaultQueue = "bggeo_notifications"

// amqpPublisher is the subset of *amqp.Channel used here.
type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPNotifier publishes notifications to a durable queue.
type AMQPNotifier struct {
	ch    amqpPublisher
	queue string
}

var _ amqpPublisher = (*amqp.Channel)(nil)

// NewAMQPNotifier declares queue on ch and returns a notifier publishing to it.
func NewAMQPNotifier(ch *amqp.Channel, queue string) (*AMQPNotifier, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}
	return &AMQPNotifier{ch: ch, queue: queue}, nil
}

func (a *AMQPNotifier) Notify(ctx context.Context, n Notification) error {
	id, data, err := encodeEnvelope(n)
	if err != nil {
		return err
	}
	err = a.ch.PublishWithContext(ctx, "", a.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    id,
		Type:         EventType,
		Timestamp:    n.At,
		Body:         data,
	})
	if err != nil {
		return fmt.Errorf("failed to publish notification to queue %s: %w", a.queue, err)
	}
	return nil
}
