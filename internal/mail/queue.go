package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// QueueSender hands messages to RabbitMQ; delivery happens in cmd/mailer.
type QueueSender struct {
	conn    *amqp.Connection
	channel publisher
	queue   string
}

func NewQueueSender(url, queueName string) (*QueueSender, error) {
	const op = "mail.NewQueueSender"

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	q, err := ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &QueueSender{conn: conn, channel: ch, queue: q.Name}, nil
}

func (q *QueueSender) Send(ctx context.Context, msg Message) error {
	const op = "mail.QueueSender.Send"

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = q.channel.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (q *QueueSender) Close() {
	if ch, ok := q.channel.(*amqp.Channel); ok {
		_ = ch.Close()
	}
	if q.conn != nil {
		_ = q.conn.Close()
	}
}
