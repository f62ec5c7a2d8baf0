package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"taskmanager/internal/lib/logger/sl"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer drains the mail queue and delivers each message with sender.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	sender  Sender
	log     *slog.Logger
}

func NewConsumer(url, queueName string, sender Sender, log *slog.Logger) (*Consumer, error) {
	const op = "mail.NewConsumer"

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Consumer{conn: conn, channel: ch, queue: queueName, sender: sender, log: log}, nil
}

// Run blocks until ctx is cancelled or the delivery channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	const op = "mail.Consumer.Run"

	deliveries, err := c.channel.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	Drain(ctx, deliveries, c.sender, c.log)
	return nil
}

func (c *Consumer) Close() {
	_ = c.channel.Close()
	_ = c.conn.Close()
}

// Drain handles deliveries one at a time. Malformed payloads are dropped;
// failed sends are requeued once and dropped on redelivery.
func Drain(ctx context.Context, deliveries <-chan amqp.Delivery, sender Sender, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			handle(ctx, d, sender, log)
		}
	}
}

func handle(ctx context.Context, d amqp.Delivery, sender Sender, log *slog.Logger) {
	var msg Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		log.Error("failed to unmarshal message", sl.Err(err))
		_ = d.Reject(false)
		return
	}

	if err := sender.Send(ctx, msg); err != nil {
		log.Error("failed to send message", sl.Err(err), slog.String("to", msg.To))
		_ = d.Nack(false, !d.Redelivered)
		return
	}

	_ = d.Ack(false)
	log.Info("message sent successfully", slog.String("to", msg.To))
}
