// internal/notify/rabbitmq.go
package notify

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQ is a connection and channel used to publish notification messages.
type RabbitMQ struct {
	conn *amqp.Connection
	chn  *amqp.Channel
}

// DialRabbitMQ opens a connection and a channel on it.
func DialRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	chn, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &RabbitMQ{conn: conn, chn: chn}, nil
}

// Close closes the channel, then the connection.
func (r *RabbitMQ) Close() error {
	if err := r.chn.Close(); err != nil {
		return err
	}
	return r.conn.Close()
}

// CreateQueue declares a durable queue.
func (r *RabbitMQ) CreateQueue(name string) error {
	_, err := r.chn.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	return err
}

// Publish sends a persistent JSON message to queue through the default exchange.
func (r *RabbitMQ) Publish(ctx context.Context, queue string, body []byte) error {
	return r.chn.PublishWithContext(
		ctx,
		"",    // exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}
