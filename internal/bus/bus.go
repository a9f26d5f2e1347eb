// Package bus provides the durable queue transport between the intake
// server and the worker, backed by RabbitMQ.
package bus

import (
	"fmt"

	"github.com/rabbitmq/amqp091-go"
)

// declareQueue declares the durable helpdesk queue on the given channel.
// Both ends declare so either can start first.
func declareQueue(ch *amqp091.Channel, name string) (amqp091.Queue, error) {
	q, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("declare queue %q: %w", name, err)
	}
	return q, nil
}
