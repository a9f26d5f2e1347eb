package bus

import (
	"context"
	"fmt"

	"github.com/linnemanlabs/go-core/log"
	"github.com/rabbitmq/amqp091-go"
)

// Handler processes one message body. A non-nil error abandons the message
// back to the queue for redelivery; nil acknowledges (removes) it.
type Handler func(ctx context.Context, body []byte) error

// Consumer is a single sequential consumer of the helpdesk queue: messages
// are handled one at a time with manual acknowledgement. Horizontal scaling
// is running more worker processes against the same queue, relying on the
// broker's delivery locking.
type Consumer struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	queue    amqp091.Queue
	prefetch int
	logger   log.Logger
}

// NewConsumer connects to the broker, declares the queue, and bounds
// unacked deliveries to prefetch.
func NewConsumer(url, queue string, prefetch int, logger log.Logger) (*Consumer, error) {
	if logger == nil {
		logger = log.Nop()
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	q, err := declareQueue(ch, queue)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return &Consumer{
		conn:     conn,
		channel:  ch,
		queue:    q,
		prefetch: prefetch,
		logger:   logger,
	}, nil
}

// Run consumes until ctx is cancelled or the broker closes the channel.
// A message already handed to the handler runs to completion (ack or
// abandon); cancellation is only honored between deliveries.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	deliveries, err := c.channel.Consume(
		c.queue.Name,
		"helpdesk-worker",
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	c.logger.Info(ctx, "consuming queue", "queue", c.queue.Name, "prefetch", c.prefetch)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info(context.Background(), "consumer stopping", "queue", c.queue.Name)
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed by broker")
			}
			c.handle(ctx, msg, handler)
		}
	}
}

// handle runs the handler and settles the delivery. Handler errors and
// panics abandon the message for redelivery; anything else acknowledges it.
// The handler runs on a context detached from run-loop cancellation: a
// delivery already taken off the queue finishes (ack or abandon) even when
// shutdown starts mid-message. Per-call timeouts inside the stages still
// bound each downstream call.
func (c *Consumer) handle(ctx context.Context, msg amqp091.Delivery, handler Handler) {
	hctx := context.WithoutCancel(ctx)
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Warn(ctx, "handler panicked, abandoning message",
				"message_id", msg.MessageId, "panic", rec)
			if err := msg.Nack(false, true); err != nil {
				c.logger.Error(ctx, err, "nack after panic failed", "message_id", msg.MessageId)
			}
		}
	}()

	if err := handler(hctx, msg.Body); err != nil {
		c.logger.Error(ctx, err, "message abandoned for redelivery", "message_id", msg.MessageId)
		if nerr := msg.Nack(false, true); nerr != nil {
			c.logger.Error(ctx, nerr, "nack failed", "message_id", msg.MessageId)
		}
		return
	}

	if err := msg.Ack(false); err != nil {
		c.logger.Error(ctx, err, "ack failed", "message_id", msg.MessageId)
	}
}

// Close releases the channel and connection.
func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
