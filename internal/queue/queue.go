package queue

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher publishes alarm messages to the dispatch queue.
type Publisher interface {
	Publish(ctx context.Context, msg AlarmMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg AlarmMessage) error

// Consumer consumes alarm messages from the dispatch queue.
type Consumer interface {
	Consume(ctx context.Context, handler MessageHandler) error
	Close() error
}

const (
	DefaultQueue              = "alarm.dispatch"
	DefaultDeadLetterExchange = "alarm.dlx"

	deadLetterPrefix = "dlq."
)

// Topology names the work queue and the exchange its rejected deliveries
// are routed through.
type Topology struct {
	Queue              string
	DeadLetterExchange string
}

func DefaultTopology() Topology {
	return Topology{
		Queue:              DefaultQueue,
		DeadLetterExchange: DefaultDeadLetterExchange,
	}
}

func (t Topology) withDefaults() Topology {
	if strings.TrimSpace(t.Queue) == "" {
		t.Queue = DefaultQueue
	}
	if strings.TrimSpace(t.DeadLetterExchange) == "" {
		t.DeadLetterExchange = DefaultDeadLetterExchange
	}
	return t
}

// DeadLetterQueue is where rejected deliveries end up, e.g. dlq.alarm.dispatch.
func (t Topology) DeadLetterQueue() string {
	return deadLetterPrefix + t.Queue
}

func (t Topology) workQueueArgs() amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    t.DeadLetterExchange,
		"x-dead-letter-routing-key": t.Queue,
	}
}

// declare creates the dead-letter exchange, the dead-letter queue bound to it
// and the work queue. Every call is idempotent.
func (t Topology) declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(t.DeadLetterExchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %q: %w", t.DeadLetterExchange, err)
	}

	dlq := t.DeadLetterQueue()
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %q: %w", dlq, err)
	}
	if err := ch.QueueBind(dlq, t.Queue, t.DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %q: %w", dlq, err)
	}

	if _, err := ch.QueueDeclare(t.Queue, true, false, false, false, t.workQueueArgs()); err != nil {
		return fmt.Errorf("failed to declare queue %q: %w", t.Queue, err)
	}
	return nil
}
