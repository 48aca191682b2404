package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kursadbilgin/alarm-gateway/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RabbitMQConsumer delivers work-queue messages to a handler. Every delivery
// is either acked or dead-lettered; nothing is requeued.
type RabbitMQConsumer struct {
	client   *RabbitMQ
	prefetch int
	limits   domain.Limits
	logger   *zap.Logger
}

func NewRabbitMQConsumer(client *RabbitMQ, prefetch int, limits domain.Limits, logger *zap.Logger) *RabbitMQConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RabbitMQConsumer{
		client:   client,
		prefetch: max(prefetch, 1),
		limits:   limits,
		logger:   logger,
	}
}

// Consume blocks until ctx ends, resubscribing with backoff whenever the
// channel or connection drops.
func (c *RabbitMQConsumer) Consume(ctx context.Context, handler MessageHandler) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("consumer is not initialized")
	}
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}

	wait := newBackoff(c.client.opts.ReconnectBackoff, c.client.opts.MaxBackoff)
	for ctx.Err() == nil {
		err := c.subscribe(ctx, handler, wait)
		if ctx.Err() != nil {
			break
		}

		delay := wait.next()
		c.logger.Warn("consumer subscription lost",
			zap.String("queue", c.client.Topology().Queue),
			zap.Duration("retryIn", delay),
			zap.Error(err),
		)
		if sleepContext(ctx, delay) != nil {
			break
		}
	}
	return nil
}

func (c *RabbitMQConsumer) subscribe(ctx context.Context, handler MessageHandler, wait *backoff) error {
	ch, err := c.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	queueName := c.client.Topology().Queue
	deliveries, err := ch.ConsumeWithContext(ctx, queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume queue %q: %w", queueName, err)
	}
	wait.reset()

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel for %q closed", queueName)
			}
			if err := c.handleDelivery(ctx, d, handler); err != nil {
				return err
			}
		}
	}
}

func (c *RabbitMQConsumer) handleDelivery(ctx context.Context, d amqp.Delivery, handler MessageHandler) error {
	var msg AlarmMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		return c.deadLetter(d, "undecodable payload", err,
			zap.String("messageId", d.MessageId),
		)
	}

	if err := msg.Validate(c.limits); err != nil {
		return c.deadLetter(d, "invalid payload", err,
			zap.String("dispatchId", msg.DispatchID),
		)
	}

	if err := handler(ctx, msg); err != nil {
		return c.deadLetter(d, "dispatch failed", err,
			zap.String("dispatchId", msg.DispatchID),
			zap.String("correlationId", msg.CorrelationID),
		)
	}

	if err := d.Ack(false); err != nil {
		return fmt.Errorf("failed to ack delivery: %w", err)
	}
	return nil
}

func (c *RabbitMQConsumer) deadLetter(d amqp.Delivery, reason string, cause error, fields ...zap.Field) error {
	fields = append(fields, zap.String("reason", reason), zap.Error(cause))
	c.logger.Warn("dead-lettering message", fields...)

	if err := d.Reject(false); err != nil {
		return fmt.Errorf("failed to reject delivery (%s): %w", reason, err)
	}
	return nil
}

func (c *RabbitMQConsumer) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
