package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kursadbilgin/alarm-gateway/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQPublisher publishes persistent messages to the work queue and waits
// for the broker to confirm each one.
type RabbitMQPublisher struct {
	client *RabbitMQ
	limits domain.Limits
}

func NewRabbitMQPublisher(client *RabbitMQ, limits domain.Limits) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client, limits: limits}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, msg AlarmMessage) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	if err := msg.Validate(p.limits); err != nil {
		return fmt.Errorf("invalid alarm message: %w", err)
	}

	payload, err := encodeMessage(msg)
	if err != nil {
		return err
	}

	ch, err := p.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	queueName := p.client.Topology().Queue
	confirmation, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", queueName, false, false, amqp.Publishing{
		ContentType:     "application/json",
		ContentEncoding: "utf-8",
		DeliveryMode:    amqp.Persistent,
		Timestamp:       time.Now().UTC(),
		MessageId:       msg.DispatchID,
		CorrelationId:   msg.CorrelationID,
		Body:            payload,
	})
	if err != nil {
		return fmt.Errorf("failed to publish message to queue %q: %w", queueName, err)
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("publish confirmation for queue %q: %w", queueName, err)
	}
	if !acked {
		return fmt.Errorf("broker nacked message %s on queue %q", msg.DispatchID, queueName)
	}
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

// encodeMessage keeps message text byte-for-byte, without HTML escaping.
func encodeMessage(msg AlarmMessage) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(msg); err != nil {
		return nil, fmt.Errorf("failed to marshal alarm message: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
