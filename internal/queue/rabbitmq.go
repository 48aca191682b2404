package queue

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	defaultReconnectBackoff = time.Second
	defaultMaxBackoff       = 30 * time.Second
	defaultDialTimeout      = 15 * time.Second
	connectionName          = "alarm-gateway"
)

// Options configures the broker connection and the topology declared on it.
type Options struct {
	URL              string
	Topology         Topology
	ReconnectBackoff time.Duration
	MaxBackoff       time.Duration
	DialTimeout      time.Duration
}

func (o Options) withDefaults() Options {
	o.Topology = o.Topology.withDefaults()
	if o.ReconnectBackoff <= 0 {
		o.ReconnectBackoff = defaultReconnectBackoff
	}
	if o.MaxBackoff < o.ReconnectBackoff {
		o.MaxBackoff = max(defaultMaxBackoff, o.ReconnectBackoff)
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = defaultDialTimeout
	}
	return o
}

// RabbitMQ owns a single broker connection and redials it when it drops.
type RabbitMQ struct {
	opts Options

	mu   sync.Mutex
	conn *amqp.Connection
}

func NewRabbitMQ(opts Options) (*RabbitMQ, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}

	r := &RabbitMQ{opts: opts.withDefaults()}

	ctx, cancel := context.WithTimeout(context.Background(), r.opts.DialTimeout)
	defer cancel()
	if _, err := r.connection(ctx); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *RabbitMQ) Topology() Topology {
	return r.opts.Topology
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn := r.conn
	r.conn = nil
	if conn == nil || conn.IsClosed() {
		return nil
	}
	return conn.Close()
}

// channel opens a channel with the topology declared on it.
func (r *RabbitMQ) channel(ctx context.Context) (*amqp.Channel, error) {
	conn, err := r.connection(ctx)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		// The connection died between the check and the open.
		r.drop(conn)
		if conn, err = r.connection(ctx); err != nil {
			return nil, err
		}
		if ch, err = conn.Channel(); err != nil {
			return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
		}
	}

	if err := r.opts.Topology.declare(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return ch, nil
}

// connection returns the live connection, dialing with backoff until it
// succeeds or ctx ends.
func (r *RabbitMQ) connection(ctx context.Context) (*amqp.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil && !r.conn.IsClosed() {
		return r.conn, nil
	}

	properties := amqp.NewConnectionProperties()
	properties.SetClientConnectionName(connectionName)

	wait := newBackoff(r.opts.ReconnectBackoff, r.opts.MaxBackoff)
	for {
		conn, err := amqp.DialConfig(r.opts.URL, amqp.Config{
			Dial:       amqp.DefaultDial(r.opts.DialTimeout),
			Properties: properties,
		})
		if err == nil {
			r.conn = conn
			return conn, nil
		}

		if sleepErr := sleepContext(ctx, wait.next()); sleepErr != nil {
			return nil, fmt.Errorf("rabbitmq dial %s gave up: %w (last error: %v)", redactURL(r.opts.URL), sleepErr, err)
		}
	}
}

func (r *RabbitMQ) drop(conn *amqp.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == conn {
		r.conn = nil
	}
	if conn != nil && !conn.IsClosed() {
		_ = conn.Close()
	}
}

// backoff doubles from initial up to max.
type backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

func newBackoff(initial, maxDelay time.Duration) *backoff {
	return &backoff{initial: initial, max: maxDelay}
}

func (b *backoff) next() time.Duration {
	if b.current == 0 {
		b.current = b.initial
		return b.current
	}
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return b.current
}

func (b *backoff) reset() {
	b.current = 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// redactURL hides the broker password in log and error output.
func redactURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	return parsed.Redacted()
}
