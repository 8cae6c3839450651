package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures = 5
	openTimeout = 30 * time.Second
)

// Client wraps one exchange/queue pair on a RabbitMQ connection. Publishing
// goes through a circuit breaker so a dead broker fails fast instead of
// stalling request handlers; consuming reconnects with exponential backoff.
type Client struct {
	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	url          string
	exchangeName string
	queueName    string

	failureCount int64
	state        int32
	lastFailure  time.Time
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	client := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
	}
	if err := client.connect(); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := setupTopology(channel, c.exchangeName, c.queueName); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = channel
	c.mu.Unlock()
	return nil
}

func setupTopology(ch *amqp091.Channel, exchange, queue string) error {
	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	// Routing key equals queue name on a direct exchange.
	if err := ch.QueueBind(queue, queue, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

func (c *Client) isCircuitOpen() bool {
	switch atomic.LoadInt32(&c.state) {
	case StateOpen:
		if time.Since(c.lastFailure) > openTimeout {
			atomic.StoreInt32(&c.state, StateHalfOpen)
			return false
		}
		return true
	default:
		return false
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	c.lastFailure = time.Now()
	if atomic.AddInt64(&c.failureCount, 1) >= maxFailures {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

func exponentialBackoff(attempt int) time.Duration {
	d := time.Second << attempt
	if d > 30*time.Second || d <= 0 {
		return 30 * time.Second
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{
		"connection refused",
		"connection closed",
		"EOF",
		"broken pipe",
		"use of closed network connection",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func (c *Client) publish(ctx context.Context, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return fmt.Errorf("circuit breaker is open, not publishing to %s", c.queueName)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()
	if channel == nil {
		c.recordFailure()
		return fmt.Errorf("no channel available")
	}

	err := channel.PublishWithContext(ctx, c.exchangeName, c.queueName, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		})
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()
	return nil
}

// PublishLinkSync enqueues a sync request for a bank link.
func (c *Client) PublishLinkSync(ctx context.Context, orgID, linkID int64) error {
	body, err := NewLinkSyncMessage(orgID, linkID).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, body); err != nil {
		return err
	}
	slog.InfoContext(ctx, "published link sync message",
		"org_id", orgID, "link_id", linkID, "queue", c.queueName)
	return nil
}

// PublishLedgerEvent announces a ledger change.
func (c *Client) PublishLedgerEvent(ctx context.Context, orgID, txID int64, action string) error {
	body, err := NewLedgerEventMessage(orgID, txID, action).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, body); err != nil {
		return err
	}
	slog.InfoContext(ctx, "published ledger event",
		"org_id", orgID, "transaction_id", txID, "action", action, "queue", c.queueName)
	return nil
}

// errBadMessage marks a delivery whose body cannot be decoded. Such messages
// are dropped instead of requeued, they would never become parseable.
var errBadMessage = fmt.Errorf("undecodable message body")

// ConsumeLinkSync delivers link sync messages to handler until ctx is done.
// A handler error nacks with requeue; an undecodable body is dropped. On a
// connection error the client reconnects with exponential backoff.
func (c *Client) ConsumeLinkSync(ctx context.Context, handler func(*LinkSyncMessage) error) error {
	return c.consume(ctx, func(ctx context.Context, body []byte) error {
		msg, err := LinkSyncMessageFromJSON(body)
		if err != nil {
			return fmt.Errorf("%w: %v", errBadMessage, err)
		}
		if err := handler(msg); err != nil {
			return fmt.Errorf("handle link sync for link %d: %w", msg.LinkID, err)
		}
		return nil
	})
}

// ConsumeLedgerEvents delivers ledger change events to handler until ctx is
// done, with the same nack and reconnect semantics as ConsumeLinkSync.
func (c *Client) ConsumeLedgerEvents(ctx context.Context, handler func(*LedgerEventMessage) error) error {
	return c.consume(ctx, func(ctx context.Context, body []byte) error {
		msg, err := LedgerEventMessageFromJSON(body)
		if err != nil {
			return fmt.Errorf("%w: %v", errBadMessage, err)
		}
		if err := handler(msg); err != nil {
			return fmt.Errorf("handle ledger event for transaction %d: %w", msg.TransactionID, err)
		}
		return nil
	})
}

func (c *Client) consume(ctx context.Context, handle func(context.Context, []byte) error) error {
	for attempt := 0; ; attempt++ {
		err := c.consumeOnce(ctx, handle)
		if err == nil || ctx.Err() != nil {
			return ctx.Err()
		}
		if !isConnectionError(err) {
			return err
		}

		wait := exponentialBackoff(attempt)
		slog.WarnContext(ctx, "consumer lost connection, reconnecting",
			"error", err, "backoff", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if err := c.connect(); err != nil {
			slog.ErrorContext(ctx, "reconnect failed", "error", err)
			continue
		}
		attempt = -1
	}
}

func (c *Client) consumeOnce(ctx context.Context, handle func(context.Context, []byte) error) error {
	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()
	if channel == nil {
		return fmt.Errorf("no channel available: connection closed")
	}

	msgs, err := channel.Consume(c.queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}
	slog.InfoContext(ctx, "consuming messages", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed: connection closed")
			}

			if err := handle(ctx, delivery.Body); err != nil {
				if errors.Is(err, errBadMessage) {
					slog.ErrorContext(ctx, "dropping undecodable message",
						"error", err, "queue", c.queueName)
					delivery.Nack(false, false)
					continue
				}
				slog.ErrorContext(ctx, "message handling failed, requeueing",
					"error", err, "queue", c.queueName)
				delivery.Nack(false, true)
				continue
			}
			delivery.Ack(false)
		}
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
