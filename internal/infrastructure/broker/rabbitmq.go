package broker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const dialTimeout = 10 * time.Second

// Publisher forwards domain events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
	Close() error
}

// New returns an AMQP publisher for url, or a LogPublisher when url is empty.
func New(rawURL, exchange string, logger zerolog.Logger) (Publisher, error) {
	if strings.TrimSpace(rawURL) == "" {
		logger.Warn().Msg("broker url not configured, events will only be logged")
		return NewLogPublisher(logger), nil
	}
	return NewAMQPPublisher(rawURL, exchange, logger)
}

// amqpChannel and amqpConnection are the parts of amqp091 the publisher uses.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

type amqpConnection interface {
	channel() (amqpChannel, error)
	IsClosed() bool
	Close() error
}

type dialer func(url string) (amqpConnection, error)

type amqpConn struct {
	*amqp091.Connection
}

func (c amqpConn) channel() (amqpChannel, error) {
	ch, err := c.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func dialAMQP(url string) (amqpConnection, error) {
	conn, err := amqp091.DialConfig(url, amqp091.Config{Dial: amqp091.DefaultDial(dialTimeout)})
	if err != nil {
		return nil, err
	}
	return amqpConn{conn}, nil
}

// AMQPPublisher publishes JSON messages to a durable topic exchange. A
// dropped connection is redialled on the next publish.
type AMQPPublisher struct {
	url      string
	exchange string
	dial     dialer
	logger   zerolog.Logger

	mu      sync.Mutex
	conn    amqpConnection
	channel amqpChannel
}

func NewAMQPPublisher(rawURL, exchange string, logger zerolog.Logger) (*AMQPPublisher, error) {
	return newAMQPPublisher(rawURL, exchange, dialAMQP, logger)
}

func newAMQPPublisher(rawURL, exchange string, dial dialer, logger zerolog.Logger) (*AMQPPublisher, error) {
	clean, err := sanitizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	p := &AMQPPublisher{url: clean, exchange: exchange, dial: dial, logger: logger}
	if err := p.reopen(); err != nil {
		if p.conn != nil {
			p.conn.Close()
		}
		return nil, err
	}
	return p, nil
}

// reopen replaces the channel and redeclares the exchange, dialling a new
// connection first when the current one is gone. Callers hold mu or own p
// exclusively.
func (p *AMQPPublisher) reopen() error {
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := p.dial(p.url)
		if err != nil {
			return fmt.Errorf("dial broker: %w", err)
		}
		if p.conn != nil {
			p.logger.Info().Msg("broker connection re-established")
		}
		p.conn = conn
		p.channel = nil
	}

	ch, err := p.conn.channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	if p.channel != nil {
		p.channel.Close()
	}
	p.channel = ch
	return nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if p.channel == nil {
		if err := p.reopen(); err != nil {
			return err
		}
	}

	err := p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	if err == nil {
		return nil
	}

	// One retry on a fresh channel, on a fresh connection if that dropped too.
	p.logger.Warn().Err(err).Str("routing_key", routingKey).Msg("publish failed, reopening channel")
	if reErr := p.reopen(); reErr != nil {
		p.channel = nil
		return errors.Join(err, reErr)
	}
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.channel != nil {
		errs = append(errs, p.channel.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}

// LogPublisher records events in the log instead of sending them anywhere.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, routingKey string, body []byte) error {
	p.logger.Info().
		Str("routing_key", routingKey).
		RawJSON("body", body).
		Msg("event publish skipped, no broker configured")
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// sanitizeURL strips quotes and whitespace that env files tend to leave
// behind and checks the scheme.
func sanitizeURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("parse broker url: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", fmt.Errorf("broker url scheme must be amqp or amqps, got %q", u.Scheme)
	}
	return clean, nil
}

// RoutingKey maps an event type such as "account.created" onto the routing
// key used on the exchange.
func RoutingKey(eventType string) string {
	return "fintrack." + strings.ToLower(eventType)
}
