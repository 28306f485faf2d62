package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher sends outbox events to RabbitMQ on the default exchange.  The
// connection is opened lazily and re-dialled after any channel error.
// Publishes wait for the broker confirm so that a row is only marked sent
// once the broker owns the message.
type Publisher struct {
	url string
	log *zap.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]bool
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{url: url, log: log.Named("publisher"), declared: map[string]bool{}}
}

// outboxNamespace seeds the name-based message ids of outbox rows.
var outboxNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("lottery-ticket-engine/outbox"))

// MessageID returns the AMQP message id of an outbox row.  It depends only
// on the row id, so every republish of a row carries the same id.
func MessageID(outboxID int64) string {
	return uuid.NewSHA1(outboxNamespace, []byte(strconv.FormatInt(outboxID, 10))).String()
}

func newPublishing(key string, outboxID int64, body []byte, now time.Time) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    MessageID(outboxID),
		Timestamp:    now.UTC(),
		Headers:      amqp.Table{"biz_key": key, "outbox_id": outboxID},
		Body:         body,
	}
}

// Publish sends body to the durable queue named topic.  The message id is
// derived from outboxID and key is carried in the biz_key header, so
// consumers can deduplicate redeliveries on either.
func (p *Publisher) Publish(ctx context.Context, topic, key string, outboxID int64, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}
	if !p.declared[topic] {
		if _, err := ch.QueueDeclare(topic, true, false, false, false, nil); err != nil {
			p.reset()
			return fmt.Errorf("queue declare %s: %w", topic, err)
		}
		p.declared[topic] = true
	}

	msg := newPublishing(key, outboxID, body, time.Now())
	conf, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", topic, false, false, msg)
	if err != nil {
		p.reset()
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	acked, err := conf.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("publish %s: wait confirm: %w", topic, err)
	}
	if !acked {
		return fmt.Errorf("publish %s: nacked by broker", topic)
	}
	return nil
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn, p.ch = nil, nil
	return err
}

func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	p.conn, p.ch = conn, ch
	p.log.Info("connected to broker")
	return ch, nil
}

func (p *Publisher) reset() {
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			p.log.Debug("close broker connection", zap.Error(err))
		}
	}
	p.conn, p.ch = nil, nil
	p.declared = map[string]bool{}
}
