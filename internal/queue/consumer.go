package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/logger"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/metrics"
)

// PaymentConfirmer applies a verified payment to an order.
type PaymentConfirmer interface {
	ConfirmPayment(ctx context.Context, orderID uint64, paymentRef string) error
}

// PaymentConfirmerFunc adapts a function to PaymentConfirmer.
type PaymentConfirmerFunc func(ctx context.Context, orderID uint64, paymentRef string) error

func (f PaymentConfirmerFunc) ConfirmPayment(ctx context.Context, orderID uint64, paymentRef string) error {
	return f(ctx, orderID, paymentRef)
}

// ack outcomes of one delivery.
type outcome int

const (
	outcomeAck outcome = iota
	outcomeRequeue
	outcomeReject
)

func (o outcome) String() string {
	switch o {
	case outcomeAck:
		return "ack"
	case outcomeRequeue:
		return "requeue"
	default:
		return "reject"
	}
}

// PaymentConsumer reads payment.confirmed messages and confirms the
// referenced orders.  Malformed messages are rejected.  Errors that can
// never succeed (expired order, wrong state, unknown order) are acked so
// they leave the queue; other errors are requeued once.
type PaymentConsumer struct {
	url       string
	confirm   PaymentConfirmer
	permanent func(error) bool
	log       *zap.Logger
	timeout   time.Duration
}

// NewPaymentConsumer builds a consumer.  permanent classifies errors
// returned by confirm.
func NewPaymentConsumer(url string, confirm PaymentConfirmer, permanent func(error) bool, log *zap.Logger) *PaymentConsumer {
	if log == nil {
		log = zap.NewNop()
	}
	if permanent == nil {
		permanent = func(error) bool { return false }
	}
	return &PaymentConsumer{
		url:       url,
		confirm:   confirm,
		permanent: permanent,
		log:       log.Named("payment-consumer"),
		timeout:   10 * time.Second,
	}
}

// Run connects to the broker, declares the payment.confirmed queue and
// consumes until ctx is cancelled, reconnecting with exponential backoff.
func (c *PaymentConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("dial broker failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("consume loop ended, reconnecting", zap.Error(err))
		if !sleepCtx(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *PaymentConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(TopicPaymentConfirmed, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(TopicPaymentConfirmed, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.log.Info("consuming", zap.String("queue", TopicPaymentConfirmed))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.settle(d, c.handle(ctx, d.Body, d.Redelivered, d.MessageId))
		}
	}
}

func (c *PaymentConsumer) settle(d amqp.Delivery, o outcome) {
	var err error
	switch o {
	case outcomeAck:
		err = d.Ack(false)
	case outcomeRequeue:
		err = d.Nack(false, true)
	default:
		err = d.Nack(false, false)
	}
	if err != nil {
		c.log.Warn("settle delivery failed", zap.String("outcome", o.String()), zap.Error(err))
	}
}

// handle processes one message body and decides how it is settled.
func (c *PaymentConsumer) handle(ctx context.Context, body []byte, redelivered bool, messageID string) outcome {
	ctx = logger.WithRequestID(ctx, messageID)
	log := logger.For(ctx, c.log)

	var ev PaymentConfirmedEvent
	if err := json.Unmarshal(body, &ev); err != nil || ev.OrderID == 0 {
		log.Warn("malformed payment message", zap.ByteString("body", truncate(body, 256)), zap.Error(err))
		metrics.RecordConsumed(TopicPaymentConfirmed, outcomeReject.String())
		return outcomeReject
	}

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	err := c.confirm.ConfirmPayment(cctx, ev.OrderID, ev.PaymentRef)
	cancel()

	o := outcomeAck
	switch {
	case err == nil:
		log.Info("payment applied", zap.Uint64("order_id", ev.OrderID), zap.String("payment_ref", ev.PaymentRef))
	case c.permanent(err):
		log.Warn("payment not applicable", zap.Uint64("order_id", ev.OrderID), zap.Error(err))
	case !redelivered:
		o = outcomeRequeue
		log.Warn("payment failed, requeueing", zap.Uint64("order_id", ev.OrderID), zap.Error(err))
	default:
		o = outcomeReject
		log.Error("payment failed after redelivery", zap.Uint64("order_id", ev.OrderID), zap.Error(err))
	}
	metrics.RecordConsumed(TopicPaymentConfirmed, o.String())
	return o
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
