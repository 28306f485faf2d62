package queue

import (
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageIDIsStablePerRow(t *testing.T) {
	id := MessageID(42)
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, MessageID(42))
	assert.NotEqual(t, id, MessageID(43))
}

func TestRepublishCarriesSameMessageID(t *testing.T) {
	body := []byte(`{"order_id":10}`)
	first := newPublishing("order.paid:10", 42, body, time.Unix(100, 0))
	retry := newPublishing("order.paid:10", 42, body, time.Unix(160, 0))

	assert.Equal(t, first.MessageId, retry.MessageId)
	assert.Equal(t, "order.paid:10", retry.Headers["biz_key"])
	assert.Equal(t, int64(42), retry.Headers["outbox_id"])
	assert.Equal(t, amqp.Persistent, retry.DeliveryMode)
	assert.Equal(t, time.UTC, retry.Timestamp.Location())
}
