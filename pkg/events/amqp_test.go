package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type channelStub struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
	closed   bool
}

func (c *channelStub) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.exchange, c.key, c.msg = exchange, key, msg
	return c.err
}

func (c *channelStub) Close() error {
	c.closed = true
	return nil
}

func TestAMQPPublisherPublishesByType(t *testing.T) {
	ch := &channelStub{}
	pub := newAMQPPublisher(ch, "maintenance.planning", nil)

	err := pub.Publish(context.Background(), Event{Type: SlotCreated, TenantID: "tenant-1", Payload: map[string]string{"slot_id": "s-1"}})
	require.NoError(t, err)

	assert.Equal(t, "maintenance.planning", ch.exchange)
	assert.Equal(t, SlotCreated, ch.key)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)
	assert.NotEmpty(t, ch.msg.MessageId)

	var decoded Event
	require.NoError(t, json.Unmarshal(ch.msg.Body, &decoded))
	assert.Equal(t, "tenant-1", decoded.TenantID)
	assert.Equal(t, ch.msg.MessageId, decoded.ID)
	assert.False(t, decoded.OccurredAt.IsZero())
}

func TestAMQPPublisherWrapsErrors(t *testing.T) {
	ch := &channelStub{err: errors.New("channel closed")}
	pub := newAMQPPublisher(ch, "x", nil)

	err := pub.Publish(context.Background(), Event{Type: SlotMoved})
	assert.ErrorContains(t, err, "publish planning.slot.moved")

	require.NoError(t, pub.Close())
	assert.True(t, ch.closed)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), Event{Type: SlotCreated}))
	assert.NoError(t, p.Close())
}
