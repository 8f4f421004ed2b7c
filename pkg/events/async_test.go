package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type flakyPublisher struct {
	mu       sync.Mutex
	failures int
	got      []string
	closed   bool
}

func (f *flakyPublisher) Publish(_ context.Context, event Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("broker unavailable")
	}
	f.got = append(f.got, event.Type)
	return nil
}

func (f *flakyPublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *flakyPublisher) delivered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.got...)
}

func TestAsyncPublisherRetriesFailedDelivery(t *testing.T) {
	next := &flakyPublisher{failures: 1}
	pub := NewAsyncPublisher(context.Background(), next, AsyncConfig{Workers: 1, RetryDelay: 5 * time.Millisecond}, zap.NewNop())

	require.NoError(t, pub.Publish(context.Background(), Event{ID: "evt-1", Type: SlotCreated}))
	require.Eventually(t, func() bool { return len(next.delivered()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, pub.Close())
	assert.True(t, next.closed)
	assert.Equal(t, []string{SlotCreated}, next.delivered())
	assert.EqualValues(t, 1, pub.Stats().Processed)
}

func TestAsyncPublisherDrainsOnClose(t *testing.T) {
	next := &flakyPublisher{}
	pub := NewAsyncPublisher(context.Background(), next, AsyncConfig{Workers: 2, BufferSize: 16}, zap.NewNop())

	for _, typ := range []string{SlotCreated, SlotMoved, SlotDeleted} {
		require.NoError(t, pub.Publish(context.Background(), Event{ID: typ, Type: typ}))
	}
	require.NoError(t, pub.Close())
	assert.ElementsMatch(t, []string{SlotCreated, SlotMoved, SlotDeleted}, next.delivered())

	err := pub.Publish(context.Background(), Event{ID: "late", Type: SlotCreated})
	assert.Error(t, err)
}
