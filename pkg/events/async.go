package events

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/mops-planner-api/pkg/jobs"
)

// AsyncConfig tunes background delivery.
type AsyncConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

// AsyncPublisher hands events to a worker pool so request handlers never wait
// on the broker. Failed deliveries are retried with backoff by the queue.
type AsyncPublisher struct {
	next  Publisher
	queue *jobs.Queue
}

// NewAsyncPublisher starts workers that forward events to next.
func NewAsyncPublisher(ctx context.Context, next Publisher, cfg AsyncConfig, logger *zap.Logger) *AsyncPublisher {
	p := &AsyncPublisher{next: next}
	p.queue = jobs.NewQueue("events", p.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	p.queue.Start(ctx)
	return p
}

func (p *AsyncPublisher) deliver(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(Event)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return p.next.Publish(ctx, event)
}

// Publish enqueues the event. A full buffer drops it and reports the error.
func (p *AsyncPublisher) Publish(_ context.Context, event Event) error {
	if err := p.queue.TryEnqueue(jobs.Job{ID: event.ID, Type: event.Type, Payload: event}); err != nil {
		return fmt.Errorf("enqueue event %s: %w", event.Type, err)
	}
	return nil
}

// Stats exposes delivery counters.
func (p *AsyncPublisher) Stats() jobs.Stats {
	return p.queue.Stats()
}

// Close drains pending events and closes the downstream publisher.
func (p *AsyncPublisher) Close() error {
	p.queue.Stop()
	return p.next.Close()
}
