package event

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestBus_SubscribeAndPublish(t *testing.T) {
	bus := NewManager()
	var received int32

	bus.Subscribe(JobCreated, func(ctx context.Context, data any) {
		if id, ok := data.(string); ok && id == "a1b2c3d4" {
			atomic.AddInt32(&received, 1)
		}
	})

	ctx := context.Background()
	bus.Publish(ctx, JobCreated, "a1b2c3d4")

	// Allow some time for the async handler to execute
	time.Sleep(100 * time.Millisecond)

	if received != 1 {
		t.Errorf("handler should have been called once, got %d", received)
	}
}

func TestBus_MultipleHandlers(t *testing.T) {
	bus := NewManager()
	var count int32

	bus.Subscribe(JobCompleted, func(ctx context.Context, data any) {
		atomic.AddInt32(&count, 1)
	})
	bus.Subscribe(JobCompleted, func(ctx context.Context, data any) {
		atomic.AddInt32(&count, 1)
	})

	ctx := context.Background()
	bus.Publish(ctx, JobCompleted, nil)

	// Allow some time for the async handlers to execute
	time.Sleep(100 * time.Millisecond)

	if count != 2 {
		t.Errorf("both handlers should have been called, got %d", count)
	}
}

func TestBus_NoSubscribers(t *testing.T) {
	bus := NewManager()

	// Publish an event with no subscribers; no panic should occur.
	ctx := context.Background()
	bus.Publish(ctx, "nonexistent_event", nil)
}

func TestBus_ConcurrentAccess(t *testing.T) {
	bus := NewManager()
	var count int32

	bus.Subscribe(JobFailed, func(ctx context.Context, data any) {
		atomic.AddInt32(&count, 1)
	})

	ctx := context.Background()
	for range 100 {
		go bus.Publish(ctx, JobFailed, nil)
	}

	// Allow some time for the async handlers to execute
	time.Sleep(500 * time.Millisecond)

	if count != 100 {
		t.Errorf("all handlers should have been called, got %d", count)
	}
}
