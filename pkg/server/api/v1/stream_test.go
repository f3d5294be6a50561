package v1

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GunnyMarc/verba/pkg/event"
	"github.com/GunnyMarc/verba/pkg/jobs"
)

// recordingSink collects events; failAfter > 0 simulates a dead client.
type recordingSink struct {
	mu        sync.Mutex
	events    []StreamEvent
	failAfter int
}

func (s *recordingSink) Send(e StreamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAfter > 0 && len(s.events) >= s.failAfter {
		return errors.New("client gone")
	}
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) snapshot() []StreamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StreamEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *recordingSink) countType(eventType string) int {
	n := 0
	for _, e := range s.snapshot() {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func TestStreamPublisher_UnknownJob(t *testing.T) {
	registry := jobs.NewRegistry(event.NewManager())
	sink := &recordingSink{}

	NewStreamPublisher(registry).Publish(context.Background(), "deadbeef", sink)

	events := sink.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, StreamEventError, events[0].Type)
	assert.Contains(t, events[0].Data["message"], "deadbeef")
}

func TestStreamPublisher_FullLifecycle(t *testing.T) {
	registry := jobs.NewRegistry(event.NewManager())
	job := registry.Create(jobs.KindAudio, "talk.mp3", nil)
	sink := &recordingSink{}

	done := make(chan struct{})
	go func() {
		defer close(done)
		NewStreamPublisher(registry).Publish(context.Background(), job.ID(), sink)
	}()

	job.Start()
	job.UpdateProgress(25, "Preparing audio for transcription...")
	job.UpdateProgress(80, "Transcription complete.")
	job.Complete(map[string]any{"type": "single"})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publisher never finished")
	}

	events := sink.snapshot()
	require.NotEmpty(t, events)

	// Exactly one terminal event, and it is the last one
	assert.Equal(t, 1, sink.countType(StreamEventComplete))
	assert.Equal(t, 0, sink.countType(StreamEventError))
	assert.Equal(t, StreamEventComplete, events[len(events)-1].Type)

	// Progress never regresses across emitted events
	last := -1
	for _, e := range events {
		if e.Type != StreamEventProgress {
			continue
		}
		pct := e.Data["progress"].(int)
		assert.GreaterOrEqual(t, pct, last)
		last = pct
	}

	// Log events carried the stage messages that were observed
	var messages []string
	for _, e := range events {
		if e.Type == StreamEventLog {
			messages = append(messages, e.Data["message"].(string))
		}
	}
	assert.NotEmpty(t, messages)
}

func TestStreamPublisher_FailedJobEmitsErrorEvent(t *testing.T) {
	registry := jobs.NewRegistry(event.NewManager())
	job := registry.Create(jobs.KindAudio, "talk.mp3", nil)
	job.Start()
	job.Fail("tool_missing", "ffmpeg not found")

	sink := &recordingSink{}
	NewStreamPublisher(registry).Publish(context.Background(), job.ID(), sink)

	events := sink.snapshot()
	require.NotEmpty(t, events)
	lastEvent := events[len(events)-1]
	require.Equal(t, StreamEventError, lastEvent.Type)

	failure, ok := lastEvent.Data["error"].(*jobs.Failure)
	require.True(t, ok)
	assert.Equal(t, "tool_missing", failure.Kind)
}

func TestStreamPublisher_ClientDisconnectEndsSilently(t *testing.T) {
	registry := jobs.NewRegistry(event.NewManager())
	job := registry.Create(jobs.KindAudio, "talk.mp3", nil)
	job.Start()

	ctx, cancel := context.WithCancel(context.Background())
	sink := &recordingSink{}

	done := make(chan struct{})
	go func() {
		defer close(done)
		NewStreamPublisher(registry).Publish(ctx, job.ID(), sink)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher did not stop on disconnect")
	}
	// No terminal event was fabricated
	assert.Equal(t, 0, sink.countType(StreamEventComplete))
	assert.Equal(t, 0, sink.countType(StreamEventError))
}

func TestStreamPublisher_DeadSinkStopsLoop(t *testing.T) {
	registry := jobs.NewRegistry(event.NewManager())
	job := registry.Create(jobs.KindAudio, "talk.mp3", nil)
	job.Start()

	sink := &recordingSink{failAfter: 1}

	done := make(chan struct{})
	go func() {
		defer close(done)
		NewStreamPublisher(registry).Publish(context.Background(), job.ID(), sink)
	}()

	job.UpdateProgress(10, "working")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher did not stop on send failure")
	}
}

func TestJobStreamHandler_SSEWireFormat(t *testing.T) {
	deps, _ := newTestDeps(t)
	job := deps.Registry.Create(jobs.KindAudio, "talk.mp3", nil)
	job.Start()
	job.UpdateProgress(50, "Transcribing audio...")
	job.Complete(map[string]any{"type": "single", "word_count": 7})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job.ID()+"/stream", nil)
	req.SetPathValue("id", job.ID())
	w := httptest.NewRecorder()

	JobStreamHandler(deps)(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Contains(t, body, "event: progress\n")
	assert.Contains(t, body, "event: complete\n")
	assert.Contains(t, body, `"word_count":7`)

	// Terminal event closes the stream: complete is the final event
	trimmed := strings.TrimSpace(body)
	lastBlock := trimmed[strings.LastIndex(trimmed, "event: "):]
	assert.True(t, strings.HasPrefix(lastBlock, "event: complete"))
}

func TestJobStreamHandler_UnknownJob(t *testing.T) {
	deps, _ := newTestDeps(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/deadbeef/stream", nil)
	req.SetPathValue("id", "deadbeef")
	w := httptest.NewRecorder()

	JobStreamHandler(deps)(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "event: error\n")
}
