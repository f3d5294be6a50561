package v1

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/GunnyMarc/verba/pkg/jobs"
	"github.com/GunnyMarc/verba/pkg/server/api"
)

// SSE event types emitted on the job stream.
const (
	StreamEventProgress = "progress"
	StreamEventLog      = "log"
	StreamEventComplete = "complete"
	StreamEventError    = "error"
)

// keepAliveInterval bounds how long a subscriber waits on a quiet job
// before re-emitting its progress, which doubles as an SSE keep-alive.
const keepAliveInterval = 500 * time.Millisecond

// StreamEvent is one message on a job's event stream.
type StreamEvent struct {
	Type string
	Data map[string]any
}

// Sink receives stream events. A Send error means the subscriber is gone
// and the publisher loop ends silently.
type Sink interface {
	Send(event StreamEvent) error
}

// StreamPublisher turns a job's change signal into a sequence of stream
// events: progress updates, log lines when the message changes, and exactly
// one terminal complete/error event.
type StreamPublisher struct {
	registry  *jobs.Registry
	keepAlive time.Duration
	logger    zerolog.Logger
}

// NewStreamPublisher creates a publisher over the given registry.
func NewStreamPublisher(registry *jobs.Registry) *StreamPublisher {
	return &StreamPublisher{
		registry:  registry,
		keepAlive: keepAliveInterval,
		logger:    log.With().Str("component", "stream").Logger(),
	}
}

// Publish streams the job's lifecycle to the sink until the job reaches a
// terminal state or ctx is canceled (client disconnect, which is not an
// error). An unknown job id produces a single error event.
func (p *StreamPublisher) Publish(ctx context.Context, jobID string, sink Sink) {
	job, ok := p.registry.Get(jobID)
	if !ok {
		_ = sink.Send(StreamEvent{
			Type: StreamEventError,
			Data: map[string]any{"message": "job not found: " + jobID},
		})
		return
	}

	lastProgress := -1
	lastMessage := ""

	for {
		// Grab the change channel before the snapshot so an update between
		// the two is never missed.
		changed := job.Changed()
		snap := job.Snapshot()

		if snap.Progress != lastProgress {
			if err := sink.Send(progressEvent(snap)); err != nil {
				return
			}
			lastProgress = snap.Progress
		}

		if snap.Message != "" && snap.Message != lastMessage {
			if err := sink.Send(StreamEvent{
				Type: StreamEventLog,
				Data: map[string]any{"message": snap.Message},
			}); err != nil {
				return
			}
			lastMessage = snap.Message
		}

		if snap.Status.IsTerminal() {
			_ = sink.Send(terminalEvent(snap))
			p.logger.Debug().
				Str("job_id", jobID).
				Str("status", snap.Status.String()).
				Msg("Stream finished")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-changed:
		case <-time.After(p.keepAlive):
			// Nothing changed; resend progress as a keep-alive
			lastProgress = -1
		}
	}
}

func progressEvent(snap jobs.Snapshot) StreamEvent {
	return StreamEvent{
		Type: StreamEventProgress,
		Data: map[string]any{
			"progress": snap.Progress,
			"status":   snap.Status,
		},
	}
}

func terminalEvent(snap jobs.Snapshot) StreamEvent {
	if snap.Status == jobs.StatusCompleted {
		return StreamEvent{
			Type: StreamEventComplete,
			Data: map[string]any{"result": snap.Result},
		}
	}
	return StreamEvent{
		Type: StreamEventError,
		Data: map[string]any{"error": snap.Error},
	}
}

// JobStreamHandler handles GET /api/v1/jobs/{id}/stream
//
// Streams job progress as Server-Sent Events. Event types: progress, log,
// and exactly one terminal complete or error event, after which the stream
// closes.
func JobStreamHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			api.WriteJSONError(w, http.StatusInternalServerError, "Internal Server Error", "STREAMING_UNSUPPORTED", "response writer does not support streaming")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		sink := &sseSink{w: w, flusher: flusher}
		NewStreamPublisher(deps.Registry).Publish(r.Context(), r.PathValue("id"), sink)
	}
}

// sseSink renders stream events in SSE wire format.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseSink) Send(event StreamEvent) error {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event.Type, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
