package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusIsValid(t *testing.T) {
	valid := []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed}
	for _, s := range valid {
		assert.True(t, s.IsValid(), "expected %q to be valid", s)
	}
	assert.False(t, Status("queued").IsValid())
	assert.False(t, Status("").IsValid())
}

func TestStatusIsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
}

func TestKindIsValid(t *testing.T) {
	for _, k := range []Kind{KindAudio, KindVideo, KindStream, KindSummarize} {
		assert.True(t, k.IsValid())
	}
	assert.False(t, Kind("image").IsValid())
}

func TestJobLifecycle(t *testing.T) {
	job := newJob("a1b2c3d4", KindAudio, "talk.mp3", map[string]any{"model": "base"})

	snap := job.Snapshot()
	assert.Equal(t, StatusPending, snap.Status)
	assert.Equal(t, 0, snap.Progress)
	assert.True(t, snap.StartedAt.IsZero())

	job.Start()
	snap = job.Snapshot()
	assert.Equal(t, StatusRunning, snap.Status)
	assert.False(t, snap.StartedAt.IsZero())

	job.UpdateProgress(30, "Transcribing audio")
	snap = job.Snapshot()
	assert.Equal(t, 30, snap.Progress)
	assert.Equal(t, "Transcribing audio", snap.Message)

	job.Complete(map[string]any{"output_file": "/out/talk_verba.md"})
	snap = job.Snapshot()
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 100, snap.Progress)
	assert.Equal(t, "/out/talk_verba.md", snap.Result["output_file"])
	assert.False(t, snap.CompletedAt.IsZero())
	assert.Nil(t, snap.Error)
}

func TestJobProgressMonotonic(t *testing.T) {
	job := newJob("a1b2c3d4", KindAudio, "talk.mp3", nil)
	job.Start()

	job.UpdateProgress(60, "Transcribing audio")
	job.UpdateProgress(40, "stale update")
	snap := job.Snapshot()
	assert.Equal(t, 60, snap.Progress, "progress must never regress")
	assert.Equal(t, "stale update", snap.Message, "message still overwrites")

	job.UpdateProgress(250, "")
	snap = job.Snapshot()
	assert.Equal(t, 100, snap.Progress, "progress clamps to 100")
	assert.Equal(t, "stale update", snap.Message, "empty message keeps the last one")
}

func TestJobTerminalStatesAbsorbing(t *testing.T) {
	t.Run("completed ignores later mutation", func(t *testing.T) {
		job := newJob("a1b2c3d4", KindAudio, "talk.mp3", nil)
		job.Start()
		job.Complete(map[string]any{"ok": true})

		job.Fail("internal", "too late")
		job.UpdateProgress(1, "too late")
		job.Start()

		snap := job.Snapshot()
		assert.Equal(t, StatusCompleted, snap.Status)
		assert.Equal(t, 100, snap.Progress)
		assert.Nil(t, snap.Error)
	})

	t.Run("failed ignores later mutation", func(t *testing.T) {
		job := newJob("a1b2c3d4", KindAudio, "talk.mp3", nil)
		job.Start()
		job.UpdateProgress(30, "partway")
		job.Fail("tool_failed", "ffmpeg exited 1")

		job.Complete(map[string]any{"ok": true})
		job.UpdateProgress(99, "too late")

		snap := job.Snapshot()
		assert.Equal(t, StatusFailed, snap.Status)
		assert.Equal(t, 30, snap.Progress, "progress freezes at failure point")
		require.NotNil(t, snap.Error)
		assert.Equal(t, "tool_failed", snap.Error.Kind)
		assert.Equal(t, "ffmpeg exited 1", snap.Error.Message)
		assert.Nil(t, snap.Result)
	})
}

func TestJobFailFromPending(t *testing.T) {
	job := newJob("a1b2c3d4", KindAudio, "talk.mp3", nil)
	job.Fail("invalid_input", "unsupported format")

	snap := job.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.True(t, snap.StartedAt.IsZero())
	assert.False(t, snap.CompletedAt.IsZero())
}

func TestJobUpdateProgressBeforeStart(t *testing.T) {
	job := newJob("a1b2c3d4", KindAudio, "talk.mp3", nil)
	job.UpdateProgress(50, "dropped")

	snap := job.Snapshot()
	assert.Equal(t, 0, snap.Progress)
	assert.Empty(t, snap.Message)
}

func TestJobChangedSignal(t *testing.T) {
	job := newJob("a1b2c3d4", KindAudio, "talk.mp3", nil)
	job.Start()

	ch := job.Changed()
	job.UpdateProgress(10, "warming up")

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("Changed channel was not closed after a mutation")
	}

	// A channel grabbed after the mutation stays open until the next one.
	ch = job.Changed()
	select {
	case <-ch:
		t.Fatal("fresh Changed channel closed without a mutation")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestJobOnTerminalCallback(t *testing.T) {
	job := newJob("a1b2c3d4", KindAudio, "talk.mp3", nil)
	var got []Snapshot
	job.onTerminal = func(s Snapshot) { got = append(got, s) }

	job.Start()
	job.Complete(map[string]any{"ok": true})
	job.Fail("internal", "ignored")

	require.Len(t, got, 1, "terminal callback fires exactly once")
	assert.Equal(t, StatusCompleted, got[0].Status)
}
