package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GunnyMarc/verba/pkg/event"
)

func finishJob(j *Job) {
	j.Start()
	j.Complete(map[string]any{})
}

func TestReaperSweepAge(t *testing.T) {
	r := NewRegistry(nil)
	reaper := NewReaper(r, RetentionPolicy{MaxAge: time.Hour}, 0)

	old := r.Create(KindAudio, "old.mp3", nil)
	finishJob(old)
	fresh := r.Create(KindAudio, "fresh.mp3", nil)
	finishJob(fresh)

	// Sweep from two hours in the future: both completed "now", so only a
	// shifted clock ages them out.
	evicted := reaper.Sweep(time.Now().Add(2 * time.Hour))
	assert.Equal(t, 2, evicted)
	assert.Equal(t, 0, r.Len())
}

func TestReaperSweepCountBound(t *testing.T) {
	r := NewRegistry(nil)
	reaper := NewReaper(r, RetentionPolicy{MaxJobs: 2}, 0)

	var ids []string
	for _, name := range []string{"a.mp3", "b.mp3", "c.mp3", "d.mp3"} {
		j := r.Create(KindAudio, name, nil)
		finishJob(j)
		ids = append(ids, j.ID())
		time.Sleep(2 * time.Millisecond)
	}

	evicted := reaper.Sweep(time.Now())
	assert.Equal(t, 2, evicted)
	require.Equal(t, 2, r.Len())

	// Oldest two are gone, newest two remain.
	_, ok := r.Get(ids[0])
	assert.False(t, ok)
	_, ok = r.Get(ids[1])
	assert.False(t, ok)
	_, ok = r.Get(ids[2])
	assert.True(t, ok)
	_, ok = r.Get(ids[3])
	assert.True(t, ok)
}

func TestReaperNeverEvictsActiveJobs(t *testing.T) {
	r := NewRegistry(nil)
	reaper := NewReaper(r, RetentionPolicy{MaxJobs: 1, MaxAge: time.Nanosecond}, 0)

	pending := r.Create(KindAudio, "pending.mp3", nil)
	running := r.Create(KindAudio, "running.mp3", nil)
	running.Start()
	done := r.Create(KindAudio, "done.mp3", nil)
	finishJob(done)

	evicted := reaper.Sweep(time.Now().Add(time.Minute))
	assert.Equal(t, 1, evicted)

	_, ok := r.Get(pending.ID())
	assert.True(t, ok, "pending jobs must survive any policy")
	_, ok = r.Get(running.ID())
	assert.True(t, ok, "running jobs must survive any policy")
	_, ok = r.Get(done.ID())
	assert.False(t, ok)
}

func TestReaperAttachSweepsOnTerminalEvents(t *testing.T) {
	bus := event.NewManager()
	r := NewRegistry(bus)
	reaper := NewReaper(r, RetentionPolicy{MaxJobs: 1}, 0)
	reaper.Attach(bus)

	first := r.Create(KindAudio, "a.mp3", nil)
	finishJob(first)
	time.Sleep(2 * time.Millisecond)
	second := r.Create(KindAudio, "b.mp3", nil)
	finishJob(second)

	// The second completion publishes job.completed, which triggers a
	// sweep on a bus goroutine that evicts the older terminal job.
	require.Eventually(t, func() bool {
		_, ok := r.Get(first.ID())
		return !ok
	}, time.Second, 5*time.Millisecond)

	_, ok := r.Get(second.ID())
	assert.True(t, ok)
}

func TestReaperZeroPolicyDisablesEviction(t *testing.T) {
	r := NewRegistry(nil)
	reaper := NewReaper(r, RetentionPolicy{}, 0)

	for range 5 {
		finishJob(r.Create(KindAudio, "x.mp3", nil))
	}

	assert.Equal(t, 0, reaper.Sweep(time.Now().Add(100*time.Hour)))
	assert.Equal(t, 5, r.Len())
}
