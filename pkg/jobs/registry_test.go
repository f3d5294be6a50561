package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GunnyMarc/verba/pkg/event"
)

func TestRegistryCreateAndGet(t *testing.T) {
	r := NewRegistry(nil)

	job := r.Create(KindAudio, "talk.mp3", map[string]any{"model": "base"})
	require.NotNil(t, job)
	assert.Len(t, job.ID(), 8)
	assert.Equal(t, KindAudio, job.Kind())
	assert.Equal(t, "talk.mp3", job.Input())

	got, ok := r.Get(job.ID())
	require.True(t, ok)
	assert.Same(t, job, got)

	_, ok = r.Get("ffffffff")
	assert.False(t, ok)
}

func TestRegistrySettingsCloned(t *testing.T) {
	r := NewRegistry(nil)
	settings := map[string]any{"model": "base"}
	job := r.Create(KindAudio, "talk.mp3", settings)

	settings["model"] = "large-v3"
	assert.Equal(t, "base", job.Settings()["model"], "jobs must not see later settings mutation")
}

func TestRegistryConcurrentCreateUniqueIDs(t *testing.T) {
	r := NewRegistry(nil)

	const n = 200
	var wg sync.WaitGroup
	ids := make(chan string, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- r.Create(KindAudio, "talk.mp3", nil).ID()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool, n)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %q", id)
		seen[id] = true
	}
	assert.Equal(t, n, r.Len())
}

func TestRegistryListNewestFirst(t *testing.T) {
	r := NewRegistry(nil)

	first := r.Create(KindAudio, "a.mp3", nil)
	time.Sleep(2 * time.Millisecond)
	second := r.Create(KindVideo, "b.mp4", nil)
	time.Sleep(2 * time.Millisecond)
	third := r.Create(KindSummarize, "b_verba.md", nil)

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, third.ID(), list[0].ID())
	assert.Equal(t, second.ID(), list[1].ID())
	assert.Equal(t, first.ID(), list[2].ID())
}

func TestRegistryDelete(t *testing.T) {
	r := NewRegistry(nil)
	job := r.Create(KindAudio, "talk.mp3", nil)

	assert.True(t, r.Delete(job.ID()))
	assert.False(t, r.Delete(job.ID()))
	assert.Equal(t, 0, r.Len())
}

func TestRegistryPublishesTerminalEvents(t *testing.T) {
	bus := event.NewManager()

	var mu sync.Mutex
	var completed, failed []string
	bus.Subscribe(event.JobCompleted, func(_ context.Context, data any) {
		mu.Lock()
		completed = append(completed, data.(string))
		mu.Unlock()
	})
	bus.Subscribe(event.JobFailed, func(_ context.Context, data any) {
		mu.Lock()
		failed = append(failed, data.(string))
		mu.Unlock()
	})

	r := NewRegistry(bus)
	ok := r.Create(KindAudio, "a.mp3", nil)
	ok.Start()
	ok.Complete(map[string]any{})

	bad := r.Create(KindAudio, "b.mp3", nil)
	bad.Start()
	bad.Fail("tool_failed", "whisper-cli exited 1")

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(completed) == 1 && len(failed) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, ok.ID(), completed[0])
	assert.Equal(t, bad.ID(), failed[0])
}
