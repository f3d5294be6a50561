package jobs

import (
	"context"
	"encoding/hex"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/GunnyMarc/verba/pkg/event"
)

// ErrNotFound is returned when a job id is not present in the registry.
var ErrNotFound = errors.New("job not found")

// idLength is the number of hex characters in a job id.
const idLength = 8

// Registry is a concurrent in-memory store of jobs keyed by id. The lock
// is scoped to map mutation only; individual jobs carry their own locks.
// The registry is constructed once at process start and passed by
// reference to handlers and workers — there is no package-level instance.
type Registry struct {
	mu     sync.Mutex
	jobs   map[string]*Job
	bus    *event.Manager
	logger zerolog.Logger
}

// NewRegistry creates an empty job registry. The bus is optional; when
// present the registry publishes job.created / job.completed / job.failed
// events for consumers like the retention reaper.
func NewRegistry(bus *event.Manager) *Registry {
	return &Registry{
		jobs:   make(map[string]*Job),
		bus:    bus,
		logger: log.With().Str("component", "jobs").Logger(),
	}
}

// Create allocates a new Pending job with a short unique id and stores it.
// The settings map is cloned so later changes to runtime settings never
// affect in-flight jobs.
func (r *Registry) Create(kind Kind, input string, settings map[string]any) *Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := newID()
	for _, exists := r.jobs[id]; exists; _, exists = r.jobs[id] {
		id = newID()
	}

	job := newJob(id, kind, input, settings)
	job.onTerminal = r.publishTerminal
	r.jobs[id] = job

	r.logger.Debug().Str("job_id", id).Str("kind", string(kind)).Str("input", input).Msg("Job created")
	if r.bus != nil {
		r.bus.Publish(context.Background(), event.JobCreated, id)
	}
	return job
}

// Get retrieves a job by id.
func (r *Registry) Get(id string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	return job, ok
}

// List returns all jobs ordered by creation time, newest first. The slice
// is a snapshot; the jobs themselves are shared references.
func (r *Registry) List() []*Job {
	r.mu.Lock()
	out := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, job)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].created.Equal(out[j].created) {
			return out[i].created.After(out[j].created)
		}
		return out[i].id > out[j].id
	})
	return out
}

// Delete removes a job by id. Deletion is the only eviction mechanism
// besides the retention reaper; the registry never expires jobs on read.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return false
	}
	delete(r.jobs, id)
	return true
}

// Len returns the number of stored jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

func (r *Registry) publishTerminal(snap Snapshot) {
	if r.bus == nil {
		return
	}
	name := event.JobCompleted
	if snap.Status == StatusFailed {
		name = event.JobFailed
	}
	r.bus.Publish(context.Background(), name, snap.ID)
}

// newID derives a short hex id from a random UUID.
func newID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])[:idLength]
}
