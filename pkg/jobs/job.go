// Package jobs implements the asynchronous job core: the Job record and
// its state machine, the in-memory Registry, the bounded worker Pool, and
// the retention Reaper. Jobs are the only shared mutable state between the
// HTTP front end and the workers; every Job guards its fields with its own
// lock and exposes a change signal so observers can wait without polling
// hot loops.
package jobs

import (
	"maps"
	"sync"
	"time"
)

// Status represents the lifecycle state of a job.
type Status string

// Valid job statuses. Pending is the only initial state; Completed and
// Failed are absorbing.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// String returns the string representation of Status.
func (s Status) String() string {
	return string(s)
}

// IsValid checks if the Status is one of the known values.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the status indicates the job is finished.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Kind identifies which pipeline produced a job.
type Kind string

// Known job kinds.
const (
	KindAudio     Kind = "audio"
	KindVideo     Kind = "video"
	KindStream    Kind = "stream"
	KindSummarize Kind = "summarize"
)

// IsValid checks if the Kind is one of the known values.
func (k Kind) IsValid() bool {
	switch k {
	case KindAudio, KindVideo, KindStream, KindSummarize:
		return true
	default:
		return false
	}
}

// Failure describes why a job failed. Message is the only detail exposed
// to clients; Kind is a machine-readable category for logs and metrics.
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Job is a mutable record of one unit of background work. All mutation
// goes through the state-machine methods below; concurrent readers take
// a Snapshot. Once a job reaches a terminal status no field changes again.
type Job struct {
	// Immutable after creation.
	id       string
	kind     Kind
	input    string
	settings map[string]any
	created  time.Time

	mu        sync.Mutex
	changed   chan struct{}
	status    Status
	progress  int
	message   string
	result    map[string]any
	failure   *Failure
	started   time.Time
	completed time.Time

	// onTerminal is invoked (outside the lock) exactly once when the job
	// reaches Completed or Failed. Set by the registry for event publishing.
	onTerminal func(Snapshot)
}

func newJob(id string, kind Kind, input string, settings map[string]any) *Job {
	return &Job{
		id:       id,
		kind:     kind,
		input:    input,
		settings: maps.Clone(settings),
		created:  time.Now().UTC(),
		changed:  make(chan struct{}),
		status:   StatusPending,
	}
}

// ID returns the job's opaque identifier.
func (j *Job) ID() string { return j.id }

// Kind returns the pipeline kind that owns this job.
func (j *Job) Kind() Kind { return j.kind }

// Input returns the input descriptor (filename, URL, or label).
func (j *Job) Input() string { return j.input }

// Settings returns the immutable settings snapshot captured at submission.
// Callers must not mutate the returned map.
func (j *Job) Settings() map[string]any { return j.settings }

// Changed returns a channel that is closed on the next mutation. Observers
// grab the channel, take a Snapshot, and select on the channel plus a
// timeout; this ordering never misses an update.
func (j *Job) Changed() <-chan struct{} {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.changed
}

// notifyLocked wakes all current waiters. Caller holds j.mu.
func (j *Job) notifyLocked() {
	close(j.changed)
	j.changed = make(chan struct{})
}

// Start transitions Pending -> Running and stamps startedAt. Calling it
// on a job that already left Pending is a no-op.
func (j *Job) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status != StatusPending {
		return
	}
	j.status = StatusRunning
	j.started = time.Now().UTC()
	j.notifyLocked()
}

// UpdateProgress records progress while the job is Running. The value is
// clamped to [0,100] and never allowed to regress; the message overwrites
// the previous one when non-empty. Updates on non-running jobs are dropped.
func (j *Job) UpdateProgress(pct int, message string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status != StatusRunning {
		return
	}
	if pct > 100 {
		pct = 100
	}
	if pct > j.progress {
		j.progress = pct
	}
	if message != "" {
		j.message = message
	}
	j.notifyLocked()
}

// Complete transitions Running -> Completed, pins progress to 100, and
// stores the result payload. No-op if the job is not Running.
func (j *Job) Complete(result map[string]any) {
	j.mu.Lock()
	if j.status != StatusRunning {
		j.mu.Unlock()
		return
	}
	j.status = StatusCompleted
	j.progress = 100
	j.result = result
	j.completed = time.Now().UTC()
	j.notifyLocked()
	cb := j.onTerminal
	snap := j.snapshotLocked()
	j.mu.Unlock()

	if cb != nil {
		cb(snap)
	}
}

// Fail transitions Pending|Running -> Failed with the given failure kind
// and message. No-op if the job is already terminal.
func (j *Job) Fail(kind, message string) {
	j.mu.Lock()
	if j.status.IsTerminal() {
		j.mu.Unlock()
		return
	}
	j.status = StatusFailed
	j.failure = &Failure{Kind: kind, Message: message}
	j.completed = time.Now().UTC()
	j.notifyLocked()
	cb := j.onTerminal
	snap := j.snapshotLocked()
	j.mu.Unlock()

	if cb != nil {
		cb(snap)
	}
}

// Snapshot is a consistent, immutable copy of a Job's observable state.
type Snapshot struct {
	ID          string         `json:"id"`
	Kind        Kind           `json:"kind"`
	Status      Status         `json:"status"`
	Progress    int            `json:"progress"`
	Message     string         `json:"message,omitempty"`
	Input       string         `json:"input"`
	Settings    map[string]any `json:"settings,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	Error       *Failure       `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   time.Time      `json:"started_at,omitzero"`
	CompletedAt time.Time      `json:"completed_at,omitzero"`
}

// Snapshot returns a copy of the job's current state taken under its lock.
// Readers never hold the lock across I/O.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snapshotLocked()
}

func (j *Job) snapshotLocked() Snapshot {
	return Snapshot{
		ID:          j.id,
		Kind:        j.kind,
		Status:      j.status,
		Progress:    j.progress,
		Message:     j.message,
		Input:       j.input,
		Settings:    j.settings,
		Result:      j.result,
		Error:       j.failure,
		CreatedAt:   j.created,
		StartedAt:   j.started,
		CompletedAt: j.completed,
	}
}
