package jobs

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/GunnyMarc/verba/pkg/event"
)

// RetentionPolicy bounds how many terminal jobs the registry keeps in
// memory and for how long. Zero values disable the corresponding bound.
type RetentionPolicy struct {
	MaxJobs int
	MaxAge  time.Duration
}

// DefaultRetention keeps the 200 most recent terminal jobs for up to a day.
var DefaultRetention = RetentionPolicy{
	MaxJobs: 200,
	MaxAge:  24 * time.Hour,
}

// Reaper periodically evicts terminal jobs that fall outside the retention
// policy. Pending and running jobs are never touched regardless of age.
type Reaper struct {
	registry *Registry
	policy   RetentionPolicy
	interval time.Duration
	logger   zerolog.Logger
}

// NewReaper creates a reaper over the registry. A non-positive interval
// defaults to five minutes.
func NewReaper(registry *Registry, policy RetentionPolicy, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Reaper{
		registry: registry,
		policy:   policy,
		interval: interval,
		logger:   log.With().Str("component", "reaper").Logger(),
	}
}

// Attach subscribes the reaper to terminal job events so the retention
// bounds are enforced as jobs finish rather than only on the next tick.
func (r *Reaper) Attach(bus *event.Manager) {
	handler := func(ctx context.Context, data any) {
		r.Sweep(time.Now())
	}
	bus.Subscribe(event.JobCompleted, handler)
	bus.Subscribe(event.JobFailed, handler)
}

// Run sweeps on the configured interval until ctx is canceled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(time.Now()); n > 0 {
				r.logger.Debug().Int("evicted", n).Msg("Retention sweep")
			}
		}
	}
}

// Sweep applies the retention policy once and returns the number of jobs
// evicted. Age eviction runs first, then the count bound removes the
// oldest remaining terminal jobs.
func (r *Reaper) Sweep(now time.Time) int {
	jobs := r.registry.List()

	terminal := make([]*Job, 0, len(jobs))
	for _, j := range jobs {
		if j.Snapshot().Status.IsTerminal() {
			terminal = append(terminal, j)
		}
	}

	evicted := 0
	if r.policy.MaxAge > 0 {
		kept := terminal[:0]
		for _, j := range terminal {
			snap := j.Snapshot()
			if !snap.CompletedAt.IsZero() && now.Sub(snap.CompletedAt) > r.policy.MaxAge {
				r.registry.Delete(snap.ID)
				evicted++
				continue
			}
			kept = append(kept, j)
		}
		terminal = kept
	}

	if r.policy.MaxJobs > 0 && len(terminal) > r.policy.MaxJobs {
		sort.Slice(terminal, func(a, b int) bool {
			sa, sb := terminal[a].Snapshot(), terminal[b].Snapshot()
			return sa.CreatedAt.Before(sb.CreatedAt)
		})
		excess := len(terminal) - r.policy.MaxJobs
		for _, j := range terminal[:excess] {
			r.registry.Delete(j.Snapshot().ID)
			evicted++
		}
	}

	return evicted
}
