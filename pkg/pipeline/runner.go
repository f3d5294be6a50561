package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Runner executes stages in order and aggregates their progress. Each
// stage owns a weight; the overall percentage at any moment is
//
//	floor(cumBefore*100) + floor(fraction*weight*100)
//
// where cumBefore is the normalized weight of all finished stages. The
// aggregate is clamped so a stage over-reporting can never push the bar
// past its own boundary, and it never regresses.
//
// A Runner is built per job and is not safe for concurrent use.
type Runner struct {
	stages    []stage
	notify    Notifier
	artifacts []string
	keep      bool
	lastPct   int
	logger    zerolog.Logger
}

type stage struct {
	name   string
	weight float64
	fn     StageFunc
}

// NewRunner creates a pipeline runner. notify may be nil when the caller
// does not observe progress (tests, fire-and-forget work).
func NewRunner(notify Notifier) *Runner {
	if notify == nil {
		notify = func(int, string) {}
	}
	return &Runner{
		notify: notify,
		logger: log.With().Str("component", "pipeline").Logger(),
	}
}

// Add appends a stage. Weights are normalized at Run time, so they only
// need to be positive and proportional.
func (r *Runner) Add(name string, weight float64, fn StageFunc) *Runner {
	r.stages = append(r.stages, stage{name: name, weight: weight, fn: fn})
	return r
}

// TrackArtifact registers an intermediate file for removal once the
// pipeline finishes, successfully or not.
func (r *Runner) TrackArtifact(path string) {
	r.artifacts = append(r.artifacts, path)
}

// KeepArtifacts disables artifact cleanup, leaving intermediates on disk.
func (r *Runner) KeepArtifacts(keep bool) {
	r.keep = keep
}

// Run executes the stages in order. The first failing stage aborts the
// pipeline and its *StageError is returned; a panicking stage is converted
// to an internal StageError instead of crashing the worker. Tracked
// artifacts are removed before Run returns regardless of outcome.
func (r *Runner) Run(ctx context.Context) (err error) {
	defer r.cleanup()

	total := 0.0
	for _, s := range r.stages {
		total += s.weight
	}
	if total <= 0 {
		return NewStageError(KindInternal, "pipeline", "no stages configured", nil)
	}

	cum := 0.0
	for _, s := range r.stages {
		if ctx.Err() != nil {
			return NewStageError(KindInternal, s.name, "job canceled", ctx.Err())
		}

		share := s.weight / total
		sink := &stageSink{runner: r, before: cum, share: share}

		if err := r.runStage(ctx, s, sink); err != nil {
			var se *StageError
			if errors.As(err, &se) {
				return se
			}
			return NewStageError(KindInternal, s.name, "stage failed", err)
		}

		cum += share
		r.emit(int(math.Floor(cum*100)), "")
	}
	return nil
}

// runStage invokes one stage under a panic guard.
func (r *Runner) runStage(ctx context.Context, s stage, sink ProgressSink) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Str("stage", s.name).Str("panic", fmt.Sprint(rec)).Msg("Recovered panic in pipeline stage")
			err = NewStageError(KindInternal, s.name, fmt.Sprintf("internal error in stage %s", s.name), fmt.Errorf("panic: %v", rec))
		}
	}()
	return s.fn(ctx, sink)
}

// emit forwards a percentage to the notifier, enforcing monotonicity.
func (r *Runner) emit(pct int, message string) {
	if pct > 100 {
		pct = 100
	}
	if pct < r.lastPct {
		if message == "" {
			return
		}
		pct = r.lastPct
	}
	r.lastPct = pct
	r.notify(pct, message)
}

func (r *Runner) cleanup() {
	if r.keep {
		return
	}
	for _, path := range r.artifacts {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			r.logger.Warn().Err(err).Str("path", path).Msg("Failed to remove intermediate artifact")
		}
	}
	r.artifacts = nil
}

// stageSink maps a stage's 0..1 fraction into the overall percentage.
type stageSink struct {
	runner *Runner
	before float64
	share  float64
}

func (s *stageSink) Report(fraction float64, message string) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	pct := int(math.Floor(s.before*100)) + int(math.Floor(fraction*s.share*100))
	s.runner.emit(pct, message)
}
