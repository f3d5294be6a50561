// Package watch submits transcription jobs for media files dropped into a
// watched directory.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/GunnyMarc/verba/pkg/jobs"
	"github.com/GunnyMarc/verba/pkg/media"
)

// settleDelay is how long a new file gets to finish writing before a job
// is submitted for it. Uploads and network copies fire Create well before
// the content is complete.
const settleDelay = 2 * time.Second

// Submitter enqueues transcription jobs for discovered files.
type Submitter interface {
	SubmitAudio(path string, settings map[string]any) (*jobs.Job, error)
	SubmitVideo(path string, settings map[string]any) (*jobs.Job, error)
}

// Watcher monitors a directory and submits a job for every new media file.
type Watcher struct {
	dir       string
	submitter Submitter
	notifier  *fsnotify.Watcher
	settle    time.Duration
	audioExts map[string]struct{}
	videoExts map[string]struct{}
	logger    zerolog.Logger
}

// New creates a watcher over dir. The directory must exist.
func New(dir string, submitter Submitter) (*Watcher, error) {
	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := notifier.Add(dir); err != nil {
		notifier.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	return &Watcher{
		dir:       dir,
		submitter: submitter,
		notifier:  notifier,
		settle:    settleDelay,
		audioExts: extSet(media.SupportedFormats()),
		videoExts: extSet(media.SupportedVideoFormats()),
		logger:    log.With().Str("component", "watch").Logger(),
	}, nil
}

// WithSettle overrides the write-settle delay. Used in tests.
func (w *Watcher) WithSettle(d time.Duration) *Watcher {
	w.settle = d
	return w
}

// Run processes filesystem events until ctx is canceled or the notifier
// closes. Submission failures are logged, not fatal: a bad file must not
// stop the watch loop.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info().Str("dir", w.dir).Msg("Watching for media files")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Watcher stopped")
			return ctx.Err()

		case ev, ok := <-w.notifier.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !ev.Has(fsnotify.Create) {
				continue
			}
			w.handleCreate(ctx, ev.Name)

		case err, ok := <-w.notifier.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// Close stops the underlying filesystem notifier.
func (w *Watcher) Close() error {
	return w.notifier.Close()
}

func (w *Watcher) handleCreate(ctx context.Context, path string) {
	ext := strings.ToLower(filepath.Ext(path))
	_, isAudio := w.audioExts[ext]
	_, isVideo := w.videoExts[ext]
	if !isAudio && !isVideo {
		w.logger.Debug().Str("path", path).Msg("Ignoring non-media file")
		return
	}

	// Let the writer finish before the job's validation stats the file
	select {
	case <-ctx.Done():
		return
	case <-time.After(w.settle):
	}

	var (
		job *jobs.Job
		err error
	)
	if isVideo {
		job, err = w.submitter.SubmitVideo(path, nil)
	} else {
		job, err = w.submitter.SubmitAudio(path, nil)
	}
	if err != nil {
		w.logger.Error().Err(err).Str("path", path).Msg("Failed to submit watched file")
		return
	}
	w.logger.Info().Str("job_id", job.ID()).Str("path", path).Msg("Submitted watched file")
}

func extSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		set[ext] = struct{}{}
	}
	return set
}
