package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/GunnyMarc/verba/pkg/config"
	"github.com/GunnyMarc/verba/pkg/event"
	"github.com/GunnyMarc/verba/pkg/jobs"
	"github.com/GunnyMarc/verba/pkg/keystore"
	"github.com/GunnyMarc/verba/pkg/mediaexec"
	"github.com/GunnyMarc/verba/pkg/output"
	"github.com/GunnyMarc/verba/pkg/summarize"
)

// newLocalService assembles an execution service for one-shot CLI runs.
// The caller owns the returned pool and must shut it down.
func newLocalService(cfg *config.Config) (*mediaexec.Service, *jobs.Pool) {
	registry := jobs.NewRegistry(event.NewManager())
	pool := jobs.NewPool(cfg.Server.Workers)

	creds := summarize.ChainCredentials{summarize.EnvCredentials{Getenv: os.Getenv}}
	if cfg.Keystore.Dir != "" {
		if store, err := keystore.Open(cfg.Keystore.Dir); err == nil {
			creds = summarize.ChainCredentials{store, summarize.EnvCredentials{Getenv: os.Getenv}}
		} else {
			log.Warn().Err(err).Msg("Keystore unavailable, using environment credentials")
		}
	}

	return mediaexec.NewService(registry, pool, cfg, creds), pool
}

// follow renders a job's progress to the output pipeline and returns its
// terminal snapshot. A failed job becomes an error carrying the failure
// message.
func follow(ctx context.Context, job *jobs.Job, out output.Output) (jobs.Snapshot, error) {
	lastProgress := -1
	lastMessage := ""

	for {
		changed := job.Changed()
		snap := job.Snapshot()

		if snap.Progress != lastProgress || snap.Message != lastMessage {
			out.Progress(snap.Progress, 100, snap.Message)
			lastProgress = snap.Progress
			lastMessage = snap.Message
		}

		if snap.Status.IsTerminal() {
			if snap.Status == jobs.StatusFailed && snap.Error != nil {
				return snap, fmt.Errorf("%s: %s", snap.Error.Kind, snap.Error.Message)
			}
			return snap, nil
		}

		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-changed:
		}
	}
}
