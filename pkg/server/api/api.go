package api

import (
	"sync/atomic"

	"github.com/GunnyMarc/verba/pkg/config"
	"github.com/GunnyMarc/verba/pkg/jobs"
)

// Deps holds dependencies for API handlers.
// This pattern enables dependency injection and easier testing.
type Deps struct {
	// Registry holds job records for list/get/delete and streaming.
	Registry *jobs.Registry

	// Service validates requests and enqueues job pipelines.
	// Actual type: *mediaexec.Service (must implement JobService).
	Service JobService

	// Keystore manages vendor API keys; nil disables the keys endpoints.
	Keystore KeyStore

	// Settings holds mutable runtime defaults for new jobs.
	Settings *SettingsStore

	// Config is the resolved server configuration.
	Config *config.Config

	// Ready flag for readiness check
	Ready *atomic.Bool
}

// JobService is the subset of the execution service the handlers need.
// Defined here to avoid circular dependencies and ease mocking.
type JobService interface {
	SubmitAudio(path string, settings map[string]any) (*jobs.Job, error)
	SubmitVideo(path string, settings map[string]any) (*jobs.Job, error)
	SubmitStream(rawURL string, settings map[string]any) (*jobs.Job, error)
	SubmitSummarize(text string, settings map[string]any) (*jobs.Job, error)
	SubmitBatch(kind jobs.Kind, paths []string, settings map[string]any) (*jobs.Job, error)
}

// KeyStore is the subset of the keystore the handlers need.
type KeyStore interface {
	Set(vendor, apiKey string) error
	Get(vendor string) (string, bool, error)
	Vendors() ([]string, error)
}
