package v1

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/GunnyMarc/verba/pkg/jobs"
	"github.com/GunnyMarc/verba/pkg/media"
	"github.com/GunnyMarc/verba/pkg/mediaexec"
	"github.com/GunnyMarc/verba/pkg/server/api"
)

// DTO Evolution Policy
// These request/response DTOs are part of the public API contract used by
// CLI and HTTP API clients. Evolve them additively: you may add optional
// fields with safe zero-values (prefer `omitempty`), you may not remove or
// rename existing fields. Breaking changes require a new API version (v2).

// MaxRequestBodySize bounds job creation payloads. Summarize jobs carry the
// transcript inline, so the limit is generous.
const MaxRequestBodySize = 10 << 20 // 10 MiB

// CreateJobRequest is the POST /api/v1/jobs payload.
//
// For audio/video kinds input is a file path; for stream it is a URL; for
// summarize it is the text itself. Batch jobs provide inputs or input_dir
// instead of input.
type CreateJobRequest struct {
	Kind     string         `json:"kind"`
	Input    string         `json:"input,omitempty"`
	Inputs   []string       `json:"inputs,omitempty"`
	InputDir string         `json:"input_dir,omitempty"`
	Settings map[string]any `json:"settings,omitempty"`
}

// CreateJobResponse carries the id of the created job.
type CreateJobResponse struct {
	JobID string `json:"job_id"`
}

// JobSummary is the list-item DTO for GET /api/v1/jobs.
type JobSummary struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	Input     string    `json:"input"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateJobHandler handles POST /api/v1/jobs
//
// Validation happens synchronously: an unknown kind, unsupported format, or
// missing input yields a 400 before any job exists. On success the job is
// queued and the response is 201 with its id.
func CreateJobHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

		var req CreateJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.WriteJSONError(w, http.StatusBadRequest, "Bad Request", "INVALID_JSON", "request body is not valid JSON")
			return
		}

		kind := jobs.Kind(req.Kind)
		if !kind.IsValid() {
			api.WriteJSONError(w, http.StatusBadRequest, "Bad Request", "INVALID_KIND", "unknown job kind: "+req.Kind)
			return
		}

		// Runtime defaults apply underneath the request's own settings
		if deps.Settings != nil {
			req.Settings = deps.Settings.Merge(req.Settings)
		}

		job, err := submitFor(deps, kind, req)
		if err != nil {
			api.WriteError(w, r, err)
			return
		}

		api.WriteJSON(w, http.StatusCreated, CreateJobResponse{JobID: job.ID()})
	}
}

func submitFor(deps *api.Deps, kind jobs.Kind, req CreateJobRequest) (*jobs.Job, error) {
	if len(req.Inputs) > 0 || req.InputDir != "" {
		paths := req.Inputs
		if req.InputDir != "" {
			expanded, err := listMediaFiles(req.InputDir, kind)
			if err != nil {
				return nil, err
			}
			paths = append(paths, expanded...)
		}
		return deps.Service.SubmitBatch(kind, paths, req.Settings)
	}

	switch kind {
	case jobs.KindAudio:
		return deps.Service.SubmitAudio(req.Input, req.Settings)
	case jobs.KindVideo:
		return deps.Service.SubmitVideo(req.Input, req.Settings)
	case jobs.KindStream:
		return deps.Service.SubmitStream(req.Input, req.Settings)
	default:
		return deps.Service.SubmitSummarize(req.Input, req.Settings)
	}
}

// listMediaFiles returns files directly inside dir whose extension matches
// the kind. Other files (notes, covers, hidden files) are skipped so a
// mixed directory can still be submitted.
func listMediaFiles(dir string, kind jobs.Kind) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &mediaexec.ValidationError{Message: "cannot read input_dir " + dir + ": " + err.Error()}
	}

	supported := media.SupportedFormats()
	if kind == jobs.KindVideo {
		supported = media.SupportedVideoFormats()
	}
	exts := make(map[string]struct{}, len(supported))
	for _, ext := range supported {
		exts[ext] = struct{}{}
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := exts[strings.ToLower(filepath.Ext(entry.Name()))]; !ok {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	if len(paths) == 0 {
		return nil, &mediaexec.ValidationError{Message: "no supported media files in " + dir}
	}
	return paths, nil
}

// ListJobsHandler handles GET /api/v1/jobs
//
// Returns job summaries newest first:
//
//	{"jobs": [{"id": "a1b2c3d4", "kind": "audio", "status": "running", ...}]}
func ListJobsHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := deps.Registry.List()
		summaries := make([]JobSummary, 0, len(list))
		for _, job := range list {
			snap := job.Snapshot()
			summaries = append(summaries, JobSummary{
				ID:        snap.ID,
				Kind:      string(snap.Kind),
				Status:    snap.Status.String(),
				Progress:  snap.Progress,
				Input:     snap.Input,
				CreatedAt: snap.CreatedAt,
			})
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"jobs": summaries})
	}
}

// GetJobHandler handles GET /api/v1/jobs/{id}
//
// Returns the full job snapshot including progress, message, and (once
// terminal) result or error.
func GetJobHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := deps.Registry.Get(r.PathValue("id"))
		if !ok {
			api.WriteError(w, r, jobs.ErrNotFound)
			return
		}
		api.WriteJSON(w, http.StatusOK, job.Snapshot())
	}
}

// JobResultHandler handles GET /api/v1/jobs/{id}/result
//
// Returns {status, result} or {status, error} once the job is terminal;
// 409 while it is still pending or running.
func JobResultHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := deps.Registry.Get(r.PathValue("id"))
		if !ok {
			api.WriteError(w, r, jobs.ErrNotFound)
			return
		}

		snap := job.Snapshot()
		if !snap.Status.IsTerminal() {
			api.WriteJSONError(w, http.StatusConflict, "Conflict", "JOB_NOT_FINISHED", "job has not finished yet")
			return
		}

		response := map[string]any{"status": snap.Status}
		if snap.Status == jobs.StatusCompleted {
			response["result"] = snap.Result
		} else {
			response["error"] = snap.Error
		}
		api.WriteJSON(w, http.StatusOK, response)
	}
}

// JobArtifactHandler handles GET /api/v1/jobs/{id}/artifact
//
// Serves the rendered output file of a completed job; 404 when the job is
// unknown, not completed, or its output no longer exists on disk.
func JobArtifactHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := deps.Registry.Get(r.PathValue("id"))
		if !ok {
			api.WriteError(w, r, jobs.ErrNotFound)
			return
		}

		snap := job.Snapshot()
		outputPath, _ := snap.Result["output_path"].(string)
		if snap.Status != jobs.StatusCompleted || outputPath == "" {
			api.WriteJSONError(w, http.StatusNotFound, "Not Found", "NO_ARTIFACT", "job has no artifact")
			return
		}
		if _, err := os.Stat(outputPath); err != nil {
			api.WriteJSONError(w, http.StatusNotFound, "Not Found", "ARTIFACT_MISSING", "artifact no longer exists")
			return
		}

		w.Header().Set("Content-Disposition", "attachment; filename="+filepath.Base(outputPath))
		http.ServeFile(w, r, outputPath)
	}
}

// DeleteJobHandler handles DELETE /api/v1/jobs/{id}
//
// Removes the job record. Output files are untouched; this only forgets
// the job. Returns 204 on success and 404 for unknown ids.
func DeleteJobHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !deps.Registry.Delete(r.PathValue("id")) {
			api.WriteError(w, r, jobs.ErrNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
