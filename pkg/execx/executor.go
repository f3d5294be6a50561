// Package execx wraps external process execution for the media tools
// (ffmpeg, ffprobe, whisper-cli). All pipeline stages that shell out go
// through the Runner interface so tests can substitute a fake.
package execx

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// Result captures one external command invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner abstracts process execution for testability.
type Runner interface {
	// Run executes one command and captures stdout/stderr and exit code.
	// The returned error is non-nil for start failures and nonzero exits;
	// Result is populated in both cases.
	Run(ctx context.Context, name string, args ...string) (Result, error)

	// LookPath reports whether the named binary is resolvable on PATH
	// (or as an absolute path).
	LookPath(name string) error
}

type execRunner struct{}

// New creates the production Runner backed by os/exec.
func New() Runner {
	return &execRunner{}
}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

func (r *execRunner) LookPath(name string) error {
	_, err := exec.LookPath(name)
	return err
}
