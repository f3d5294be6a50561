package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/GunnyMarc/verba/pkg/execx"
	"github.com/GunnyMarc/verba/pkg/pipeline"
)

// videoFormats are the file extensions the video pipeline accepts.
var videoFormats = map[string]bool{
	".mov": true, ".mpeg": true, ".mpg": true, ".mkv": true,
	".mp4": true, ".avi": true, ".webm": true,
}

// Extractor pulls the audio track out of video files via ffmpeg.
type Extractor struct {
	runner  execx.Runner
	tempDir string
	logger  zerolog.Logger
}

// NewExtractor creates an extractor that writes WAV intermediates to
// tempDir (the system temp directory when empty).
func NewExtractor(runner execx.Runner, tempDir string) *Extractor {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Extractor{
		runner:  runner,
		tempDir: tempDir,
		logger:  log.With().Str("component", "media").Logger(),
	}
}

// Verify checks that ffmpeg is installed and runnable.
func (e *Extractor) Verify(ctx context.Context) error {
	return verifyFFmpeg(ctx, e.runner)
}

// SupportedFormat reports whether the file extension is an accepted video
// input.
func (e *Extractor) SupportedFormat(path string) bool {
	return videoFormats[strings.ToLower(filepath.Ext(path))]
}

// SupportedVideoFormats returns the accepted video extensions, sorted.
func SupportedVideoFormats() []string {
	out := make([]string, 0, len(videoFormats))
	for ext := range videoFormats {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Probe runs ffprobe against a video file.
func (e *Extractor) Probe(ctx context.Context, path string) (*Info, error) {
	return probe(ctx, e.runner, path, "extract")
}

// Extract validates a video file and writes its audio track as a
// whisper-compatible WAV. The returned path is always a new intermediate
// the caller must clean up. A video without an audio track is rejected
// before ffmpeg runs.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", pipeline.NewStageError(pipeline.KindInvalidInput, "extract", "invalid path", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", pipeline.NewStageError(pipeline.KindInvalidInput, "extract",
			fmt.Sprintf("video file not found: %s", path), err)
	}
	if !e.SupportedFormat(abs) {
		return "", pipeline.NewStageError(pipeline.KindInvalidInput, "extract",
			fmt.Sprintf("unsupported format: %s (supported: %s)",
				filepath.Ext(abs), strings.Join(SupportedVideoFormats(), ", ")), nil)
	}

	info, err := e.Probe(ctx, abs)
	if err != nil {
		return "", err
	}
	if !info.HasAudio {
		return "", pipeline.NewStageError(pipeline.KindInvalidInput, "extract",
			"video file has no audio track", nil)
	}

	stem := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	out := filepath.Join(e.tempDir, stem+"_audio.wav")

	res, err := e.runner.Run(ctx, "ffmpeg",
		"-hide_banner", "-nostdin",
		"-i", abs,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprint(whisperSampleRate),
		"-ac", fmt.Sprint(whisperChannels),
		"-y", out)
	if err != nil || res.ExitCode != 0 {
		return "", pipeline.NewStageError(pipeline.KindToolFailed, "extract",
			fmt.Sprintf("ffmpeg audio extraction failed: %s", tailLines(res.Stderr, 3)), err)
	}

	e.logger.Debug().Str("video", abs).Str("audio", out).Msg("Extracted audio track")
	return out, nil
}
