// Package media wraps ffmpeg and ffprobe for the input side of the
// transcription pipelines: validating formats, probing metadata, converting
// audio to the 16kHz mono WAV whisper expects, extracting audio tracks from
// video, and capturing live streams.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/GunnyMarc/verba/pkg/execx"
	"github.com/GunnyMarc/verba/pkg/pipeline"
)

// audioFormats are the file extensions the audio pipeline accepts.
var audioFormats = map[string]bool{
	".mp3": true, ".wav": true, ".aac": true, ".flac": true, ".m4a": true,
	".ogg": true, ".wma": true, ".opus": true, ".aiff": true, ".alac": true,
}

// whisper.cpp wants 16kHz mono 16-bit PCM.
const (
	whisperSampleRate = 16000
	whisperChannels   = 1
)

// Info is the subset of ffprobe output the pipelines care about.
type Info struct {
	Duration   float64 `json:"duration"`
	Formatted  string  `json:"duration_formatted"`
	HasAudio   bool    `json:"has_audio"`
	Codec      string  `json:"audio_codec,omitempty"`
	SampleRate string  `json:"sample_rate,omitempty"`
	Channels   int     `json:"channels"`
	Bitrate    string  `json:"bitrate,omitempty"`
	Format     string  `json:"format,omitempty"`
}

// Converter validates and normalizes audio inputs via ffmpeg.
type Converter struct {
	runner  execx.Runner
	tempDir string
	logger  zerolog.Logger
}

// NewConverter creates a converter that writes intermediates to tempDir
// (the system temp directory when empty).
func NewConverter(runner execx.Runner, tempDir string) *Converter {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Converter{
		runner:  runner,
		tempDir: tempDir,
		logger:  log.With().Str("component", "media").Logger(),
	}
}

// Verify checks that ffmpeg is installed and runnable. The returned error
// carries an install hint because it surfaces directly to users.
func (c *Converter) Verify(ctx context.Context) error {
	return verifyFFmpeg(ctx, c.runner)
}

func verifyFFmpeg(ctx context.Context, runner execx.Runner) error {
	if err := runner.LookPath("ffmpeg"); err != nil {
		return pipeline.NewStageError(pipeline.KindToolMissing, "prepare",
			"ffmpeg not found; install it (macOS: brew install ffmpeg, Debian/Ubuntu: apt install ffmpeg)", err)
	}
	res, err := runner.Run(ctx, "ffmpeg", "-version")
	if err != nil || res.ExitCode != 0 {
		return pipeline.NewStageError(pipeline.KindToolFailed, "prepare",
			"ffmpeg is installed but not runnable", err)
	}
	return nil
}

// SupportedFormat reports whether the file extension is an accepted audio
// input.
func (c *Converter) SupportedFormat(path string) bool {
	return audioFormats[strings.ToLower(filepath.Ext(path))]
}

// SupportedFormats returns the accepted audio extensions, sorted.
func SupportedFormats() []string {
	out := make([]string, 0, len(audioFormats))
	for ext := range audioFormats {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Probe runs ffprobe against a local file and parses its JSON output.
func (c *Converter) Probe(ctx context.Context, path string) (*Info, error) {
	return probe(ctx, c.runner, path, "prepare")
}

func probe(ctx context.Context, runner execx.Runner, target, stage string) (*Info, error) {
	res, err := runner.Run(ctx, "ffprobe",
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		target)
	if err != nil || res.ExitCode != 0 {
		return nil, pipeline.NewStageError(pipeline.KindToolFailed, stage,
			fmt.Sprintf("ffprobe failed: %s", strings.TrimSpace(res.Stderr)), err)
	}
	info, err := parseProbe(res.Stdout)
	if err != nil {
		return nil, pipeline.NewStageError(pipeline.KindBadResponse, stage,
			"could not parse ffprobe output", err)
	}
	return info, nil
}

type probeOutput struct {
	Format struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
		BitRate    string `json:"bit_rate"`
	} `json:"streams"`
}

func parseProbe(raw string) (*Info, error) {
	var out probeOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}

	info := &Info{Format: out.Format.FormatName}
	if out.Format.Duration != "" {
		fmt.Sscanf(out.Format.Duration, "%f", &info.Duration)
		info.Formatted = FormatDuration(info.Duration)
	}
	for _, s := range out.Streams {
		if s.CodecType == "audio" {
			info.HasAudio = true
			info.Codec = s.CodecName
			info.SampleRate = s.SampleRate
			info.Channels = s.Channels
			info.Bitrate = s.BitRate
			break
		}
	}
	return info, nil
}

// FormatDuration renders seconds as MM:SS, or HH:MM:SS for durations of an
// hour or more.
func FormatDuration(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// Prepare validates an audio file and converts it to whisper-compatible
// WAV when needed. It returns the path to use for transcription and whether
// that path is a new intermediate the caller must clean up. Files that are
// already 16kHz mono WAV are returned as-is.
func (c *Converter) Prepare(ctx context.Context, path string) (string, bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false, pipeline.NewStageError(pipeline.KindInvalidInput, "prepare", "invalid path", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", false, pipeline.NewStageError(pipeline.KindInvalidInput, "prepare",
			fmt.Sprintf("audio file not found: %s", path), err)
	}
	if !c.SupportedFormat(abs) {
		return "", false, pipeline.NewStageError(pipeline.KindInvalidInput, "prepare",
			fmt.Sprintf("unsupported format: %s (supported: %s)",
				filepath.Ext(abs), strings.Join(SupportedFormats(), ", ")), nil)
	}

	needs, err := c.needsConversion(ctx, abs)
	if err != nil {
		return "", false, err
	}
	if !needs {
		c.logger.Debug().Str("path", abs).Msg("Audio already whisper-compatible, skipping conversion")
		return abs, false, nil
	}

	stem := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	out := filepath.Join(c.tempDir, stem+"_converted.wav")

	res, err := c.runner.Run(ctx, "ffmpeg",
		"-hide_banner", "-nostdin",
		"-i", abs,
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprint(whisperSampleRate),
		"-ac", fmt.Sprint(whisperChannels),
		"-y", out)
	if err != nil || res.ExitCode != 0 {
		return "", false, pipeline.NewStageError(pipeline.KindToolFailed, "prepare",
			fmt.Sprintf("ffmpeg conversion failed: %s", tailLines(res.Stderr, 3)), err)
	}
	return out, true, nil
}

// needsConversion checks whether the file can skip ffmpeg entirely. Only a
// 16kHz mono WAV qualifies.
func (c *Converter) needsConversion(ctx context.Context, path string) (bool, error) {
	if strings.ToLower(filepath.Ext(path)) != ".wav" {
		return true, nil
	}
	info, err := c.Probe(ctx, path)
	if err != nil {
		return false, err
	}
	if info.SampleRate != fmt.Sprint(whisperSampleRate) || info.Channels != whisperChannels {
		return true, nil
	}
	return false, nil
}

// tailLines keeps the last n lines of command output for error messages.
func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// probeTimeout bounds metadata probes against remote URLs.
const probeTimeout = 30 * time.Second
