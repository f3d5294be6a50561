// Package transcribe wraps whisper-cli (whisper.cpp) for speech-to-text.
// The transcriber runs the binary against a prepared 16kHz mono WAV, asks
// for JSON output, and parses it into timed segments.
package transcribe

import (
	"context"
	"encoding/json"
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

// Segment is one timed span of transcribed speech. Start and End are
// seconds from the beginning of the audio.
type Segment struct {
	Index int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// StartFormatted renders the segment start as a display timestamp.
func (s Segment) StartFormatted() string {
	return FormatTimestamp(s.Start)
}

// EndFormatted renders the segment end as a display timestamp.
func (s Segment) EndFormatted() string {
	return FormatTimestamp(s.End)
}

// Result is a complete transcription.
type Result struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
	Model    string    `json:"model_used"`
}

// WordCount returns the number of whitespace-separated words in the
// transcript.
func (r *Result) WordCount() int {
	return len(strings.Fields(r.Text))
}

// FormatTimestamp renders seconds as MM:SS.mmm, or HH:MM:SS.mmm for
// timestamps of an hour or more.
func FormatTimestamp(seconds float64) string {
	total := int(seconds)
	millis := int((seconds - float64(total)) * 1000)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, millis)
	}
	return fmt.Sprintf("%02d:%02d.%03d", m, s, millis)
}

// Options configures a Transcriber.
type Options struct {
	// BinPath is the whisper-cli binary; defaults to "whisper-cli".
	BinPath string
	// ModelPath is a ggml model file, or a directory holding .bin/.gguf
	// models from which the first (sorted) is picked.
	ModelPath string
	// Language is a hint like "en"; empty or "auto" lets whisper detect.
	Language string
	// WorkDir receives whisper's output files; system temp when empty.
	WorkDir string
}

// Transcriber shells out to whisper-cli.
type Transcriber struct {
	runner execx.Runner
	opts   Options
	model  string
	logger zerolog.Logger
}

// NewTranscriber creates a transcriber. Call Load before Transcribe.
func NewTranscriber(runner execx.Runner, opts Options) *Transcriber {
	if opts.BinPath == "" {
		opts.BinPath = "whisper-cli"
	}
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	return &Transcriber{
		runner: runner,
		opts:   opts,
		logger: log.With().Str("component", "transcribe").Logger(),
	}
}

// Load verifies the whisper binary is on PATH and resolves the model
// file. It is idempotent and cheap once resolved.
func (t *Transcriber) Load(ctx context.Context) error {
	if err := t.runner.LookPath(t.opts.BinPath); err != nil {
		return pipeline.NewStageError(pipeline.KindToolMissing, "load",
			fmt.Sprintf("%s not found; install whisper.cpp and put the binary on PATH", t.opts.BinPath), err)
	}
	if t.model != "" {
		return nil
	}

	model, err := resolveModel(t.opts.ModelPath)
	if err != nil {
		return pipeline.NewStageError(pipeline.KindModelLoad, "load", err.Error(), err)
	}
	t.model = model
	t.logger.Debug().Str("model", model).Msg("Whisper model resolved")
	return nil
}

// ModelFile returns the resolved model path. Empty before Load.
func (t *Transcriber) ModelFile() string {
	return t.model
}

// resolveModel accepts a model file directly, or picks the first sorted
// .bin/.gguf file from a model directory.
func resolveModel(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("whisper model path is not configured")
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("cannot access whisper model path: %s", path)
	}
	if !info.IsDir() {
		return path, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("cannot read whisper model directory: %s", path)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".bin", ".gguf":
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no .bin or .gguf model files found in: %s", path)
	}
	sort.Strings(names)
	return filepath.Join(path, names[0]), nil
}

// Transcribe runs whisper-cli against a prepared WAV and parses its JSON
// output. The JSON sidecar file is removed once parsed.
func (t *Transcriber) Transcribe(ctx context.Context, wavPath string) (*Result, error) {
	if err := t.Load(ctx); err != nil {
		return nil, err
	}

	stem := strings.TrimSuffix(filepath.Base(wavPath), filepath.Ext(wavPath))
	outBase := filepath.Join(t.opts.WorkDir, stem)

	args := []string{
		"-m", t.model,
		"-f", wavPath,
		"-of", outBase,
		"-oj",
	}
	if lang := normalizeLanguage(t.opts.Language); lang != "" {
		args = append(args, "-l", lang)
	}

	res, err := t.runner.Run(ctx, t.opts.BinPath, args...)
	if err != nil || res.ExitCode != 0 {
		return nil, pipeline.NewStageError(pipeline.KindToolFailed, "transcribe",
			fmt.Sprintf("whisper transcription failed (exit %d)", res.ExitCode), err)
	}

	jsonPath := outBase + ".json"
	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, pipeline.NewStageError(pipeline.KindToolFailed, "transcribe",
			"whisper finished but produced no JSON output", err)
	}
	defer os.Remove(jsonPath)

	result, err := parseWhisperJSON(raw)
	if err != nil {
		return nil, pipeline.NewStageError(pipeline.KindBadResponse, "transcribe",
			"could not parse whisper output", err)
	}
	result.Model = filepath.Base(t.model)
	return result, nil
}

// normalizeLanguage maps "auto" and empty to no CLI override.
func normalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	return lang
}

// whisperOutput mirrors whisper.cpp's -oj JSON document. Offsets are
// milliseconds.
type whisperOutput struct {
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
}

func parseWhisperJSON(raw []byte) (*Result, error) {
	var out whisperOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}

	result := &Result{Language: out.Result.Language}
	var parts []string
	for i, seg := range out.Transcription {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		s := Segment{
			Index: i,
			Start: float64(seg.Offsets.From) / 1000,
			End:   float64(seg.Offsets.To) / 1000,
			Text:  text,
		}
		result.Segments = append(result.Segments, s)
		parts = append(parts, text)
	}
	if len(result.Segments) > 0 {
		result.Duration = result.Segments[len(result.Segments)-1].End
	}
	result.Text = strings.Join(parts, " ")
	return result, nil
}
