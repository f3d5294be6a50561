// Package mediaexec assembles transcription pipelines per job kind and
// submits them to the worker pool. It is the seam between the HTTP layer
// (which validates requests and creates jobs) and the stage packages
// (media, transcribe, summarize, markdown) that do the work.
package mediaexec

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"

	"github.com/GunnyMarc/verba/pkg/config"
	"github.com/GunnyMarc/verba/pkg/execx"
	"github.com/GunnyMarc/verba/pkg/jobs"
	"github.com/GunnyMarc/verba/pkg/markdown"
	"github.com/GunnyMarc/verba/pkg/media"
	"github.com/GunnyMarc/verba/pkg/pipeline"
	"github.com/GunnyMarc/verba/pkg/summarize"
	"github.com/GunnyMarc/verba/pkg/transcribe"
)

// Stage dependencies are consumed through private interfaces so tests can
// substitute fakes without touching the real tools.

type converter interface {
	Verify(ctx context.Context) error
	SupportedFormat(path string) bool
	Probe(ctx context.Context, path string) (*media.Info, error)
	Prepare(ctx context.Context, path string) (string, bool, error)
}

type extractor interface {
	Verify(ctx context.Context) error
	SupportedFormat(path string) bool
	Probe(ctx context.Context, path string) (*media.Info, error)
	Extract(ctx context.Context, path string) (string, error)
}

type capturer interface {
	Verify(ctx context.Context) error
	Probe(ctx context.Context, rawURL string) *media.Info
	Capture(ctx context.Context, rawURL string, duration time.Duration) (string, *media.CaptureInfo, error)
}

type transcriber interface {
	Load(ctx context.Context) error
	ModelFile() string
	Transcribe(ctx context.Context, wavPath string) (*transcribe.Result, error)
}

type summarizer interface {
	Summarize(ctx context.Context, transcript, instructions, model string) (string, error)
}

// Service builds and runs job pipelines. One Service is shared by the
// HTTP handlers, the CLI, and the directory watcher.
type Service struct {
	registry *jobs.Registry
	pool     *jobs.Pool
	cfg      *config.Config
	tempDir  string

	converter  converter
	extractor  extractor
	capturer   capturer
	summarizer summarizer
	creds      summarize.CredentialSource

	transcriberFactory func(transcribe.Options) transcriber

	logger zerolog.Logger
}

// NewService builds a Service with production dependencies.
func NewService(registry *jobs.Registry, pool *jobs.Pool, cfg *config.Config, creds summarize.CredentialSource) *Service {
	runner := execx.New()

	tempDir := cfg.Media.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	return &Service{
		registry:   registry,
		pool:       pool,
		cfg:        cfg,
		tempDir:    tempDir,
		converter:  media.NewConverter(runner, tempDir),
		extractor:  media.NewExtractor(runner, tempDir),
		capturer:   media.NewCapturer(runner, tempDir),
		summarizer: summarize.NewSummarizer(creds, summarize.WithOllamaBase(cfg.Summarize.OllamaBaseURL)),
		creds:      creds,
		transcriberFactory: func(opts transcribe.Options) transcriber {
			return transcribe.NewTranscriber(runner, opts)
		},
		logger: log.With().Str("component", "mediaexec").Logger(),
	}
}

// WithConverter replaces the audio converter (useful for tests).
func (s *Service) WithConverter(c converter) *Service {
	s.converter = c
	return s
}

// WithExtractor replaces the video audio extractor (useful for tests).
func (s *Service) WithExtractor(e extractor) *Service {
	s.extractor = e
	return s
}

// WithCapturer replaces the stream capturer (useful for tests).
func (s *Service) WithCapturer(c capturer) *Service {
	s.capturer = c
	return s
}

// WithSummarizer replaces the LLM summarizer (useful for tests).
func (s *Service) WithSummarizer(sum summarizer) *Service {
	s.summarizer = sum
	return s
}

// WithTranscriberFactory overrides transcriber construction for testing.
func (s *Service) WithTranscriberFactory(factory func(transcribe.Options) transcriber) *Service {
	s.transcriberFactory = factory
	return s
}

// SubmitAudio validates an audio file and enqueues a transcription job.
func (s *Service) SubmitAudio(path string, settings map[string]any) (*jobs.Job, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, validationf("invalid path: %s", path)
	}
	if err := requireFile(abs); err != nil {
		return nil, err
	}
	if !s.converter.SupportedFormat(abs) {
		return nil, validationf("unsupported audio format: %s", filepath.Ext(abs))
	}

	job := s.registry.Create(jobs.KindAudio, filepath.Base(abs), settings)
	return job, s.enqueue(job, func() { s.runTranscription(job, jobs.KindAudio, abs) })
}

// SubmitVideo validates a video file and enqueues an extract-and-transcribe job.
func (s *Service) SubmitVideo(path string, settings map[string]any) (*jobs.Job, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, validationf("invalid path: %s", path)
	}
	if err := requireFile(abs); err != nil {
		return nil, err
	}
	if !s.extractor.SupportedFormat(abs) {
		return nil, validationf("unsupported video format: %s", filepath.Ext(abs))
	}

	job := s.registry.Create(jobs.KindVideo, filepath.Base(abs), settings)
	return job, s.enqueue(job, func() { s.runTranscription(job, jobs.KindVideo, abs) })
}

// SubmitStream validates a stream URL and enqueues a capture-and-transcribe
// job. The duration setting is required ("90", "5m", "1h30m").
func (s *Service) SubmitStream(rawURL string, settings map[string]any) (*jobs.Job, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return nil, validationf("invalid stream URL: %s", rawURL)
	}
	switch parsed.Scheme {
	case "http", "https", "rtmp", "rtsp":
	default:
		return nil, validationf("unsupported stream scheme: %s", parsed.Scheme)
	}

	rawDuration := cast.ToString(settings[SettingDuration])
	if rawDuration == "" {
		return nil, validationf("duration is required for stream capture")
	}
	duration, err := media.ParseDuration(rawDuration)
	if err != nil {
		return nil, validationf("invalid duration %q: %v", rawDuration, err)
	}

	job := s.registry.Create(jobs.KindStream, media.SanitizeURLName(rawURL), settings)
	return job, s.enqueue(job, func() { s.runStream(job, rawURL, duration) })
}

// SubmitSummarize enqueues an LLM summarization of the given text.
func (s *Service) SubmitSummarize(text string, settings map[string]any) (*jobs.Job, error) {
	if text == "" {
		return nil, validationf("text to summarize is empty")
	}

	model := s.summaryModel(settings)
	vendor := summarize.VendorFor(model)
	if vendor != summarize.VendorOllama && s.creds != nil && s.creds.APIKey(vendor) == "" {
		envVar, _ := summarize.EnvVarFor(vendor)
		return nil, validationf("%s API key is not configured (set %s or add it in settings)", vendor, envVar)
	}

	job := s.registry.Create(jobs.KindSummarize, fmt.Sprintf("text (%d chars)", len(text)), settings)
	return job, s.enqueue(job, func() { s.runSummarize(job, text, model) })
}

// SubmitBatch validates a set of media files and enqueues one batch job
// that processes them sequentially. kind must be audio or video.
func (s *Service) SubmitBatch(kind jobs.Kind, paths []string, settings map[string]any) (*jobs.Job, error) {
	if kind != jobs.KindAudio && kind != jobs.KindVideo {
		return nil, validationf("batch jobs support audio and video only, got %q", kind)
	}
	if len(paths) == 0 {
		return nil, validationf("no input files")
	}

	abs := make([]string, len(paths))
	for i, p := range paths {
		a, err := filepath.Abs(p)
		if err != nil {
			return nil, validationf("invalid path: %s", p)
		}
		if err := requireFile(a); err != nil {
			return nil, err
		}
		if !s.supportedFor(kind, a) {
			return nil, validationf("unsupported format: %s", filepath.Base(a))
		}
		abs[i] = a
	}

	job := s.registry.Create(kind, fmt.Sprintf("%d files", len(abs)), settings)
	return job, s.enqueue(job, func() { s.runBatch(job, kind, abs) })
}

// enqueue hands the task to the pool. A closed pool fails the job so the
// caller still observes a terminal state.
func (s *Service) enqueue(job *jobs.Job, task func()) error {
	if err := s.pool.Submit(task); err != nil {
		job.Fail(pipeline.KindInternal, "server is shutting down")
		return err
	}
	s.logger.Info().
		Str("job_id", job.ID()).
		Str("kind", string(job.Kind())).
		Str("input", job.Input()).
		Msg("Job queued")
	return nil
}

// runTranscription drives a single-file audio or video job to a terminal state.
func (s *Service) runTranscription(job *jobs.Job, kind jobs.Kind, path string) {
	job.Start()

	out := &transcribeOutcome{}
	runner := pipeline.NewRunner(job.UpdateProgress)
	runner.KeepArtifacts(s.keepArtifacts(job.Settings()))
	s.addTranscribeStages(runner, kind, path, job.Settings(), out)

	if err := runner.Run(context.Background()); err != nil {
		s.fail(job, err)
		return
	}

	s.complete(job, out.resultPayload())
}

// runStream captures a live stream, then transcribes the capture.
func (s *Service) runStream(job *jobs.Job, rawURL string, duration time.Duration) {
	job.Start()

	out := &transcribeOutcome{}
	runner := pipeline.NewRunner(job.UpdateProgress)
	runner.KeepArtifacts(s.keepArtifacts(job.Settings()))
	s.addStreamStages(runner, rawURL, duration, job.Settings(), out)

	if err := runner.Run(context.Background()); err != nil {
		s.fail(job, err)
		return
	}

	payload := out.resultPayload()
	if out.capture != nil {
		payload["capture"] = out.capture
	}
	s.complete(job, payload)
}

// runSummarize drives a summarization job to a terminal state.
func (s *Service) runSummarize(job *jobs.Job, text, model string) {
	job.Start()

	settings := job.Settings()
	instructions := s.instructions(settings)

	var summary string
	runner := pipeline.NewRunner(job.UpdateProgress)
	runner.Add("validate", 0.05, func(ctx context.Context, sink pipeline.ProgressSink) error {
		sink.Report(0, "Preparing summarization request...")
		return nil
	})
	runner.Add("summarize", 0.85, func(ctx context.Context, sink pipeline.ProgressSink) error {
		sink.Report(0, fmt.Sprintf("Sending to %s...", model))
		result, err := s.summarizer.Summarize(ctx, text, instructions, model)
		if err != nil {
			return err
		}
		summary = result
		return nil
	})
	runner.Add("finalize", 0.10, func(ctx context.Context, sink pipeline.ProgressSink) error {
		sink.Report(0, "Finalizing...")
		return nil
	})

	if err := runner.Run(context.Background()); err != nil {
		s.fail(job, err)
		return
	}

	s.complete(job, map[string]any{
		"type":          "summary",
		"summary":       summary,
		"model_used":    model,
		"input_length":  len(text),
		"output_length": len(summary),
	})
}

// runBatch processes each file in its own progress window. Item failures
// are recorded in the summary; only the pool dying would abort the batch.
func (s *Service) runBatch(job *jobs.Job, kind jobs.Kind, paths []string) {
	job.Start()

	settings := job.Settings()
	items := make([]pipeline.BatchItem, len(paths))
	for i, path := range paths {
		path := path
		items[i] = pipeline.BatchItem{
			Name: filepath.Base(path),
			Run: func(ctx context.Context, sink pipeline.ProgressSink) (map[string]any, error) {
				out := &transcribeOutcome{}
				itemRunner := pipeline.NewRunner(func(pct int, message string) {
					sink.Report(float64(pct)/100, message)
				})
				itemRunner.KeepArtifacts(s.keepArtifacts(settings))
				s.addTranscribeStages(itemRunner, kind, path, settings, out)
				if err := itemRunner.Run(ctx); err != nil {
					return nil, err
				}
				return map[string]any{"output_path": out.outputPath}, nil
			},
		}
	}

	summary, err := pipeline.RunBatch(context.Background(), items, job.UpdateProgress)
	if err != nil {
		s.fail(job, err)
		return
	}

	s.complete(job, map[string]any{
		"type":          "batch",
		"total":         summary.Total,
		"success_count": summary.SuccessCount,
		"failed_count":  summary.FailedCount,
		"results":       summary.Results,
	})
}

// transcribeOutcome collects what the stages produce for the job result.
type transcribeOutcome struct {
	wavPath    string
	info       *media.Info
	capture    *media.CaptureInfo
	result     *transcribe.Result
	content    string
	outputPath string
}

func (o *transcribeOutcome) resultPayload() map[string]any {
	payload := map[string]any{
		"type":             "single",
		"markdown_content": o.content,
		"output_path":      o.outputPath,
	}
	if o.info != nil {
		payload["media_info"] = o.info
	}
	if o.result != nil {
		payload["language"] = o.result.Language
		payload["word_count"] = o.result.WordCount()
		payload["segment_count"] = len(o.result.Segments)
	}
	return payload
}

// addTranscribeStages wires the shared validate/prepare/load/transcribe/
// render/save sequence. kind selects audio preparation or video extraction.
func (s *Service) addTranscribeStages(r *pipeline.Runner, kind jobs.Kind, path string, settings map[string]any, out *transcribeOutcome) {
	tr := s.newTranscriber(settings)

	r.Add("validate", 0.05, func(ctx context.Context, sink pipeline.ProgressSink) error {
		sink.Report(0, fmt.Sprintf("Validating %s file...", kind))
		if err := s.converter.Verify(ctx); err != nil {
			return err
		}
		sink.Report(0.5, "Getting media information...")
		// Metadata is optional; probe failures must not fail the job
		if info, err := s.probeFor(ctx, kind, path); err == nil {
			out.info = info
		}
		return nil
	})

	r.Add("prepare", 0.20, func(ctx context.Context, sink pipeline.ProgressSink) error {
		if kind == jobs.KindVideo {
			sink.Report(0, "Extracting audio from video...")
			wav, err := s.extractor.Extract(ctx, path)
			if err != nil {
				return err
			}
			r.TrackArtifact(wav)
			out.wavPath = wav
		} else {
			sink.Report(0, "Preparing audio for transcription...")
			wav, converted, err := s.converter.Prepare(ctx, path)
			if err != nil {
				return err
			}
			if converted {
				r.TrackArtifact(wav)
			}
			out.wavPath = wav
		}
		sink.Report(1, "Audio preparation complete.")
		return nil
	})

	s.addWhisperStages(r, tr, path, settings, out)
}

// addStreamStages wires capture in place of file preparation.
func (s *Service) addStreamStages(r *pipeline.Runner, rawURL string, duration time.Duration, settings map[string]any, out *transcribeOutcome) {
	tr := s.newTranscriber(settings)

	r.Add("validate", 0.05, func(ctx context.Context, sink pipeline.ProgressSink) error {
		sink.Report(0, "Checking stream tools...")
		if err := s.capturer.Verify(ctx); err != nil {
			return err
		}
		if info := s.capturer.Probe(ctx, rawURL); info != nil {
			out.info = info
		}
		return nil
	})

	r.Add("capture", 0.35, func(ctx context.Context, sink pipeline.ProgressSink) error {
		sink.Report(0, fmt.Sprintf("Capturing stream for %s...", duration))
		wav, captureInfo, err := s.capturer.Capture(ctx, rawURL, duration)
		if err != nil {
			return err
		}
		r.TrackArtifact(wav)
		out.wavPath = wav
		out.capture = captureInfo
		sink.Report(1, "Capture complete.")
		return nil
	})

	s.addWhisperStages(r, tr, rawURL, settings, out)
}

// addWhisperStages appends the load/transcribe/render/save tail common to
// every transcription kind. source is used for output naming.
func (s *Service) addWhisperStages(r *pipeline.Runner, tr transcriber, source string, settings map[string]any, out *transcribeOutcome) {
	r.Add("load", 0.05, func(ctx context.Context, sink pipeline.ProgressSink) error {
		sink.Report(0, "Loading Whisper model...")
		if err := tr.Load(ctx); err != nil {
			return err
		}
		sink.Report(1, fmt.Sprintf("Model ready (%s).", filepath.Base(tr.ModelFile())))
		return nil
	})

	r.Add("transcribe", 0.50, func(ctx context.Context, sink pipeline.ProgressSink) error {
		sink.Report(0, "Transcribing audio...")
		result, err := tr.Transcribe(ctx, out.wavPath)
		if err != nil {
			return err
		}
		out.result = result
		sink.Report(1, "Transcription complete.")
		return nil
	})

	r.Add("render", 0.10, func(ctx context.Context, sink pipeline.ProgressSink) error {
		sink.Report(0, "Formatting markdown...")
		out.content = s.newFormatter(settings).Format(out.result, source, out.info)
		return nil
	})

	r.Add("save", 0.10, func(ctx context.Context, sink pipeline.ProgressSink) error {
		sink.Report(0, "Saving markdown file...")
		dest := markdown.OutputPath(nameFor(source), s.outputDir(settings))
		saved, err := markdown.Save(out.content, dest)
		if err != nil {
			return pipeline.NewStageError(pipeline.KindInternal, "save", fmt.Sprintf("failed to save transcript: %v", err), err)
		}
		out.outputPath = saved
		if cast.ToBool(settings[SettingExportDocx]) {
			docxPath := strings.TrimSuffix(saved, filepath.Ext(saved)) + ".docx"
			title := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
			if err := markdown.ExportDocx(title, out.content, docxPath); err != nil {
				return pipeline.NewStageError(pipeline.KindInternal, "save", fmt.Sprintf("failed to export docx: %v", err), err)
			}
		}
		sink.Report(1, fmt.Sprintf("Done! Saved to: %s", saved))
		return nil
	})
}

func (s *Service) fail(job *jobs.Job, err error) {
	kind, message := pipeline.KindInternal, "unexpected error: "+err.Error()
	var se *pipeline.StageError
	if errors.As(err, &se) {
		kind, message = se.Kind, se.Message
	}
	s.logger.Warn().
		Str("job_id", job.ID()).
		Str("error_kind", kind).
		Str("message", message).
		Msg("Job failed")
	job.Fail(kind, message)
}

func (s *Service) complete(job *jobs.Job, result map[string]any) {
	s.logger.Info().
		Str("job_id", job.ID()).
		Str("kind", string(job.Kind())).
		Msg("Job completed")
	job.Complete(result)
}

func (s *Service) newTranscriber(settings map[string]any) transcriber {
	opts := transcribe.Options{
		BinPath:   s.cfg.Whisper.Binary,
		ModelPath: s.cfg.Whisper.ModelPath,
		Language:  s.cfg.Whisper.Language,
		WorkDir:   s.tempDir,
	}
	if v := cast.ToString(settings[SettingWhisperModel]); v != "" {
		opts.ModelPath = v
	}
	if v := cast.ToString(settings[SettingLanguage]); v != "" {
		opts.Language = v
	}
	return s.transcriberFactory(opts)
}

func (s *Service) newFormatter(settings map[string]any) *markdown.Formatter {
	style := s.cfg.Media.MarkdownStyle
	if v := cast.ToString(settings[SettingMarkdownStyle]); v != "" {
		style = v
	}
	include := s.cfg.Media.IncludeMetadata
	if v, ok := settings[SettingIncludeMetadata]; ok {
		include = cast.ToBool(v)
	}
	return markdown.NewFormatter(markdown.Style(style), include)
}

func (s *Service) outputDir(settings map[string]any) string {
	if v := cast.ToString(settings[SettingOutputDir]); v != "" {
		return v
	}
	return s.cfg.Media.OutputDir
}

func (s *Service) keepArtifacts(settings map[string]any) bool {
	if v, ok := settings[SettingKeepArtifacts]; ok {
		return cast.ToBool(v)
	}
	return s.cfg.Media.KeepConverted
}

func (s *Service) summaryModel(settings map[string]any) string {
	if v := cast.ToString(settings[SettingModel]); v != "" {
		return v
	}
	return s.cfg.Summarize.Model
}

// instructions resolves the summarization prompt: per-job setting first,
// then the configured instructions file.
func (s *Service) instructions(settings map[string]any) string {
	if v := cast.ToString(settings[SettingInstructions]); v != "" {
		return v
	}
	if s.cfg.Summarize.InstructionsFile != "" {
		if data, err := os.ReadFile(s.cfg.Summarize.InstructionsFile); err == nil {
			return string(data)
		}
	}
	return ""
}

func (s *Service) supportedFor(kind jobs.Kind, path string) bool {
	if kind == jobs.KindVideo {
		return s.extractor.SupportedFormat(path)
	}
	return s.converter.SupportedFormat(path)
}

func (s *Service) probeFor(ctx context.Context, kind jobs.Kind, path string) (*media.Info, error) {
	if kind == jobs.KindVideo {
		return s.extractor.Probe(ctx, path)
	}
	return s.converter.Probe(ctx, path)
}

// nameFor turns a job source (file path or URL) into something OutputPath
// can derive a stem from.
func nameFor(source string) string {
	if u, err := url.Parse(source); err == nil && u.Host != "" {
		return media.SanitizeURLName(source) + ".wav"
	}
	return source
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return validationf("file not found: %s", path)
	}
	if info.IsDir() {
		return validationf("expected a file, got a directory: %s", path)
	}
	return nil
}
