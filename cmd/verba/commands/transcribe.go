package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/GunnyMarc/verba/pkg/jobs"
	"github.com/GunnyMarc/verba/pkg/media"
	"github.com/GunnyMarc/verba/pkg/mediaexec"
	"github.com/GunnyMarc/verba/pkg/output"
)

// NewTranscribeCommand constructs the 'transcribe' command: one-shot
// transcription of local files or a live stream, without the server.
func NewTranscribeCommand() *cobra.Command {
	var (
		streamURL     string
		duration      string
		outputDir     string
		style         string
		language      string
		modelPath     string
		keepArtifacts bool
		exportDocx    bool
	)

	cmd := &cobra.Command{
		Use:     "transcribe [files...]",
		Short:   "Transcribe audio or video files, or capture a live stream",
		GroupID: "media",
		Long: `Transcribes local media files to markdown. Video files have their audio
track extracted first. With --url, captures a live stream for --duration
and transcribes the capture. Multiple files run as one batch.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if streamURL == "" && len(args) == 0 {
				return fmt.Errorf("nothing to transcribe: pass files or --url")
			}
			if streamURL != "" && len(args) > 0 {
				return fmt.Errorf("--url cannot be combined with file arguments")
			}

			cfg := appConfig(cmd)
			out := appOutput(cmd)
			service, pool := newLocalService(&cfg)
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = pool.Shutdown(ctx)
			}()

			settings := map[string]any{}
			if outputDir != "" {
				settings[mediaexec.SettingOutputDir] = outputDir
			}
			if style != "" {
				settings[mediaexec.SettingMarkdownStyle] = style
			}
			if language != "" {
				settings[mediaexec.SettingLanguage] = language
			}
			if modelPath != "" {
				settings[mediaexec.SettingWhisperModel] = modelPath
			}
			if keepArtifacts {
				settings[mediaexec.SettingKeepArtifacts] = true
			}
			if exportDocx {
				settings[mediaexec.SettingExportDocx] = true
			}

			var (
				job *jobs.Job
				err error
			)
			switch {
			case streamURL != "":
				if duration == "" {
					return fmt.Errorf("--duration is required with --url")
				}
				settings[mediaexec.SettingDuration] = duration
				job, err = service.SubmitStream(streamURL, settings)
			case len(args) == 1:
				if isVideoFile(args[0]) {
					job, err = service.SubmitVideo(args[0], settings)
				} else {
					job, err = service.SubmitAudio(args[0], settings)
				}
			default:
				kind, kindErr := batchKind(args)
				if kindErr != nil {
					return kindErr
				}
				job, err = service.SubmitBatch(kind, args, settings)
			}
			if err != nil {
				return err
			}

			snap, err := follow(cmd.Context(), job, out)
			if err != nil {
				out.Error(err)
				return err
			}
			reportTranscription(out, snap)
			return nil
		},
	}

	cmd.Flags().StringVar(&streamURL, "url", "", "Live stream URL to capture and transcribe")
	cmd.Flags().StringVar(&duration, "duration", "", "Capture duration for --url (e.g. '90s', '5m')")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Directory for the markdown transcript")
	cmd.Flags().StringVar(&style, "style", "", "Markdown style: simple, timestamped, detailed, srt_style")
	cmd.Flags().StringVarP(&language, "language", "l", "", "Transcription language ('auto' to detect)")
	cmd.Flags().StringVar(&modelPath, "model", "", "Whisper model path (overrides config)")
	cmd.Flags().BoolVar(&keepArtifacts, "keep-artifacts", false, "Keep intermediate audio files")
	cmd.Flags().BoolVar(&exportDocx, "docx", false, "Also export the transcript as a .docx file")

	return cmd
}

func reportTranscription(out output.Output, snap jobs.Snapshot) {
	if len(snap.Result) == 0 {
		return
	}
	if path, ok := snap.Result["output_path"].(string); ok && path != "" {
		out.Info(fmt.Sprintf("Transcript saved: %s", path))
		return
	}
	// Batch payload: per-item outcomes plus counters
	total, _ := snap.Result["total"].(int)
	success, _ := snap.Result["success_count"].(int)
	failed, _ := snap.Result["failed_count"].(int)
	out.Info(fmt.Sprintf("Batch finished: %d/%d succeeded, %d failed", success, total, failed))
}

func isVideoFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, v := range media.SupportedVideoFormats() {
		if ext == v {
			return true
		}
	}
	return false
}

// batchKind classifies a multi-file submission. Batches are homogeneous:
// mixing audio and video in one run is rejected up front.
func batchKind(paths []string) (jobs.Kind, error) {
	videos := 0
	for _, p := range paths {
		if isVideoFile(p) {
			videos++
		}
	}
	switch videos {
	case 0:
		return jobs.KindAudio, nil
	case len(paths):
		return jobs.KindVideo, nil
	default:
		return "", fmt.Errorf("cannot mix audio and video files in one batch")
	}
}
