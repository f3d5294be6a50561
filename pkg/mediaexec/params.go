package mediaexec

import "fmt"

// Setting keys recognized in a job's settings map. Unknown keys are
// carried but ignored.
const (
	// SettingWhisperModel overrides the configured whisper model file or
	// directory for this job.
	SettingWhisperModel = "whisper_model"

	// SettingLanguage is a language hint ("en", "de", ...); "auto" or empty
	// lets whisper detect.
	SettingLanguage = "language"

	// SettingMarkdownStyle selects the transcript rendering style
	// (simple, timestamped, detailed, srt_style).
	SettingMarkdownStyle = "markdown_style"

	// SettingIncludeMetadata toggles the metadata header in rendered output.
	SettingIncludeMetadata = "include_metadata"

	// SettingKeepArtifacts retains intermediate WAV files after the job.
	SettingKeepArtifacts = "keep_artifacts"

	// SettingOutputDir overrides the configured output directory.
	SettingOutputDir = "output_dir"

	// SettingModel selects the summarization model (routes by prefix).
	SettingModel = "model"

	// SettingInstructions carries the summarization prompt.
	SettingInstructions = "instructions"

	// SettingDuration bounds a stream capture ("90", "5m", "1h30m").
	SettingDuration = "duration"

	// SettingExportDocx additionally writes the transcript as a .docx
	// file next to the markdown output.
	SettingExportDocx = "export_docx"
)

// ValidationError reports a request rejected before any job was created.
// The HTTP layer maps it to a 400 response.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
