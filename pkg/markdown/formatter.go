// Package markdown renders transcription results as markdown documents
// and exports them to docx. Four styles are supported: simple (plain
// text), timestamped (inline timestamps per segment), detailed (per
// segment tables plus statistics), and srt_style (subtitle blocks in a
// fenced code block).
package markdown

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/GunnyMarc/verba/pkg/media"
	"github.com/GunnyMarc/verba/pkg/transcribe"
)

// Style selects the markdown layout.
type Style string

// Known styles.
const (
	StyleSimple      Style = "simple"
	StyleTimestamped Style = "timestamped"
	StyleDetailed    Style = "detailed"
	StyleSRT         Style = "srt_style"
)

// Styles lists all valid styles.
func Styles() []Style {
	return []Style{StyleSimple, StyleTimestamped, StyleDetailed, StyleSRT}
}

// IsValid checks if the Style is one of the known values.
func (s Style) IsValid() bool {
	switch s {
	case StyleSimple, StyleTimestamped, StyleDetailed, StyleSRT:
		return true
	default:
		return false
	}
}

// outputSuffix is appended to source file stems for generated documents.
const outputSuffix = "_verba"

// Formatter renders transcripts as markdown.
type Formatter struct {
	style    Style
	metadata bool
	now      func() time.Time
}

// NewFormatter creates a formatter. An unknown style falls back to
// timestamped.
func NewFormatter(style Style, includeMetadata bool) *Formatter {
	if !style.IsValid() {
		style = StyleTimestamped
	}
	return &Formatter{style: style, metadata: includeMetadata, now: time.Now}
}

// Format renders the transcription result. sourcePath names the original
// media file for the title; info is optional probe metadata.
func (f *Formatter) Format(result *transcribe.Result, sourcePath string, info *media.Info) string {
	switch f.style {
	case StyleSimple:
		return f.formatSimple(result, sourcePath, info)
	case StyleDetailed:
		return f.formatDetailed(result, sourcePath, info)
	case StyleSRT:
		return f.formatSRT(result, sourcePath, info)
	default:
		return f.formatTimestamped(result, sourcePath, info)
	}
}

func (f *Formatter) header(result *transcribe.Result, sourcePath string, info *media.Info) string {
	var b strings.Builder

	if sourcePath != "" {
		stem := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
		fmt.Fprintf(&b, "# Transcript: %s\n\n", stem)
	} else {
		b.WriteString("# Transcript\n\n")
	}

	if !f.metadata {
		return b.String()
	}

	b.WriteString("## Metadata\n\n")
	if sourcePath != "" {
		fmt.Fprintf(&b, "- **Source File:** `%s`\n", filepath.Base(sourcePath))
	}
	if info != nil {
		if info.Formatted != "" {
			fmt.Fprintf(&b, "- **Duration:** %s\n", info.Formatted)
		}
		if info.Format != "" {
			fmt.Fprintf(&b, "- **Format:** %s\n", info.Format)
		}
	}
	fmt.Fprintf(&b, "- **Language:** %s\n", result.Language)
	fmt.Fprintf(&b, "- **Model Used:** Whisper %s\n", result.Model)
	fmt.Fprintf(&b, "- **Word Count:** %d\n", result.WordCount())
	fmt.Fprintf(&b, "- **Segments:** %d\n", len(result.Segments))
	fmt.Fprintf(&b, "- **Transcribed:** %s\n\n", f.now().Format("2006-01-02 15:04:05"))
	return b.String()
}

func (f *Formatter) formatSimple(result *transcribe.Result, sourcePath string, info *media.Info) string {
	var b strings.Builder
	b.WriteString(f.header(result, sourcePath, info))
	b.WriteString("## Transcript\n\n")
	b.WriteString(result.Text)
	b.WriteString("\n")
	return b.String()
}

func (f *Formatter) formatTimestamped(result *transcribe.Result, sourcePath string, info *media.Info) string {
	var b strings.Builder
	b.WriteString(f.header(result, sourcePath, info))
	b.WriteString("## Transcript\n\n")
	for _, seg := range result.Segments {
		fmt.Fprintf(&b, "**[%s]** %s\n", seg.StartFormatted(), seg.Text)
	}
	return b.String()
}

func (f *Formatter) formatDetailed(result *transcribe.Result, sourcePath string, info *media.Info) string {
	var b strings.Builder
	b.WriteString(f.header(result, sourcePath, info))
	b.WriteString("## Transcript\n\n")

	for _, seg := range result.Segments {
		fmt.Fprintf(&b, "### Segment %d\n\n", seg.Index+1)
		b.WriteString("| Property | Value |\n|----------|-------|\n")
		fmt.Fprintf(&b, "| Start | %s |\n", seg.StartFormatted())
		fmt.Fprintf(&b, "| End | %s |\n", seg.EndFormatted())
		fmt.Fprintf(&b, "| Duration | %.2fs |\n\n", seg.End-seg.Start)
		fmt.Fprintf(&b, "> %s\n\n", seg.Text)
	}

	b.WriteString("## Statistics\n\n")
	b.WriteString("| Metric | Value |\n|--------|-------|\n")
	fmt.Fprintf(&b, "| Total Duration | %s |\n", humanDuration(result.Duration))
	fmt.Fprintf(&b, "| Total Words | %d |\n", result.WordCount())
	fmt.Fprintf(&b, "| Total Segments | %d |\n", len(result.Segments))
	if n := len(result.Segments); n > 0 {
		fmt.Fprintf(&b, "| Avg Words/Segment | %.1f |\n", float64(result.WordCount())/float64(n))
	}
	if result.Duration > 0 {
		fmt.Fprintf(&b, "| Words per Minute | %.0f |\n", float64(result.WordCount())/result.Duration*60)
	}
	b.WriteString("\n")
	return b.String()
}

func (f *Formatter) formatSRT(result *transcribe.Result, sourcePath string, info *media.Info) string {
	var b strings.Builder
	b.WriteString(f.header(result, sourcePath, info))
	b.WriteString("## Transcript (Subtitle Format)\n\n```srt\n")
	for _, seg := range result.Segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			seg.Index+1, srtTime(seg.Start), srtTime(seg.End), seg.Text)
	}
	b.WriteString("```\n")
	return b.String()
}

// srtTime renders seconds in SRT's HH:MM:SS,mmm form.
func srtTime(seconds float64) string {
	total := int(seconds)
	millis := int((seconds - float64(total)) * 1000)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", total/3600, (total%3600)/60, total%60, millis)
}

// humanDuration renders seconds as "1h 5m 3s" style text.
func humanDuration(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// OutputPath derives the markdown output path for a source file:
// {outputDir}/{stem}_verba.md. When outputDir is empty the source file's
// directory is used.
func OutputPath(sourcePath, outputDir string) string {
	stem := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	if outputDir == "" {
		outputDir = filepath.Dir(sourcePath)
	}
	return filepath.Join(outputDir, stem+outputSuffix+".md")
}

// Save writes the document, creating parent directories, and returns the
// absolute path.
func Save(content, outputPath string) (string, error) {
	abs, err := filepath.Abs(outputPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return "", err
	}
	return abs, nil
}
