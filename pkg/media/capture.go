package media

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/GunnyMarc/verba/pkg/execx"
	"github.com/GunnyMarc/verba/pkg/pipeline"
)

// durationPattern matches h/m/s component strings like "1h30m" or "2h15m30s".
var durationPattern = regexp.MustCompile(`(?i)^(?:(\d+)h)?(?:(\d+)m)?(?:(\d+(?:\.\d+)?)s)?$`)

// ParseDuration parses a capture duration. Plain numbers are seconds
// ("90", "90.5"); otherwise h/m/s components are accepted ("5m", "1h",
// "1h30m", "2h15m30s").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("duration must be positive: %q", s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}

	m := durationPattern.FindStringSubmatch(s)
	if m == nil || (m[1] == "" && m[2] == "" && m[3] == "") {
		return 0, fmt.Errorf("invalid duration %q: use seconds (60), minutes (5m), hours (1h), or combos (1h30m)", s)
	}

	var total float64
	if m[1] != "" {
		h, _ := strconv.Atoi(m[1])
		total += float64(h) * 3600
	}
	if m[2] != "" {
		min, _ := strconv.Atoi(m[2])
		total += float64(min) * 60
	}
	if m[3] != "" {
		secs, _ := strconv.ParseFloat(m[3], 64)
		total += secs
	}
	if total <= 0 {
		return 0, fmt.Errorf("duration must be positive: %q", s)
	}
	return time.Duration(total * float64(time.Second)), nil
}

var (
	unsafeChars = regexp.MustCompile(`[^\w\-.]`)
	underscores = regexp.MustCompile(`_+`)
)

// SanitizeURLName derives a filesystem-safe filename stem from a stream
// URL: the last meaningful path segment with its extension stripped, or
// the hostname when the path is empty.
func SanitizeURLName(rawURL string) string {
	name := "stream"
	if u, err := url.Parse(rawURL); err == nil {
		path := strings.TrimRight(u.Path, "/")
		if path != "" {
			base := filepath.Base(path)
			if stem := strings.TrimSuffix(base, filepath.Ext(base)); stem != "" {
				name = stem
			} else {
				name = base
			}
		} else if u.Hostname() != "" {
			name = u.Hostname()
		}
	}

	name = unsafeChars.ReplaceAllString(name, "_")
	name = underscores.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		name = "stream"
	}
	return name
}

// CaptureInfo records metadata about a completed capture.
type CaptureInfo struct {
	URL        string        `json:"url"`
	OutputPath string        `json:"output_path"`
	Requested  time.Duration `json:"-"`
	Elapsed    time.Duration `json:"-"`
	FileSize   int64         `json:"file_size"`
}

// Capturer records audio from streaming URLs via ffmpeg.
type Capturer struct {
	runner  execx.Runner
	tempDir string
	logger  zerolog.Logger
}

// NewCapturer creates a capturer that writes WAV files to tempDir (the
// system temp directory when empty).
func NewCapturer(runner execx.Runner, tempDir string) *Capturer {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Capturer{
		runner:  runner,
		tempDir: tempDir,
		logger:  log.With().Str("component", "media").Logger(),
	}
}

// Verify checks that ffmpeg is installed and runnable.
func (c *Capturer) Verify(ctx context.Context) error {
	return verifyFFmpeg(ctx, c.runner)
}

// Probe fetches stream metadata with a bounded timeout. Probing a live
// stream is best effort: on timeout or failure it returns a minimal Info
// and the capture proceeds without metadata.
func (c *Capturer) Probe(ctx context.Context, rawURL string) *Info {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	info, err := probe(probeCtx, c.runner, rawURL, "capture")
	if err != nil {
		c.logger.Debug().Err(err).Str("url", rawURL).Msg("Stream probe failed, proceeding without metadata")
		return &Info{}
	}
	return info
}

// Capture records audio from a stream URL into a whisper-compatible WAV.
// A zero duration captures until the stream ends or ctx is canceled; a
// canceled capture that produced usable audio is kept rather than
// discarded. The returned path is a new intermediate the caller owns.
func (c *Capturer) Capture(ctx context.Context, rawURL string, duration time.Duration) (string, *CaptureInfo, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return "", nil, pipeline.NewStageError(pipeline.KindInvalidInput, "capture",
			fmt.Sprintf("invalid stream URL: %s", rawURL), err)
	}

	out := filepath.Join(c.tempDir, SanitizeURLName(rawURL)+"_capture.wav")

	args := []string{
		"-hide_banner", "-nostdin",
		"-i", rawURL,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprint(whisperSampleRate),
		"-ac", fmt.Sprint(whisperChannels),
	}
	if duration > 0 {
		args = append(args, "-t", strconv.FormatFloat(duration.Seconds(), 'f', -1, 64))
	}
	args = append(args, "-y", out)

	start := time.Now()
	res, runErr := c.runner.Run(ctx, "ffmpeg", args...)
	elapsed := time.Since(start)

	// ffmpeg exits non-zero when the context kills it mid-stream; keep
	// the partial file if it holds more than a bare WAV header.
	st, statErr := os.Stat(out)
	if statErr != nil {
		return "", nil, pipeline.NewStageError(pipeline.KindToolFailed, "capture",
			fmt.Sprintf("stream capture produced no output: %s", tailLines(res.Stderr, 3)), runErr)
	}
	if st.Size() < 100 {
		os.Remove(out)
		return "", nil, pipeline.NewStageError(pipeline.KindToolFailed, "capture",
			"stream capture produced an empty audio file", runErr)
	}

	info := &CaptureInfo{
		URL:        rawURL,
		OutputPath: out,
		Requested:  duration,
		Elapsed:    elapsed,
		FileSize:   st.Size(),
	}
	c.logger.Info().Str("url", rawURL).Int64("bytes", st.Size()).Dur("elapsed", elapsed).Msg("Stream capture finished")
	return out, info, nil
}
