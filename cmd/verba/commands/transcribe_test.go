package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GunnyMarc/verba/pkg/jobs"
)

func TestIsVideoFile(t *testing.T) {
	assert.True(t, isVideoFile("talk.mp4"))
	assert.True(t, isVideoFile("TALK.MKV"))
	assert.False(t, isVideoFile("interview.mp3"))
	assert.False(t, isVideoFile("notes.txt"))
}

func TestBatchKind(t *testing.T) {
	kind, err := batchKind([]string{"a.mp3", "b.wav"})
	require.NoError(t, err)
	assert.Equal(t, jobs.KindAudio, kind)

	kind, err = batchKind([]string{"a.mp4", "b.mkv"})
	require.NoError(t, err)
	assert.Equal(t, jobs.KindVideo, kind)

	_, err = batchKind([]string{"a.mp3", "b.mp4"})
	require.Error(t, err)
}

func TestReadTranscript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.md")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	text, err := readTranscript([]string{path})
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)

	_, err = readTranscript([]string{filepath.Join(t.TempDir(), "missing.md")})
	require.Error(t, err)
}

func TestNewCommand_Subcommands(t *testing.T) {
	cmd := NewCommand()

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["transcribe"])
	assert.True(t, names["summarize"])
	assert.True(t, names["version"])
}
