package config

import "time"

// Config is the root application configuration.
type Config struct {
	Log       LogConfig       `koanf:"log"`
	Server    ServerConfig    `koanf:"server"`
	Whisper   WhisperConfig   `koanf:"whisper"`
	Summarize SummarizeConfig `koanf:"summarize"`
	Media     MediaConfig     `koanf:"media"`
	Retention RetentionConfig `koanf:"retention"`
	Keystore  KeystoreConfig  `koanf:"keystore"`
}

// LogConfig controls logging behavior.
type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text, json
	File   string `koanf:"file"`   // empty for stderr
}

// ServerConfig controls the HTTP server and job execution.
type ServerConfig struct {
	Addr         string        `koanf:"addr"`
	Port         int           `koanf:"port"`
	Workers      int           `koanf:"workers"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// WhisperConfig controls the transcription backend.
type WhisperConfig struct {
	Binary    string `koanf:"binary"`
	ModelPath string `koanf:"model_path"`
	Language  string `koanf:"language"` // "auto" for detection
}

// SummarizeConfig controls the LLM summarization backend.
type SummarizeConfig struct {
	Model            string `koanf:"model"`
	OllamaBaseURL    string `koanf:"ollama_base_url"`
	InstructionsFile string `koanf:"instructions_file"`
}

// MediaConfig controls input handling and output rendering.
type MediaConfig struct {
	TempDir         string `koanf:"temp_dir"`
	OutputDir       string `koanf:"output_dir"`
	WatchDir        string `koanf:"watch_dir"`
	KeepConverted   bool   `koanf:"keep_converted"`
	MarkdownStyle   string `koanf:"markdown_style"`
	IncludeMetadata bool   `koanf:"include_metadata"`
}

// RetentionConfig bounds the in-memory job registry.
type RetentionConfig struct {
	MaxJobs       int           `koanf:"max_jobs"`
	MaxAge        time.Duration `koanf:"max_age"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// KeystoreConfig locates the encrypted API key store.
type KeystoreConfig struct {
	Dir string `koanf:"dir"`
}
