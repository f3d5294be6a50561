// Package config loads application configuration through a layered
// source chain: hardcoded defaults, an optional YAML file, VERBA_*
// environment variables, and command-line flags, in increasing priority.
package config

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Global Koanf instance, initialized once at startup.
var (
	k    *koanf.Koanf
	once sync.Once
)

// InitGlobalConfig initializes the global Koanf instance. Called early in
// the application lifecycle, before Load.
func InitGlobalConfig() {
	once.Do(func() {
		k = koanf.New(".")
	})
}

// Manager handles loading and accessing application configuration.
type Manager struct {
	koanfInstance *koanf.Koanf
	currentConfig Config
	mu            sync.RWMutex
}

// NewManager creates a config manager backed by the global Koanf instance.
func NewManager() *Manager {
	InitGlobalConfig()
	return &Manager{
		koanfInstance: k,
	}
}

// DefaultConfig returns the baseline configuration used when no other
// source overrides a value.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
		Server: ServerConfig{
			Addr:         "127.0.0.1",
			Port:         8343,
			Workers:      3,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0, // SSE streams must not be cut off
		},
		Whisper: WhisperConfig{
			Binary:    "whisper-cli",
			ModelPath: "",
			Language:  "auto",
		},
		Summarize: SummarizeConfig{
			Model:         "llama3:latest",
			OllamaBaseURL: "http://localhost:11434",
		},
		Media: MediaConfig{
			TempDir:         "",
			OutputDir:       "output",
			WatchDir:        "",
			KeepConverted:   false,
			MarkdownStyle:   "timestamped",
			IncludeMetadata: true,
		},
		Retention: RetentionConfig{
			MaxJobs:       200,
			MaxAge:        24 * time.Hour,
			SweepInterval: 5 * time.Minute,
		},
		Keystore: KeystoreConfig{
			Dir: "",
		},
	}
}

// Load loads configuration from the default source chain.
//
// Configuration precedence (highest to lowest):
//  1. Command-line flags (--log.level=debug)
//  2. Environment variables (VERBA_LOG_LEVEL=debug)
//  3. Config file (YAML)
//  4. Default values
func (m *Manager) Load(flags *pflag.FlagSet, configFilePath string) error {
	debug := false
	if flags != nil {
		if f := flags.Lookup("debug"); f != nil && f.Value.String() == "true" {
			debug = true
		}
	}
	return m.LoadWithSources(DefaultSources(configFilePath, flags, debug))
}

// LoadWithSources loads configuration from the given sources in priority
// order. Lower priority sources load first; higher priority sources
// override their values.
func (m *Manager) LoadWithSources(sources []ConfigSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sort.Slice(sources, func(i, j int) bool {
		return sources[i].Priority() < sources[j].Priority()
	})

	for _, src := range sources {
		if err := src.Load(m.koanfInstance); err != nil {
			return fmt.Errorf("error loading config from %s: %w", src.Name(), err)
		}
	}

	var newCfg Config
	if err := m.koanfInstance.UnmarshalWithConf("", &newCfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fmt.Errorf("error unmarshaling final config: %w", err)
	}
	m.currentConfig = newCfg
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentConfig
}

// GetValue retrieves a configuration value by key path, e.g.
// GetValue("whisper.model_path"). Returns nil for unknown keys.
func (m *Manager) GetValue(key string) any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.koanfInstance.Get(key)
}

// DefaultConfigAsMap flattens DefaultConfig for koanf's confmap provider
// so every key exists in the merged tree.
func DefaultConfigAsMap() map[string]any {
	def := DefaultConfig()
	return map[string]any{
		"log.level":  def.Log.Level,
		"log.format": def.Log.Format,
		"log.file":   def.Log.File,

		"server.addr":          def.Server.Addr,
		"server.port":          def.Server.Port,
		"server.workers":       def.Server.Workers,
		"server.read_timeout":  def.Server.ReadTimeout,
		"server.write_timeout": def.Server.WriteTimeout,

		"whisper.binary":     def.Whisper.Binary,
		"whisper.model_path": def.Whisper.ModelPath,
		"whisper.language":   def.Whisper.Language,

		"summarize.model":             def.Summarize.Model,
		"summarize.ollama_base_url":   def.Summarize.OllamaBaseURL,
		"summarize.instructions_file": def.Summarize.InstructionsFile,

		"media.temp_dir":         def.Media.TempDir,
		"media.output_dir":       def.Media.OutputDir,
		"media.watch_dir":        def.Media.WatchDir,
		"media.keep_converted":   def.Media.KeepConverted,
		"media.markdown_style":   def.Media.MarkdownStyle,
		"media.include_metadata": def.Media.IncludeMetadata,

		"retention.max_jobs":       def.Retention.MaxJobs,
		"retention.max_age":        def.Retention.MaxAge,
		"retention.sweep_interval": def.Retention.SweepInterval,

		"keystore.dir": def.Keystore.Dir,
	}
}

// BindFlags defines command-line flags corresponding to configuration
// settings. Called when setting up Cobra commands.
func BindFlags(flags *pflag.FlagSet) {
	var flagvar bool
	flags.BoolVar(&flagvar, "debug", false, "Enable debug logging")
}
