package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/GunnyMarc/verba/pkg/config"
	"github.com/GunnyMarc/verba/pkg/output"
	"github.com/GunnyMarc/verba/pkg/output/subscribers"
)

const cliExecutable = "verba"

type contextKey string

const configKey contextKey = "config"

// NewCommand constructs the top-level verba CLI command, wiring global
// flags, configuration loading, and the output pipeline.
func NewCommand() *cobra.Command {
	var (
		configFile     string
		verbosityCount int
		verbose        bool
		jsonOutput     bool
		noColor        bool
	)

	cmd := &cobra.Command{
		Use:   cliExecutable,
		Short: "Verba transcribes and summarizes audio, video, and live streams",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			manager := config.NewManager()
			if err := manager.Load(cmd.Flags(), configFile); err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			cfg := manager.Get()

			// Configure global log level based on verbosity flags
			// If explicit --verbose is set, show debug and above
			// Else use -v count: 0=>Error, 1=>Info, 2+=>Debug
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				switch {
				case verbosityCount <= 0:
					zerolog.SetGlobalLevel(zerolog.ErrorLevel)
				case verbosityCount == 1:
					zerolog.SetGlobalLevel(zerolog.InfoLevel)
				default:
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
			}

			stream := output.NewOutputEventStream()
			if jsonOutput {
				stream.Subscribe(subscribers.NewJSONFormatter(os.Stdout))
			} else {
				stream.Subscribe(subscribers.NewHumanFormatter(os.Stdout, os.Stderr, !noColor))
			}
			out := output.NewDefaultOutput(stream)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = context.WithValue(ctx, configKey, cfg)
			ctx = context.WithValue(ctx, output.OutputKey, out)
			cmd.SetContext(ctx)
			if root := cmd.Root(); root != nil && root != cmd {
				root.SetContext(ctx)
			}
			return nil
		},
	}

	cmd.SilenceUsage = true

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	cmd.PersistentFlags().CountVarP(&verbosityCount, "verbosity", "v", "Increase logging verbosity (repeatable)")
	cmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose logging (shows service layer logs)")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON output")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	config.BindFlags(cmd.PersistentFlags())

	cmd.AddGroup(&cobra.Group{ID: "media", Title: "Media Commands"})
	cmd.AddGroup(&cobra.Group{ID: "core", Title: "Core Commands"})

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewTranscribeCommand())
	cmd.AddCommand(NewSummarizeCommand())
	cmd.AddCommand(NewConfigCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// appConfig pulls the loaded configuration out of the command context.
func appConfig(cmd *cobra.Command) config.Config {
	if cfg, ok := cmd.Context().Value(configKey).(config.Config); ok {
		return cfg
	}
	return config.DefaultConfig()
}

// appOutput pulls the output pipeline out of the command context.
func appOutput(cmd *cobra.Command) output.Output {
	if out, ok := cmd.Context().Value(output.OutputKey).(output.Output); ok {
		return out
	}
	return output.NewDefaultOutput(output.NewOutputEventStream())
}
