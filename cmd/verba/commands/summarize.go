package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/GunnyMarc/verba/pkg/mediaexec"
)

// NewSummarizeCommand constructs the 'summarize' command: one-shot LLM
// summarization of a transcript file or stdin.
func NewSummarizeCommand() *cobra.Command {
	var (
		model        string
		instructions string
	)

	cmd := &cobra.Command{
		Use:     "summarize [file]",
		Short:   "Summarize a transcript with an LLM",
		GroupID: "media",
		Long: `Sends a transcript to the configured language model and prints the
summary. Reads the named file, or stdin when the argument is '-' or
omitted. Cloud models need an API key; local Ollama models do not.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readTranscript(args)
			if err != nil {
				return err
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
			if model != "" {
				settings[mediaexec.SettingModel] = model
			}
			if instructions != "" {
				settings[mediaexec.SettingInstructions] = instructions
			}

			job, err := service.SubmitSummarize(text, settings)
			if err != nil {
				return err
			}

			snap, err := follow(cmd.Context(), job, out)
			if err != nil {
				out.Error(err)
				return err
			}

			if summary, ok := snap.Result["summary"].(string); ok {
				out.Info(summary)
				if used, ok := snap.Result["model_used"].(string); ok {
					out.Info(fmt.Sprintf("Summary saved (model: %s)", used))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "Model name (e.g. 'llama3:latest', 'gpt-4o', 'claude-sonnet-4-5')")
	cmd.Flags().StringVar(&instructions, "instructions", "", "Custom summarization instructions")

	return cmd
}

func readTranscript(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	return string(data), nil
}
