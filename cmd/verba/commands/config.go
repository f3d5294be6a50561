package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewConfigCommand constructs the 'config' command, which prints the
// resolved configuration after defaults, file, environment, and flags
// have been merged.
func NewConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "config",
		Short:   "Print the resolved configuration",
		GroupID: "core",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := appConfig(cmd)
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshal configuration: %w", err)
			}
			fmt.Print(string(data))
			return nil
		},
	}
}
