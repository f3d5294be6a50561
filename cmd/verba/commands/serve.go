package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/GunnyMarc/verba/pkg/hook"
	"github.com/GunnyMarc/verba/pkg/server/app"
)

// NewServeCommand constructs the 'serve' command, which runs the HTTP job
// server until interrupted.
func NewServeCommand() *cobra.Command {
	var (
		addr     string
		port     int
		watchDir string
	)

	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the transcription job server",
		GroupID: "core",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := appConfig(cmd)
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			if watchDir != "" {
				cfg.Media.WatchDir = watchDir
			}

			application, err := app.New(&cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			hooks := hook.NewManager()
			hooks.Register("shutdown", func(context.Context) { cancel() })

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				for sig := range sigCh {
					if hooks.IsTriggered("shutdown") {
						log.Warn().Str("signal", sig.String()).Msg("Forced exit")
						os.Exit(1)
					}
					log.Info().Str("signal", sig.String()).Msg("Shutdown requested")
					hooks.Trigger(ctx, "shutdown")
				}
			}()

			return application.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "Listen port (overrides config)")
	cmd.Flags().StringVar(&watchDir, "watch-dir", "", "Auto-submit media files dropped into this directory")

	return cmd
}
