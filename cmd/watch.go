package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/git-create-devben/velite/internal/rebuild"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"w", "dev"},
	Short:   "Build once, then rebuild on file changes",
	Long: `Run an initial build and keep watching the content root. Edits trigger an
incremental pass that only re-resolves the affected collections; a change to
the configuration file reloads everything from scratch.

Examples:
  velite watch                    # Watch with the configured settings
  velite watch --strict           # Failed validation fails each pass`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().Bool("strict", false, "Treat validation issues as fatal")
}

func runWatch(cmd *cobra.Command, args []string) error {
	// See runBuild: the shared --strict key is bound per invocation.
	viper.BindPFlag("strict", cmd.Flags().Lookup("strict"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Each config change tears the stack down and rebuilds it, since the
	// collection declarations themselves may have changed.
	for {
		a, err := newApp()
		if err != nil {
			return err
		}

		coordinator := rebuild.New(a.cfg, a.builder, a.docs, a.resCache, a.logger)
		err = coordinator.Run(ctx)
		switch {
		case errors.Is(err, rebuild.ErrConfigChanged):
			a.logger.Info(ctx, "Configuration changed, reloading", "file", a.cfg.File)
			if err := viper.ReadInConfig(); err != nil {
				return err
			}
		case errors.Is(err, context.Canceled):
			return nil
		default:
			return err
		}
	}
}
