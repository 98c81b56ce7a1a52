package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Run one build pass over all collections",
	Long: `Discover, parse, validate, and aggregate every configured collection,
then write the collection data files, copied assets, and the entry manifest
into the output directory.

Examples:
  velite build                    # Build with the configured settings
  velite build --strict           # Any validation issue fails the build
  velite build --clean            # Empty the output directory first`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().Bool("strict", false, "Treat validation issues as fatal")
	buildCmd.Flags().Bool("clean", false, "Remove the output directory before building")
}

func runBuild(cmd *cobra.Command, args []string) error {
	// Both build and watch declare --strict, so the shared key must be bound
	// per invocation; binding at init time leaves it pointing at whichever
	// command registered last.
	viper.BindPFlag("strict", cmd.Flags().Lookup("strict"))

	a, err := newApp()
	if err != nil {
		return err
	}

	if clean, _ := cmd.Flags().GetBool("clean"); clean {
		if err := os.RemoveAll(a.cfg.Output.Dir); err != nil {
			return fmt.Errorf("cleaning output directory: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	aggregate, err := a.builder.Build(ctx, "")
	if err != nil {
		return err
	}

	a.logger.Info(ctx, "Build complete",
		"collections", len(aggregate),
		"output", a.cfg.Output.Dir,
		"duration", time.Since(start))
	return nil
}
