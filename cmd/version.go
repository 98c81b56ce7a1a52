package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/git-create-devben/velite/internal/version"
)

var (
	versionFormat string
	versionShort  bool
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display version information including the semantic version, git commit,
build timestamp, Go version, and target platform.

Examples:
  velite version                # Show version
  velite version --short        # Version string only
  velite version --format json  # Output as JSON`,
	RunE: runVersionCommand,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVarP(&versionFormat, "format", "f", "text", "Output format (text, json)")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show short version only")
}

func runVersionCommand(cmd *cobra.Command, args []string) error {
	switch versionFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(version.Get())
	case "text":
		if versionShort {
			fmt.Println(version.Short())
			return nil
		}
		info := version.Get()
		fmt.Printf("velite %s", version.Short())
		if info.Dirty {
			fmt.Print(" (dirty)")
		}
		fmt.Println()
		if !info.BuildTime.IsZero() {
			fmt.Printf("Built: %s\n", info.BuildTime.Format(time.RFC3339))
		}
		fmt.Printf("Go: %s\n", info.GoVersion)
		fmt.Printf("Platform: %s\n", info.Platform)
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json)", versionFormat)
	}
}
