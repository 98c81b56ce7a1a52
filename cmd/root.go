// Package cmd provides the velite command-line interface.
//
// Configuration is resolved from multiple sources with clear precedence:
//
//	1. Command-line flags (--config, --strict, etc.) - highest priority
//	2. VELITE_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (VELITE_ROOT, VELITE_OUTPUT_DIR, etc.)
//	4. Configuration file (.velite.yml) - lowest priority
package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "velite",
	Short: "Turn content files into type-safe data collections",
	Long: `Velite collects Markdown, YAML, JSON, and TOML files into named
collections, validates every record against its collection schema, and emits
the aggregated data as JSON artifacts.

Quick Start:
  velite build                    Run one build pass
  velite watch                    Rebuild on file changes
  velite build --strict           Fail the build on any validation issue

Configuration lives in .velite.yml; every setting can be overridden with a
VELITE_-prefixed environment variable.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .velite.yml, can also use VELITE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig wires viper to the config file and the VELITE_ environment
// variable namespace. A missing config file is not an error; defaults apply.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("VELITE_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".velite")
	}

	viper.SetEnvPrefix("VELITE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.ReadInConfig()
}
