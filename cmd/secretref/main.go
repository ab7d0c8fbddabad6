package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/systmms/secretref/cmd/secretref/commands"
	"github.com/systmms/secretref/internal/config"
	"github.com/systmms/secretref/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Global flags
	var (
		configFile string
		noColor    bool
		debug      bool
		expandEnv  bool
	)

	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:   "secretref",
		Short: "Resolve secret references in configuration documents",
		Long: `secretref resolves ${provider:name#version} references in YAML
configuration against the secret stores named in its secrets section.

Resolved output never shows secret values: every substituted scalar is
displayed as the reference it came from.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg.Path = configFile
			cfg.Logger = logging.New(debug, noColor)
			cfg.ExpandEnv = expandEnv
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "secretref.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&expandEnv, "expand-env", false, "Expand $VAR and ${VAR} in string values before resolving")

	rootCmd.AddCommand(
		commands.NewResolveCommand(cfg),
		commands.NewProvidersCommand(cfg),
		commands.NewTestCommand(cfg),
		commands.NewListCommand(cfg),
		commands.NewPutCommand(cfg),
		commands.NewWatchCommand(cfg),
	)

	return rootCmd.Execute()
}
