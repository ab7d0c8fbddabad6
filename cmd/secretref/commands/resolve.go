package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/systmms/secretref/internal/config"
	"github.com/systmms/secretref/internal/redact"
)

func NewResolveCommand(cfg *config.Config) *cobra.Command {
	var (
		strict     bool
		timeout    time.Duration
		jsonOutput bool
		required   []string
	)

	cmd := &cobra.Command{
		Use:   "resolve [files...]",
		Short: "Resolve secret references and print the redacted result",
		Long: `Resolve every ${provider:name#version} reference in the given documents.

The first file is the main document and holds the secrets section. Further
files are mounted under their file name, so one pass resolves all of them.

The output is the resolved configuration with each secret shown as the
reference it came from, followed by a table of references that could not
be resolved.

Examples:
  # Resolve the default config file
  secretref resolve

  # Resolve an application config plus an auth profile
  secretref resolve app.yaml profiles/prod.yaml

  # Fail unless everything resolves within five seconds
  secretref resolve --strict --timeout 5s

  # Fail only when a path the application needs is unresolved
  secretref resolve --require database --require api.key`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cfg, args); err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			res, err := newEngine(cfg).ResolveAll(ctx, cfg.Document.Tree)
			if err != nil {
				return err
			}

			snap := redact.New(res)
			out := cmd.OutOrStdout()
			if jsonOutput {
				data, err := snap.JSON()
				if err != nil {
					return fmt.Errorf("failed to encode JSON: %w", err)
				}
				_, _ = fmt.Fprintln(out, string(data))
			} else {
				data, err := snap.ConfigYAML()
				if err != nil {
					return fmt.Errorf("failed to encode YAML: %w", err)
				}
				_, _ = out.Write(data)
				printFailures(out, snap)
				printSummary(out, res.Stats, len(res.Failures))
			}

			if strict {
				return res.Err()
			}
			return res.Require(required...)
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero if any reference is unresolved")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Deadline for the whole pass (default: resolve_timeout_ms)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the snapshot with provenance as JSON")
	cmd.Flags().StringArrayVar(&required, "require", nil, "Configuration path that must resolve (repeatable)")

	return cmd
}
