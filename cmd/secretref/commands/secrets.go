package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/systmms/secretref/internal/config"
	dserrors "github.com/systmms/secretref/internal/errors"
)

func NewTestCommand(cfg *config.Config) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "test [provider]",
		Short: "Check connectivity and credentials of a provider",
		Long: `Check that a configured provider can be reached with the configured
credentials. Without an argument the default provider is tested; --all
tests every configured provider.

Examples:
  secretref test gcp
  secretref test --all`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cfg, nil); err != nil {
				return err
			}

			var ids []string
			if all {
				ids = cfg.Document.Secrets.ProviderIDs()
			} else {
				id, err := providerArg(cfg, args)
				if err != nil {
					return err
				}
				ids = []string{id}
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			engine := newEngine(cfg)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintf(w, "PROVIDER\tTYPE\tSTATUS\tDETAIL\n")
			_, _ = fmt.Fprintf(w, "--------\t----\t------\t------\n")
			failed := 0
			for _, id := range ids {
				ok, detail := engine.TestProvider(ctx, id)
				status := "✓ ok"
				if !ok {
					status = "✗ failed"
					failed++
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", id, cfg.Document.Secrets.Providers[id].Type, status, detail)
			}
			_ = w.Flush()

			if failed > 0 {
				return dserrors.UserError{
					Message:    fmt.Sprintf("%d of %d provider(s) failed the connectivity check", failed, len(ids)),
					Suggestion: "Check credentials and network access, or run with --debug for details",
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Test every configured provider")

	return cmd
}

func NewListCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [provider]",
		Short: "List secret names in a provider",
		Long: `List the names of secrets a provider holds. Values are never printed.
Without an argument the default provider is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cfg, nil); err != nil {
				return err
			}
			id, err := providerArg(cfg, args)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			names, err := newEngine(cfg).List(ctx, id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, name := range names {
				_, _ = fmt.Fprintln(out, name)
			}
			cfg.Logger.Debug("%d secret(s) in %s", len(names), id)
			return nil
		},
	}

	return cmd
}

func NewPutCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put [provider] <name>",
		Short: "Store a secret value read from stdin",
		Long: `Store a new value for a secret. The value is read from standard input
so it never appears in shell history; one trailing newline is removed.
Without a provider argument the default provider is used.

Examples:
  printf '%s' "$PASSWORD" | secretref put gcp db-password
  secretref put api-key < key.txt`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cfg, nil); err != nil {
				return err
			}

			var providerArgs []string
			name := args[len(args)-1]
			if len(args) == 2 {
				providerArgs = args[:1]
			}
			id, err := providerArg(cfg, providerArgs)
			if err != nil {
				return err
			}

			value, err := readValue(cmd.InOrStdin())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			engine := newEngine(cfg)
			if err := engine.Put(ctx, id, name, value); err != nil {
				return err
			}
			engine.ClearCache()
			return nil
		},
	}

	return cmd
}

// readValue reads a secret from r, dropping one trailing newline.
func readValue(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read value from stdin: %w", err)
	}
	value := strings.TrimSuffix(string(data), "\n")
	value = strings.TrimSuffix(value, "\r")
	if value == "" {
		return "", dserrors.UserError{
			Message:    "No value given on stdin",
			Suggestion: "Pipe the secret value into the command",
		}
	}
	return value, nil
}
