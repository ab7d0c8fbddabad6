package commands

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/systmms/secretref/internal/config"
	dserrors "github.com/systmms/secretref/internal/errors"
	"github.com/systmms/secretref/internal/logging"
	"github.com/systmms/secretref/internal/redact"
	"github.com/systmms/secretref/internal/resolve"
)

// loadConfig loads the documents named on the command line, falling back to
// the --config path. The first file is the main document.
func loadConfig(cfg *config.Config, files []string) error {
	if len(files) > 0 {
		cfg.Path = files[0]
		cfg.Extra = files[1:]
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New(false, true)
	}
	return cfg.Load()
}

func newEngine(cfg *config.Config, opts ...resolve.Option) *resolve.Engine {
	opts = append([]resolve.Option{resolve.WithLogger(cfg.Logger)}, opts...)
	return resolve.New(cfg.Document.Secrets, opts...)
}

// providerArg picks the provider identifier from args, or default_provider
// when none was given.
func providerArg(cfg *config.Config, args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if id := cfg.Document.Secrets.DefaultProvider; id != "" {
		return id, nil
	}
	return "", dserrors.UserError{
		Message:    "No provider given",
		Suggestion: "Pass a provider identifier or set secrets.default_provider",
	}
}

// printFailures writes the failure table of a snapshot.
func printFailures(out io.Writer, snap *redact.Snapshot) {
	if len(snap.Failures) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out, "\nFailures:")
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "PATH\tREFERENCE\tKIND\tDETAIL\n")
	_, _ = fmt.Fprintf(w, "----\t---------\t----\t------\n")
	for _, f := range snap.Failures {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.Path, f.Reference, f.Kind, f.Detail)
	}
	_ = w.Flush()
}

func printSummary(out io.Writer, stats resolve.Stats, failures int) {
	_, _ = fmt.Fprintf(out, "\nSummary: %d references, %d secrets, %d cache hits, %d fetches, %d failures\n",
		stats.References, stats.Keys, stats.CacheHits, stats.Fetches, failures)
	if stats.StaleFallbacks > 0 {
		_, _ = fmt.Fprintf(out, "  %d served from stale cache entries\n", stats.StaleFallbacks)
	}
}
