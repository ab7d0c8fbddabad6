package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"reflect"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/systmms/secretref/internal/cache"
	"github.com/systmms/secretref/internal/config"
	"github.com/systmms/secretref/internal/logging"
	"github.com/systmms/secretref/internal/metrics"
	"github.com/systmms/secretref/internal/redact"
	"github.com/systmms/secretref/internal/resolve"
)

const reloadDebounce = 500 * time.Millisecond

func NewWatchCommand(cfg *config.Config) *cobra.Command {
	var (
		metricsAddr string
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch [files...]",
		Short: "Re-resolve whenever the configuration changes",
		Long: `Resolve the given documents, then keep running: every change to one of
the files triggers a new pass, and SIGHUP drops all cached secrets before
resolving again.

Values stay cached across passes for their provider's TTL. When the secrets
section itself changes, the cache is cleared.

Examples:
  secretref watch app.yaml
  secretref watch --metrics-addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if cfg.Logger == nil {
				cfg.Logger = logging.New(false, true)
			}

			w := newWatcher(cfg, args, cmd.OutOrStdout())
			w.timeout = timeout

			if metricsAddr != "" {
				srv := metrics.NewServer(metrics.ServerConfig{
					Addr:         metricsAddr,
					Path:         "/metrics",
					ReadTimeout:  5 * time.Second,
					WriteTimeout: 10 * time.Second,
				}, cfg.Logger)
				if err := srv.Start(); err != nil {
					return fmt.Errorf("failed to start metrics server: %w", err)
				}
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Stop(shutdownCtx)
				}()
				cfg.Logger.Info("Serving metrics on http://%s/metrics", srv.Addr())
			}

			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)

			return w.Run(ctx, hup)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Deadline for each pass (default: resolve_timeout_ms)")

	return cmd
}

// watcher owns one engine and its cache across resolution passes.
type watcher struct {
	cfg     *config.Config
	files   []string
	out     io.Writer
	timeout time.Duration

	cache   *cache.Cache
	metrics *metrics.ResolutionMetrics
	engine  *resolve.Engine
	secrets config.SecretsConfig

	passes int
}

func newWatcher(cfg *config.Config, files []string, out io.Writer) *watcher {
	m := metrics.NewResolutionMetrics()
	return &watcher{
		cfg:     cfg,
		files:   files,
		out:     out,
		cache:   cache.New(cache.WithMetrics(m)),
		metrics: m,
	}
}

// reload loads the documents again. The previous document and engine stay in
// use if loading fails. A changed secrets section replaces the engine and
// clears the cache.
func (w *watcher) reload() error {
	if err := loadConfig(w.cfg, w.files); err != nil {
		return err
	}
	secrets := w.cfg.Document.Secrets
	if w.engine != nil && reflect.DeepEqual(secrets, w.secrets) {
		return nil
	}
	if w.engine != nil {
		w.cfg.Logger.Info("Provider settings changed, clearing cached secrets")
		w.cache.Clear()
	}
	w.secrets = secrets
	w.engine = newEngine(w.cfg, resolve.WithCache(w.cache), resolve.WithMetrics(w.metrics))
	return nil
}

// resolve runs one pass over the current document and reports it.
func (w *watcher) resolve(ctx context.Context) (*resolve.Result, error) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	res, err := w.engine.ResolveAll(ctx, w.cfg.Document.Tree)
	if err != nil {
		return nil, err
	}
	w.passes++

	snap := redact.New(res)
	_, _ = fmt.Fprintf(w.out, "[%s] pass %d\n", time.Now().Format(time.RFC3339), w.passes)
	printFailures(w.out, snap)
	printSummary(w.out, res.Stats, len(res.Failures))
	return res, nil
}

// watchPaths returns the absolute paths of the watched documents.
func (w *watcher) watchPaths() map[string]bool {
	paths := append([]string{w.cfg.Path}, w.cfg.Extra...)
	out := make(map[string]bool, len(paths))
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			out[abs] = true
		}
	}
	return out
}

// Run resolves once and then waits for file changes or SIGHUP until ctx is
// done. It watches the parent directories of the documents.
func (w *watcher) Run(ctx context.Context, hup <-chan os.Signal) error {
	if err := w.reload(); err != nil {
		return err
	}
	if _, err := w.resolve(ctx); err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	watched := w.watchPaths()
	dirs := make(map[string]bool)
	for p := range watched {
		dir := filepath.Dir(p)
		if dirs[dir] {
			continue
		}
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		dirs[dir] = true
	}
	w.cfg.Logger.Info("Watching %d file(s) for changes", len(watched))

	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			abs, _ := filepath.Abs(event.Name)
			if !watched[abs] {
				continue
			}
			w.cfg.Logger.Debug("Change detected in %s", abs)
			debounce.Reset(reloadDebounce)

		case <-debounce.C:
			if err := w.reload(); err != nil {
				w.cfg.Logger.Error("Reload failed, keeping previous configuration: %v", err)
				continue
			}
			if _, err := w.resolve(ctx); err != nil {
				w.cfg.Logger.Error("Resolution failed: %v", err)
			}

		case <-hup:
			w.cfg.Logger.Info("SIGHUP received, clearing cached secrets")
			w.engine.ClearCache()
			if _, err := w.resolve(ctx); err != nil {
				w.cfg.Logger.Error("Resolution failed: %v", err)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.cfg.Logger.Warn("File watcher error: %v", err)
		}
	}
}
