// Package resolve replaces secret references in a configuration tree with
// values fetched from providers.
//
// A pass walks the tree once, deduplicates references across all branches,
// serves fresh values from the cache and fetches the rest concurrently. A
// reference that cannot be resolved fails only the scalars that use it; the
// rest of the tree is returned resolved alongside the list of failures.
package resolve

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/systmms/secretref/internal/cache"
	"github.com/systmms/secretref/internal/config"
	dserrors "github.com/systmms/secretref/internal/errors"
	"github.com/systmms/secretref/internal/logging"
	"github.com/systmms/secretref/internal/metrics"
	"github.com/systmms/secretref/internal/providers"
	"github.com/systmms/secretref/internal/reference"
	"github.com/systmms/secretref/internal/tree"
	"github.com/systmms/secretref/pkg/provider"
)

// Engine resolves configuration trees. It is safe for concurrent use; passes
// running at the same time share the cache and coalesce fetches of the same
// key.
type Engine struct {
	secrets  config.SecretsConfig
	registry *providers.Registry
	cache    *cache.Cache
	logger   *logging.Logger
	metrics  *metrics.ResolutionMetrics

	mu    sync.Mutex
	slots map[string]*slot
}

// slot is one configured provider, created on first use. A creation error is
// kept so every later reference fails the same way without retrying.
type slot struct {
	id   string
	cfg  config.ProviderConfig
	once sync.Once
	p    provider.Provider
	err  error
	sem  chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithRegistry sets the table providers are created from.
func WithRegistry(r *providers.Registry) Option {
	return func(e *Engine) {
		e.registry = r
	}
}

// WithCache shares a cache between engines or hands a test its own.
func WithCache(c *cache.Cache) Option {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.ResolutionMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithProvider installs a ready provider instance under id instead of
// creating one from the registry. The id counts as configured even if the
// secrets section does not name it.
func WithProvider(id string, p provider.Provider) Option {
	return func(e *Engine) {
		s := e.newSlot(id, e.secrets.Providers[id])
		s.once.Do(func() { s.p = p })
		e.slots[id] = s
	}
}

// New creates an engine for the given secrets section.
func New(secrets config.SecretsConfig, opts ...Option) *Engine {
	e := &Engine{
		secrets: secrets,
		logger:  logging.Discard(),
		metrics: metrics.NewResolutionMetrics(),
		slots:   make(map[string]*slot),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.Discard()
	}
	if e.registry == nil {
		e.registry = providers.NewRegistry()
	}
	if e.cache == nil {
		e.cache = cache.New(cache.WithMetrics(e.metrics))
	}
	return e
}

func (e *Engine) newSlot(id string, cfg config.ProviderConfig) *slot {
	s := &slot{id: id, cfg: cfg}
	if e.secrets.MaxConcurrency > 0 {
		s.sem = make(chan struct{}, e.secrets.MaxConcurrency)
	}
	return s
}

// provider returns the slot for id, or nil when id is neither configured
// nor installed.
func (e *Engine) provider(id string) *slot {
	e.mu.Lock()
	s, ok := e.slots[id]
	if !ok {
		cfg, configured := e.secrets.Providers[id]
		if !configured {
			e.mu.Unlock()
			return nil
		}
		s = e.newSlot(id, cfg)
		e.slots[id] = s
	}
	e.mu.Unlock()

	s.once.Do(func() {
		s.p, s.err = e.registry.CreateProvider(id, s.cfg, e.logger)
		if s.err != nil {
			e.logger.Warn("Provider %s unavailable: %v", id, s.err)
		}
	})
	return s
}

// Providers returns the configured provider identifiers, sorted.
func (e *Engine) Providers() []string {
	ids := e.secrets.ProviderIDs()
	e.mu.Lock()
	for id := range e.slots {
		if _, ok := e.secrets.Providers[id]; !ok {
			ids = append(ids, id)
		}
	}
	e.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// ClearCache drops every cached value. Passes already running do not fall
// back to a value read before the clear, and fetches they start afterwards
// go to the providers.
func (e *Engine) ClearCache() {
	e.cache.Clear()
	e.logger.Debug("Secret cache cleared")
}

// outcome is the result of resolving one distinct key.
type outcome struct {
	value  string
	ok     bool
	kind   dserrors.Kind
	detail string
	stale  *Warning
}

// ResolveAll resolves every reference in root. The returned tree has the
// same shape as root: scalars whose references all resolved hold their
// values, scalars with any unresolved reference are marked unresolved and
// listed in Result.Failures. Only a malformed reference makes ResolveAll
// itself fail.
//
// If ctx has no deadline the configured resolve timeout applies. References
// still pending when it elapses fail with Timeout.
func (e *Engine) ResolveAll(ctx context.Context, root *tree.Node) (*Result, error) {
	start := time.Now()

	if err := config.CheckReferences(root); err != nil {
		return nil, err
	}

	sites := make(map[string]*reference.Template)
	var keys []reference.Key
	tokens := make(map[reference.Key]string)
	occurrences := 0
	tree.Strings(root, func(p tree.Path, s string) {
		if !reference.Contains(s) {
			return
		}
		tmpl, err := reference.Parse(s)
		if err != nil || (!tmpl.HasReferences() && !tmpl.HasEscapes()) {
			return
		}
		sites[p.String()] = tmpl
		for _, ref := range tmpl.References() {
			occurrences++
			k := ref.Key()
			if _, seen := tokens[k]; !seen {
				tokens[k] = ref.Token()
				keys = append(keys, k)
			}
		}
	})

	if len(sites) == 0 {
		return &Result{Tree: root}, nil
	}

	stats := Stats{References: occurrences, Keys: len(keys)}
	outcomes := make(map[reference.Key]*outcome, len(keys))
	var pending []pendingKey

	for _, k := range keys {
		s := e.provider(k.Provider)
		switch {
		case s == nil:
			outcomes[k] = &outcome{kind: dserrors.UnknownProvider, detail: fmt.Sprintf("no provider %q is configured", k.Provider)}
			continue
		case s.err != nil:
			outcomes[k] = &outcome{kind: dserrors.ProviderUnconfigured, detail: s.err.Error()}
			continue
		}

		l := e.cache.Lookup(k)
		if l.State() == cache.Fresh {
			stats.CacheHits++
			outcomes[k] = &outcome{value: l.Value(), ok: true}
			continue
		}
		pending = append(pending, pendingKey{key: k, token: tokens[k], slot: s, cached: l})
	}

	if len(pending) > 0 {
		stats.Fetches = len(pending)
		for k, o := range e.fetchAll(ctx, pending) {
			outcomes[k] = o
		}
	}

	var known []string
	for _, o := range outcomes {
		if o.ok {
			known = append(known, o.value)
		}
	}

	res := e.rewrite(root, sites, outcomes, tokens, known)
	res.Stats = stats
	for _, k := range keys {
		if w := outcomes[k].stale; w != nil {
			w.Detail = dserrors.Sanitize(w.Detail, known...)
			e.logger.Warn("Serving stale value for %s fetched %v ago: %s", w.Reference, w.Age, w.Detail)
			res.Warnings = append(res.Warnings, *w)
		}
	}
	res.Stats.StaleFallbacks = len(res.Warnings)

	e.metrics.RecordResolution(time.Since(start).Seconds())
	e.logger.Debug("Resolved %d references (%d distinct, %d cached, %d fetched, %d failed)",
		stats.References, stats.Keys, stats.CacheHits, stats.Fetches, len(res.Failures))
	return res, nil
}

type pendingKey struct {
	key    reference.Key
	token  string
	slot   *slot
	cached cache.Lookup
}

type keyOutcome struct {
	key reference.Key
	out *outcome
}

// fetchAll fetches every pending key concurrently and waits until all have
// finished or the pass deadline elapses. Keys still outstanding at the
// deadline fail with Timeout; their fetches finish in the background.
func (e *Engine) fetchAll(ctx context.Context, pending []pendingKey) map[reference.Key]*outcome {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = withProviderTimeout(ctx, e.secrets.ResolveTimeout())
		defer cancel()
	}

	results := make(chan keyOutcome, len(pending))
	for _, pk := range pending {
		go func(pk pendingKey) {
			results <- keyOutcome{key: pk.key, out: e.resolveKey(ctx, pk)}
		}(pk)
	}

	outcomes := make(map[reference.Key]*outcome, len(pending))
	for len(outcomes) < len(pending) {
		select {
		case r := <-results:
			outcomes[r.key] = r.out
		case <-ctx.Done():
			for _, pk := range pending {
				if _, done := outcomes[pk.key]; !done {
					outcomes[pk.key] = &outcome{kind: dserrors.Timeout, detail: deadlineDetail(ctx)}
				}
			}
		}
	}
	return outcomes
}

// resolveKey fetches one key, retries once if the provider is unavailable and
// falls back to a stale value if the retry fails the same way.
func (e *Engine) resolveKey(ctx context.Context, pk pendingKey) *outcome {
	value, err := e.fetch(ctx, pk)
	if err != nil && ctx.Err() == nil && dserrors.Classify(err) == dserrors.Unavailable {
		e.logger.Debug("Retrying %s after %v: provider unavailable", pk.token, e.secrets.RetryDelay())
		if waitErr := sleep(ctx, e.secrets.RetryDelay()); waitErr == nil {
			value, err = e.fetch(ctx, pk)
		}
	}
	if err == nil {
		return &outcome{value: value, ok: true}
	}

	if ctx.Err() != nil {
		return &outcome{kind: dserrors.Timeout, detail: deadlineDetail(ctx)}
	}

	kind := dserrors.Classify(err)
	var known []string
	if pk.cached.State() != cache.Absent {
		known = append(known, pk.cached.Value())
	}
	detail := dserrors.Sanitize(err.Error(), known...)

	if kind == dserrors.Unavailable && pk.cached.State() == cache.Stale {
		if pk.cached.Generation() != e.cache.Generation() {
			e.logger.Debug("Not serving stale value for %s: cache cleared during fetch", pk.token)
			return &outcome{kind: kind, detail: detail}
		}
		age := time.Since(pk.cached.FetchedAt()).Round(time.Second)
		e.metrics.RecordStaleFallback(pk.key.Provider)
		return &outcome{
			value: pk.cached.Value(),
			ok:    true,
			stale: &Warning{Reference: pk.token, Age: age, Detail: detail},
		}
	}
	return &outcome{kind: kind, detail: detail}
}

// fetch makes one coalesced attempt through the cache.
func (e *Engine) fetch(ctx context.Context, pk pendingKey) (string, error) {
	s := pk.slot
	return e.cache.Fetch(ctx, pk.key, s.cfg.TTL(), s.cfg.Timeout(), func(callCtx context.Context) (string, error) {
		if s.sem != nil {
			select {
			case s.sem <- struct{}{}:
				defer func() { <-s.sem }()
			case <-callCtx.Done():
				return "", provider.Unavailable(s.id, callCtx.Err())
			}
		}

		e.logger.Debug("Fetching %s", pk.token)
		start := time.Now()
		value, err := s.p.Get(callCtx, pk.key.Name, pk.key.Version)
		e.metrics.RecordProviderCall(s.id, callOutcome(err), time.Since(start).Seconds())
		return value, err
	})
}

// rewrite substitutes resolved values into a copy of root and records one
// failure per unresolved reference per path.
func (e *Engine) rewrite(root *tree.Node, sites map[string]*reference.Template, outcomes map[reference.Key]*outcome, tokens map[reference.Key]string, known []string) *Result {
	res := &Result{}
	lookup := func(ref reference.Reference) (string, bool) {
		o, ok := outcomes[ref.Key()]
		if !ok || !o.ok {
			return "", false
		}
		return o.value, true
	}

	res.Tree = tree.Rewrite(root, func(p tree.Path, scalar *tree.Node) *tree.Node {
		if scalar.Kind() != tree.KindString {
			return nil
		}
		path := p.String()
		tmpl, ok := sites[path]
		if !ok {
			return nil
		}

		text, missing := tmpl.Render(lookup)
		if len(missing) == 0 {
			return tree.NewResolved(text, tmpl.Source())
		}

		seen := make(map[reference.Key]bool, len(missing))
		for _, ref := range missing {
			k := ref.Key()
			if seen[k] {
				continue
			}
			seen[k] = true
			o := outcomes[k]
			res.Failures = append(res.Failures, dserrors.NewResolutionError(o.kind, path, tokens[k], o.detail, known...))
			e.metrics.RecordFailure(o.kind.String())
		}
		return tree.NewUnresolved(tmpl.Source())
	})

	sort.SliceStable(res.Failures, func(i, j int) bool {
		if res.Failures[i].Path != res.Failures[j].Path {
			return res.Failures[i].Path < res.Failures[j].Path
		}
		return res.Failures[i].Reference < res.Failures[j].Reference
	})
	for _, f := range res.Failures {
		e.logger.Debug("Unresolved %s at %s: %s", f.Reference, f.Path, f.Kind)
	}
	return res
}

// TestProvider probes connectivity of a configured provider.
func (e *Engine) TestProvider(ctx context.Context, id string) (bool, string) {
	s := e.provider(id)
	if s == nil {
		return false, fmt.Sprintf("provider %q is not configured", id)
	}
	if s.err != nil {
		return false, dserrors.Sanitize(s.err.Error())
	}

	callCtx, cancel := withProviderTimeout(ctx, s.cfg.Timeout())
	defer cancel()

	ok, detail := s.p.TestConnection(callCtx)
	if !ok && callCtx.Err() != nil {
		return false, timeoutDetail(s.cfg, s.cfg.Timeout())
	}
	return ok, dserrors.Sanitize(detail)
}

// Put stores a secret through a configured provider. It is not part of
// resolution and leaves the cache alone.
func (e *Engine) Put(ctx context.Context, id, name, value string) error {
	s, err := e.ready(id)
	if err != nil {
		return err
	}
	callCtx, cancel := withProviderTimeout(ctx, s.cfg.Timeout())
	defer cancel()

	if err := s.p.Put(callCtx, name, value); err != nil {
		return dserrors.ProviderError(id, s.cfg.Type, "put", err)
	}
	e.logger.Info("Stored %s", reference.Reference{Provider: id, Name: name})
	return nil
}

// List returns the secret names a configured provider exposes.
func (e *Engine) List(ctx context.Context, id string) ([]string, error) {
	s, err := e.ready(id)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := withProviderTimeout(ctx, s.cfg.Timeout())
	defer cancel()

	names, err := s.p.List(callCtx)
	if err != nil {
		return nil, dserrors.ProviderError(id, s.cfg.Type, "list", err)
	}
	return names, nil
}

func (e *Engine) ready(id string) (*slot, error) {
	s := e.provider(id)
	if s == nil {
		_, err := e.secrets.GetProvider(id)
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	return s, nil
}

func callOutcome(err error) string {
	if err == nil {
		return "success"
	}
	switch dserrors.Classify(err) {
	case dserrors.NotFound:
		return "not_found"
	case dserrors.PermissionDenied:
		return "permission_denied"
	}
	return "unavailable"
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
