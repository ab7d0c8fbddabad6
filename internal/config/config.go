package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	dserrors "github.com/systmms/secretref/internal/errors"
	"github.com/systmms/secretref/internal/logging"
	"github.com/systmms/secretref/internal/reference"
	"github.com/systmms/secretref/internal/tree"
	"gopkg.in/yaml.v3"
)

// SectionKey is the top-level key holding resolver settings. It is removed
// from the tree handed to the engine.
const SectionKey = "secrets"

const (
	DefaultTTLSeconds       = 300
	DefaultTimeoutMs        = 30000
	DefaultRetryDelayMs     = 200
	DefaultResolveTimeoutMs = 30000
)

// Config holds the runtime configuration
type Config struct {
	Path      string
	Extra     []string // auth-profile documents mounted under their file stem
	Logger    *logging.Logger
	ExpandEnv bool
	Document  *Document
}

// Document is a loaded configuration: resolver settings plus the raw tree
// that still contains reference tokens.
type Document struct {
	Secrets SecretsConfig
	Tree    *tree.Node
	Sources []string
}

// SecretsConfig is the "secrets" section of a document
type SecretsConfig struct {
	DefaultProvider  string                    `yaml:"default_provider,omitempty"`
	MaxConcurrency   int                       `yaml:"max_concurrency,omitempty"`
	RetryDelayMs     *int                      `yaml:"retry_delay_ms,omitempty"`
	ResolveTimeoutMs int                       `yaml:"resolve_timeout_ms,omitempty"`
	Providers        map[string]ProviderConfig `yaml:"providers,omitempty"`
}

// ProviderConfig holds provider-specific configuration. Keys other than the
// common ones are store-specific and land in Config.
type ProviderConfig struct {
	Type            string                 `yaml:"type"`
	TTLSeconds      *int                   `yaml:"ttl_seconds,omitempty"` // default 300, 0 disables freshness
	TimeoutMs       int                    `yaml:"timeout_ms,omitempty"`  // per call, default 30000
	CredentialsFile string                 `yaml:"credentials_file,omitempty"`
	Config          map[string]interface{} `yaml:",inline"`
}

// Option adjusts how documents are loaded
type Option func(*loadOptions)

type loadOptions struct {
	expandEnv bool
	lookupEnv func(string) (string, bool)
}

// WithEnvExpansion substitutes ${UPPER_CASE} environment variables in string
// scalars before references are checked. Unset variables are left as-is.
func WithEnvExpansion() Option {
	return func(o *loadOptions) { o.expandEnv = true }
}

// WithLookupEnv replaces os.LookupEnv for environment expansion.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(o *loadOptions) { o.lookupEnv = fn }
}

func newLoadOptions(opts []Option) loadOptions {
	o := loadOptions{lookupEnv: os.LookupEnv}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Load reads the main document and any extra documents
func (c *Config) Load() error {
	var opts []Option
	if c.ExpandEnv {
		opts = append(opts, WithEnvExpansion())
	}
	doc, err := LoadAll(append([]string{c.Path}, c.Extra...), opts...)
	if err != nil {
		return err
	}
	if c.Logger != nil {
		c.Logger.Debug("Loaded %d document(s), %d provider(s) configured", len(doc.Sources), len(doc.Secrets.Providers))
	}
	c.Document = doc
	return nil
}

// Load reads and validates a single document
func Load(path string, opts ...Option) (*Document, error) {
	o := newLoadOptions(opts)

	root, secrets, err := readDocument(path, o)
	if err != nil {
		return nil, err
	}

	cfg, err := decodeSecrets(path, secrets)
	if err != nil {
		return nil, err
	}

	if err := CheckReferences(root); err != nil {
		return nil, err
	}

	return &Document{Secrets: cfg, Tree: root, Sources: []string{path}}, nil
}

// LoadAll loads paths[0] as the main document and mounts every further
// document under its file stem, so a single resolution pass covers all of
// them. Only the main document may carry a secrets section.
func LoadAll(paths []string, opts ...Option) (*Document, error) {
	if len(paths) == 0 {
		return nil, dserrors.ConfigError{
			Field:      "path",
			Message:    "no configuration file given",
			Suggestion: "Pass the path of a YAML document",
		}
	}

	doc, err := Load(paths[0], opts...)
	if err != nil {
		return nil, err
	}

	o := newLoadOptions(opts)

	var syntax dserrors.SyntaxErrors
	for _, path := range paths[1:] {
		root, secrets, err := readDocument(path, o)
		if err != nil {
			return nil, err
		}
		if secrets != nil {
			return nil, dserrors.ConfigError{
				Field:      SectionKey,
				Value:      path,
				Message:    "secrets section is only allowed in the main document",
				Suggestion: fmt.Sprintf("Move provider settings into %s", paths[0]),
			}
		}

		stem := fileStem(path)
		if _, exists := doc.Tree.Get(stem); exists {
			return nil, dserrors.ConfigError{
				Field:      "path",
				Value:      path,
				Message:    fmt.Sprintf("document key %q is already defined", stem),
				Suggestion: "Rename the file or the conflicting top-level key",
			}
		}

		mounted := tree.NewMap()
		mounted.Set(stem, root)
		if err := CheckReferences(mounted); err != nil {
			if s, ok := err.(dserrors.SyntaxErrors); ok {
				syntax = append(syntax, s...)
				continue
			}
			return nil, err
		}
		doc.Tree.Set(stem, root)
		doc.Sources = append(doc.Sources, path)
	}

	if len(syntax) > 0 {
		syntax.Sort()
		return nil, syntax
	}
	return doc, nil
}

// readDocument parses path and splits off the secrets section. The returned
// tree never contains that section.
func readDocument(path string, o loadOptions) (*tree.Node, *tree.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, dserrors.ConfigError{
				Field:      "path",
				Value:      path,
				Message:    "configuration file not found",
				Suggestion: "Check the path, or create the file",
			}
		}
		return nil, nil, dserrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, nil, dserrors.ConfigError{
			Value:      path,
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters. Use a YAML validator",
		}
	}

	root, err := tree.FromYAML(&node)
	if err != nil {
		return nil, nil, dserrors.ConfigError{
			Value:      path,
			Message:    fmt.Sprintf("unsupported YAML structure: %v", err),
			Suggestion: "Reduce alias nesting in the document",
		}
	}
	if root.Kind() != tree.KindMap {
		return nil, nil, dserrors.ConfigError{
			Value:      path,
			Message:    "configuration document must be a mapping",
			Suggestion: "Start the document with top-level keys",
		}
	}

	if o.expandEnv {
		root = expandEnv(root, o.lookupEnv)
	}

	secrets, ok := root.Get(SectionKey)
	if !ok {
		return root, nil, nil
	}
	root.Delete(SectionKey)
	return root, secrets, nil
}

func decodeSecrets(path string, section *tree.Node) (SecretsConfig, error) {
	var cfg SecretsConfig
	if section == nil {
		return cfg, nil
	}

	if err := validateSchema(section); err != nil {
		return cfg, dserrors.ConfigError{
			Field:      SectionKey,
			Value:      path,
			Message:    err.Error(),
			Suggestion: "Fix the secrets section; see the configuration reference",
		}
	}

	data, err := yaml.Marshal(section.Interface())
	if err != nil {
		return cfg, fmt.Errorf("failed to re-encode secrets section: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, dserrors.ConfigError{
			Field:   SectionKey,
			Value:   path,
			Message: fmt.Sprintf("invalid secrets section: %v", err),
		}
	}

	for _, id := range cfg.ProviderIDs() {
		if !reference.ValidProviderID(id) {
			return cfg, dserrors.ConfigError{
				Field:      "providers",
				Value:      id,
				Message:    "invalid provider identifier",
				Suggestion: "Provider identifiers start with a lowercase letter followed by lowercase letters, digits, '_' or '-'",
			}
		}
		if cfg.Providers[id].Type == "" {
			return cfg, dserrors.ConfigError{
				Field:   "providers." + id + ".type",
				Message: "provider type is required",
			}
		}
	}

	if cfg.DefaultProvider != "" {
		if _, ok := cfg.Providers[cfg.DefaultProvider]; !ok {
			return cfg, dserrors.ConfigError{
				Field:      "default_provider",
				Value:      cfg.DefaultProvider,
				Message:    "default provider is not configured",
				Suggestion: availableSuggestion(cfg.ProviderIDs()),
			}
		}
	}
	return cfg, nil
}

// CheckReferences runs the reference parser over every string scalar in
// root and reports all malformed tokens at once.
func CheckReferences(root *tree.Node) error {
	var errs dserrors.SyntaxErrors
	tree.Strings(root, func(p tree.Path, s string) {
		if !reference.Contains(s) {
			return
		}
		for _, sp := range reference.Scan(s) {
			if sp.Kind != reference.SpanInvalid {
				continue
			}
			errs = append(errs, dserrors.NewResolutionError(
				dserrors.SyntaxError, p.String(), sp.Err.Token, sp.Err.Reason))
		}
	})
	if len(errs) == 0 {
		return nil
	}
	errs.Sort()
	return errs
}

// GetProvider returns the configuration for a provider identifier
func (s SecretsConfig) GetProvider(id string) (ProviderConfig, error) {
	if p, ok := s.Providers[id]; ok {
		return p, nil
	}
	return ProviderConfig{}, dserrors.ConfigError{
		Field:      "provider",
		Value:      id,
		Message:    "provider not found in configuration",
		Suggestion: availableSuggestion(s.ProviderIDs()),
	}
}

// ProviderIDs returns the configured provider identifiers in sorted order
func (s SecretsConfig) ProviderIDs() []string {
	ids := make([]string, 0, len(s.Providers))
	for id := range s.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RetryDelay is the pause before the single retry of an unavailable store
func (s SecretsConfig) RetryDelay() time.Duration {
	if s.RetryDelayMs == nil {
		return DefaultRetryDelayMs * time.Millisecond
	}
	return time.Duration(*s.RetryDelayMs) * time.Millisecond
}

// ResolveTimeout is the deadline applied when the caller gives none
func (s SecretsConfig) ResolveTimeout() time.Duration {
	if s.ResolveTimeoutMs <= 0 {
		return DefaultResolveTimeoutMs * time.Millisecond
	}
	return time.Duration(s.ResolveTimeoutMs) * time.Millisecond
}

// GetProviderTimeout returns the timeout for a provider in milliseconds
func (p ProviderConfig) GetProviderTimeout() int {
	if p.TimeoutMs <= 0 {
		return DefaultTimeoutMs
	}
	return p.TimeoutMs
}

// Timeout bounds a single provider call
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.GetProviderTimeout()) * time.Millisecond
}

// TTL is how long a fetched value stays fresh. Zero means every lookup
// fetches again while the last value remains available as a fallback.
func (p ProviderConfig) TTL() time.Duration {
	if p.TTLSeconds == nil {
		return DefaultTTLSeconds * time.Second
	}
	return time.Duration(*p.TTLSeconds) * time.Second
}

// String reads a store-specific key, returning "" when absent
func (p ProviderConfig) String(key string) string {
	if v, ok := p.Config[key].(string); ok {
		return v
	}
	return ""
}

// ExpandPath resolves a leading "~/" against the user's home directory
func ExpandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

func availableSuggestion(ids []string) string {
	suggestion := "Add the provider to the 'secrets.providers' section of your configuration"
	if len(ids) > 0 {
		suggestion = fmt.Sprintf("Available providers: %s. %s", strings.Join(ids, ", "), suggestion)
	}
	return suggestion
}

func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
