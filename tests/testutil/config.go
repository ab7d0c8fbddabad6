// Package testutil provides test utilities and helpers for secretref tests.
//
// This package contains shared test infrastructure: a configuration builder,
// a capturing logger and assertion helpers for leak checks.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/systmms/secretref/internal/config"
	"gopkg.in/yaml.v3"
)

// TestConfigBuilder provides a fluent API for building test configurations.
//
// It writes a document with a "secrets" section plus arbitrary other
// top-level keys, so tests do not have to hand-write YAML.
//
// Example usage:
//
//	path := NewTestConfig(t).
//	    WithProvider("mem", "memory", map[string]any{
//	        "values": map[string]any{"db/password": "hunter2"},
//	    }).
//	    WithValue("database", map[string]any{"password": "${mem:db/password}"}).
//	    Write()
type TestConfigBuilder struct {
	secrets map[string]any
	body    map[string]any
	tempDir string
	t       *testing.T
}

// NewTestConfig creates a new TestConfigBuilder with an empty secrets section.
func NewTestConfig(t *testing.T) *TestConfigBuilder {
	t.Helper()

	return &TestConfigBuilder{
		secrets: map[string]any{"providers": map[string]any{}},
		body:    map[string]any{},
		tempDir: t.TempDir(),
		t:       t,
	}
}

// WithProvider adds a provider entry.
//
// Parameters:
//   - id: The identifier used in references (${id:name})
//   - providerType: The implementation (e.g. "memory", "vault", "aws.ssm")
//   - cfg: Common and store-specific settings
func (b *TestConfigBuilder) WithProvider(id, providerType string, cfg map[string]any) *TestConfigBuilder {
	b.t.Helper()

	entry := map[string]any{"type": providerType}
	for k, v := range cfg {
		entry[k] = v
	}
	b.secrets["providers"].(map[string]any)[id] = entry
	return b
}

// WithSetting sets a top-level key of the secrets section, such as
// "default_provider" or "retry_delay_ms".
func (b *TestConfigBuilder) WithSetting(key string, value any) *TestConfigBuilder {
	b.t.Helper()

	b.secrets[key] = value
	return b
}

// WithValue sets a top-level key of the document outside the secrets section.
func (b *TestConfigBuilder) WithValue(key string, value any) *TestConfigBuilder {
	b.t.Helper()

	b.body[key] = value
	return b
}

// Write writes the configuration to a temporary file and returns the path.
func (b *TestConfigBuilder) Write() string {
	b.t.Helper()

	return b.WriteAs("secretref.yaml")
}

// WriteAs writes the configuration under name inside the builder's
// temporary directory.
func (b *TestConfigBuilder) WriteAs(name string) string {
	b.t.Helper()

	doc := map[string]any{config.SectionKey: b.secrets}
	for k, v := range b.body {
		doc[k] = v
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		b.t.Fatalf("Failed to marshal test config: %v", err)
	}

	path := filepath.Join(b.tempDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		b.t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

// Load writes the configuration and loads it.
func (b *TestConfigBuilder) Load() *config.Document {
	b.t.Helper()

	return LoadTestConfig(b.t, b.Write())
}

// WriteTestConfig writes a YAML string to a temporary file and returns its
// path.
//
// Example:
//
//	path := WriteTestConfig(t, `
//	secrets:
//	  providers:
//	    mem:
//	      type: memory
//	      values:
//	        api_key: test-key
//	api:
//	  key: ${mem:api_key}
//	`)
func WriteTestConfig(t *testing.T, yamlContent string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "secretref.yaml")
	if err := os.WriteFile(path, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

// LoadTestConfig loads a configuration file, failing the test on error.
func LoadTestConfig(t *testing.T, path string) *config.Document {
	t.Helper()

	doc, err := config.Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	return doc
}
