package providers

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/systmms/secretref/internal/config"
	"github.com/systmms/secretref/internal/logging"
	"github.com/systmms/secretref/pkg/provider"
)

// MemoryProvider serves values declared in configuration. It does not fetch
// from external systems and is meant for development and tests.
//
// A value is either a string or a list of strings; list entries are the
// numbered versions of the secret, oldest first.
type MemoryProvider struct {
	name   string
	logger *logging.Logger

	mu       sync.RWMutex
	versions map[string][]string
}

// NewMemoryProvider creates a memory provider seeded from the "values" map
func NewMemoryProvider(name string, cfg config.ProviderConfig, logger *logging.Logger) *MemoryProvider {
	m := &MemoryProvider{
		name:     name,
		logger:   logger,
		versions: make(map[string][]string),
	}

	values, _ := cfg.Config["values"].(map[string]interface{})
	for k, v := range values {
		switch val := v.(type) {
		case []interface{}:
			for _, item := range val {
				m.versions[k] = append(m.versions[k], fmt.Sprint(item))
			}
		case nil:
			m.versions[k] = []string{""}
		default:
			m.versions[k] = []string{fmt.Sprint(val)}
		}
	}
	return m
}

// Name returns the provider's name
func (m *MemoryProvider) Name() string {
	return m.name
}

// Get returns the latest value, or the numbered version (1-based)
func (m *MemoryProvider) Get(ctx context.Context, name, version string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", provider.Unavailable(m.name, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	versions := m.versions[name]
	if len(versions) == 0 {
		return "", provider.NotFoundError{Provider: m.name, Key: name, Version: version}
	}
	if version == "" || version == provider.LatestVersion {
		return versions[len(versions)-1], nil
	}

	n, err := strconv.Atoi(version)
	if err != nil || n < 1 || n > len(versions) {
		return "", provider.NotFoundError{Provider: m.name, Key: name, Version: version}
	}
	return versions[n-1], nil
}

// Put appends value as a new version unless it is already the latest
func (m *MemoryProvider) Put(ctx context.Context, name, value string) error {
	if err := ctx.Err(); err != nil {
		return provider.Unavailable(m.name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	versions := m.versions[name]
	if len(versions) > 0 && versions[len(versions)-1] == value {
		return nil
	}
	m.versions[name] = append(versions, value)
	m.logger.Debug("Stored version %d of %s in %s", len(m.versions[name]), name, m.name)
	return nil
}

// List returns the stored names in sorted order
func (m *MemoryProvider) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, provider.Unavailable(m.name, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.versions))
	for k := range m.versions {
		names = append(names, k)
	}
	sort.Strings(names)
	return names, nil
}

// TestConnection always succeeds
func (m *MemoryProvider) TestConnection(ctx context.Context) (bool, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return true, fmt.Sprintf("%d in-memory secrets", len(m.versions))
}
