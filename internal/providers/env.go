package providers

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/systmms/secretref/internal/config"
	"github.com/systmms/secretref/internal/logging"
	"github.com/systmms/secretref/pkg/provider"
)

// EnvProvider reads secrets from the process environment. It is read-only
// and has no versions.
type EnvProvider struct {
	name   string
	prefix string
	logger *logging.Logger
}

// NewEnvProvider creates an environment provider. The optional "prefix"
// setting is prepended to every variable name.
func NewEnvProvider(name string, cfg config.ProviderConfig, logger *logging.Logger) *EnvProvider {
	return &EnvProvider{
		name:   name,
		prefix: strings.ToUpper(cfg.String("prefix")),
		logger: logger,
	}
}

// Name returns the provider's name
func (e *EnvProvider) Name() string {
	return e.name
}

// VariableName maps a secret name to its environment variable:
// "db/main.password" becomes PREFIX + "DB_MAIN_PASSWORD".
func (e *EnvProvider) VariableName(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch r {
		case '/', '.', '-':
			return '_'
		}
		return r
	}, name)
	return e.prefix + strings.ToUpper(mapped)
}

// Get looks up the variable for name
func (e *EnvProvider) Get(ctx context.Context, name, version string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", provider.Unavailable(e.name, err)
	}
	if version != "" && version != provider.LatestVersion {
		return "", provider.NotFoundError{Provider: e.name, Key: name, Version: version}
	}

	variable := e.VariableName(name)
	value, ok := os.LookupEnv(variable)
	if !ok {
		return "", provider.NotFoundError{Provider: e.name, Key: name, Version: version}
	}
	e.logger.Debug("Read %s from environment variable %s", name, variable)
	return value, nil
}

// Put always fails; the environment is read-only
func (e *EnvProvider) Put(ctx context.Context, name, value string) error {
	return provider.ErrReadOnly
}

// List returns the lowercased names of variables carrying the prefix. Each
// listed name maps back to its variable.
func (e *EnvProvider) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, provider.Unavailable(e.name, err)
	}

	var names []string
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if key == "" || !strings.HasPrefix(key, e.prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, e.prefix)
		if rest == "" {
			continue
		}
		names = append(names, strings.ToLower(rest))
	}
	sort.Strings(names)
	return names, nil
}

// TestConnection always succeeds
func (e *EnvProvider) TestConnection(ctx context.Context) (bool, string) {
	if e.prefix == "" {
		return true, "process environment"
	}
	return true, fmt.Sprintf("process environment, prefix %s", e.prefix)
}
