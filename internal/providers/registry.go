package providers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/systmms/secretref/internal/config"
	dserrors "github.com/systmms/secretref/internal/errors"
	"github.com/systmms/secretref/internal/logging"
	"github.com/systmms/secretref/internal/providers/vault"
	"github.com/systmms/secretref/pkg/provider"
)

// Registry maps provider types to the factories that build them. The set of
// types is fixed at compile time.
type Registry struct {
	factories map[string]ProviderFactory
}

// ProviderFactory creates a provider instance from configuration
type ProviderFactory func(name string, cfg config.ProviderConfig, logger *logging.Logger) (provider.Provider, error)

// NewRegistry creates a registry holding every built-in provider type
func NewRegistry() *Registry {
	return &Registry{
		factories: map[string]ProviderFactory{
			"memory":             NewMemoryProviderFactory,
			"env":                NewEnvProviderFactory,
			"gcp.secretmanager":  NewGCPSecretManagerProviderFactory,
			"aws.secretsmanager": NewAWSSecretsManagerProviderFactory,
			"aws.ssm":            NewAWSSSMProviderFactory,
			"azure.keyvault":     NewAzureKeyVaultProviderFactory,
			"vault":              NewVaultProviderFactory,
			"keychain":           NewKeychainProviderFactory,
			"akeyless":           NewAkeylessProviderFactory,
		},
	}
}

// RegisterFactory registers or replaces the factory for a provider type
func (r *Registry) RegisterFactory(providerType string, factory ProviderFactory) {
	r.factories[providerType] = factory
}

// CreateProvider creates a provider instance from configuration
func (r *Registry) CreateProvider(name string, cfg config.ProviderConfig, logger *logging.Logger) (provider.Provider, error) {
	factory, exists := r.factories[cfg.Type]
	if !exists {
		return nil, dserrors.ConfigError{
			Field:      "providers." + name + ".type",
			Value:      cfg.Type,
			Message:    "unknown provider type",
			Suggestion: "Supported types: " + strings.Join(r.GetSupportedTypes(), ", "),
		}
	}
	if logger == nil {
		logger = logging.Discard()
	}

	p, err := factory(name, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider %q: %w", cfg.Type, name, err)
	}
	return p, nil
}

// GetSupportedTypes returns the supported provider types in sorted order
func (r *Registry) GetSupportedTypes() []string {
	types := make([]string, 0, len(r.factories))
	for providerType := range r.factories {
		types = append(types, providerType)
	}
	sort.Strings(types)
	return types
}

// IsSupported checks if a provider type is supported
func (r *Registry) IsSupported(providerType string) bool {
	_, exists := r.factories[providerType]
	return exists
}

// Factory functions for built-in providers. Each returns a nil interface on
// error rather than a typed nil pointer.

// NewMemoryProviderFactory creates a memory provider from its values map
func NewMemoryProviderFactory(name string, cfg config.ProviderConfig, logger *logging.Logger) (provider.Provider, error) {
	return NewMemoryProvider(name, cfg, logger), nil
}

// NewEnvProviderFactory creates a read-only environment provider
func NewEnvProviderFactory(name string, cfg config.ProviderConfig, logger *logging.Logger) (provider.Provider, error) {
	return NewEnvProvider(name, cfg, logger), nil
}

// NewGCPSecretManagerProviderFactory creates a GCP Secret Manager provider
func NewGCPSecretManagerProviderFactory(name string, cfg config.ProviderConfig, logger *logging.Logger) (provider.Provider, error) {
	p, err := NewGCPSecretManagerProvider(name, cfg, logger)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// NewAWSSecretsManagerProviderFactory creates an AWS Secrets Manager provider
func NewAWSSecretsManagerProviderFactory(name string, cfg config.ProviderConfig, logger *logging.Logger) (provider.Provider, error) {
	p, err := NewAWSSecretsManagerProvider(name, cfg, logger)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// NewAWSSSMProviderFactory creates an AWS SSM Parameter Store provider
func NewAWSSSMProviderFactory(name string, cfg config.ProviderConfig, logger *logging.Logger) (provider.Provider, error) {
	p, err := NewAWSSSMProvider(name, cfg, logger)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// NewAzureKeyVaultProviderFactory creates an Azure Key Vault provider
func NewAzureKeyVaultProviderFactory(name string, cfg config.ProviderConfig, logger *logging.Logger) (provider.Provider, error) {
	p, err := NewAzureKeyVaultProvider(name, cfg, logger)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// NewVaultProviderFactory creates a HashiCorp Vault provider
func NewVaultProviderFactory(name string, cfg config.ProviderConfig, logger *logging.Logger) (provider.Provider, error) {
	p, err := vault.NewVaultProvider(name, cfg, logger)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// NewKeychainProviderFactory creates an OS keychain provider
func NewKeychainProviderFactory(name string, cfg config.ProviderConfig, logger *logging.Logger) (provider.Provider, error) {
	return NewKeychainProvider(name, cfg, logger), nil
}

// NewAkeylessProviderFactory creates an Akeyless provider
func NewAkeylessProviderFactory(name string, cfg config.ProviderConfig, logger *logging.Logger) (provider.Provider, error) {
	p, err := NewAkeylessProvider(name, cfg, logger)
	if err != nil {
		return nil, err
	}
	return p, nil
}
