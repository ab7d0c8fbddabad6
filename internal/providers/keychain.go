package providers

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/systmms/secretref/internal/config"
	"github.com/systmms/secretref/internal/logging"
	"github.com/systmms/secretref/internal/providers/contracts"
	"github.com/systmms/secretref/pkg/provider"
)

// DefaultKeychainService is the service used for names without a "/"
const DefaultKeychainService = "secretref"

// KeychainProvider implements the provider interface for OS keychains
// (macOS Keychain and Linux Secret Service)
type KeychainProvider struct {
	name          string
	service       string
	servicePrefix string
	items         []string
	logger        *logging.Logger
	client        contracts.KeychainClient
}

// NewKeychainProvider creates a new keychain provider
func NewKeychainProvider(name string, cfg config.ProviderConfig, logger *logging.Logger) *KeychainProvider {
	return NewKeychainProviderWithClient(name, cfg, logger, newPlatformKeychainClient())
}

// NewKeychainProviderWithClient creates a keychain provider with a custom client.
// This is primarily for testing, allowing the keychain client to be mocked.
func NewKeychainProviderWithClient(name string, cfg config.ProviderConfig, logger *logging.Logger, client contracts.KeychainClient) *KeychainProvider {
	kc := &KeychainProvider{
		name:          name,
		service:       cfg.String("service"),
		servicePrefix: cfg.String("service_prefix"),
		logger:        logger,
		client:        client,
	}
	if kc.service == "" {
		kc.service = DefaultKeychainService
	}
	if items, ok := cfg.Config["items"].([]interface{}); ok {
		for _, item := range items {
			if s, ok := item.(string); ok && s != "" {
				kc.items = append(kc.items, s)
			}
		}
	}
	return kc
}

// Name returns the provider name
func (kc *KeychainProvider) Name() string {
	return kc.name
}

// Platform returns the current platform (darwin, linux, or unsupported)
func (kc *KeychainProvider) Platform() string {
	return runtime.GOOS
}

// Get retrieves a secret from the OS keychain. Keychain items have no
// versions.
func (kc *KeychainProvider) Get(ctx context.Context, name, version string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", provider.Unavailable(kc.name, err)
	}
	if version != "" && version != provider.LatestVersion {
		return "", provider.NotFoundError{Provider: kc.name, Key: name, Version: version}
	}

	ref, err := kc.parseReference(name)
	if err != nil {
		return "", provider.NotFoundError{Provider: kc.name, Key: name, Version: version}
	}

	value, err := kc.client.Query(ref.Service, ref.Account)
	if err != nil {
		return "", kc.translateError("query", ref, name, version, err)
	}
	return string(value), nil
}

// Put stores value unless the item already holds it
func (kc *KeychainProvider) Put(ctx context.Context, name, value string) error {
	current, err := kc.Get(ctx, name, provider.LatestVersion)
	if err == nil && current == value {
		return nil
	}
	if err != nil && !provider.IsNotFound(err) {
		return err
	}

	ref, err := kc.parseReference(name)
	if err != nil {
		return fmt.Errorf("invalid keychain reference '%s': %w", name, err)
	}
	if err := kc.client.Set(ref.Service, ref.Account, []byte(value)); err != nil {
		return kc.translateError("set", ref, name, "", err)
	}
	return nil
}

// List returns the configured items that currently exist. Keychains offer
// no portable enumeration, so only names listed under "items" are probed.
func (kc *KeychainProvider) List(ctx context.Context) ([]string, error) {
	var names []string
	for _, item := range kc.items {
		_, err := kc.Get(ctx, item, provider.LatestVersion)
		switch {
		case err == nil:
			names = append(names, item)
		case provider.IsNotFound(err):
		default:
			return nil, err
		}
	}
	sort.Strings(names)
	return names, nil
}

// TestConnection checks if the keychain is accessible
func (kc *KeychainProvider) TestConnection(ctx context.Context) (bool, string) {
	if !kc.client.IsAvailable() {
		return false, fmt.Sprintf("keychain not supported on %s", kc.Platform())
	}
	if kc.client.IsHeadless() {
		return false, "keychain requires GUI environment (headless environment detected). Consider using a different secret provider for CI/CD environments"
	}
	if err := kc.client.Validate(); err != nil {
		return false, fmt.Sprintf("keychain validation failed: %v", err)
	}
	return true, fmt.Sprintf("%s keychain available", kc.Platform())
}

func (kc *KeychainProvider) translateError(op string, ref *KeychainReference, name, version string, err error) error {
	switch {
	case isKeychainNotFoundError(err):
		return provider.NotFoundError{Provider: kc.name, Key: name, Version: version}
	case isKeychainAccessDeniedError(err):
		return provider.AuthError{Provider: kc.name, Message: "access to keychain item denied"}
	}
	return provider.Unavailable(kc.name, &KeychainError{Op: op, Service: ref.Service, Account: ref.Account, Err: err})
}

// applyServicePrefix combines the configured prefix with the service name
func (kc *KeychainProvider) applyServicePrefix(service string) string {
	if kc.servicePrefix == "" {
		return service
	}
	// If service already starts with prefix, don't add it again
	if strings.HasPrefix(service, kc.servicePrefix) {
		return service
	}
	return kc.servicePrefix + "." + service
}

// KeychainReference represents a parsed keychain secret reference
type KeychainReference struct {
	Service string
	Account string
}

// parseReference splits "service/account". A bare account uses the
// provider's default service.
func (kc *KeychainProvider) parseReference(name string) (*KeychainReference, error) {
	ref, err := ParseKeychainReference(name)
	if err != nil && !strings.Contains(name, "/") && strings.TrimSpace(name) != "" {
		ref, err = &KeychainReference{Service: kc.service, Account: strings.TrimSpace(name)}, nil
	}
	if err != nil {
		return nil, err
	}
	ref.Service = kc.applyServicePrefix(ref.Service)
	return ref, nil
}

// ParseKeychainReference parses a keychain reference string
// Format: service/account
func ParseKeychainReference(key string) (*KeychainReference, error) {
	parts := strings.SplitN(key, "/", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("keychain reference must be service/account format, got: %s", key)
	}

	service := strings.TrimSpace(parts[0])
	account := strings.TrimSpace(parts[1])

	if service == "" {
		return nil, fmt.Errorf("keychain reference service cannot be empty")
	}
	if account == "" {
		return nil, fmt.Errorf("keychain reference account cannot be empty")
	}

	return &KeychainReference{
		Service: service,
		Account: account,
	}, nil
}

// keyringStore reads and writes items through go-keyring. Platform clients
// embed it and add their own availability checks.
type keyringStore struct{}

// Query retrieves a secret from the keyring
func (keyringStore) Query(service, account string) ([]byte, error) {
	secret, err := keyring.Get(service, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrKeychainItemNotFound
		}
		if isKeychainAccessDeniedError(err) {
			return nil, ErrKeychainAccessDenied
		}
		return nil, err
	}
	return []byte(secret), nil
}

// Set creates or replaces an item in the keyring
func (keyringStore) Set(service, account string, value []byte) error {
	return keyring.Set(service, account, string(value))
}

// isKeychainNotFoundError checks if an error indicates item not found
func isKeychainNotFoundError(err error) bool {
	if errors.Is(err, ErrKeychainItemNotFound) || errors.Is(err, keyring.ErrNotFound) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "not found") ||
		strings.Contains(errStr, "itemNotFound")
}

// isKeychainAccessDeniedError checks if an error indicates access was denied
func isKeychainAccessDeniedError(err error) bool {
	if errors.Is(err, ErrKeychainAccessDenied) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "access denied") ||
		strings.Contains(errStr, "accessdenied") ||
		strings.Contains(errStr, "user denied") ||
		strings.Contains(errStr, "canceled")
}
