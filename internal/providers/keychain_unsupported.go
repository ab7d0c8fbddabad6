//go:build !darwin && !linux

package providers

import (
	"github.com/systmms/secretref/internal/providers/contracts"
)

// unsupportedKeychainClient is a stub for unsupported platforms
type unsupportedKeychainClient struct{}

// newPlatformKeychainClient creates a stub client for unsupported platforms
func newPlatformKeychainClient() contracts.KeychainClient {
	return &unsupportedKeychainClient{}
}

// Query returns an error on unsupported platforms
func (c *unsupportedKeychainClient) Query(service, account string) ([]byte, error) {
	return nil, ErrKeychainUnsupportedPlatform
}

// Set returns an error on unsupported platforms
func (c *unsupportedKeychainClient) Set(service, account string, value []byte) error {
	return ErrKeychainUnsupportedPlatform
}

// Validate returns an error on unsupported platforms
func (c *unsupportedKeychainClient) Validate() error {
	return ErrKeychainUnsupportedPlatform
}

// IsAvailable returns false on unsupported platforms
func (c *unsupportedKeychainClient) IsAvailable() bool {
	return false
}

// IsHeadless returns false (irrelevant on unsupported platforms)
func (c *unsupportedKeychainClient) IsHeadless() bool {
	return false
}

var _ contracts.KeychainClient = (*unsupportedKeychainClient)(nil)
