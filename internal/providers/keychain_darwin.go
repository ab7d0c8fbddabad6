//go:build darwin

package providers

import (
	"os"

	"github.com/systmms/secretref/internal/providers/contracts"
)

// darwinKeychainClient implements KeychainClient for macOS
type darwinKeychainClient struct {
	keyringStore
}

// newPlatformKeychainClient creates the platform-specific keychain client
func newPlatformKeychainClient() contracts.KeychainClient {
	return &darwinKeychainClient{}
}

// Validate checks if the keychain is accessible
func (c *darwinKeychainClient) Validate() error {
	return nil
}

// IsAvailable returns true since we're on macOS
func (c *darwinKeychainClient) IsAvailable() bool {
	return true
}

// IsHeadless returns true if running in headless environment
func (c *darwinKeychainClient) IsHeadless() bool {
	return os.Getenv("SSH_TTY") != "" || os.Getenv("CI") != ""
}

var _ contracts.KeychainClient = (*darwinKeychainClient)(nil)
