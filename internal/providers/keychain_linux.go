//go:build linux

package providers

import (
	"os"

	"github.com/systmms/secretref/internal/providers/contracts"
)

// linuxKeychainClient implements KeychainClient for Linux (Secret Service)
type linuxKeychainClient struct {
	keyringStore
}

// newPlatformKeychainClient creates the platform-specific keychain client
func newPlatformKeychainClient() contracts.KeychainClient {
	return &linuxKeychainClient{}
}

// Validate checks if Secret Service is reachable over the session bus
func (c *linuxKeychainClient) Validate() error {
	if os.Getenv("DBUS_SESSION_BUS_ADDRESS") == "" {
		return ErrKeychainHeadless
	}
	return nil
}

// IsAvailable returns true if a display is available for the Secret Service prompt
func (c *linuxKeychainClient) IsAvailable() bool {
	return os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != ""
}

// IsHeadless returns true if running in headless environment
func (c *linuxKeychainClient) IsHeadless() bool {
	if os.Getenv("SSH_TTY") != "" {
		return true
	}
	if os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
		return true
	}
	return os.Getenv("CI") != ""
}

var _ contracts.KeychainClient = (*linuxKeychainClient)(nil)
