package contracts

import (
	"context"
	"time"
)

// AkeylessClient abstracts Akeyless SDK operations for testing
type AkeylessClient interface {
	// Authenticate obtains an access token
	Authenticate(ctx context.Context) (token string, expiresIn time.Duration, err error)

	// GetSecret retrieves a static secret value by path; nil version means latest
	GetSecret(ctx context.Context, token, path string, version *int) (string, error)

	// CreateSecret creates a new static secret
	CreateSecret(ctx context.Context, token, path, value string) error

	// UpdateSecret stores value as a new version of an existing secret
	UpdateSecret(ctx context.Context, token, path, value string) error

	// ListItems lists secret paths below path
	ListItems(ctx context.Context, token, path string) ([]string, error)
}
