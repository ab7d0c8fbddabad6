package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
	"github.com/systmms/secretref/pkg/provider"
)

// KeychainError wraps OS keychain errors with context
type KeychainError struct {
	Op      string // Operation: "get", "set", "delete", "probe"
	Service string
	Account string
	Err     error
}

func (e *KeychainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("keychain %s error for %s/%s: %v", e.Op, e.Service, e.Account, e.Err)
	}
	return fmt.Sprintf("keychain %s error for %s/%s", e.Op, e.Service, e.Account)
}

func (e *KeychainError) Unwrap() error {
	return e.Err
}

// Keychain sentinel errors
var (
	ErrKeychainItemNotFound        = errors.New("keychain item not found")
	ErrKeychainAccessDenied        = errors.New("keychain access denied")
	ErrKeychainUnsupportedPlatform = errors.New("keychain not supported on this platform")
	ErrKeychainHeadless            = errors.New("keychain requires a session bus or GUI environment")
)

// AkeylessError wraps Akeyless SDK errors with context
type AkeylessError struct {
	Op         string // Operation: "auth", "get", "set", "list"
	Path       string
	StatusCode int
	Message    string
	Err        error
}

func (e *AkeylessError) Error() string {
	switch {
	case e.Path != "" && e.StatusCode > 0:
		return fmt.Sprintf("akeyless %s error for %s (status %d): %s", e.Op, e.Path, e.StatusCode, e.Message)
	case e.Path != "":
		return fmt.Sprintf("akeyless %s error for %s: %s", e.Op, e.Path, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("akeyless %s error: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("akeyless %s error: %s", e.Op, e.Message)
}

func (e *AkeylessError) Unwrap() error {
	return e.Err
}

// Akeyless sentinel errors
var (
	ErrAkeylessSecretNotFound = errors.New("akeyless secret not found")
	ErrAkeylessUnauthorized   = errors.New("akeyless unauthorized")
	ErrAkeylessRateLimited    = errors.New("akeyless rate limited")
)

// httpStatusError maps an HTTP status from a store's REST API onto the
// provider error taxonomy.
func httpStatusError(providerName, key, version string, status int, message string) error {
	switch {
	case status == 404:
		return provider.NotFoundError{Provider: providerName, Key: key, Version: version}
	case status == 401 || status == 403:
		return provider.AuthError{Provider: providerName, Message: message}
	}
	return provider.Unavailablef(providerName, "status %d: %s", status, message)
}

// awsErrorCodes lists smithy error codes that are not transport failures
var awsErrorCodes = map[string]string{
	"ResourceNotFoundException":   "notfound",
	"ParameterNotFound":           "notfound",
	"ParameterVersionNotFound":    "notfound",
	"AccessDeniedException":       "auth",
	"AccessDenied":                "auth",
	"UnrecognizedClientException": "auth",
	"InvalidSignatureException":   "auth",
	"ExpiredTokenException":       "auth",
	"ExpiredToken":                "auth",
	"InvalidClientTokenId":        "auth",
	"KMSAccessDeniedException":    "auth",
	"DecryptionFailure":           "auth",
}

// awsError translates an AWS SDK error for key into a provider error
func awsError(providerName, key, version string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return provider.Unavailable(providerName, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch awsErrorCodes[apiErr.ErrorCode()] {
		case "notfound":
			return provider.NotFoundError{Provider: providerName, Key: key, Version: version}
		case "auth":
			return provider.AuthError{Provider: providerName, Message: apiErr.ErrorMessage()}
		}
		return &provider.UnavailableError{Provider: providerName, Message: apiErr.ErrorCode(), Err: err}
	}
	return provider.Unavailable(providerName, err)
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
