package provider

import (
	"context"
	"errors"
	"fmt"
)

// LatestVersion is the logical version used when a reference names none.
const LatestVersion = "latest"

// Provider is the capability interface implemented once per backing store.
//
// Every operation receives a context carrying the caller's time bound and
// must return promptly once it is done.
//
// Example usage:
//
//	value, err := p.Get(ctx, "prod/db/password", provider.LatestVersion)
//	if err != nil {
//	    var nf provider.NotFoundError
//	    if errors.As(err, &nf) {
//	        // the secret does not exist
//	    }
//	    return err
//	}
type Provider interface {
	// Name returns the configured identifier of this provider instance.
	//
	// This is the identifier that appears in references (the "gcp" in
	// ${gcp:db-password}), not the implementation type.
	Name() string

	// Get retrieves a secret value.
	//
	// version is LatestVersion when the reference did not name one.
	// Implementations map it to the store's notion of "current"
	// (AWSCURRENT, the "latest" alias, the newest KV version, ...).
	Get(ctx context.Context, name, version string) (string, error)

	// Put creates the secret if missing, otherwise stores value as its new
	// current version. Calling Put twice with the same value is safe.
	//
	// Put is used by setup and migration tooling, never by resolution.
	Put(ctx context.Context, name, value string) error

	// List returns the names of secrets visible to the caller.
	List(ctx context.Context) ([]string, error)

	// TestConnection performs a synchronous reachability probe.
	//
	// It never panics and never returns an error: ok reports whether the
	// store answered and detail carries a short human readable reason.
	TestConnection(ctx context.Context) (ok bool, detail string)
}

// NotFoundError indicates that a requested secret or version does not exist.
//
// Example:
//
//	if !exists {
//	    return "", provider.NotFoundError{Provider: p.Name(), Key: name, Version: version}
//	}
type NotFoundError struct {
	// Provider is the identifier of the provider that was queried.
	Provider string

	// Key is the secret name that could not be found.
	Key string

	// Version is the requested version, if any.
	Version string
}

// Error implements the error interface.
func (e NotFoundError) Error() string {
	if e.Version != "" && e.Version != LatestVersion {
		return "secret not found: " + e.Key + "#" + e.Version + " in " + e.Provider
	}
	return "secret not found: " + e.Key + " in " + e.Provider
}

// AuthError indicates the caller is not allowed to access the secret.
//
// This covers invalid or expired credentials as well as authorization
// failures on an authenticated session.
type AuthError struct {
	// Provider is the identifier of the provider that rejected the call.
	Provider string

	// Message provides details about the failure. It must not contain
	// secret material.
	Message string
}

// Error implements the error interface.
func (e AuthError) Error() string {
	return "permission denied by " + e.Provider + ": " + e.Message
}

// UnavailableError indicates a transient failure talking to the store:
// network errors, throttling, server errors or a provider call timeout.
type UnavailableError struct {
	// Provider is the identifier of the provider that could not be reached.
	Provider string

	// Message provides details about the failure.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e UnavailableError) Error() string {
	msg := e.Provider + " unavailable"
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e UnavailableError) Unwrap() error {
	return e.Err
}

// ErrReadOnly is returned by Put on stores that cannot be written.
var ErrReadOnly = errors.New("provider is read-only")

// Unavailable wraps err as an UnavailableError for the named provider.
func Unavailable(providerName string, err error) error {
	return UnavailableError{Provider: providerName, Err: err}
}

// Unavailablef builds an UnavailableError with a formatted message.
func Unavailablef(providerName, format string, args ...interface{}) error {
	return UnavailableError{Provider: providerName, Message: fmt.Sprintf(format, args...)}
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	if errors.As(err, &nf) {
		return true
	}
	var nfp *NotFoundError
	return errors.As(err, &nfp)
}

// IsPermissionDenied reports whether err is, or wraps, an AuthError.
func IsPermissionDenied(err error) bool {
	var ae AuthError
	if errors.As(err, &ae) {
		return true
	}
	var aep *AuthError
	return errors.As(err, &aep)
}

// IsUnavailable reports whether err is, or wraps, an UnavailableError.
func IsUnavailable(err error) bool {
	var ue UnavailableError
	if errors.As(err, &ue) {
		return true
	}
	var uep *UnavailableError
	return errors.As(err, &uep)
}
