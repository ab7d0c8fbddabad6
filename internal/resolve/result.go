package resolve

import (
	"fmt"
	"strings"
	"time"

	dserrors "github.com/systmms/secretref/internal/errors"
	"github.com/systmms/secretref/internal/tree"
)

// Result is the outcome of one resolution pass.
type Result struct {
	// Tree is the resolved copy of the input. Unresolved scalars are
	// tree.KindUnresolved and keep their configuration text.
	Tree *tree.Node

	// Failures holds one entry per unresolved reference per path, sorted by
	// path.
	Failures []*dserrors.ResolutionError

	// Warnings lists references served from a stale cache entry because
	// their provider was unavailable.
	Warnings []Warning

	Stats Stats
}

// Warning is a non-fatal diagnostic. It never carries the value.
type Warning struct {
	Reference string
	Age       time.Duration
	Detail    string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s served from cache (%v old): %s", w.Reference, w.Age, w.Detail)
}

// Stats counts what a pass did.
type Stats struct {
	References     int // occurrences in the tree
	Keys           int // distinct provider/name/version identities
	CacheHits      int
	Fetches        int
	StaleFallbacks int
}

// OK reports whether every reference resolved.
func (r *Result) OK() bool {
	return len(r.Failures) == 0
}

// FailuresAt returns the failures at path or anywhere below it.
func (r *Result) FailuresAt(path string) []*dserrors.ResolutionError {
	var out []*dserrors.ResolutionError
	for _, f := range r.Failures {
		if under(f.Path, path) {
			out = append(out, f)
		}
	}
	return out
}

// Err returns nil if the pass had no failures, otherwise one error listing
// all of them.
func (r *Result) Err() error {
	return failuresError(r.Failures)
}

// Require returns an error if any failure lies at or below one of paths.
// Failures elsewhere in the tree are ignored.
func (r *Result) Require(paths ...string) error {
	var failed []*dserrors.ResolutionError
	for _, f := range r.Failures {
		for _, p := range paths {
			if under(f.Path, p) {
				failed = append(failed, f)
				break
			}
		}
	}
	return failuresError(failed)
}

func failuresError(failures []*dserrors.ResolutionError) error {
	switch len(failures) {
	case 0:
		return nil
	case 1:
		f := failures[0]
		return dserrors.UserError{
			Message:    fmt.Sprintf("Failed to resolve %s at %s", f.Reference, f.Path),
			Details:    f.Error(),
			Suggestion: suggestionFor(f.Kind),
			Err:        f,
		}
	}

	lines := make([]string, len(failures))
	for i, f := range failures {
		lines[i] = f.Error()
	}
	return dserrors.UserError{
		Message:    fmt.Sprintf("Failed to resolve %d secret references", len(failures)),
		Details:    strings.Join(lines, "\n"),
		Suggestion: "Fix the errors above and try again. Use 'secretref test' to check provider connectivity",
		Err:        failures[0],
	}
}

func suggestionFor(kind dserrors.Kind) string {
	switch kind {
	case dserrors.UnknownProvider:
		return "Add the provider to the 'secrets.providers' section of your configuration"
	case dserrors.ProviderUnconfigured:
		return "Check the provider's type and settings. Run 'secretref providers' to list supported types"
	case dserrors.NotFound:
		return "Check the secret name and version. Use 'secretref list <provider>' to see what exists"
	case dserrors.PermissionDenied:
		return "Check that your credentials grant read access to this secret"
	case dserrors.Unavailable:
		return "The provider could not be reached. Use 'secretref test <provider>' to check connectivity"
	case dserrors.Timeout:
		return "Resolution ran out of time. Increase resolve_timeout_ms or the provider's timeout_ms"
	}
	return ""
}

// under reports whether path is p or lies below it.
func under(path, p string) bool {
	if p == "" || path == p {
		return true
	}
	if !strings.HasPrefix(path, p) {
		return false
	}
	next := path[len(p)]
	return next == '.' || next == '['
}
