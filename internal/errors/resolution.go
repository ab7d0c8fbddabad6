package errors

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/systmms/secretref/pkg/provider"
)

// Kind classifies why a reference could not be resolved.
type Kind int

const (
	// SyntaxError is a malformed reference token. Fatal to loading.
	SyntaxError Kind = iota + 1
	// UnknownProvider means no configuration entry exists for the provider id.
	UnknownProvider
	// NotFound means the secret or version does not exist at the provider.
	NotFound
	// PermissionDenied means the provider refused access.
	PermissionDenied
	// Unavailable is a transport or network failure.
	Unavailable
	// Timeout means the resolution deadline elapsed first.
	Timeout
	// ProviderUnconfigured means the provider implementation is not available
	// in this process.
	ProviderUnconfigured
)

var kindNames = map[Kind]string{
	SyntaxError:          "SyntaxError",
	UnknownProvider:      "UnknownProvider",
	NotFound:             "NotFound",
	PermissionDenied:     "PermissionDenied",
	Unavailable:          "Unavailable",
	Timeout:              "Timeout",
	ProviderUnconfigured: "ProviderUnconfigured",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

const redacted = "[REDACTED]"

// MaxDetailLength bounds provider-supplied text carried in a ResolutionError.
const MaxDetailLength = 200

// ResolutionError describes one reference that could not be resolved at one
// configuration path. It never carries secret material: Reference is the
// token text and Detail has been through Sanitize.
type ResolutionError struct {
	Kind      Kind
	Path      string
	Reference string
	Detail    string
}

// NewResolutionError builds a ResolutionError, sanitizing detail against
// any values that must never appear in it.
func NewResolutionError(kind Kind, path, reference, detail string, secrets ...string) *ResolutionError {
	return &ResolutionError{
		Kind:      kind,
		Path:      path,
		Reference: reference,
		Detail:    Sanitize(detail, secrets...),
	}
}

func (e *ResolutionError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Path != "" {
		b.WriteString(" at ")
		b.WriteString(e.Path)
	}
	if e.Reference != "" {
		b.WriteString(" for ")
		b.WriteString(e.Reference)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

// Is matches another *ResolutionError with the same Kind, so callers can
// test errors.Is(err, &ResolutionError{Kind: NotFound}).
func (e *ResolutionError) Is(target error) bool {
	t, ok := target.(*ResolutionError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Path == "" || t.Path == e.Path)
}

// SyntaxErrors aggregates every malformed reference found while loading a
// document. Loading fails with this error if it is non-empty.
type SyntaxErrors []*ResolutionError

func (s SyntaxErrors) Error() string {
	if len(s) == 1 {
		return s[0].Error()
	}
	lines := make([]string, 0, len(s)+1)
	lines = append(lines, fmt.Sprintf("%d malformed secret references:", len(s)))
	for _, e := range s {
		lines = append(lines, "  - "+e.Error())
	}
	return strings.Join(lines, "\n")
}

// Sort orders the errors by path.
func (s SyntaxErrors) Sort() {
	sort.SliceStable(s, func(i, j int) bool { return s[i].Path < s[j].Path })
}

// Classify maps a provider error onto a Kind. Anything unrecognized,
// including a provider call that hit its own timeout, is Unavailable.
// Deciding that the caller's deadline elapsed is left to the engine.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return 0
	case provider.IsNotFound(err):
		return NotFound
	case provider.IsPermissionDenied(err):
		return PermissionDenied
	default:
		return Unavailable
	}
}

// IsDeadline reports whether err stems from an expired or cancelled context.
func IsDeadline(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// Sanitize makes provider-supplied text safe to surface: every occurrence of
// a known secret value is replaced with [REDACTED], control characters are
// dropped and the result is truncated to MaxDetailLength runes.
func Sanitize(detail string, secrets ...string) string {
	secrets = redactionSet(secrets)
	detail = redactValues(detail, secrets)

	var b strings.Builder
	for _, r := range detail {
		if r == utf8.RuneError {
			continue
		}
		if unicode.IsControl(r) {
			r = ' '
		}
		b.WriteRune(r)
	}
	detail = redactValues(b.String(), secrets)

	b.Reset()
	n := 0
	for _, r := range detail {
		if n == MaxDetailLength {
			b.WriteString("…")
			break
		}
		b.WriteRune(r)
		n++
	}
	return strings.TrimSpace(b.String())
}

// redactionSet drops empty and duplicate values and orders the rest
// longest first.
func redactionSet(secrets []string) []string {
	seen := make(map[string]bool, len(secrets))
	out := make([]string, 0, len(secrets))
	for _, s := range secrets {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

// redactValues replaces every byte covered by an occurrence of any value,
// overlapping ones included, with a single [REDACTED] per covered run.
func redactValues(s string, secrets []string) string {
	if len(secrets) == 0 || s == "" {
		return s
	}
	covered := make([]bool, len(s))
	hit := false
	for _, secret := range secrets {
		for from := 0; from < len(s); {
			i := strings.Index(s[from:], secret)
			if i < 0 {
				break
			}
			start := from + i
			for j := start; j < start+len(secret); j++ {
				covered[j] = true
			}
			hit = true
			from = start + 1
		}
	}
	if !hit {
		return s
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if !covered[i] {
			b.WriteByte(s[i])
			continue
		}
		if i == 0 || !covered[i-1] {
			b.WriteString(redacted)
		}
	}
	return b.String()
}
