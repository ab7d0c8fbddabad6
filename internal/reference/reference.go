// Package reference parses secret reference tokens embedded in configuration
// strings.
//
// A reference has the form
//
//	${provider:name}
//	${provider:name#version}
//
// where provider matches [a-z][a-z0-9_-]*, name matches [A-Za-z0-9_\-/.]+ and
// version matches [A-Za-z0-9_.]+. The escape $${...} stands for the literal
// text ${...} and is never a reference.
//
// Tokens whose first character after "${" is not a lowercase letter belong to
// environment substitution (${HOME}, ${DB_HOST}) and are left untouched.
// A token that starts like a reference but does not match the grammar is a
// syntax error.
package reference

import (
	"fmt"
	"regexp"

	"github.com/systmms/secretref/pkg/provider"
)

var (
	providerPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)
	namePattern     = regexp.MustCompile(`^[A-Za-z0-9_\-/.]+$`)
	versionPattern  = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)
)

// Reference is the parsed identity of one reference token.
// Version is empty when the token named none.
type Reference struct {
	Provider string
	Name     string
	Version  string
}

// Key is the cache identity of a reference. Version is always set, with
// provider.LatestVersion standing in for an absent version.
type Key struct {
	Provider string
	Name     string
	Version  string
}

// Key returns the normalized cache identity of r.
func (r Reference) Key() Key {
	v := r.Version
	if v == "" {
		v = provider.LatestVersion
	}
	return Key{Provider: r.Provider, Name: r.Name, Version: v}
}

// Token renders r back into reference syntax.
func (r Reference) Token() string {
	if r.Version == "" {
		return "${" + r.Provider + ":" + r.Name + "}"
	}
	return "${" + r.Provider + ":" + r.Name + "#" + r.Version + "}"
}

// String implements fmt.Stringer.
func (r Reference) String() string {
	return r.Token()
}

// String renders k as provider:name#version.
func (k Key) String() string {
	return k.Provider + ":" + k.Name + "#" + k.Version
}

// Token renders k in reference syntax, omitting the implicit latest version.
func (k Key) Token() string {
	if k.Version == provider.LatestVersion {
		return "${" + k.Provider + ":" + k.Name + "}"
	}
	return "${" + k.Provider + ":" + k.Name + "#" + k.Version + "}"
}

// ValidProviderID reports whether id is usable as a provider identifier.
func ValidProviderID(id string) bool {
	return providerPattern.MatchString(id)
}

// SyntaxError describes a malformed reference token.
type SyntaxError struct {
	// Token is the offending text, from "${" through the closing brace or the
	// end of the string.
	Token string
	// Offset is the byte offset of the token in the scanned string.
	Offset int
	// Reason says what is wrong with it.
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("malformed secret reference %q at offset %d: %s", e.Token, e.Offset, e.Reason)
}
