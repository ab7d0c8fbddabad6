package reference

import (
	"fmt"
	"strings"
)

// SpanKind distinguishes the spans produced by Scan.
type SpanKind int

const (
	// SpanReference is a well-formed reference token.
	SpanReference SpanKind = iota + 1
	// SpanEscape is a $${...} escape; Literal holds the decoded text.
	SpanEscape
	// SpanInvalid is a malformed reference token; Err says why.
	SpanInvalid
)

// Span is one token found by Scan. Start and End are byte offsets into the
// scanned string, End exclusive.
type Span struct {
	Kind    SpanKind
	Start   int
	End     int
	Ref     Reference
	Literal string
	Err     *SyntaxError
}

// Contains reports whether s holds anything Scan could return a span for.
// It is a cheap pre-check for the common case of plain strings.
func Contains(s string) bool {
	return strings.Contains(s, "${")
}

// Scan returns the ordered, non-overlapping reference, escape and invalid
// spans in s. Environment-style tokens such as ${HOME} produce no span.
func Scan(s string) []Span {
	var spans []Span
	i := 0
	for i < len(s) {
		rel := strings.IndexByte(s[i:], '$')
		if rel < 0 {
			break
		}
		i += rel

		// Escapes are checked before references.
		if strings.HasPrefix(s[i:], "$${") {
			end := strings.IndexByte(s[i+3:], '}')
			if end < 0 {
				spans = append(spans, Span{Kind: SpanEscape, Start: i, End: i + 3, Literal: "${"})
				i += 3
				continue
			}
			end += i + 3 + 1
			spans = append(spans, Span{Kind: SpanEscape, Start: i, End: end, Literal: s[i+1 : end]})
			i = end
			continue
		}

		if !strings.HasPrefix(s[i:], "${") || i+2 >= len(s) || !isLower(s[i+2]) {
			i++
			continue
		}

		closing := strings.IndexByte(s[i+2:], '}')
		if closing < 0 {
			spans = append(spans, invalid(s[i:], i, "missing closing '}'"))
			break
		}
		end := i + 2 + closing + 1
		ref, reason := parseBody(s[i+2 : end-1])
		if reason != "" {
			spans = append(spans, invalid(s[i:end], i, reason))
		} else {
			spans = append(spans, Span{Kind: SpanReference, Start: i, End: end, Ref: ref})
		}
		i = end
	}
	return spans
}

func invalid(token string, offset int, reason string) Span {
	return Span{
		Kind:  SpanInvalid,
		Start: offset,
		End:   offset + len(token),
		Err:   &SyntaxError{Token: token, Offset: offset, Reason: reason},
	}
}

// parseBody parses the text between "${" and "}". The first byte is known to
// be a lowercase letter.
func parseBody(body string) (Reference, string) {
	colon := strings.IndexByte(body, ':')
	if colon < 0 {
		return Reference{}, "missing ':' between provider and name"
	}
	ref := Reference{Provider: body[:colon]}
	if !providerPattern.MatchString(ref.Provider) {
		return Reference{}, fmt.Sprintf("invalid provider %q: must match [a-z][a-z0-9_-]*", ref.Provider)
	}

	rest := body[colon+1:]
	hasVersion := false
	if hash := strings.IndexByte(rest, '#'); hash >= 0 {
		ref.Version = rest[hash+1:]
		rest = rest[:hash]
		hasVersion = true
	}
	ref.Name = rest

	if ref.Name == "" {
		return Reference{}, "empty secret name"
	}
	if !namePattern.MatchString(ref.Name) {
		return Reference{}, fmt.Sprintf("disallowed character in name %q", ref.Name)
	}
	if hasVersion {
		if ref.Version == "" {
			return Reference{}, "empty version after '#'"
		}
		if !versionPattern.MatchString(ref.Version) {
			return Reference{}, fmt.Sprintf("disallowed character in version %q", ref.Version)
		}
	}
	return ref, ""
}

func isLower(c byte) bool {
	return c >= 'a' && c <= 'z'
}
