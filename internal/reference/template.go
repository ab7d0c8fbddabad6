package reference

import (
	"strings"
)

// Template is a configuration string split into literal text and reference
// parts. Escapes are already decoded in the literal parts.
type Template struct {
	source  string
	parts   []part
	refs    []Reference
	escapes int
}

type part struct {
	text  string
	ref   Reference
	isRef bool
}

// Errors is every syntax error found in one string.
type Errors []*SyntaxError

func (e Errors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Parse splits s into a Template. It fails with Errors if s contains any
// malformed reference token.
func Parse(s string) (*Template, error) {
	t := &Template{source: s}
	if !Contains(s) {
		t.parts = []part{{text: s}}
		return t, nil
	}

	var errs Errors
	var lit strings.Builder
	pos := 0
	for _, sp := range Scan(s) {
		lit.WriteString(s[pos:sp.Start])
		pos = sp.End
		switch sp.Kind {
		case SpanEscape:
			lit.WriteString(sp.Literal)
			t.escapes++
		case SpanInvalid:
			errs = append(errs, sp.Err)
		case SpanReference:
			if lit.Len() > 0 {
				t.parts = append(t.parts, part{text: lit.String()})
				lit.Reset()
			}
			t.parts = append(t.parts, part{ref: sp.Ref, isRef: true})
			t.refs = append(t.refs, sp.Ref)
		}
	}
	lit.WriteString(s[pos:])
	if lit.Len() > 0 || len(t.parts) == 0 {
		t.parts = append(t.parts, part{text: lit.String()})
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return t, nil
}

// Source returns the string the template was parsed from.
func (t *Template) Source() string {
	return t.source
}

// References returns the references in order of appearance, duplicates
// included.
func (t *Template) References() []Reference {
	return t.refs
}

// HasReferences reports whether the template needs any secret to render.
func (t *Template) HasReferences() bool {
	return len(t.refs) > 0
}

// HasEscapes reports whether the template contained any $${...} escape.
func (t *Template) HasEscapes() bool {
	return t.escapes > 0
}

// Literal returns the decoded text of a template without references.
// For templates with references it returns the text with every reference
// rendered as its token.
func (t *Template) Literal() string {
	if len(t.parts) == 1 && !t.parts[0].isRef {
		return t.parts[0].text
	}
	var b strings.Builder
	for _, p := range t.parts {
		if p.isRef {
			b.WriteString(p.ref.Token())
		} else {
			b.WriteString(p.text)
		}
	}
	return b.String()
}

// Render substitutes every reference using lookup. If lookup reports any
// reference as missing, Render returns those references and no text.
func (t *Template) Render(lookup func(Reference) (string, bool)) (string, []Reference) {
	var b strings.Builder
	var missing []Reference
	for _, p := range t.parts {
		if !p.isRef {
			b.WriteString(p.text)
			continue
		}
		v, ok := lookup(p.ref)
		if !ok {
			missing = append(missing, p.ref)
			continue
		}
		b.WriteString(v)
	}
	if len(missing) > 0 {
		return "", missing
	}
	return b.String(), nil
}
