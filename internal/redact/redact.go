// Package redact turns resolution results into structures that are safe to
// display.
//
// Every scalar the engine substituted carries the configuration text it came
// from. Display puts that text back in place of the value, so a snapshot
// shows ${provider:name#version} wherever a secret was used. Nothing here
// inspects values: redaction is a lookup of provenance, not a scan.
package redact

import (
	"bytes"
	"encoding/json"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/systmms/secretref/internal/reference"
	"github.com/systmms/secretref/internal/resolve"
	"github.com/systmms/secretref/internal/tree"
)

// Status of one substituted scalar in a snapshot.
const (
	StatusResolved   = "resolved"
	StatusStale      = "stale"
	StatusUnresolved = "unresolved"
)

// Entry records where a displayed scalar came from.
type Entry struct {
	Path       string   `json:"path" yaml:"path"`
	References []string `json:"references" yaml:"references"`
	Status     string   `json:"status" yaml:"status"`
}

// Failure is the display form of a resolution failure.
type Failure struct {
	Path      string `json:"path" yaml:"path"`
	Reference string `json:"reference" yaml:"reference"`
	Kind      string `json:"kind" yaml:"kind"`
	Detail    string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Snapshot is a resolved configuration as it may be shown: the tree with
// every secret replaced by its reference, plus provenance and diagnostics.
type Snapshot struct {
	Config   *tree.Node `json:"config" yaml:"config"`
	Secrets  []Entry    `json:"secrets" yaml:"secrets"`
	Failures []Failure  `json:"failures" yaml:"failures"`
	Warnings []string   `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// New builds a snapshot of res.
func New(res *resolve.Result) *Snapshot {
	stale := make(map[reference.Key]bool, len(res.Warnings))
	warnings := make([]string, 0, len(res.Warnings))
	for _, w := range res.Warnings {
		for _, r := range parse(w.Reference) {
			stale[r.Key()] = true
		}
		warnings = append(warnings, w.String())
	}

	s := &Snapshot{
		Config:   Display(res.Tree),
		Secrets:  []Entry{},
		Failures: make([]Failure, 0, len(res.Failures)),
		Warnings: warnings,
	}

	_ = tree.Walk(res.Tree, func(p tree.Path, n *tree.Node) error {
		var status string
		switch n.Kind() {
		case tree.KindResolved:
			status = StatusResolved
		case tree.KindUnresolved:
			status = StatusUnresolved
		default:
			return nil
		}
		refs := parse(n.Origin())
		if len(refs) == 0 {
			return nil
		}
		if status == StatusResolved {
			for _, r := range refs {
				if stale[r.Key()] {
					status = StatusStale
					break
				}
			}
		}
		s.Secrets = append(s.Secrets, Entry{Path: p.String(), References: tokens(refs), Status: status})
		return nil
	})
	sort.SliceStable(s.Secrets, func(i, j int) bool { return s.Secrets[i].Path < s.Secrets[j].Path })

	for _, f := range res.Failures {
		s.Failures = append(s.Failures, Failure{
			Path:      f.Path,
			Reference: f.Reference,
			Kind:      f.Kind.String(),
			Detail:    f.Detail,
		})
	}
	return s
}

// Display returns a copy of n in which every Resolved and Unresolved scalar
// is a plain string holding its configuration text.
func Display(n *tree.Node) *tree.Node {
	return tree.Rewrite(n, func(_ tree.Path, scalar *tree.Node) *tree.Node {
		switch scalar.Kind() {
		case tree.KindResolved, tree.KindUnresolved:
			return tree.NewString(scalar.Origin())
		}
		return nil
	})
}

// References returns the distinct reference tokens in text, in order of
// first appearance.
func References(text string) []string {
	return tokens(parse(text))
}

func parse(text string) []reference.Reference {
	tmpl, err := reference.Parse(text)
	if err != nil {
		return nil
	}
	return tmpl.References()
}

func tokens(refs []reference.Reference) []string {
	seen := make(map[string]bool, len(refs))
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		tok := r.Token()
		if !seen[tok] {
			seen[tok] = true
			out = append(out, tok)
		}
	}
	return out
}

// YAML renders the snapshot as a YAML document.
func (s *Snapshot) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// JSON renders the snapshot as indented JSON.
func (s *Snapshot) JSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// ConfigYAML renders only the displayed configuration.
func (s *Snapshot) ConfigYAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s.Config); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
