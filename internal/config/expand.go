package config

import (
	"regexp"

	"github.com/systmms/secretref/internal/tree"
)

// envPattern matches ${VAR} and $${VAR}. The doubled form is an escape and
// passes through to the reference parser untouched.
var envPattern = regexp.MustCompile(`\$?\$\{([A-Z_][A-Z0-9_]*)\}`)

func expandEnv(root *tree.Node, lookup func(string) (string, bool)) *tree.Node {
	return tree.Rewrite(root, func(_ tree.Path, scalar *tree.Node) *tree.Node {
		if scalar.Kind() != tree.KindString {
			return nil
		}
		text := scalar.Text()
		expanded := envPattern.ReplaceAllStringFunc(text, func(m string) string {
			if m[1] == '$' {
				return m
			}
			if v, ok := lookup(m[2 : len(m)-1]); ok {
				return v
			}
			return m
		})
		if expanded == text {
			return nil
		}
		return tree.NewString(expanded)
	})
}
