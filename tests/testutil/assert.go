package testutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// AssertSecretRedacted verifies that a secret value does not appear in a
// string and that the [REDACTED] marker does.
//
// Example usage:
//
//	output := logger.Output()
//	AssertSecretRedacted(t, output, "password123")
func AssertSecretRedacted(t *testing.T, output, secretValue string) {
	t.Helper()

	assert.NotContains(t, output, secretValue,
		"Secret value %q should be redacted, but appears in output", secretValue)
	assert.Contains(t, output, "[REDACTED]",
		"Expected [REDACTED] marker when secret is used")
}

// AssertNoSecretLeak verifies that none of the secret values appear in
// output. Unlike AssertSecretRedacted it does not expect a marker: resolved
// snapshots show reference tokens instead.
//
// Example usage:
//
//	secrets := []string{"password123", "api-key-456"}
//	AssertNoSecretLeak(t, snapshot, secrets)
func AssertNoSecretLeak(t *testing.T, output string, secrets []string) {
	t.Helper()

	for _, secret := range secrets {
		assert.NotContains(t, output, secret,
			"Secret %q should never appear, but does in output", secret)
	}
}

// AssertErrorContains verifies that an error occurred and contains a substring.
func AssertErrorContains(t *testing.T, err error, substr string) {
	t.Helper()

	assert.Error(t, err, "Expected an error to occur")
	if err != nil {
		assert.Contains(t, err.Error(), substr,
			"Error message should contain %q", substr)
	}
}

// AssertLinesContain verifies that specific lines are present in multi-line output.
//
// Example usage:
//
//	output := "line1\nline2\nline3"
//	AssertLinesContain(t, output, []string{"line1", "line3"})
func AssertLinesContain(t *testing.T, output string, expectedLines []string) {
	t.Helper()

	lines := strings.Split(output, "\n")

	for _, expected := range expectedLines {
		found := false
		for _, line := range lines {
			if strings.Contains(line, expected) {
				found = true
				break
			}
		}

		assert.True(t, found,
			"Expected to find line containing %q in output", expected)
	}
}

// AssertCommandSuccess verifies that a command executed successfully and,
// unless expectedInOutput is empty, that its output contains it.
func AssertCommandSuccess(t *testing.T, err error, output string, expectedInOutput string) {
	t.Helper()

	assert.NoError(t, err, "Command should execute successfully. Output:\n%s", output)

	if expectedInOutput != "" {
		assert.Contains(t, output, expectedInOutput,
			"Command output should contain %q", expectedInOutput)
	}
}
