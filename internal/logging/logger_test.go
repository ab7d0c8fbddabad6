package logging

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecretRedaction(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "secret is redacted", input: "my-secret-password"},
		{name: "empty secret is still redacted", input: ""},
		{name: "complex secret is redacted", input: "password123!@#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Secret(tt.input)
			assert.Equal(t, "[REDACTED]", s.String())
			assert.Equal(t, "[REDACTED]", s.GoString())
			assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
			assert.Equal(t, "[REDACTED]", fmt.Sprintf("%#v", s))
		})
	}
}

func TestSecretRedactionAcrossLogLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(true, true, &buf)

	secretValue := "super-secret-password-12345"
	logger.Info("info %s", Secret(secretValue))
	logger.Warn("warn %v", Secret(secretValue))
	logger.Error("error %s", Secret(secretValue))
	logger.Debug("debug %#v", Secret(secretValue))

	out := buf.String()
	assert.NotContains(t, out, secretValue)
	assert.Equal(t, 4, strings.Count(out, "[REDACTED]"))
}

func TestLoggerPrefixes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(true, true, &buf)

	logger.Info("formatted %s message", "info")
	logger.Warn("formatted %s message", "warn")
	logger.Error("formatted %s message", "error")
	logger.Debug("formatted %s message", "debug")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"✓ formatted info message",
		"⚠ formatted warn message",
		"✗ formatted error message",
		"[DEBUG] formatted debug message",
	}, lines)
}

func TestColorOutput(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(false, false, &buf).Warn("careful")
	assert.Contains(t, buf.String(), "\033[33m")

	buf.Reset()
	NewWithWriter(false, true, &buf).Warn("careful")
	assert.NotContains(t, buf.String(), "\033[")
}

func TestDebugModeDisabled(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(false, true, &buf)

	logger.Debug("hidden")
	assert.Empty(t, buf.String())
	assert.False(t, logger.DebugEnabled())
}

func TestConcurrentWritesDoNotInterleave(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(false, true, &buf)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			logger.Info("line %d", i)
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 50)
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "✓ line "), line)
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Info("dropped")
	logger.Debug("dropped")
}

// TestRedactFunction tests the Redact utility function
func TestRedactFunction(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		secrets  []string
		expected string
	}{
		{
			name:     "single secret redacted",
			input:    "The password is secret123",
			secrets:  []string{"secret123"},
			expected: "The password is [REDACTED]",
		},
		{
			name:     "multiple secrets redacted",
			input:    "User admin with password secret123 and API key abc123",
			secrets:  []string{"admin", "secret123", "abc123"},
			expected: "User [REDACTED] with password [REDACTED] and API key [REDACTED]",
		},
		{
			name:     "empty secret ignored",
			input:    "This has no secrets",
			secrets:  []string{""},
			expected: "This has no secrets",
		},
		{
			name:     "short secret ignored",
			input:    "Short secret: ab",
			secrets:  []string{"ab"},
			expected: "Short secret: ab", // Too short to redact
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Redact(tt.input, tt.secrets))
		})
	}
}
