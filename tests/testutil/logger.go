package testutil

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/systmms/secretref/internal/logging"
)

// TestLogger captures the output of a real logging.Logger in memory.
//
// Tests hand Logger to the code under test and then check what was written,
// most importantly that no secret value was.
//
// Example usage:
//
//	logs := NewTestLogger(t, true)
//	engine := resolve.New(secrets, resolve.WithLogger(logs.Logger))
//	...
//	logs.AssertNotContains(t, "password123")
type TestLogger struct {
	Logger *logging.Logger

	buffer *syncBuffer
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

// NewTestLogger creates a plain (uncolored) logger writing to memory. Debug
// messages are captured only when debug is true.
func NewTestLogger(t *testing.T, debug bool) *TestLogger {
	t.Helper()

	buf := &syncBuffer{}
	return &TestLogger{
		Logger: logging.NewWithWriter(debug, true, buf),
		buffer: buf,
	}
}

// Output returns everything logged since creation or the last Clear.
func (l *TestLogger) Output() string {
	return l.buffer.String()
}

// Clear discards captured output.
func (l *TestLogger) Clear() {
	l.buffer.Reset()
}

// AssertContains asserts that the log output contains substr.
func (l *TestLogger) AssertContains(t *testing.T, substr string) {
	t.Helper()

	assert.Contains(t, l.Output(), substr, "Expected log output to contain %q", substr)
}

// AssertNotContains asserts that the log output does NOT contain substr.
//
// This is the primary assertion for leak tests.
func (l *TestLogger) AssertNotContains(t *testing.T, substr string) {
	t.Helper()

	assert.NotContains(t, l.Output(), substr, "Expected log output to NOT contain %q", substr)
}

// Lines returns the non-empty lines of the log output.
func (l *TestLogger) Lines() []string {
	lines := strings.Split(l.Output(), "\n")
	result := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			result = append(result, line)
		}
	}
	return result
}
