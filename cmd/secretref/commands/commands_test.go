package commands

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/secretref/internal/config"
	dserrors "github.com/systmms/secretref/internal/errors"
	"github.com/systmms/secretref/internal/logging"
	"github.com/systmms/secretref/tests/testutil"
)

const testDocument = `
secrets:
  default_provider: mem
  providers:
    mem:
      type: memory
      values:
        db/password: hunter2-secret
        api_key: ak-7c1e9d
    shell:
      type: env
      prefix: SECRETREF_TEST
database:
  host: db.internal
  password: ${mem:db/password}
api:
  key: ${mem:api_key}
`

var testValues = []string{"hunter2-secret", "ak-7c1e9d"}

func newTestCfg(t *testing.T, path string) (*config.Config, *testutil.TestLogger) {
	t.Helper()

	logs := testutil.NewTestLogger(t, false)
	return &config.Config{Path: path, Logger: logs.Logger}, logs
}

// runCommand executes cmd with args and returns what it wrote to stdout
func runCommand(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	err := cmd.Execute()
	return out.String(), err
}

func TestResolveCommand_RedactsValues(t *testing.T) {
	t.Parallel()

	path := testutil.WriteTestConfig(t, testDocument)
	cfg, logs := newTestCfg(t, path)

	output, err := runCommand(t, NewResolveCommand(cfg), "")
	require.NoError(t, err)

	assert.Contains(t, output, "${mem:db/password}")
	assert.Contains(t, output, "${mem:api_key}")
	assert.Contains(t, output, "db.internal")
	assert.Contains(t, output, "Summary: 2 references, 2 secrets")
	assert.NotContains(t, output, "Failures:")
	testutil.AssertNoSecretLeak(t, output, testValues)
	testutil.AssertNoSecretLeak(t, logs.Output(), testValues)
}

func TestResolveCommand_Failures(t *testing.T) {
	t.Parallel()

	path := testutil.WriteTestConfig(t, testDocument+`
broken:
  token: ${mem:does-not-exist}
  other: ${nowhere:x}
`)

	t.Run("lenient", func(t *testing.T) {
		t.Parallel()
		cfg, _ := newTestCfg(t, path)

		output, err := runCommand(t, NewResolveCommand(cfg), "")
		require.NoError(t, err)

		assert.Contains(t, output, "Failures:")
		testutil.AssertLinesContain(t, output, []string{"broken.token", "broken.other"})
		assert.Contains(t, output, "NotFound")
		assert.Contains(t, output, "UnknownProvider")
		testutil.AssertNoSecretLeak(t, output, testValues)
	})

	t.Run("strict", func(t *testing.T) {
		t.Parallel()
		cfg, _ := newTestCfg(t, path)

		_, err := runCommand(t, NewResolveCommand(cfg), "", "--strict")
		testutil.AssertErrorContains(t, err, "2 secret references")
	})

	t.Run("require unaffected path", func(t *testing.T) {
		t.Parallel()
		cfg, _ := newTestCfg(t, path)

		_, err := runCommand(t, NewResolveCommand(cfg), "", "--require", "database")
		assert.NoError(t, err)
	})

	t.Run("require failed path", func(t *testing.T) {
		t.Parallel()
		cfg, _ := newTestCfg(t, path)

		_, err := runCommand(t, NewResolveCommand(cfg), "", "--require", "broken.token")
		testutil.AssertErrorContains(t, err, "${mem:does-not-exist}")
	})
}

func TestResolveCommand_JSONOutput(t *testing.T) {
	t.Parallel()

	path := testutil.WriteTestConfig(t, testDocument)
	cfg, _ := newTestCfg(t, path)

	output, err := runCommand(t, NewResolveCommand(cfg), "", "--json")
	require.NoError(t, err)
	testutil.AssertNoSecretLeak(t, output, testValues)

	var result struct {
		Config  map[string]interface{} `json:"config"`
		Secrets []struct {
			Path       string   `json:"path"`
			References []string `json:"references"`
			Status     string   `json:"status"`
		} `json:"secrets"`
		Failures []interface{} `json:"failures"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &result))

	db := result.Config["database"].(map[string]interface{})
	assert.Equal(t, "${mem:db/password}", db["password"])
	require.Len(t, result.Secrets, 2)
	assert.Equal(t, "api.key", result.Secrets[0].Path)
	assert.Equal(t, "resolved", result.Secrets[0].Status)
	assert.Empty(t, result.Failures)
}

func TestResolveCommand_ExtraDocuments(t *testing.T) {
	t.Parallel()

	path := testutil.WriteTestConfig(t, testDocument)
	profile := filepath.Join(filepath.Dir(path), "prod.yaml")
	require.NoError(t, os.WriteFile(profile, []byte("token: ${mem:api_key}\n"), 0644))

	cfg, _ := newTestCfg(t, "ignored.yaml")
	output, err := runCommand(t, NewResolveCommand(cfg), "", "--json", path, profile)
	require.NoError(t, err)

	assert.Contains(t, output, `"prod.token"`)
	testutil.AssertNoSecretLeak(t, output, testValues)
}

func TestResolveCommand_MissingConfig(t *testing.T) {
	t.Parallel()

	cfg, _ := newTestCfg(t, filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := runCommand(t, NewResolveCommand(cfg), "")
	assert.Error(t, err)
}

func TestProvidersCommand(t *testing.T) {
	t.Parallel()

	path := testutil.WriteTestConfig(t, testDocument)
	cfg, _ := newTestCfg(t, path)

	output, err := runCommand(t, NewProvidersCommand(cfg), "", "--verbose")
	require.NoError(t, err)

	assert.Contains(t, output, "Built-in Provider Types:")
	assert.Contains(t, output, "gcp.secretmanager")
	assert.Contains(t, output, "Configured Providers:")
	assert.Contains(t, output, "configured (default)")
	assert.Contains(t, output, "Provider Details:")
}

func TestProvidersCommand_WithoutConfig(t *testing.T) {
	t.Parallel()

	cfg, _ := newTestCfg(t, filepath.Join(t.TempDir(), "missing.yaml"))
	output, err := runCommand(t, NewProvidersCommand(cfg), "")
	require.NoError(t, err)

	assert.Contains(t, output, "Built-in Provider Types:")
	assert.NotContains(t, output, "Configured Providers:")
}

func TestGetProviderDescription(t *testing.T) {
	t.Parallel()

	tests := []struct {
		providerType string
		wantContains string
	}{
		{"aws.secretsmanager", "AWS Secrets Manager"},
		{"vault", "HashiCorp Vault"},
		{"env", "read-only"},
		{"unknown-provider", "No description available"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.providerType, func(t *testing.T) {
			t.Parallel()
			assert.Contains(t, getProviderDescription(tt.providerType), tt.wantContains)
		})
	}
}

func TestProviderDescriptionsCoverRegistry(t *testing.T) {
	t.Parallel()

	for _, providerType := range []string{
		"memory", "env", "gcp.secretmanager", "aws.secretsmanager", "aws.ssm",
		"azure.keyvault", "vault", "keychain", "akeyless",
	} {
		assert.NotEqual(t, "No description available", getProviderDescription(providerType), providerType)
		assert.GreaterOrEqual(t, len(getProviderDetails(providerType)), 3, providerType)
	}
	assert.Equal(t, []string{"No details available"}, getProviderDetails("nonexistent-provider"))
}

func TestTestCommand(t *testing.T) {
	t.Parallel()

	path := testutil.WriteTestConfig(t, testDocument)

	t.Run("default provider", func(t *testing.T) {
		t.Parallel()
		cfg, _ := newTestCfg(t, path)

		output, err := runCommand(t, NewTestCommand(cfg), "")
		require.NoError(t, err)
		assert.Contains(t, output, "✓ ok")
		assert.Contains(t, output, "2 in-memory secrets")
	})

	t.Run("unknown provider", func(t *testing.T) {
		t.Parallel()
		cfg, _ := newTestCfg(t, path)

		output, err := runCommand(t, NewTestCommand(cfg), "", "nowhere")
		testutil.AssertErrorContains(t, err, "failed the connectivity check")
		assert.Contains(t, output, "not configured")
	})

	t.Run("all", func(t *testing.T) {
		t.Parallel()
		cfg, _ := newTestCfg(t, path)

		output, err := runCommand(t, NewTestCommand(cfg), "", "--all")
		require.NoError(t, err)
		testutil.AssertLinesContain(t, output, []string{"mem", "shell"})
	})
}

func TestListCommand(t *testing.T) {
	t.Parallel()

	path := testutil.NewTestConfig(t).
		WithProvider("vault-dev", "memory", map[string]any{
			"values": map[string]any{"b/two": "2", "a/one": "1", "c": "3"},
		}).
		WithSetting("default_provider", "vault-dev").
		Write()
	cfg, _ := newTestCfg(t, path)

	output, err := runCommand(t, NewListCommand(cfg), "")
	testutil.AssertCommandSuccess(t, err, output, "a/one")
	assert.Equal(t, "a/one\nb/two\nc\n", output)
}

func TestPutCommand(t *testing.T) {
	t.Parallel()

	path := testutil.WriteTestConfig(t, testDocument)

	t.Run("default provider", func(t *testing.T) {
		t.Parallel()
		cfg, logs := newTestCfg(t, path)

		_, err := runCommand(t, NewPutCommand(cfg), "rotated-value\n", "db/password")
		require.NoError(t, err)
		logs.AssertContains(t, "Stored ${mem:db/password}")
		logs.AssertNotContains(t, "rotated-value")
	})

	t.Run("read-only provider", func(t *testing.T) {
		t.Parallel()
		cfg, _ := newTestCfg(t, path)

		_, err := runCommand(t, NewPutCommand(cfg), "value", "shell", "name")
		assert.Error(t, err)
	})

	t.Run("empty stdin", func(t *testing.T) {
		t.Parallel()
		cfg, _ := newTestCfg(t, path)

		_, err := runCommand(t, NewPutCommand(cfg), "", "mem", "name")
		testutil.AssertErrorContains(t, err, "No value given")
	})
}

func TestReadValue(t *testing.T) {
	t.Parallel()

	v, err := readValue(strings.NewReader("secret\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "secret", v)

	v, err = readValue(strings.NewReader("two\nlines\n"))
	require.NoError(t, err)
	assert.Equal(t, "two\nlines", v)

	_, err = readValue(strings.NewReader("\n"))
	assert.Error(t, err)
}

func TestProviderArg(t *testing.T) {
	t.Parallel()

	doc := testutil.NewTestConfig(t).WithProvider("gcp", "memory", nil).Load()
	cfg := &config.Config{Document: doc}
	_, err := providerArg(cfg, nil)
	var ue dserrors.UserError
	require.ErrorAs(t, err, &ue)
	assert.Contains(t, ue.Suggestion, "default_provider")

	cfg.Document.Secrets.DefaultProvider = "gcp"
	id, err := providerArg(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "gcp", id)

	id, err = providerArg(cfg, []string{"aws"})
	require.NoError(t, err)
	assert.Equal(t, "aws", id)
}

// lockedBuffer is a bytes.Buffer safe for a writer and a reader goroutine
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func quietConfig(path string) *config.Config {
	return &config.Config{Path: path, Logger: logging.Discard()}
}
