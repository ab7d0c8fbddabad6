package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/secretref/internal/config"
	"github.com/systmms/secretref/internal/logging"
	"github.com/systmms/secretref/pkg/provider"
)

func TestRegistry_SupportedTypes(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	assert.Equal(t, []string{
		"akeyless",
		"aws.secretsmanager",
		"aws.ssm",
		"azure.keyvault",
		"env",
		"gcp.secretmanager",
		"keychain",
		"memory",
		"vault",
	}, r.GetSupportedTypes())

	assert.True(t, r.IsSupported("memory"))
	assert.False(t, r.IsSupported("onepassword"))
}

func TestRegistry_CreateProvider(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	cfg := config.ProviderConfig{Type: "memory", Config: map[string]interface{}{
		"values": map[string]interface{}{"k": "v"},
	}}

	p, err := r.CreateProvider("dev", cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "dev", p.Name())

	got, err := p.Get(context.Background(), "k", provider.LatestVersion)
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestRegistry_Errors(t *testing.T) {
	t.Parallel()

	r := NewRegistry()

	_, err := r.CreateProvider("x", config.ProviderConfig{Type: "doppler"}, logging.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider type")
	assert.Contains(t, err.Error(), "aws.secretsmanager")

	p, err := r.CreateProvider("az", config.ProviderConfig{Type: "azure.keyvault"}, logging.Discard())
	require.Error(t, err)
	assert.Nil(t, p, "failed factories return a nil interface")
	assert.Contains(t, err.Error(), `azure.keyvault provider "az"`)
}

func TestRegistry_RegisterFactory(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.RegisterFactory("static", func(name string, cfg config.ProviderConfig, logger *logging.Logger) (provider.Provider, error) {
		return NewMemoryProvider(name, cfg, logger), nil
	})

	assert.True(t, r.IsSupported("static"))
	p, err := r.CreateProvider("s", config.ProviderConfig{Type: "static"}, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, "s", p.Name())
}
