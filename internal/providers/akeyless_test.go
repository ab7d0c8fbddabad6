package providers

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/secretref/internal/config"
	"github.com/systmms/secretref/internal/logging"
	"github.com/systmms/secretref/pkg/provider"
)

// fakeAkeyless keeps versions per absolute item path, newest last
type fakeAkeyless struct {
	mu       sync.Mutex
	items    map[string][]string
	logins   int
	authErr  error
	failWith error
	token    string
}

func newFakeAkeyless() *fakeAkeyless {
	return &fakeAkeyless{items: map[string][]string{}, token: "t-1"}
}

func (f *fakeAkeyless) Authenticate(ctx context.Context) (string, time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.authErr != nil {
		return "", 0, f.authErr
	}
	f.logins++
	return f.token, time.Hour, nil
}

func (f *fakeAkeyless) check(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.failWith != nil {
		return f.failWith
	}
	if token != f.token {
		return &AkeylessError{Op: "get", StatusCode: http.StatusUnauthorized, Message: "invalid token"}
	}
	return nil
}

func (f *fakeAkeyless) GetSecret(ctx context.Context, token, path string, version *int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(ctx, token); err != nil {
		return "", err
	}
	versions := f.items[path]
	idx := len(versions)
	if version != nil {
		idx = *version
	}
	if idx < 1 || idx > len(versions) {
		return "", &AkeylessError{Op: "get", Path: path, StatusCode: http.StatusNotFound, Message: "itemNotFound"}
	}
	return versions[idx-1], nil
}

func (f *fakeAkeyless) CreateSecret(ctx context.Context, token, path, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(ctx, token); err != nil {
		return err
	}
	f.items[path] = []string{value}
	return nil
}

func (f *fakeAkeyless) UpdateSecret(ctx context.Context, token, path, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(ctx, token); err != nil {
		return err
	}
	f.items[path] = append(f.items[path], value)
	return nil
}

func (f *fakeAkeyless) ListItems(ctx context.Context, token, path string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(ctx, token); err != nil {
		return nil, err
	}
	var paths []string
	for p := range f.items {
		if strings.HasPrefix(p, path) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func newTestAkeyless(client *fakeAkeyless) *AkeylessProvider {
	return NewAkeylessProviderWithClient("akeyless", AkeylessConfig{AccessID: "p-test", GatewayURL: DefaultAkeylessGateway}, logging.Discard(), client)
}

func TestAkeylessProvider_Contract(t *testing.T) {
	client := newFakeAkeyless()

	provider.RunContractTests(t, provider.ContractTest{
		CreateProvider: func(t *testing.T) provider.Provider {
			return newTestAkeyless(client)
		},
		SetupTestSecret: func(t *testing.T, p provider.Provider) (string, func()) {
			client.mu.Lock()
			client.items["/prod/db/password"] = []string{"hunter2"}
			client.mu.Unlock()
			return "prod/db/password", func() {}
		},
	})
}

func TestAkeylessProvider_TokenIsCached(t *testing.T) {
	t.Parallel()

	client := newFakeAkeyless()
	client.items["/k"] = []string{"v"}
	p := newTestAkeyless(client)

	for i := 0; i < 3; i++ {
		got, err := p.Get(context.Background(), "k", provider.LatestVersion)
		require.NoError(t, err)
		assert.Equal(t, "v", got)
	}
	assert.Equal(t, 1, client.logins)
}

func TestAkeylessProvider_RejectedTokenIsDropped(t *testing.T) {
	t.Parallel()

	client := newFakeAkeyless()
	client.items["/k"] = []string{"v"}
	p := newTestAkeyless(client)

	_, err := p.Get(context.Background(), "k", provider.LatestVersion)
	require.NoError(t, err)

	client.mu.Lock()
	client.token = "t-2"
	client.mu.Unlock()

	_, err = p.Get(context.Background(), "k", provider.LatestVersion)
	assert.True(t, provider.IsPermissionDenied(err), "got %v", err)

	got, err := p.Get(context.Background(), "k", provider.LatestVersion)
	require.NoError(t, err, "next call logs in again")
	assert.Equal(t, "v", got)
	assert.Equal(t, 2, client.logins)
}

func TestAkeylessProvider_VersionsAndPut(t *testing.T) {
	t.Parallel()

	client := newFakeAkeyless()
	p := newTestAkeyless(client)
	ctx := context.Background()

	require.NoError(t, p.Put(ctx, "svc/token", "a"))
	require.NoError(t, p.Put(ctx, "svc/token", "a"))
	require.NoError(t, p.Put(ctx, "svc/token", "b"))
	assert.Equal(t, []string{"a", "b"}, client.items["/svc/token"])

	first, err := p.Get(ctx, "svc/token", "1")
	require.NoError(t, err)
	assert.Equal(t, "a", first)

	_, err = p.Get(ctx, "svc/token", "latest-ish")
	assert.True(t, provider.IsNotFound(err))
}

func TestAkeylessProvider_ErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"rate limited", &AkeylessError{Op: "get", StatusCode: http.StatusTooManyRequests, Message: "slow down"}, provider.IsUnavailable},
		{"server error", &AkeylessError{Op: "get", StatusCode: http.StatusBadGateway, Message: "bad gateway"}, provider.IsUnavailable},
		{"forbidden", &AkeylessError{Op: "get", StatusCode: http.StatusForbidden, Message: "no access"}, provider.IsPermissionDenied},
		{"transport", assert.AnError, provider.IsUnavailable},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := newFakeAkeyless()
			client.failWith = tt.err
			_, err := newTestAkeyless(client).Get(context.Background(), "k", provider.LatestVersion)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}

	client := newFakeAkeyless()
	client.authErr = &AkeylessError{Op: "auth", StatusCode: http.StatusUnauthorized, Message: "bad access key"}
	ok, detail := newTestAkeyless(client).TestConnection(context.Background())
	assert.False(t, ok)
	assert.Contains(t, detail, "authentication failed")
}

func TestParseAkeylessConfig(t *testing.T) {
	t.Setenv("AKEYLESS_ACCESS_KEY", "from-env")

	_, err := parseAkeylessConfig(config.ProviderConfig{Type: "akeyless"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access_id")

	cfg, err := parseAkeylessConfig(config.ProviderConfig{Type: "akeyless", Config: map[string]interface{}{
		"access_id": "p-123",
	}})
	require.NoError(t, err)
	assert.Equal(t, DefaultAkeylessGateway, cfg.GatewayURL)
	assert.Equal(t, "from-env", cfg.Auth.AccessKey)

	cfg, err = parseAkeylessConfig(config.ProviderConfig{Type: "akeyless", Config: map[string]interface{}{
		"access_id":   "p-123",
		"gateway_url": "https://gw.internal:8080",
		"auth":        map[string]interface{}{"method": "aws_iam"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "aws_iam", cfg.Auth.Method)
	assert.Empty(t, cfg.Auth.AccessKey)
	assert.Equal(t, "https://gw.internal:8080", cfg.GatewayURL)
}
