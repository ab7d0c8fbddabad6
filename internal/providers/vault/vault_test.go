package vault

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/secretref/internal/config"
	"github.com/systmms/secretref/internal/logging"
	"github.com/systmms/secretref/pkg/provider"
)

// kvServer emulates the parts of a KV v2 mount the provider uses
type kvServer struct {
	t     *testing.T
	token string

	mu       sync.Mutex
	versions map[string][]string
	logins   int
}

func newKVServer(t *testing.T, token string) (*kvServer, *httptest.Server) {
	kv := &kvServer{t: t, token: token, versions: map[string][]string{}}
	srv := httptest.NewServer(kv)
	t.Cleanup(srv.Close)
	return kv, srv
}

func (kv *kvServer) put(path, value string) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.versions[path] = append(kv.versions[path], value)
}

func (kv *kvServer) writeErr(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string][]string{"errors": {msg}})
}

func (kv *kvServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/v1/")

	if path == "auth/userpass/login/alice" {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "wonderland" {
			kv.writeErr(w, http.StatusBadRequest, "invalid username or password")
			return
		}
		kv.logins++
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"auth": map[string]interface{}{"client_token": kv.token, "lease_duration": 3600},
		})
		return
	}

	if r.Header.Get("X-Vault-Token") != kv.token {
		kv.writeErr(w, http.StatusForbidden, "permission denied")
		return
	}

	switch {
	case path == "auth/token/lookup-self":
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]string{"display_name": "token-test"}})

	case strings.HasPrefix(path, "secret/data/") && r.Method == http.MethodGet:
		name := strings.TrimPrefix(path, "secret/data/")
		versions := kv.versions[name]
		idx := len(versions)
		if v := r.URL.Query().Get("version"); v != "" {
			idx, _ = strconv.Atoi(v)
		}
		if idx < 1 || idx > len(versions) {
			kv.writeErr(w, http.StatusNotFound, "")
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"data":     map[string]string{"value": versions[idx-1]},
				"metadata": map[string]int{"version": idx},
			},
		})

	case strings.HasPrefix(path, "secret/data/") && r.Method == http.MethodPost:
		name := strings.TrimPrefix(path, "secret/data/")
		var body struct {
			Data map[string]string `json:"data"`
		}
		require.NoError(kv.t, json.NewDecoder(r.Body).Decode(&body))
		kv.versions[name] = append(kv.versions[name], body.Data["value"])
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":{}}`))

	case strings.HasPrefix(path, "secret/metadata") && r.Method == "LIST":
		prefix := strings.TrimPrefix(strings.TrimPrefix(path, "secret/metadata"), "/")
		seen := map[string]bool{}
		for name := range kv.versions {
			if !strings.HasPrefix(name, prefix) {
				continue
			}
			rest := strings.TrimPrefix(name, prefix)
			if i := strings.Index(rest, "/"); i >= 0 {
				rest = rest[:i+1]
			}
			seen[rest] = true
		}
		if len(seen) == 0 {
			kv.writeErr(w, http.StatusNotFound, "")
			return
		}
		keys := make([]string, 0, len(seen))
		for k := range seen {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string][]string{"keys": keys}})

	default:
		kv.writeErr(w, http.StatusServiceUnavailable, "unexpected request "+r.Method+" "+path)
	}
}

func newTestProvider(t *testing.T, address string, extra map[string]interface{}) *VaultProvider {
	t.Helper()
	cfg := config.ProviderConfig{Type: "vault", Config: map[string]interface{}{"address": address}}
	for k, v := range extra {
		cfg.Config[k] = v
	}
	p, err := NewVaultProvider("vault", cfg, logging.Discard())
	require.NoError(t, err)
	return p
}

func TestVaultProvider_Contract(t *testing.T) {
	kv, srv := newKVServer(t, "root-token")

	provider.RunContractTests(t, provider.ContractTest{
		CreateProvider: func(t *testing.T) provider.Provider {
			return newTestProvider(t, srv.URL, map[string]interface{}{"token": "root-token"})
		},
		SetupTestSecret: func(t *testing.T, p provider.Provider) (string, func()) {
			kv.put("app/db/password", "hunter2")
			return "app/db/password", func() {}
		},
	})
}

func TestVaultProvider_GetVersions(t *testing.T) {
	kv, srv := newKVServer(t, "root-token")
	kv.put("api/key", "v1-value")
	kv.put("api/key", "v2-value")

	p := newTestProvider(t, srv.URL, map[string]interface{}{"token": "root-token"})
	ctx := context.Background()

	latest, err := p.Get(ctx, "api/key", provider.LatestVersion)
	require.NoError(t, err)
	assert.Equal(t, "v2-value", latest)

	first, err := p.Get(ctx, "api/key", "1")
	require.NoError(t, err)
	assert.Equal(t, "v1-value", first)

	_, err = p.Get(ctx, "api/key", "9")
	assert.True(t, provider.IsNotFound(err))

	_, err = p.Get(ctx, "api/key", "stable")
	assert.True(t, provider.IsNotFound(err), "non-numeric versions do not exist in KV v2")
}

func TestVaultProvider_ErrorClassification(t *testing.T) {
	_, srv := newKVServer(t, "root-token")

	p := newTestProvider(t, srv.URL, map[string]interface{}{"token": "wrong-token"})
	_, err := p.Get(context.Background(), "api/key", provider.LatestVersion)
	assert.True(t, provider.IsPermissionDenied(err), "got %v", err)

	ok, detail := p.TestConnection(context.Background())
	assert.False(t, ok)
	assert.Contains(t, detail, "token lookup failed")

	down := newTestProvider(t, "http://127.0.0.1:1", map[string]interface{}{"token": "t"})
	_, err = down.Get(context.Background(), "api/key", provider.LatestVersion)
	assert.True(t, provider.IsUnavailable(err), "got %v", err)
}

func TestVaultProvider_PutIsIdempotent(t *testing.T) {
	kv, srv := newKVServer(t, "root-token")
	p := newTestProvider(t, srv.URL, map[string]interface{}{"token": "root-token"})
	ctx := context.Background()

	require.NoError(t, p.Put(ctx, "svc/token", "abc"))
	require.NoError(t, p.Put(ctx, "svc/token", "abc"))
	require.NoError(t, p.Put(ctx, "svc/token", "def"))

	kv.mu.Lock()
	defer kv.mu.Unlock()
	assert.Equal(t, []string{"abc", "def"}, kv.versions["svc/token"])
}

func TestVaultProvider_ListRecurses(t *testing.T) {
	kv, srv := newKVServer(t, "root-token")
	kv.put("top", "1")
	kv.put("app/db/password", "2")
	kv.put("app/api", "3")

	p := newTestProvider(t, srv.URL, map[string]interface{}{"token": "root-token"})
	names, err := p.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"app/api", "app/db/password", "top"}, names)
}

func TestVaultProvider_UserpassLoginIsReused(t *testing.T) {
	kv, srv := newKVServer(t, "issued-token")
	kv.put("k", "v")

	p := newTestProvider(t, srv.URL, map[string]interface{}{
		"auth_method": "userpass",
		"username":    "alice",
		"password":    "wonderland",
	})
	for i := 0; i < 3; i++ {
		got, err := p.Get(context.Background(), "k", provider.LatestVersion)
		require.NoError(t, err)
		assert.Equal(t, "v", got)
	}

	kv.mu.Lock()
	defer kv.mu.Unlock()
	assert.Equal(t, 1, kv.logins)
}

func TestVaultProvider_TokenFile(t *testing.T) {
	kv, srv := newKVServer(t, "file-token")
	kv.put("k", "from-file")

	tokenFile := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(tokenFile, []byte("file-token\n"), 0600))

	cfg := config.ProviderConfig{
		Type:            "vault",
		CredentialsFile: tokenFile,
		Config:          map[string]interface{}{"address": srv.URL},
	}
	p, err := NewVaultProvider("vault", cfg, logging.Discard())
	require.NoError(t, err)

	if os.Getenv("VAULT_TOKEN") != "" {
		t.Skip("VAULT_TOKEN in environment takes precedence over the token file")
	}
	got, err := p.Get(context.Background(), "k", provider.LatestVersion)
	require.NoError(t, err)
	assert.Equal(t, "from-file", got)
}

func TestNewVaultProvider_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		config map[string]interface{}
		field  string
	}{
		{"unknown method", map[string]interface{}{"auth_method": "magic"}, "auth_method"},
		{"userpass without username", map[string]interface{}{"auth_method": "userpass"}, "username"},
		{"approle without role", map[string]interface{}{"auth_method": "approle"}, "role_id"},
		{"k8s without role", map[string]interface{}{"auth_method": "k8s"}, "k8s_role"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewVaultProvider("vault", config.ProviderConfig{Type: "vault", Config: tt.config}, logging.Discard())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}
