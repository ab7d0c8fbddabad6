package providers

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/secretref/internal/config"
	"github.com/systmms/secretref/internal/logging"
	"github.com/systmms/secretref/pkg/provider"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// fakeGCPSecretManager keys versions by full secret resource name
type fakeGCPSecretManager struct {
	mu       sync.Mutex
	secrets  map[string][]string
	failWith error
	accesses int
}

func newFakeGCP() *fakeGCPSecretManager {
	return &fakeGCPSecretManager{secrets: map[string][]string{}}
}

func (f *fakeGCPSecretManager) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, status.FromContextError(err).Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accesses++
	if f.failWith != nil {
		return nil, f.failWith
	}

	secret, version, _ := strings.Cut(req.Name, "/versions/")
	versions, ok := f.secrets[secret]
	if !ok || len(versions) == 0 {
		return nil, status.Errorf(codes.NotFound, "Secret [%s] not found or has no versions", secret)
	}
	idx := len(versions)
	if version != "latest" {
		n, err := strconv.Atoi(version)
		if err != nil || n < 1 || n > len(versions) {
			return nil, status.Errorf(codes.NotFound, "Secret Version [%s] not found", req.Name)
		}
		idx = n
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Name:    secret + "/versions/" + strconv.Itoa(idx),
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(versions[idx-1])},
	}, nil
}

func (f *fakeGCPSecretManager) AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest) (*secretmanagerpb.SecretVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.secrets[req.Parent]; !ok {
		return nil, status.Errorf(codes.NotFound, "Secret [%s] not found", req.Parent)
	}
	f.secrets[req.Parent] = append(f.secrets[req.Parent], string(req.Payload.Data))
	return &secretmanagerpb.SecretVersion{Name: req.Parent + "/versions/" + strconv.Itoa(len(f.secrets[req.Parent]))}, nil
}

func (f *fakeGCPSecretManager) CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest) (*secretmanagerpb.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := req.Parent + "/secrets/" + req.SecretId
	if _, ok := f.secrets[name]; ok {
		return nil, status.Errorf(codes.AlreadyExists, "Secret [%s] already exists", name)
	}
	f.secrets[name] = nil
	return &secretmanagerpb.Secret{Name: name}, nil
}

func (f *fakeGCPSecretManager) ListSecretNames(ctx context.Context, parent string, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	var names []string
	for name := range f.secrets {
		if strings.HasPrefix(name, parent+"/secrets/") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}

func newTestGCP(t *testing.T, client GCPSecretManagerClientAPI) *GCPSecretManagerProvider {
	t.Helper()
	cfg := config.ProviderConfig{Type: "gcp.secretmanager", Config: map[string]interface{}{"project_id": "test-project"}}
	p, err := NewGCPSecretManagerProvider("gcp", cfg, logging.Discard(), WithGCPClient(client))
	require.NoError(t, err)
	return p
}

func TestGCPSecretManagerProvider_Contract(t *testing.T) {
	client := newFakeGCP()

	provider.RunContractTests(t, provider.ContractTest{
		CreateProvider: func(t *testing.T) provider.Provider {
			return newTestGCP(t, client)
		},
		SetupTestSecret: func(t *testing.T, p provider.Provider) (string, func()) {
			client.mu.Lock()
			client.secrets["projects/test-project/secrets/db-password"] = []string{"v1"}
			client.mu.Unlock()
			return "db-password", func() {}
		},
	})
}

func TestGCPSecretManagerProvider_Versions(t *testing.T) {
	t.Parallel()

	client := newFakeGCP()
	client.secrets["projects/test-project/secrets/api-key"] = []string{"first", "second"}
	p := newTestGCP(t, client)

	got, err := p.Get(context.Background(), "api-key", "1")
	require.NoError(t, err)
	assert.Equal(t, "first", got)

	got, err = p.Get(context.Background(), "api-key", provider.LatestVersion)
	require.NoError(t, err)
	assert.Equal(t, "second", got)

	full, err := p.Get(context.Background(), "projects/test-project/secrets/api-key/versions/1", provider.LatestVersion)
	require.NoError(t, err)
	assert.Equal(t, "first", full)
}

func TestGCPSecretManagerProvider_PutCreatesThenAddsVersions(t *testing.T) {
	t.Parallel()

	client := newFakeGCP()
	p := newTestGCP(t, client)
	ctx := context.Background()

	require.NoError(t, p.Put(ctx, "token", "a"))
	require.NoError(t, p.Put(ctx, "token", "a"))
	require.NoError(t, p.Put(ctx, "token", "b"))

	assert.Equal(t, []string{"a", "b"}, client.secrets["projects/test-project/secrets/token"])
}

func TestGCPSecretManagerProvider_ErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"not found", status.Error(codes.NotFound, "missing"), provider.IsNotFound},
		{"disabled version", status.Error(codes.FailedPrecondition, "version is disabled"), provider.IsNotFound},
		{"permission denied", status.Error(codes.PermissionDenied, "denied"), provider.IsPermissionDenied},
		{"unauthenticated", status.Error(codes.Unauthenticated, "bad token"), provider.IsPermissionDenied},
		{"unavailable", status.Error(codes.Unavailable, "connection reset"), provider.IsUnavailable},
		{"rate limited", status.Error(codes.ResourceExhausted, "quota"), provider.IsUnavailable},
		{"plain error", assert.AnError, provider.IsUnavailable},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := newFakeGCP()
			client.failWith = tt.err
			_, err := newTestGCP(t, client).Get(context.Background(), "k", provider.LatestVersion)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}
}

func TestGCPSecretManagerProvider_ListAndTestConnection(t *testing.T) {
	t.Parallel()

	client := newFakeGCP()
	client.secrets["projects/test-project/secrets/b"] = []string{"1"}
	client.secrets["projects/test-project/secrets/a"] = []string{"1"}
	client.secrets["projects/other/secrets/c"] = []string{"1"}
	p := newTestGCP(t, client)

	names, err := p.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	ok, detail := p.TestConnection(context.Background())
	assert.True(t, ok)
	assert.Contains(t, detail, "test-project")

	client.failWith = status.Error(codes.PermissionDenied, "denied")
	ok, _ = p.TestConnection(context.Background())
	assert.False(t, ok)
}

func TestNewGCPSecretManagerProvider_RequiresProject(t *testing.T) {
	for _, key := range []string{"GOOGLE_CLOUD_PROJECT", "GCLOUD_PROJECT", "GCP_PROJECT"} {
		t.Setenv(key, "")
	}

	_, err := NewGCPSecretManagerProvider("gcp", config.ProviderConfig{Type: "gcp.secretmanager"}, logging.Discard(), WithGCPClient(newFakeGCP()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project_id")

	t.Setenv("GOOGLE_CLOUD_PROJECT", "from-env")
	p, err := NewGCPSecretManagerProvider("gcp", config.ProviderConfig{Type: "gcp.secretmanager"}, logging.Discard(), WithGCPClient(newFakeGCP()))
	require.NoError(t, err)
	assert.Equal(t, "from-env", p.config.ProjectID)
}
