package providers

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/secretref/internal/config"
	"github.com/systmms/secretref/internal/logging"
	"github.com/systmms/secretref/pkg/provider"
)

func apiError(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code + " returned by fake"}
}

// fakeSecretsManager keeps every version of a secret, current last
type fakeSecretsManager struct {
	mu       sync.Mutex
	versions map[string][]string
	failWith error
	gets     int
}

func newFakeSecretsManager() *fakeSecretsManager {
	return &fakeSecretsManager{versions: map[string][]string{}}
}

func (f *fakeSecretsManager) GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.failWith != nil {
		return nil, f.failWith
	}

	versions := f.versions[aws.ToString(in.SecretId)]
	idx := len(versions) - 1
	switch aws.ToString(in.VersionStage) {
	case "", "AWSCURRENT":
	case "AWSPREVIOUS":
		idx--
	default:
		idx = -1
	}
	if idx < 0 {
		return nil, apiError("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(versions[idx])}, nil
}

func (f *fakeSecretsManager) ListSecrets(ctx context.Context, _ *secretsmanager.ListSecretsInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	out := &secretsmanager.ListSecretsOutput{}
	for name := range f.versions {
		out.SecretList = append(out.SecretList, smtypes.SecretListEntry{Name: aws.String(name)})
	}
	return out, nil
}

func (f *fakeSecretsManager) CreateSecret(ctx context.Context, in *secretsmanager.CreateSecretInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.Name)
	if _, ok := f.versions[name]; ok {
		return nil, apiError("ResourceExistsException")
	}
	f.versions[name] = []string{aws.ToString(in.SecretString)}
	return &secretsmanager.CreateSecretOutput{Name: in.Name}, nil
}

func (f *fakeSecretsManager) PutSecretValue(ctx context.Context, in *secretsmanager.PutSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.SecretId)
	if _, ok := f.versions[name]; !ok {
		return nil, apiError("ResourceNotFoundException")
	}
	f.versions[name] = append(f.versions[name], aws.ToString(in.SecretString))
	return &secretsmanager.PutSecretValueOutput{Name: in.SecretId}, nil
}

func (f *fakeSecretsManager) set(name string, versions ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.versions[name] = versions
}

type fakeSTS struct {
	err error
}

func (f fakeSTS) GetCallerIdentity(ctx context.Context, _ *sts.GetCallerIdentityInput, _ ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &sts.GetCallerIdentityOutput{Arn: aws.String("arn:aws:iam::123456789012:user/test")}, nil
}

func newTestSecretsManager(t *testing.T, client *fakeSecretsManager, identity STSClientAPI) *AWSSecretsManagerProvider {
	t.Helper()
	p, err := NewAWSSecretsManagerProvider("aws", config.ProviderConfig{Type: "aws.secretsmanager"}, logging.Discard(),
		WithSecretsManagerClient(client), WithSTSClient(identity))
	require.NoError(t, err)
	return p
}

func TestAWSSecretsManagerProvider_Contract(t *testing.T) {
	client := newFakeSecretsManager()

	provider.RunContractTests(t, provider.ContractTest{
		CreateProvider: func(t *testing.T) provider.Provider {
			return newTestSecretsManager(t, client, fakeSTS{})
		},
		SetupTestSecret: func(t *testing.T, p provider.Provider) (string, func()) {
			client.set("prod/db/password", "s3cret")
			return "prod/db/password", func() {}
		},
	})
}

func TestAWSSecretsManagerProvider_VersionStage(t *testing.T) {
	t.Parallel()

	client := newFakeSecretsManager()
	client.set("api-key", "old", "new")
	p := newTestSecretsManager(t, client, fakeSTS{})

	current, err := p.Get(context.Background(), "api-key", provider.LatestVersion)
	require.NoError(t, err)
	assert.Equal(t, "new", current)

	previous, err := p.Get(context.Background(), "api-key", "AWSPREVIOUS")
	require.NoError(t, err)
	assert.Equal(t, "old", previous)
}

func TestAWSSecretsManagerProvider_PutIsIdempotent(t *testing.T) {
	t.Parallel()

	client := newFakeSecretsManager()
	p := newTestSecretsManager(t, client, fakeSTS{})
	ctx := context.Background()

	require.NoError(t, p.Put(ctx, "token", "a"))
	require.NoError(t, p.Put(ctx, "token", "a"))
	require.NoError(t, p.Put(ctx, "token", "b"))

	assert.Equal(t, []string{"a", "b"}, client.versions["token"])
}

func TestAWSError_Classification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"resource not found", apiError("ResourceNotFoundException"), provider.IsNotFound},
		{"parameter not found", apiError("ParameterNotFound"), provider.IsNotFound},
		{"access denied", apiError("AccessDeniedException"), provider.IsPermissionDenied},
		{"expired token", apiError("ExpiredTokenException"), provider.IsPermissionDenied},
		{"kms denied", apiError("KMSAccessDeniedException"), provider.IsPermissionDenied},
		{"throttled", apiError("ThrottlingException"), provider.IsUnavailable},
		{"internal", apiError("InternalServiceError"), provider.IsUnavailable},
		{"deadline", context.DeadlineExceeded, provider.IsUnavailable},
		{"transport", assert.AnError, provider.IsUnavailable},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := awsError("aws", "key", "", tt.err)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}

	assert.NoError(t, awsError("aws", "key", "", nil))
}

func TestAWSSecretsManagerProvider_TestConnection(t *testing.T) {
	t.Parallel()

	ok, detail := newTestSecretsManager(t, newFakeSecretsManager(), fakeSTS{}).TestConnection(context.Background())
	assert.True(t, ok)
	assert.Contains(t, detail, "arn:aws:iam::123456789012:user/test")

	ok, detail = newTestSecretsManager(t, newFakeSecretsManager(), fakeSTS{err: apiError("InvalidClientTokenId")}).TestConnection(context.Background())
	assert.False(t, ok)
	assert.Contains(t, detail, "authentication failed")

	denied := newFakeSecretsManager()
	denied.failWith = apiError("AccessDeniedException")
	ok, detail = newTestSecretsManager(t, denied, fakeSTS{}).TestConnection(context.Background())
	assert.False(t, ok)
	assert.Contains(t, detail, "cannot list secrets")
}

func TestIsVersionID(t *testing.T) {
	t.Parallel()

	assert.True(t, isVersionID("a1b2c3d4-5678-90ab-cdef-EXAMPLE11111"))
	assert.False(t, isVersionID("AWSPREVIOUS"))
	assert.False(t, isVersionID("3"))
}

// fakeSSM stores parameter versions, newest last
type fakeSSM struct {
	mu     sync.Mutex
	params map[string][]string
}

func newFakeSSM() *fakeSSM {
	return &fakeSSM{params: map[string][]string{}}
}

func (f *fakeSSM) GetParameter(ctx context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(in.Name)
	selector := ""
	if i := strings.LastIndex(name, ":"); i >= 0 {
		name, selector = name[:i], name[i+1:]
	}
	versions, ok := f.params[name]
	if !ok {
		return nil, apiError("ParameterNotFound")
	}
	idx := len(versions)
	if selector != "" {
		n, err := strconv.Atoi(selector)
		if err != nil || n < 1 || n > len(versions) {
			return nil, apiError("ParameterVersionNotFound")
		}
		idx = n
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{
		Name:    aws.String(name),
		Value:   aws.String(versions[idx-1]),
		Version: int64(idx),
	}}, nil
}

func (f *fakeSSM) GetParametersByPath(ctx context.Context, in *ssm.GetParametersByPathInput, _ ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &ssm.GetParametersByPathOutput{}
	for _, name := range f.sortedNames() {
		if strings.HasPrefix(name, aws.ToString(in.Path)) {
			out.Parameters = append(out.Parameters, ssmtypes.Parameter{Name: aws.String(name)})
		}
	}
	return out, nil
}

func (f *fakeSSM) PutParameter(ctx context.Context, in *ssm.PutParameterInput, _ ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.Name)
	f.params[name] = append(f.params[name], aws.ToString(in.Value))
	return &ssm.PutParameterOutput{Version: int64(len(f.params[name]))}, nil
}

func (f *fakeSSM) DescribeParameters(ctx context.Context, _ *ssm.DescribeParametersInput, _ ...func(*ssm.Options)) (*ssm.DescribeParametersOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &ssm.DescribeParametersOutput{}
	for _, name := range f.sortedNames() {
		out.Parameters = append(out.Parameters, ssmtypes.ParameterMetadata{Name: aws.String(name)})
	}
	return out, nil
}

func (f *fakeSSM) sortedNames() []string {
	names := make([]string, 0, len(f.params))
	for name := range f.params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newTestSSM(t *testing.T, client *fakeSSM, prefix string) *AWSSSMProvider {
	t.Helper()
	cfg := config.ProviderConfig{Type: "aws.ssm", Config: map[string]interface{}{"parameter_prefix": prefix}}
	p, err := NewAWSSSMProvider("ssm", cfg, logging.Discard(), WithSSMClient(client), WithSTSClient(fakeSTS{}))
	require.NoError(t, err)
	return p
}

func TestAWSSSMProvider_Contract(t *testing.T) {
	client := newFakeSSM()

	provider.RunContractTests(t, provider.ContractTest{
		CreateProvider: func(t *testing.T) provider.Provider {
			return newTestSSM(t, client, "/myapp/")
		},
		SetupTestSecret: func(t *testing.T, p provider.Provider) (string, func()) {
			client.mu.Lock()
			client.params["/myapp/db/password"] = []string{"hunter2"}
			client.mu.Unlock()
			return "db/password", func() {}
		},
	})
}

func TestAWSSSMProvider_VersionSelector(t *testing.T) {
	t.Parallel()

	client := newFakeSSM()
	client.params["/svc/key"] = []string{"one", "two"}
	p := newTestSSM(t, client, "/svc/")

	got, err := p.Get(context.Background(), "key", "1")
	require.NoError(t, err)
	assert.Equal(t, "one", got)

	got, err = p.Get(context.Background(), "key", provider.LatestVersion)
	require.NoError(t, err)
	assert.Equal(t, "two", got)

	_, err = p.Get(context.Background(), "key", "7")
	assert.True(t, provider.IsNotFound(err), "got %v", err)
}

func TestAWSSSMProvider_ListWithoutPathPrefix(t *testing.T) {
	t.Parallel()

	client := newFakeSSM()
	client.params["app.db"] = []string{"x"}
	client.params["app.api"] = []string{"y"}
	client.params["other"] = []string{"z"}

	names, err := newTestSSM(t, client, "app.").List(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"db", "api"}, names)
}
