package providers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/systmms/secretref/internal/config"
	dserrors "github.com/systmms/secretref/internal/errors"
	"github.com/systmms/secretref/internal/logging"
	"github.com/systmms/secretref/pkg/provider"
	"google.golang.org/api/impersonate"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GCPSecretManagerClientAPI is the subset of the Secret Manager client used
// by the provider. This allows for mocking in tests.
type GCPSecretManagerClientAPI interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error)
	AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest) (*secretmanagerpb.SecretVersion, error)
	CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest) (*secretmanagerpb.Secret, error)
	// ListSecretNames returns full resource names; limit <= 0 means all
	ListSecretNames(ctx context.Context, parent string, limit int) ([]string, error)
}

// gcpClient adapts *secretmanager.Client to GCPSecretManagerClientAPI
type gcpClient struct {
	client *secretmanager.Client
}

func (c gcpClient) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	return c.client.AccessSecretVersion(ctx, req)
}

func (c gcpClient) AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest) (*secretmanagerpb.SecretVersion, error) {
	return c.client.AddSecretVersion(ctx, req)
}

func (c gcpClient) CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest) (*secretmanagerpb.Secret, error) {
	return c.client.CreateSecret(ctx, req)
}

func (c gcpClient) ListSecretNames(ctx context.Context, parent string, limit int) ([]string, error) {
	req := &secretmanagerpb.ListSecretsRequest{Parent: parent}
	if limit > 0 {
		req.PageSize = int32(limit)
	}

	var names []string
	it := c.client.ListSecrets(ctx, req)
	for limit <= 0 || len(names) < limit {
		secret, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		names = append(names, secret.Name)
	}
	return names, nil
}

// GCPSecretManagerProvider implements the Provider interface for Google Cloud Secret Manager
type GCPSecretManagerProvider struct {
	name   string
	client GCPSecretManagerClientAPI
	logger *logging.Logger
	config GCPSecretManagerConfig
}

// GCPSecretManagerConfig holds GCP Secret Manager-specific configuration
type GCPSecretManagerConfig struct {
	ProjectID             string
	ServiceAccountKeyPath string
	ImpersonateAccount    string
}

// GCPOption configures a GCPSecretManagerProvider
type GCPOption func(*GCPSecretManagerProvider)

// WithGCPClient sets a custom Secret Manager client (for testing)
func WithGCPClient(client GCPSecretManagerClientAPI) GCPOption {
	return func(p *GCPSecretManagerProvider) { p.client = client }
}

// NewGCPSecretManagerProvider creates a new GCP Secret Manager provider
func NewGCPSecretManagerProvider(name string, cfg config.ProviderConfig, logger *logging.Logger, opts ...GCPOption) (*GCPSecretManagerProvider, error) {
	gcpConfig := GCPSecretManagerConfig{
		ProjectID:             cfg.String("project_id"),
		ServiceAccountKeyPath: cfg.CredentialsFile,
		ImpersonateAccount:    cfg.String("impersonate_service_account"),
	}
	if gcpConfig.ServiceAccountKeyPath == "" {
		gcpConfig.ServiceAccountKeyPath = cfg.String("service_account_key_path")
	}

	if gcpConfig.ProjectID == "" {
		gcpConfig.ProjectID = getGCPProjectID()
	}
	if gcpConfig.ProjectID == "" {
		return nil, dserrors.ConfigError{
			Field:      "project_id",
			Message:    "project_id is required for GCP Secret Manager",
			Suggestion: "Set project_id in config or GOOGLE_CLOUD_PROJECT environment variable",
		}
	}

	p := &GCPSecretManagerProvider{
		name:   name,
		logger: logger,
		config: gcpConfig,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.client == nil {
		client, err := createGCPSecretManagerClient(gcpConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCP Secret Manager client: %w", err)
		}
		p.client = gcpClient{client: client}
	}
	return p, nil
}

// createGCPSecretManagerClient creates a GCP Secret Manager client
func createGCPSecretManagerClient(cfg GCPSecretManagerConfig) (*secretmanager.Client, error) {
	ctx := context.Background()

	var clientOptions []option.ClientOption
	if cfg.ServiceAccountKeyPath != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(config.ExpandPath(cfg.ServiceAccountKeyPath)))
	}

	if cfg.ImpersonateAccount != "" {
		ts, err := impersonate.CredentialsTokenSource(ctx, impersonate.CredentialsConfig{
			TargetPrincipal: cfg.ImpersonateAccount,
			Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
		}, clientOptions...)
		if err != nil {
			return nil, fmt.Errorf("failed to create impersonated credentials: %w", err)
		}
		clientOptions = []option.ClientOption{option.WithTokenSource(ts)}
	}

	return secretmanager.NewClient(ctx, clientOptions...)
}

// getGCPProjectID reads the project from the usual environment variables
func getGCPProjectID() string {
	for _, key := range []string{"GOOGLE_CLOUD_PROJECT", "GCLOUD_PROJECT", "GCP_PROJECT"} {
		if projectID := os.Getenv(key); projectID != "" {
			return projectID
		}
	}
	return ""
}

// Name returns the provider name
func (p *GCPSecretManagerProvider) Name() string {
	return p.name
}

// Get accesses one secret version. The version is a number, an alias or
// "latest".
func (p *GCPSecretManagerProvider) Get(ctx context.Context, name, version string) (string, error) {
	resourceName := p.buildResourceName(name, version)
	p.logger.Debug("Accessing GCP secret: %s", resourceName)

	result, err := p.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: resourceName,
	})
	if err != nil {
		return "", p.translateError(err, name, version)
	}
	if result.Payload == nil {
		return "", provider.NotFoundError{Provider: p.name, Key: name, Version: version}
	}
	return string(result.Payload.Data), nil
}

// Put adds a new version holding value, creating the secret with automatic
// replication if needed. Writing the current value again is a no-op.
func (p *GCPSecretManagerProvider) Put(ctx context.Context, name, value string) error {
	current, err := p.Get(ctx, name, provider.LatestVersion)
	switch {
	case err == nil && current == value:
		return nil
	case err != nil && !provider.IsNotFound(err):
		return err
	case err != nil:
		_, err = p.client.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
			Parent:   p.projectPath(),
			SecretId: name,
			Secret: &secretmanagerpb.Secret{
				Replication: &secretmanagerpb.Replication{
					Replication: &secretmanagerpb.Replication_Automatic_{
						Automatic: &secretmanagerpb.Replication_Automatic{},
					},
				},
			},
		})
		// A secret without versions also reads as NotFound
		if err != nil && status.Code(err) != codes.AlreadyExists {
			return p.translateError(err, name, "")
		}
	}

	_, err = p.client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent:  p.secretPath(name),
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	})
	if err != nil {
		return p.translateError(err, name, "")
	}
	return nil
}

// List returns the short names of the project's secrets
func (p *GCPSecretManagerProvider) List(ctx context.Context) ([]string, error) {
	resources, err := p.client.ListSecretNames(ctx, p.projectPath(), 0)
	if err != nil {
		return nil, p.translateError(err, "", "")
	}
	names := make([]string, 0, len(resources))
	for _, r := range resources {
		if i := strings.LastIndex(r, "/secrets/"); i >= 0 {
			r = r[i+len("/secrets/"):]
		}
		names = append(names, r)
	}
	return names, nil
}

// TestConnection lists a single secret to verify access to the project
func (p *GCPSecretManagerProvider) TestConnection(ctx context.Context) (bool, string) {
	if _, err := p.client.ListSecretNames(ctx, p.projectPath(), 1); err != nil {
		return false, fmt.Sprintf("cannot list secrets in project %s: %v", p.config.ProjectID, p.translateError(err, "", ""))
	}
	return true, fmt.Sprintf("project %s reachable", p.config.ProjectID)
}

func (p *GCPSecretManagerProvider) projectPath() string {
	return "projects/" + p.config.ProjectID
}

func (p *GCPSecretManagerProvider) secretPath(name string) string {
	if strings.HasPrefix(name, "projects/") {
		return name
	}
	return p.projectPath() + "/secrets/" + name
}

// buildResourceName builds a version resource name. Names that are already
// full resource names are used as-is.
func (p *GCPSecretManagerProvider) buildResourceName(name, version string) string {
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/versions/") {
		return name
	}
	if version == "" {
		version = provider.LatestVersion
	}
	return p.secretPath(name) + "/versions/" + version
}

// translateError maps gRPC status codes onto provider errors. A disabled or
// destroyed version is reported as not found.
func (p *GCPSecretManagerProvider) translateError(err error, name, version string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return provider.Unavailable(p.name, err)
	}

	st, ok := status.FromError(err)
	if !ok {
		return provider.Unavailable(p.name, err)
	}
	switch st.Code() {
	case codes.NotFound, codes.FailedPrecondition:
		return provider.NotFoundError{Provider: p.name, Key: name, Version: version}
	case codes.PermissionDenied, codes.Unauthenticated:
		return provider.AuthError{Provider: p.name, Message: st.Message()}
	case codes.DeadlineExceeded, codes.Canceled:
		return provider.Unavailable(p.name, err)
	}
	return &provider.UnavailableError{Provider: p.name, Message: st.Code().String() + ": " + st.Message(), Err: err}
}
