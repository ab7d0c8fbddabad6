package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/systmms/secretref/internal/config"
	dserrors "github.com/systmms/secretref/internal/errors"
	"github.com/systmms/secretref/internal/logging"
	"github.com/systmms/secretref/internal/providers/contracts"
	"github.com/systmms/secretref/pkg/provider"
)

// DefaultAkeylessGateway is the public Akeyless API
const DefaultAkeylessGateway = "https://api.akeyless.io"

// AkeylessConfig holds configuration for the Akeyless provider
type AkeylessConfig struct {
	// AccessID is the Akeyless access ID (required)
	AccessID string

	// GatewayURL is the custom gateway URL for enterprise deployments
	GatewayURL string

	// Auth contains authentication configuration
	Auth AkeylessAuth

	// ListPath is the folder enumerated by List, default "/"
	ListPath string

	// Timeout for API requests
	Timeout time.Duration
}

// AkeylessAuth defines authentication method for Akeyless
type AkeylessAuth struct {
	// Method is one of "api_key", "aws_iam", "azure_ad", "gcp"
	Method string

	// AccessKey for API key auth
	AccessKey string

	// AzureADObjectID for Azure AD auth
	AzureADObjectID string

	// GCPAudience for GCP auth
	GCPAudience string
}

// AkeylessProvider implements the provider interface for Akeyless static
// secrets
type AkeylessProvider struct {
	name       string
	config     AkeylessConfig
	logger     *logging.Logger
	client     contracts.AkeylessClient
	tokenCache *TokenCache
}

// NewAkeylessProvider creates a new Akeyless provider
func NewAkeylessProvider(name string, cfg config.ProviderConfig, logger *logging.Logger) (*AkeylessProvider, error) {
	akCfg, err := parseAkeylessConfig(cfg)
	if err != nil {
		return nil, err
	}
	return NewAkeylessProviderWithClient(name, akCfg, logger, newAkeylessSDKClient(akCfg)), nil
}

// NewAkeylessProviderWithClient creates an Akeyless provider with a custom client.
// This is primarily for testing, allowing the SDK client to be mocked.
func NewAkeylessProviderWithClient(name string, cfg AkeylessConfig, logger *logging.Logger, client contracts.AkeylessClient) *AkeylessProvider {
	if cfg.ListPath == "" {
		cfg.ListPath = "/"
	}
	return &AkeylessProvider{
		name:       name,
		config:     cfg,
		logger:     logger,
		client:     client,
		tokenCache: NewTokenCache(),
	}
}

// parseAkeylessConfig reads the provider settings. The access key may come
// from credentials_file or AKEYLESS_ACCESS_KEY.
func parseAkeylessConfig(cfg config.ProviderConfig) (AkeylessConfig, error) {
	akCfg := AkeylessConfig{
		AccessID:   cfg.String("access_id"),
		GatewayURL: cfg.String("gateway_url"),
		ListPath:   cfg.String("list_path"),
		Timeout:    cfg.Timeout(),
	}
	if akCfg.GatewayURL == "" {
		akCfg.GatewayURL = DefaultAkeylessGateway
	}

	if auth, ok := cfg.Config["auth"].(map[string]interface{}); ok {
		akCfg.Auth.Method, _ = auth["method"].(string)
		akCfg.Auth.AccessKey, _ = auth["access_key"].(string)
		akCfg.Auth.AzureADObjectID, _ = auth["azure_ad_object_id"].(string)
		akCfg.Auth.GCPAudience, _ = auth["gcp_audience"].(string)
	}

	if akCfg.AccessID == "" {
		return akCfg, dserrors.ConfigError{
			Field:      "access_id",
			Message:    "access_id is required for Akeyless",
			Suggestion: "Set access_id to your Akeyless access ID (p-xxxxxxxx)",
		}
	}

	if akCfg.Auth.Method == "" || akCfg.Auth.Method == "api_key" {
		if akCfg.Auth.AccessKey == "" && cfg.CredentialsFile != "" {
			data, err := os.ReadFile(config.ExpandPath(cfg.CredentialsFile))
			if err != nil {
				return akCfg, fmt.Errorf("failed to read Akeyless access key file: %w", err)
			}
			akCfg.Auth.AccessKey = strings.TrimSpace(string(data))
		}
		if akCfg.Auth.AccessKey == "" {
			akCfg.Auth.AccessKey = os.Getenv("AKEYLESS_ACCESS_KEY")
		}
	}
	return akCfg, nil
}

// Name returns the provider name
func (p *AkeylessProvider) Name() string {
	return p.name
}

// Get retrieves a static secret. Numeric versions select an item version.
func (p *AkeylessProvider) Get(ctx context.Context, name, version string) (string, error) {
	var itemVersion *int
	if version != "" && version != provider.LatestVersion {
		n, err := strconv.Atoi(version)
		if err != nil {
			return "", provider.NotFoundError{Provider: p.name, Key: name, Version: version}
		}
		itemVersion = &n
	}

	token, err := p.getToken(ctx)
	if err != nil {
		return "", err
	}

	path := akeylessPath(name)
	p.logger.Debug("Fetching Akeyless secret: %s", path)

	value, err := p.client.GetSecret(ctx, token, path, itemVersion)
	if err != nil {
		return "", p.translateError(err, name, version)
	}
	return value, nil
}

// Put creates the secret or stores a new version when the value differs
func (p *AkeylessProvider) Put(ctx context.Context, name, value string) error {
	current, err := p.Get(ctx, name, provider.LatestVersion)
	if err == nil && current == value {
		return nil
	}
	if err != nil && !provider.IsNotFound(err) {
		return err
	}

	token, tokenErr := p.getToken(ctx)
	if tokenErr != nil {
		return tokenErr
	}

	if err != nil {
		err = p.client.CreateSecret(ctx, token, akeylessPath(name), value)
	} else {
		err = p.client.UpdateSecret(ctx, token, akeylessPath(name), value)
	}
	if err != nil {
		return p.translateError(err, name, "")
	}
	return nil
}

// List returns the items below the configured list path without their
// leading slash
func (p *AkeylessProvider) List(ctx context.Context) ([]string, error) {
	token, err := p.getToken(ctx)
	if err != nil {
		return nil, err
	}

	paths, err := p.client.ListItems(ctx, token, p.config.ListPath)
	if err != nil {
		return nil, p.translateError(err, "", "")
	}

	names := make([]string, 0, len(paths))
	for _, path := range paths {
		names = append(names, strings.TrimPrefix(path, "/"))
	}
	sort.Strings(names)
	return names, nil
}

// TestConnection authenticates against the gateway
func (p *AkeylessProvider) TestConnection(ctx context.Context) (bool, string) {
	if _, err := p.getToken(ctx); err != nil {
		return false, fmt.Sprintf("akeyless authentication failed: %v", err)
	}
	return true, fmt.Sprintf("authenticated to %s as %s", p.config.GatewayURL, p.config.AccessID)
}

// getToken returns a cached token or authenticates to get a new one
func (p *AkeylessProvider) getToken(ctx context.Context) (string, error) {
	if token, ok := p.tokenCache.Get(); ok {
		return token, nil
	}

	token, ttl, err := p.client.Authenticate(ctx)
	if err != nil {
		return "", p.translateError(err, "", "")
	}

	p.tokenCache.Set(token, ttl)
	return token, nil
}

// translateError maps SDK failures onto provider errors. A rejected token is
// dropped from the cache so the next call logs in again.
func (p *AkeylessProvider) translateError(err error, name, version string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return provider.Unavailable(p.name, err)
	}

	var akErr *AkeylessError
	status := 0
	if errors.As(err, &akErr) {
		status = akErr.StatusCode
	}

	switch {
	case status == http.StatusNotFound || errors.Is(err, ErrAkeylessSecretNotFound) || isAkeylessNotFoundError(err):
		return provider.NotFoundError{Provider: p.name, Key: name, Version: version}
	case status == http.StatusUnauthorized || status == http.StatusForbidden || errors.Is(err, ErrAkeylessUnauthorized):
		p.tokenCache.Clear()
		return provider.AuthError{Provider: p.name, Message: fmt.Sprintf("request rejected with status %d", status)}
	case status == http.StatusTooManyRequests:
		return provider.Unavailable(p.name, ErrAkeylessRateLimited)
	}
	return provider.Unavailable(p.name, err)
}

// akeylessPath turns a reference name into an absolute item path
func akeylessPath(name string) string {
	if strings.HasPrefix(name, "/") {
		return name
	}
	return "/" + name
}

// isAkeylessNotFoundError checks if an error indicates secret not found
func isAkeylessNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "not found") ||
		strings.Contains(errStr, "itemNotFound")
}
