package providers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/systmms/secretref/internal/config"
	dserrors "github.com/systmms/secretref/internal/errors"
	"github.com/systmms/secretref/internal/logging"
	"github.com/systmms/secretref/pkg/provider"
)

// AzureKeyVaultClientAPI defines the Azure Key Vault operations used by the
// provider. This allows for mocking in tests.
type AzureKeyVaultClientAPI interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
	SetSecret(ctx context.Context, name string, parameters azsecrets.SetSecretParameters, options *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error)
	NewListSecretPropertiesPager(options *azsecrets.ListSecretPropertiesOptions) *runtime.Pager[azsecrets.ListSecretPropertiesResponse]
}

// AzureKeyVaultProvider implements the Provider interface for Azure Key Vault
type AzureKeyVaultProvider struct {
	name   string
	client AzureKeyVaultClientAPI
	logger *logging.Logger
	config AzureKeyVaultConfig
}

// AzureKeyVaultConfig holds Azure Key Vault-specific configuration
type AzureKeyVaultConfig struct {
	VaultURL            string
	TenantID            string
	ClientID            string
	ClientSecret        string
	CertificatePath     string // PEM or PKCS#12 file holding certificate and key
	CertificatePassword string
	UseManagedIdentity  bool
	UserAssignedID      string // For user-assigned managed identity
}

// AzureProviderOption is a functional option for configuring Azure providers
type AzureProviderOption func(*AzureKeyVaultProvider)

// WithAzureKeyVaultClient sets a custom Azure Key Vault client (for testing)
func WithAzureKeyVaultClient(client AzureKeyVaultClientAPI) AzureProviderOption {
	return func(p *AzureKeyVaultProvider) {
		p.client = client
	}
}

// NewAzureKeyVaultProvider creates a new Azure Key Vault provider
func NewAzureKeyVaultProvider(name string, cfg config.ProviderConfig, logger *logging.Logger, opts ...AzureProviderOption) (*AzureKeyVaultProvider, error) {
	kvConfig := AzureKeyVaultConfig{
		VaultURL:            cfg.String("vault_url"),
		TenantID:            cfg.String("tenant_id"),
		ClientID:            cfg.String("client_id"),
		ClientSecret:        cfg.String("client_secret"),
		CertificatePath:     cfg.CredentialsFile,
		CertificatePassword: cfg.String("certificate_password"),
		UserAssignedID:      cfg.String("user_assigned_identity_id"),
	}
	if useMI, ok := cfg.Config["use_managed_identity"].(bool); ok {
		kvConfig.UseManagedIdentity = useMI
	}

	if kvConfig.VaultURL == "" {
		return nil, dserrors.ConfigError{
			Field:      "vault_url",
			Message:    "vault_url is required for Azure Key Vault",
			Suggestion: "Provide the Key Vault URL (e.g., https://my-vault.vault.azure.net/)",
		}
	}
	if u, err := url.Parse(kvConfig.VaultURL); err != nil || u.Scheme != "https" || u.Host == "" {
		return nil, dserrors.ConfigError{
			Field:      "vault_url",
			Value:      kvConfig.VaultURL,
			Message:    "Invalid vault_url format",
			Suggestion: "Use format: https://vault-name.vault.azure.net/",
		}
	}

	p := &AzureKeyVaultProvider{
		name:   name,
		logger: logger,
		config: kvConfig,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.client == nil {
		client, err := createAzureKeyVaultClient(kvConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure Key Vault client: %w", err)
		}
		p.client = client
	}
	return p, nil
}

// azureCredential picks a credential: managed identity when requested, then
// a client secret, then a certificate file, then the default chain.
func azureCredential(cfg AzureKeyVaultConfig) (azcore.TokenCredential, error) {
	switch {
	case cfg.UseManagedIdentity && cfg.UserAssignedID != "":
		return azidentity.NewManagedIdentityCredential(&azidentity.ManagedIdentityCredentialOptions{
			ID: azidentity.ClientID(cfg.UserAssignedID),
		})
	case cfg.UseManagedIdentity:
		return azidentity.NewManagedIdentityCredential(nil)
	case cfg.ClientSecret != "":
		return azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
	case cfg.CertificatePath != "":
		data, err := os.ReadFile(config.ExpandPath(cfg.CertificatePath))
		if err != nil {
			return nil, fmt.Errorf("failed to read certificate file: %w", err)
		}
		var password []byte
		if cfg.CertificatePassword != "" {
			password = []byte(cfg.CertificatePassword)
		}
		certs, key, err := azidentity.ParseCertificates(data, password)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate file: %w", err)
		}
		return azidentity.NewClientCertificateCredential(cfg.TenantID, cfg.ClientID, certs, key, nil)
	}
	return azidentity.NewDefaultAzureCredential(nil)
}

// createAzureKeyVaultClient creates an Azure Key Vault client with appropriate authentication
func createAzureKeyVaultClient(cfg AzureKeyVaultConfig) (*azsecrets.Client, error) {
	cred, err := azureCredential(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	client, err := azsecrets.NewClient(cfg.VaultURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Key Vault client: %w", err)
	}
	return client, nil
}

// Name returns the provider name
func (p *AzureKeyVaultProvider) Name() string {
	return p.name
}

// Get fetches a secret; version is a Key Vault version id or "latest"
func (p *AzureKeyVaultProvider) Get(ctx context.Context, name, version string) (string, error) {
	p.logger.Debug("Accessing Azure Key Vault secret: %s", name)

	kvVersion := version
	if kvVersion == provider.LatestVersion {
		kvVersion = ""
	}

	resp, err := p.client.GetSecret(ctx, name, kvVersion, nil)
	if err != nil {
		return "", p.translateError(err, name, version)
	}
	if resp.Value == nil {
		return "", provider.NotFoundError{Provider: p.name, Key: name, Version: version}
	}
	return *resp.Value, nil
}

// Put sets a new version unless the current value already matches
func (p *AzureKeyVaultProvider) Put(ctx context.Context, name, value string) error {
	current, err := p.Get(ctx, name, provider.LatestVersion)
	if err == nil && current == value {
		return nil
	}
	if err != nil && !provider.IsNotFound(err) {
		return err
	}

	_, err = p.client.SetSecret(ctx, name, azsecrets.SetSecretParameters{Value: to.Ptr(value)}, nil)
	if err != nil {
		return p.translateError(err, name, "")
	}
	return nil
}

// List returns the names of all secrets in the vault
func (p *AzureKeyVaultProvider) List(ctx context.Context) ([]string, error) {
	var names []string
	pager := p.client.NewListSecretPropertiesPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, p.translateError(err, "", "")
		}
		for _, props := range page.Value {
			if props.ID != nil {
				names = append(names, props.ID.Name())
			}
		}
	}
	return names, nil
}

// TestConnection fetches the first page of secret properties
func (p *AzureKeyVaultProvider) TestConnection(ctx context.Context) (bool, string) {
	pager := p.client.NewListSecretPropertiesPager(&azsecrets.ListSecretPropertiesOptions{})
	if pager.More() {
		if _, err := pager.NextPage(ctx); err != nil {
			return false, fmt.Sprintf("cannot list secrets in %s: %v", p.config.VaultURL, p.translateError(err, "", ""))
		}
	}
	return true, fmt.Sprintf("vault %s reachable", p.config.VaultURL)
}

// translateError maps Key Vault responses onto provider errors
func (p *AzureKeyVaultProvider) translateError(err error, name, version string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return provider.Unavailable(p.name, err)
	}

	var authErr *azidentity.AuthenticationFailedError
	if errors.As(err, &authErr) {
		return provider.AuthError{Provider: p.name, Message: "authentication failed"}
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		message := respErr.ErrorCode
		if message == "" {
			message = "request rejected"
		}
		return httpStatusError(p.name, name, version, respErr.StatusCode, message)
	}
	return provider.Unavailable(p.name, err)
}
