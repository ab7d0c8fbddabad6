package vault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/systmms/secretref/internal/config"
	dserrors "github.com/systmms/secretref/internal/errors"
	"github.com/systmms/secretref/internal/logging"
	"github.com/systmms/secretref/pkg/provider"
)

const (
	DefaultVaultAddr = "https://127.0.0.1:8200"
	DefaultTimeout   = 30 * time.Second
	DefaultMount     = "secret"
	DefaultField     = "value"
)

// VaultProvider implements the Provider interface for a HashiCorp Vault KV
// version 2 mount. Each secret name is a KV path and the value lives in a
// single field of that path.
type VaultProvider struct {
	name   string
	config Config
	logger *logging.Logger
	client VaultClient
}

// Config holds Vault-specific configuration
type Config struct {
	Address    string // Vault server address
	Token      string // Vault token (discouraged, use env var or token file)
	TokenFile  string // file holding a token, from credentials_file
	AuthMethod string // token, userpass, ldap, approle, k8s
	Namespace  string // Vault Enterprise namespace
	Mount      string // KV v2 mount, default "secret"
	Field      string // field holding the value, default "value"

	// Auth method specific settings
	Username string // userpass and ldap
	Password string // userpass and ldap (discouraged)
	RoleID   string // approle
	SecretID string // approle
	K8SRole  string // kubernetes

	CACert     string // Path to CA certificate
	ClientCert string // Path to client certificate
	ClientKey  string // Path to client key
	TLSSkip    bool   // Skip TLS verification (not recommended)
}

// VaultClient interface for testability
type VaultClient interface {
	Authenticate(ctx context.Context) error
	Read(ctx context.Context, path string, query url.Values) (*VaultSecret, error)
	Write(ctx context.Context, path string, body map[string]interface{}) error
	List(ctx context.Context, path string) ([]string, error)
	LookupSelf(ctx context.Context) (string, error)
	Close() error
}

// VaultSecret is the data section of a KV v2 read: the stored map and its
// version metadata
type VaultSecret struct {
	Data     map[string]interface{} `json:"data"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Option configures a VaultProvider
type Option func(*VaultProvider)

// WithClient sets a custom client (for testing)
func WithClient(client VaultClient) Option {
	return func(p *VaultProvider) { p.client = client }
}

// NewVaultProvider creates a new Vault provider. VAULT_* environment
// variables fill in settings the configuration leaves unset.
func NewVaultProvider(name string, cfg config.ProviderConfig, logger *logging.Logger, opts ...Option) (*VaultProvider, error) {
	vc := Config{
		Address:    cfg.String("address"),
		AuthMethod: "token",
		Mount:      DefaultMount,
		Field:      DefaultField,
		Token:      cfg.String("token"),
		TokenFile:  config.ExpandPath(cfg.CredentialsFile),
		Namespace:  cfg.String("namespace"),
		Username:   cfg.String("username"),
		Password:   cfg.String("password"),
		RoleID:     cfg.String("role_id"),
		SecretID:   cfg.String("secret_id"),
		K8SRole:    cfg.String("k8s_role"),
		CACert:     config.ExpandPath(cfg.String("ca_cert")),
		ClientCert: config.ExpandPath(cfg.String("client_cert")),
		ClientKey:  config.ExpandPath(cfg.String("client_key")),
	}
	if v := cfg.String("auth_method"); v != "" {
		vc.AuthMethod = v
	}
	if v := cfg.String("mount"); v != "" {
		vc.Mount = strings.Trim(v, "/")
	}
	if v := cfg.String("field"); v != "" {
		vc.Field = v
	}
	if tlsSkip, ok := cfg.Config["tls_skip"].(bool); ok {
		vc.TLSSkip = tlsSkip
	}

	applyEnvironment(&vc)

	if err := vc.validate(); err != nil {
		return nil, err
	}

	p := &VaultProvider{name: name, config: vc, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		client, err := NewHTTPVaultClient(vc)
		if err != nil {
			return nil, fmt.Errorf("failed to create Vault client: %w", err)
		}
		p.client = client
	}
	return p, nil
}

func applyEnvironment(vc *Config) {
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = os.Getenv(key)
		}
	}
	fill(&vc.Address, "VAULT_ADDR")
	fill(&vc.Namespace, "VAULT_NAMESPACE")
	fill(&vc.CACert, "VAULT_CACERT")
	fill(&vc.ClientCert, "VAULT_CLIENT_CERT")
	fill(&vc.ClientKey, "VAULT_CLIENT_KEY")
	if vc.Address == "" {
		vc.Address = DefaultVaultAddr
	}
	if tlsSkip := os.Getenv("VAULT_SKIP_VERIFY"); tlsSkip == "1" || strings.ToLower(tlsSkip) == "true" {
		vc.TLSSkip = true
	}
}

func (vc Config) validate() error {
	switch vc.AuthMethod {
	case "token":
	case "userpass", "ldap":
		if vc.Username == "" {
			return dserrors.ConfigError{
				Field:      "username",
				Message:    fmt.Sprintf("Username is required for %s auth", vc.AuthMethod),
				Suggestion: "Set 'username' in provider config",
			}
		}
	case "approle":
		if vc.RoleID == "" {
			return dserrors.ConfigError{
				Field:      "role_id",
				Message:    "role_id is required for approle auth",
				Suggestion: "Set 'role_id' and 'secret_id' in provider config",
			}
		}
	case "k8s", "kubernetes":
		if vc.K8SRole == "" {
			return dserrors.ConfigError{
				Field:      "k8s_role",
				Message:    "Kubernetes role is required for k8s auth",
				Suggestion: "Set 'k8s_role' in provider config",
			}
		}
	default:
		return dserrors.ConfigError{
			Field:      "auth_method",
			Value:      vc.AuthMethod,
			Message:    "unsupported authentication method",
			Suggestion: "Supported methods: token, userpass, ldap, approle, k8s",
		}
	}
	return nil
}

// Name returns the provider name
func (v *VaultProvider) Name() string {
	return v.name
}

func (v *VaultProvider) dataPath(name string) string {
	return v.config.Mount + "/data/" + strings.Trim(name, "/")
}

// listPath keeps the trailing slash of folder prefixes
func (v *VaultProvider) listPath(prefix string) string {
	return v.config.Mount + "/metadata/" + strings.TrimPrefix(prefix, "/")
}

// Get reads the value field of a KV entry. Numeric versions select a KV
// version.
func (v *VaultProvider) Get(ctx context.Context, name, version string) (string, error) {
	if err := v.client.Authenticate(ctx); err != nil {
		return "", v.translateError(err, name, version)
	}

	var query url.Values
	if version != "" && version != provider.LatestVersion {
		if _, err := strconv.Atoi(version); err != nil {
			return "", provider.NotFoundError{Provider: v.name, Key: name, Version: version}
		}
		query = url.Values{"version": []string{version}}
	}

	v.logger.Debug("Fetching secret from Vault path: %s", v.dataPath(name))

	secret, err := v.client.Read(ctx, v.dataPath(name), query)
	if err != nil {
		return "", v.translateError(err, name, version)
	}

	raw, ok := secret.Data[v.config.Field]
	if !ok {
		return "", provider.NotFoundError{Provider: v.name, Key: name, Version: version}
	}
	return stringify(raw), nil
}

// Put writes a new KV version unless the current value already matches
func (v *VaultProvider) Put(ctx context.Context, name, value string) error {
	current, err := v.Get(ctx, name, provider.LatestVersion)
	if err == nil && current == value {
		return nil
	}
	if err != nil && !provider.IsNotFound(err) {
		return err
	}

	body := map[string]interface{}{
		"data": map[string]interface{}{v.config.Field: value},
	}
	if err := v.client.Write(ctx, v.dataPath(name), body); err != nil {
		return v.translateError(err, name, "")
	}
	return nil
}

// List walks the mount's metadata tree and returns every secret path
func (v *VaultProvider) List(ctx context.Context) ([]string, error) {
	if err := v.client.Authenticate(ctx); err != nil {
		return nil, v.translateError(err, "", "")
	}

	var names []string
	pending := []string{""}
	for len(pending) > 0 {
		prefix := pending[0]
		pending = pending[1:]

		keys, err := v.client.List(ctx, v.listPath(prefix))
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
				continue
			}
			return nil, v.translateError(err, "", "")
		}
		for _, k := range keys {
			if strings.HasSuffix(k, "/") {
				pending = append(pending, prefix+k)
				continue
			}
			names = append(names, prefix+k)
		}
	}
	sort.Strings(names)
	return names, nil
}

// TestConnection authenticates and looks up the token
func (v *VaultProvider) TestConnection(ctx context.Context) (bool, string) {
	if err := v.client.Authenticate(ctx); err != nil {
		return false, fmt.Sprintf("authentication failed: %v. %s", err, v.errorSuggestion(err))
	}
	who, err := v.client.LookupSelf(ctx)
	if err != nil {
		return false, fmt.Sprintf("token lookup failed: %v. %s", err, v.errorSuggestion(err))
	}
	return true, fmt.Sprintf("authenticated to %s as %s", v.config.Address, who)
}

func (v *VaultProvider) translateError(err error, name, version string) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusNotFound:
			return provider.NotFoundError{Provider: v.name, Key: name, Version: version}
		case http.StatusUnauthorized, http.StatusForbidden:
			return provider.AuthError{Provider: v.name, Message: apiErr.Error()}
		}
		return &provider.UnavailableError{Provider: v.name, Message: apiErr.Error(), Err: err}
	}
	return provider.Unavailable(v.name, err)
}

// errorSuggestion provides helpful suggestions based on Vault errors
func (v *VaultProvider) errorSuggestion(err error) string {
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "connection refused"):
		return "Check that Vault server is running and accessible at " + v.config.Address
	case strings.Contains(errStr, "permission denied"), strings.Contains(errStr, "status 403"):
		return "Check your Vault token permissions for this path"
	case strings.Contains(errStr, "no vault token"):
		return "Set VAULT_TOKEN or point credentials_file at a token file"
	case strings.Contains(errStr, "tls"), strings.Contains(errStr, "x509"):
		return "Check TLS configuration (ca_cert, client_cert)"
	default:
		return "Check your Vault configuration and connectivity"
	}
}

func stringify(raw interface{}) string {
	switch val := raw.(type) {
	case string:
		return val
	case nil:
		return ""
	}
	return fmt.Sprint(raw)
}
