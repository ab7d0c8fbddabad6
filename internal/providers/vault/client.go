package vault

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// APIError is a non-2xx response from Vault
type APIError struct {
	StatusCode int
	Errors     []string
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("vault returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("vault returned status %d: %s", e.StatusCode, strings.Join(e.Errors, "; "))
}

// HTTPVaultClient implements VaultClient using the HTTP API
type HTTPVaultClient struct {
	config Config
	http   *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time // zero for tokens that were not obtained by login
	now       func() time.Time
}

// NewHTTPVaultClient creates a client for cfg.Address
func NewHTTPVaultClient(cfg Config) (*HTTPVaultClient, error) {
	httpClient, err := newHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	return &HTTPVaultClient{config: cfg, http: httpClient, now: time.Now}, nil
}

// Authenticate obtains a token for the configured method unless a usable
// one is already held
func (c *HTTPVaultClient) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && (c.expiresAt.IsZero() || c.now().Before(c.expiresAt)) {
		return nil
	}
	c.token = ""

	switch c.config.AuthMethod {
	case "token":
		return c.authenticateToken()
	case "userpass":
		return c.authenticatePassword(ctx, "userpass", c.config.Username, c.config.Password, "VAULT_USERPASS_PASSWORD")
	case "ldap":
		return c.authenticatePassword(ctx, "ldap", c.config.Username, c.config.Password, "VAULT_LDAP_PASSWORD")
	case "approle":
		return c.performLogin(ctx, "auth/approle/login", map[string]interface{}{
			"role_id":   c.config.RoleID,
			"secret_id": c.config.SecretID,
		})
	case "k8s", "kubernetes":
		return c.authenticateKubernetes(ctx)
	default:
		return fmt.Errorf("unsupported auth method: %s", c.config.AuthMethod)
	}
}

// Read fetches path. A 404 is returned as an *APIError.
func (c *HTTPVaultClient) Read(ctx context.Context, path string, query url.Values) (*VaultSecret, error) {
	var response struct {
		Data *VaultSecret `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, path, query, nil, &response); err != nil {
		return nil, err
	}
	if response.Data == nil {
		return nil, &APIError{StatusCode: http.StatusNotFound}
	}
	return response.Data, nil
}

// Write posts body to path
func (c *HTTPVaultClient) Write(ctx context.Context, path string, body map[string]interface{}) error {
	return c.do(ctx, http.MethodPost, path, nil, body, nil)
}

// List returns the keys directly below path. Folders end in "/".
func (c *HTTPVaultClient) List(ctx context.Context, path string) ([]string, error) {
	var response struct {
		Data struct {
			Keys []string `json:"keys"`
		} `json:"data"`
	}
	if err := c.do(ctx, "LIST", path, nil, nil, &response); err != nil {
		return nil, err
	}
	return response.Data.Keys, nil
}

// LookupSelf returns the display name of the current token
func (c *HTTPVaultClient) LookupSelf(ctx context.Context) (string, error) {
	var response struct {
		Data struct {
			DisplayName string `json:"display_name"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "auth/token/lookup-self", nil, nil, &response); err != nil {
		return "", err
	}
	return response.Data.DisplayName, nil
}

// Close drops the held token
func (c *HTTPVaultClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	return nil
}

func (c *HTTPVaultClient) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *HTTPVaultClient) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	return c.send(ctx, c.currentToken(), method, path, query, body, out)
}

// send performs one request. Login calls pass an empty token; they run
// while Authenticate holds the lock.
func (c *HTTPVaultClient) send(ctx context.Context, token, method, path string, query url.Values, body, out interface{}) error {
	endpoint := strings.TrimSuffix(c.config.Address, "/") + "/v1/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("X-Vault-Token", token)
	}
	if c.config.Namespace != "" {
		req.Header.Set("X-Vault-Namespace", c.config.Namespace)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errBody struct {
			Errors []string `json:"errors"`
		}
		if data, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); readErr == nil {
			_ = json.Unmarshal(data, &errBody)
		}
		apiErr.Errors = errBody.Errors
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// authenticateToken uses the configured token, the token file or VAULT_TOKEN
func (c *HTTPVaultClient) authenticateToken() error {
	if c.config.Token != "" {
		c.token = c.config.Token
		return nil
	}

	if c.config.TokenFile != "" {
		data, err := os.ReadFile(c.config.TokenFile)
		if err != nil {
			return fmt.Errorf("failed to read token file: %w", err)
		}
		if token := strings.TrimSpace(string(data)); token != "" {
			c.token = token
			return nil
		}
	}

	if token := os.Getenv("VAULT_TOKEN"); token != "" {
		c.token = token
		return nil
	}

	return fmt.Errorf("no vault token found in config, token file or VAULT_TOKEN environment variable")
}

func (c *HTTPVaultClient) authenticatePassword(ctx context.Context, method, username, password, envVar string) error {
	if password == "" {
		password = os.Getenv(envVar)
	}
	if username == "" || password == "" {
		return fmt.Errorf("username and password are required for %s auth", method)
	}
	return c.performLogin(ctx, fmt.Sprintf("auth/%s/login/%s", method, url.PathEscape(username)), map[string]interface{}{
		"password": password,
	})
}

// authenticateKubernetes logs in with the pod's service account token
func (c *HTTPVaultClient) authenticateKubernetes(ctx context.Context) error {
	tokenPath := "/var/run/secrets/kubernetes.io/serviceaccount/token"
	if customPath := os.Getenv("VAULT_K8S_TOKEN_PATH"); customPath != "" {
		tokenPath = customPath
	}

	tokenBytes, err := os.ReadFile(tokenPath)
	if err != nil {
		return fmt.Errorf("failed to read kubernetes token: %w", err)
	}

	return c.performLogin(ctx, "auth/kubernetes/login", map[string]interface{}{
		"role": c.config.K8SRole,
		"jwt":  strings.TrimSpace(string(tokenBytes)),
	})
}

// performLogin posts credentials to authPath and keeps the issued token
// until its lease runs out
func (c *HTTPVaultClient) performLogin(ctx context.Context, authPath string, authData map[string]interface{}) error {
	var authResp struct {
		Auth struct {
			ClientToken   string `json:"client_token"`
			LeaseDuration int    `json:"lease_duration"`
		} `json:"auth"`
	}
	if err := c.send(ctx, "", http.MethodPost, authPath, nil, authData, &authResp); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	if authResp.Auth.ClientToken == "" {
		return fmt.Errorf("no token received from vault")
	}

	c.token = authResp.Auth.ClientToken
	c.expiresAt = time.Time{}
	if lease := time.Duration(authResp.Auth.LeaseDuration) * time.Second; lease > 0 {
		c.expiresAt = c.now().Add(lease * 9 / 10)
	}
	return nil
}

// newHTTPClient creates an HTTP client with the configured TLS settings
func newHTTPClient(cfg Config) (*http.Client, error) {
	client := &http.Client{Timeout: DefaultTimeout}
	if !cfg.TLSSkip && cfg.CACert == "" && cfg.ClientCert == "" {
		return client, nil
	}

	tlsConfig := &tls.Config{
		InsecureSkipVerify: cfg.TLSSkip, //nolint:gosec // explicit opt-in for development vaults
		MinVersion:         tls.VersionTLS12,
	}

	if cfg.CACert != "" {
		pem, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CACert)
		}
		tlsConfig.RootCAs = pool
	}

	if cfg.ClientCert != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	client.Transport = &http.Transport{TLSClientConfig: tlsConfig}
	return client, nil
}
