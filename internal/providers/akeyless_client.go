package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	akeyless "github.com/akeylesslabs/akeyless-go/v3"

	"github.com/systmms/secretref/internal/providers/contracts"
)

// akeylessTokenTTL is shorter than the 30 minute lifetime Akeyless grants
const akeylessTokenTTL = 25 * time.Minute

// akeylessSDKClient implements AkeylessClient using the official SDK
type akeylessSDKClient struct {
	apiClient *akeyless.APIClient
	config    AkeylessConfig
}

// newAkeylessSDKClient creates a new SDK client for Akeyless
func newAkeylessSDKClient(cfg AkeylessConfig) *akeylessSDKClient {
	configuration := akeyless.NewConfiguration()
	configuration.Servers = []akeyless.ServerConfiguration{
		{URL: cfg.GatewayURL},
	}
	configuration.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &akeylessSDKClient{
		apiClient: akeyless.NewAPIClient(configuration),
		config:    cfg,
	}
}

// Authenticate obtains an access token from Akeyless
func (c *akeylessSDKClient) Authenticate(ctx context.Context) (string, time.Duration, error) {
	authBody := akeyless.NewAuthWithDefaults()
	authBody.SetAccessId(c.config.AccessID)

	switch c.config.Auth.Method {
	case "api_key", "":
		authBody.SetAccessKey(c.config.Auth.AccessKey)
	case "aws_iam":
		authBody.SetAccessType("aws_iam")
	case "azure_ad":
		authBody.SetAccessType("azure_ad")
		if c.config.Auth.AzureADObjectID != "" {
			// CloudId is used for Azure AD object ID
			authBody.SetCloudId(c.config.Auth.AzureADObjectID)
		}
	case "gcp":
		authBody.SetAccessType("gcp")
		if c.config.Auth.GCPAudience != "" {
			authBody.SetGcpAudience(c.config.Auth.GCPAudience)
		}
	default:
		return "", 0, fmt.Errorf("unsupported authentication method: %s", c.config.Auth.Method)
	}

	authRes, httpResp, err := c.apiClient.V2Api.Auth(ctx).Body(*authBody).Execute()
	if err != nil {
		return "", 0, akeylessAPIError("auth", "", httpResp, err)
	}
	return authRes.GetToken(), akeylessTokenTTL, nil
}

// GetSecret retrieves a static secret value by path
func (c *akeylessSDKClient) GetSecret(ctx context.Context, token, path string, version *int) (string, error) {
	body := akeyless.NewGetSecretValue([]string{path})
	body.SetToken(token)
	if version != nil {
		body.SetVersion(int32(*version))
	}

	res, httpResp, err := c.apiClient.V2Api.GetSecretValue(ctx).Body(*body).Execute()
	if err != nil {
		return "", akeylessAPIError("get", path, httpResp, err)
	}

	// GetSecretValue returns a map of path -> value
	value, ok := res[path]
	if !ok {
		return "", &AkeylessError{Op: "get", Path: path, StatusCode: http.StatusNotFound, Message: "no value returned", Err: ErrAkeylessSecretNotFound}
	}
	return fmt.Sprint(value), nil
}

// CreateSecret creates a new static secret
func (c *akeylessSDKClient) CreateSecret(ctx context.Context, token, path, value string) error {
	body := akeyless.NewCreateSecret(path, value)
	body.SetToken(token)

	_, httpResp, err := c.apiClient.V2Api.CreateSecret(ctx).Body(*body).Execute()
	if err != nil {
		return akeylessAPIError("create", path, httpResp, err)
	}
	return nil
}

// UpdateSecret stores value as a new version of an existing secret
func (c *akeylessSDKClient) UpdateSecret(ctx context.Context, token, path, value string) error {
	body := akeyless.NewUpdateSecretVal(path, value)
	body.SetToken(token)

	_, httpResp, err := c.apiClient.V2Api.UpdateSecretVal(ctx).Body(*body).Execute()
	if err != nil {
		return akeylessAPIError("update", path, httpResp, err)
	}
	return nil
}

// ListItems lists secrets at a path
func (c *akeylessSDKClient) ListItems(ctx context.Context, token, path string) ([]string, error) {
	body := akeyless.NewListItems()
	body.SetPath(path)
	body.SetToken(token)

	res, httpResp, err := c.apiClient.V2Api.ListItems(ctx).Body(*body).Execute()
	if err != nil {
		return nil, akeylessAPIError("list", path, httpResp, err)
	}

	items := res.GetItems()
	paths := make([]string, len(items))
	for i, item := range items {
		paths[i] = item.GetItemName()
	}
	return paths, nil
}

// akeylessAPIError records the HTTP status of a failed SDK call
func akeylessAPIError(op, path string, resp *http.Response, err error) error {
	e := &AkeylessError{Op: op, Path: path, Message: err.Error(), Err: err}
	if resp != nil {
		e.StatusCode = resp.StatusCode
	}
	return e
}

// Ensure akeylessSDKClient implements contracts.AkeylessClient
var _ contracts.AkeylessClient = (*akeylessSDKClient)(nil)
