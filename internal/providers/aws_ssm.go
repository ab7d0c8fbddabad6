package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/systmms/secretref/internal/config"
	"github.com/systmms/secretref/internal/logging"
	"github.com/systmms/secretref/pkg/provider"
)

// SSMClientAPI defines the AWS SSM Parameter Store operations used by the
// provider. This allows for mocking in tests.
type SSMClientAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
	DescribeParameters(ctx context.Context, params *ssm.DescribeParametersInput, optFns ...func(*ssm.Options)) (*ssm.DescribeParametersOutput, error)
}

// AWSSSMProvider implements the Provider interface for AWS Systems Manager Parameter Store
type AWSSSMProvider struct {
	name     string
	client   SSMClientAPI
	identity STSClientAPI
	logger   *logging.Logger
	config   SSMConfig
}

// SSMConfig holds AWS SSM-specific configuration
type SSMConfig struct {
	AWSSettings
	WithDecryption  bool
	ParameterPrefix string
	KMSKeyID        string
}

// NewAWSSSMProvider creates a new AWS SSM Parameter Store provider
func NewAWSSSMProvider(name string, cfg config.ProviderConfig, logger *logging.Logger, opts ...AWSOption) (*AWSSSMProvider, error) {
	ssmConfig := SSMConfig{
		AWSSettings:     parseAWSSettings(cfg),
		WithDecryption:  true,
		ParameterPrefix: cfg.String("parameter_prefix"),
		KMSKeyID:        cfg.String("kms_key_id"),
	}
	if decrypt, ok := cfg.Config["with_decryption"].(bool); ok {
		ssmConfig.WithDecryption = decrypt
	}

	var clients awsClients
	for _, opt := range opts {
		opt(&clients)
	}

	if clients.ssm == nil || clients.sts == nil {
		awsCfg, err := loadAWSConfig(context.Background(), ssmConfig.AWSSettings)
		if err != nil {
			return nil, err
		}
		if clients.ssm == nil {
			clients.ssm = ssm.NewFromConfig(awsCfg, func(o *ssm.Options) {
				if ssmConfig.Endpoint != "" {
					o.BaseEndpoint = aws.String(ssmConfig.Endpoint)
				}
			})
		}
		if clients.sts == nil {
			clients.sts = sts.NewFromConfig(awsCfg, ssmConfig.stsEndpoint)
		}
	}

	return &AWSSSMProvider{
		name:     name,
		client:   clients.ssm,
		identity: clients.sts,
		logger:   logger,
		config:   ssmConfig,
	}, nil
}

func (p *AWSSSMProvider) Name() string {
	return p.name
}

func (p *AWSSSMProvider) parameterName(name string) string {
	return p.config.ParameterPrefix + name
}

// Get fetches a parameter. Versions use Parameter Store's selector syntax:
// a number selects a version, anything else a label.
func (p *AWSSSMProvider) Get(ctx context.Context, name, version string) (string, error) {
	parameterName := p.parameterName(name)
	selector := parameterName
	if version != "" && version != provider.LatestVersion {
		selector = parameterName + ":" + version
	}

	p.logger.Debug("Fetching parameter from SSM: %s", selector)

	result, err := p.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(selector),
		WithDecryption: aws.Bool(p.config.WithDecryption),
	})
	if err != nil {
		return "", awsError(p.name, name, version, err)
	}
	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", provider.NotFoundError{Provider: p.name, Key: name, Version: version}
	}
	return *result.Parameter.Value, nil
}

// Put writes value as a SecureString, overwriting the current version.
// Writing the current value again is a no-op.
func (p *AWSSSMProvider) Put(ctx context.Context, name, value string) error {
	current, err := p.Get(ctx, name, provider.LatestVersion)
	if err == nil && current == value {
		return nil
	}
	if err != nil && !provider.IsNotFound(err) {
		return err
	}

	input := &ssm.PutParameterInput{
		Name:      aws.String(p.parameterName(name)),
		Value:     aws.String(value),
		Type:      types.ParameterTypeSecureString,
		Overwrite: aws.Bool(true),
	}
	if p.config.KMSKeyID != "" {
		input.KeyId = aws.String(p.config.KMSKeyID)
	}
	_, err = p.client.PutParameter(ctx, input)
	return awsError(p.name, name, "", err)
}

// List returns parameter names below the configured prefix, with the
// prefix removed. Without a prefix every parameter is listed.
func (p *AWSSSMProvider) List(ctx context.Context) ([]string, error) {
	var names []string

	if prefix := p.config.ParameterPrefix; strings.HasPrefix(prefix, "/") {
		path := strings.TrimSuffix(prefix, "/")
		if path == "" {
			path = "/"
		}
		paginator := ssm.NewGetParametersByPathPaginator(p.client, &ssm.GetParametersByPathInput{
			Path:      aws.String(path),
			Recursive: aws.Bool(true),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, awsError(p.name, "", "", err)
			}
			for _, param := range page.Parameters {
				names = append(names, strings.TrimPrefix(stringValue(param.Name), prefix))
			}
		}
		return names, nil
	}

	paginator := ssm.NewDescribeParametersPaginator(p.client, &ssm.DescribeParametersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, awsError(p.name, "", "", err)
		}
		for _, param := range page.Parameters {
			name := stringValue(param.Name)
			if strings.HasPrefix(name, p.config.ParameterPrefix) {
				names = append(names, strings.TrimPrefix(name, p.config.ParameterPrefix))
			}
		}
	}
	return names, nil
}

func (p *AWSSSMProvider) TestConnection(ctx context.Context) (bool, string) {
	arn, err := callerIdentity(ctx, p.identity)
	if err != nil {
		return false, fmt.Sprintf("AWS authentication failed: %v", awsError(p.name, "", "", err))
	}

	if _, err := p.client.DescribeParameters(ctx, &ssm.DescribeParametersInput{MaxResults: aws.Int32(1)}); err != nil {
		return false, fmt.Sprintf("authenticated as %s but cannot describe parameters: %v", arn, awsError(p.name, "", "", err))
	}
	return true, fmt.Sprintf("authenticated as %s in %s", arn, p.config.Region)
}
