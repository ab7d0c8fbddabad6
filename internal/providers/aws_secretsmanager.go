package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/systmms/secretref/internal/config"
	"github.com/systmms/secretref/internal/logging"
	"github.com/systmms/secretref/pkg/provider"
)

// SecretsManagerClientAPI defines the AWS Secrets Manager operations used by
// the provider. This allows for mocking in tests.
type SecretsManagerClientAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	ListSecrets(ctx context.Context, params *secretsmanager.ListSecretsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error)
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
}

// AWSSecretsManagerProvider implements the provider interface for AWS Secrets Manager
type AWSSecretsManagerProvider struct {
	name     string
	client   SecretsManagerClientAPI
	identity STSClientAPI
	region   string
	logger   *logging.Logger
}

// NewAWSSecretsManagerProvider creates a new AWS Secrets Manager provider
func NewAWSSecretsManagerProvider(name string, cfg config.ProviderConfig, logger *logging.Logger, opts ...AWSOption) (*AWSSecretsManagerProvider, error) {
	settings := parseAWSSettings(cfg)

	var clients awsClients
	for _, opt := range opts {
		opt(&clients)
	}

	if clients.secretsManager == nil || clients.sts == nil {
		awsCfg, err := loadAWSConfig(context.Background(), settings)
		if err != nil {
			return nil, err
		}
		if clients.secretsManager == nil {
			clients.secretsManager = secretsmanager.NewFromConfig(awsCfg, func(o *secretsmanager.Options) {
				if settings.Endpoint != "" {
					o.BaseEndpoint = aws.String(settings.Endpoint)
				}
			})
		}
		if clients.sts == nil {
			clients.sts = sts.NewFromConfig(awsCfg, settings.stsEndpoint)
		}
	}

	return &AWSSecretsManagerProvider{
		name:     name,
		client:   clients.secretsManager,
		identity: clients.sts,
		region:   settings.Region,
		logger:   logger,
	}, nil
}

// Name returns the provider name
func (p *AWSSecretsManagerProvider) Name() string {
	return p.name
}

// Get retrieves a secret value. A UUID version selects a version id, any
// other version is treated as a staging label such as AWSPREVIOUS.
func (p *AWSSecretsManagerProvider) Get(ctx context.Context, name, version string) (string, error) {
	input := &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	}
	if version != "" && version != provider.LatestVersion {
		if isVersionID(version) {
			input.VersionId = aws.String(version)
		} else {
			input.VersionStage = aws.String(version)
		}
	}

	result, err := p.client.GetSecretValue(ctx, input)
	if err != nil {
		return "", awsError(p.name, name, version, err)
	}

	switch {
	case result.SecretString != nil:
		return *result.SecretString, nil
	case result.SecretBinary != nil:
		return string(result.SecretBinary), nil
	}
	return "", provider.NotFoundError{Provider: p.name, Key: name, Version: version}
}

// Put stores value as the current version, creating the secret when it
// does not exist yet. Writing the current value again is a no-op.
func (p *AWSSecretsManagerProvider) Put(ctx context.Context, name, value string) error {
	current, err := p.Get(ctx, name, provider.LatestVersion)
	switch {
	case err == nil && current == value:
		return nil
	case err == nil:
		_, err = p.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
			SecretId:     aws.String(name),
			SecretString: aws.String(value),
		})
		return awsError(p.name, name, "", err)
	case provider.IsNotFound(err):
		_, err = p.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
			Name:         aws.String(name),
			SecretString: aws.String(value),
		})
		return awsError(p.name, name, "", err)
	}
	return err
}

// List returns the names of all secrets visible to the credentials
func (p *AWSSecretsManagerProvider) List(ctx context.Context) ([]string, error) {
	var names []string
	paginator := secretsmanager.NewListSecretsPaginator(p.client, &secretsmanager.ListSecretsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, awsError(p.name, "", "", err)
		}
		for _, entry := range page.SecretList {
			names = append(names, stringValue(entry.Name))
		}
	}
	return names, nil
}

// TestConnection checks that the credentials authenticate and may list secrets
func (p *AWSSecretsManagerProvider) TestConnection(ctx context.Context) (bool, string) {
	arn, err := callerIdentity(ctx, p.identity)
	if err != nil {
		return false, fmt.Sprintf("AWS authentication failed: %v", awsError(p.name, "", "", err))
	}

	if _, err := p.client.ListSecrets(ctx, &secretsmanager.ListSecretsInput{MaxResults: aws.Int32(1)}); err != nil {
		return false, fmt.Sprintf("authenticated as %s but cannot list secrets: %v", arn, awsError(p.name, "", "", err))
	}
	return true, fmt.Sprintf("authenticated as %s in %s", arn, p.region)
}

// isVersionID reports whether version looks like a Secrets Manager version
// id (a UUID) rather than a staging label.
func isVersionID(version string) bool {
	return len(version) == 36 && strings.Count(version, "-") == 4
}
