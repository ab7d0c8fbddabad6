package providers

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/systmms/secretref/internal/config"
)

// STSClientAPI is the subset of STS used to verify credentials
type STSClientAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// AWSSettings holds the configuration shared by the AWS stores
type AWSSettings struct {
	Region          string
	Profile         string
	Endpoint        string // LocalStack or a VPC endpoint
	CredentialsFile string // shared credentials file
	AccessKeyID     string
	SecretAccessKey string
	AssumeRole      string
	ExternalID      string
}

func parseAWSSettings(cfg config.ProviderConfig) AWSSettings {
	s := AWSSettings{
		Region:          cfg.String("region"),
		Profile:         cfg.String("profile"),
		Endpoint:        cfg.String("endpoint"),
		CredentialsFile: cfg.CredentialsFile,
		AccessKeyID:     cfg.String("access_key_id"),
		SecretAccessKey: cfg.String("secret_access_key"),
		AssumeRole:      cfg.String("assume_role"),
		ExternalID:      cfg.String("external_id"),
	}
	if s.Region == "" {
		s.Region = "us-east-1"
	}
	return s
}

// awsClients carries injected SDK clients. Nil clients are built from
// the loaded AWS configuration.
type awsClients struct {
	secretsManager SecretsManagerClientAPI
	ssm            SSMClientAPI
	sts            STSClientAPI
}

// AWSOption injects SDK clients, mainly for tests
type AWSOption func(*awsClients)

// WithSecretsManagerClient sets a custom Secrets Manager client
func WithSecretsManagerClient(client SecretsManagerClientAPI) AWSOption {
	return func(c *awsClients) { c.secretsManager = client }
}

// WithSSMClient sets a custom SSM client
func WithSSMClient(client SSMClientAPI) AWSOption {
	return func(c *awsClients) { c.ssm = client }
}

// WithSTSClient sets a custom STS client used by TestConnection
func WithSTSClient(client STSClientAPI) AWSOption {
	return func(c *awsClients) { c.sts = client }
}

// loadAWSConfig builds an aws.Config from settings: static keys win over a
// shared credentials file, and assume_role wraps whichever is in effect.
func loadAWSConfig(ctx context.Context, s AWSSettings) (aws.Config, error) {
	configOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(s.Region),
	}
	if s.Profile != "" {
		configOpts = append(configOpts, awsconfig.WithSharedConfigProfile(s.Profile))
	}
	if s.CredentialsFile != "" {
		configOpts = append(configOpts, awsconfig.WithSharedCredentialsFiles([]string{config.ExpandPath(s.CredentialsFile)}))
	}
	if s.AccessKeyID != "" && s.SecretAccessKey != "" {
		configOpts = append(configOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.AccessKeyID, s.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if s.AssumeRole != "" {
		stsClient := sts.NewFromConfig(cfg, s.stsEndpoint)
		cfg.Credentials = aws.NewCredentialsCache(stscreds.NewAssumeRoleProvider(stsClient, s.AssumeRole,
			func(o *stscreds.AssumeRoleOptions) {
				o.RoleSessionName = "secretref"
				if s.ExternalID != "" {
					o.ExternalID = aws.String(s.ExternalID)
				}
			}))
	}
	return cfg, nil
}

func (s AWSSettings) stsEndpoint(o *sts.Options) {
	if s.Endpoint != "" {
		o.BaseEndpoint = aws.String(s.Endpoint)
	}
}

// callerIdentity reports who the configured credentials authenticate as
func callerIdentity(ctx context.Context, client STSClientAPI) (string, error) {
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", err
	}
	return stringValue(out.Arn), nil
}
