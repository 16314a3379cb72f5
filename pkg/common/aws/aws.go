// Package aws provides the shared AWS SDK v2 client bootstrap used by
// every AWS-backed component: the task mirror, the workflow offload,
// the hosted queue, the event bus, the metric sink, and the autoscaler.
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// AuthConfig holds the settings needed to construct AWS clients.
// Endpoint overrides the service endpoint, which lets tests and local
// stacks point the SDK at an emulator.
type AuthConfig struct {
	Region          string `json:"region" mapstructure:"region"`
	Endpoint        string `json:"endpoint,omitempty" mapstructure:"endpoint"`
	AccessKeyID     string `json:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	SessionToken    string `json:"session_token,omitempty" mapstructure:"session_token"`
}

// GetAWSConfig resolves an aws.Config from the AuthConfig, falling back
// to the default credential chain when no static keys are provided.
func GetAWSConfig(ctx context.Context, cfg AuthConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	if cfg.Endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return awsCfg, nil
}
