// Package awsclient builds AWS SDK clients. Only this package loads AWS
// configuration; adapters receive ready clients through narrow interfaces.
package awsclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// Config holds AWS connection parameters.
type Config struct {
	// Endpoint overrides the default AWS endpoint, e.g. a LocalStack URL
	// such as "http://localhost:4566". LocalStack runs get static test
	// credentials.
	Endpoint string

	Region string

	// Timeout is the HTTP client timeout. Zero keeps the SDK default.
	Timeout time.Duration
}

// Load resolves the shared AWS configuration for cfg.
func Load(ctx context.Context, cfg Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("test", "test", ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	if cfg.Timeout > 0 {
		awsCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return awsCfg, nil
}

// NewSNSClient creates an SNS client for SMS delivery.
func NewSNSClient(ctx context.Context, cfg Config) (*sns.Client, error) {
	awsCfg, err := Load(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var snsOpts []func(*sns.Options)
	if cfg.Endpoint != "" {
		snsOpts = append(snsOpts, func(o *sns.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return sns.NewFromConfig(awsCfg, snsOpts...), nil
}
