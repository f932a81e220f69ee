// Package mainconfig holds the AWS wiring shared by the API, the job worker
// and the job Lambda.
package mainconfig

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/internal/jobs"
	"github.com/wolfman30/clinic-scheduler/internal/notify"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// AWSClients holds the service clients built from one aws.Config.
type AWSClients struct {
	SQS      *sqs.Client
	DynamoDB *dynamodb.Client
	SES      *sesv2.Client
}

// NeedsAWS reports whether cfg selects any AWS-backed component.
func NeedsAWS(cfg *appconfig.Config) bool {
	return cfg.JobTriggerQueueURL != "" || cfg.JobRunsTable != "" || cfg.EmailProvider == "ses"
}

// LoadAWSConfig resolves region and credentials. Static keys win over the
// default chain so LocalStack runs need no profile.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("mainconfig: load aws config: %w", err)
	}
	return awsCfg, nil
}

// NewAWSClients builds the clients, pointing each at AWS_ENDPOINT_OVERRIDE
// when it is set.
func NewAWSClients(awsCfg aws.Config, endpoint string) *AWSClients {
	endpoint = strings.TrimSpace(endpoint)
	var base *string
	if endpoint != "" {
		base = aws.String(endpoint)
	}
	return &AWSClients{
		SQS: sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if base != nil {
				o.BaseEndpoint = base
			}
		}),
		DynamoDB: dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if base != nil {
				o.BaseEndpoint = base
			}
		}),
		SES: sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
			if base != nil {
				o.BaseEndpoint = base
			}
		}),
	}
}

// JobDependencies returns the SES client and run ledger cfg asks for.
// Either may be nil.
func (c *AWSClients) JobDependencies(cfg *appconfig.Config, logger *logging.Logger) (notify.SESAPI, jobs.RunRecorder) {
	if c == nil {
		return nil, nil
	}
	var (
		ses    notify.SESAPI
		ledger jobs.RunRecorder
	)
	if cfg.EmailProvider == "ses" {
		ses = c.SES
	}
	if cfg.JobRunsTable != "" {
		ledger = jobs.NewRunStore(c.DynamoDB, cfg.JobRunsTable, logger)
	}
	return ses, ledger
}

// Load returns nil clients when cfg selects nothing on AWS.
func Load(ctx context.Context, cfg *appconfig.Config) (*AWSClients, error) {
	if !NeedsAWS(cfg) {
		return nil, nil
	}
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewAWSClients(awsCfg, cfg.AWSEndpointOverride), nil
}
