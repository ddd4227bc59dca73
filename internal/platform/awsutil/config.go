// Package awsutil loads AWS configuration and builds service clients.
package awsutil

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"verity/pkg/platform/sentinel"
)

// Load loads the default AWS configuration for the region.
func Load(ctx context.Context, region string) (aws.Config, error) {
	cfg, err := awsCfg.LoadDefaultConfig(ctx, awsCfg.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

// NewDynamoDB builds a DynamoDB client. A non-empty endpoint points the client
// at a local emulator (e.g. http://localstack:4566).
func NewDynamoDB(cfg aws.Config, endpoint string) *dynamodb.Client {
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// NewS3 builds an S3 client; a custom endpoint switches to path-style addressing.
func NewS3(cfg aws.Config, endpoint string) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
}

// MapDynamoError normalizes DynamoDB API error codes onto sentinel facts and
// transient names.
func MapDynamoError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			return sentinel.Transient(sentinel.TransientTimeout, err)
		}
		return err
	}
	switch apiErr.ErrorCode() {
	case "ConditionalCheckFailedException":
		return fmt.Errorf("%w: %s", sentinel.ErrInvalidState, apiErr.ErrorMessage())
	case "ProvisionedThroughputExceededException":
		return sentinel.Transient(sentinel.TransientThroughputExceeded, err)
	case "ThrottlingException", "RequestLimitExceeded":
		return sentinel.Transient(sentinel.TransientThrottling, err)
	case "ServiceUnavailable", "ServiceUnavailableException":
		return sentinel.Transient(sentinel.TransientServiceUnavailable, err)
	case "InternalServerError", "InternalFailure":
		return sentinel.Transient(sentinel.TransientInternalError, err)
	case "RequestTimeout", "RequestTimeoutException":
		return sentinel.Transient(sentinel.TransientTimeout, err)
	case "ResourceNotFoundException":
		return fmt.Errorf("%w: %s", sentinel.ErrNotFound, apiErr.ErrorMessage())
	}
	return err
}
