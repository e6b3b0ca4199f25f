package evidence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/biaslens/biaslens/pkg/contracts"
)

// S3API is the slice of the S3 client the collector uses; narrowed for tests.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Collector ships evidence to a customer-owned S3 (or S3-compatible)
// bucket under evidence/{runId}/{testCaseId}/{iteration}-{refId}.json.
type S3Collector struct {
	client S3API
	bucket string
	runID  string
}

// S3Config holds the decrypted customer credentials for the object store.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional custom endpoint (MinIO, LocalStack)
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Collector builds a collector for one evaluation run.
func NewS3Collector(ctx context.Context, cfg S3Config, runID string) (*S3Collector, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("evidence: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // required for MinIO/LocalStack
		}
	})

	return &S3Collector{client: client, bucket: cfg.Bucket, runID: runID}, nil
}

// NewS3CollectorWithClient injects a prebuilt client; used by tests.
func NewS3CollectorWithClient(client S3API, bucket, runID string) *S3Collector {
	return &S3Collector{client: client, bucket: bucket, runID: runID}
}

func (c *S3Collector) StorageType() contracts.StorageType { return contracts.StorageObjectStore }

func (c *S3Collector) GenerateReferenceID(runID, testCaseID string, iteration int) string {
	return CollectorReferenceID(runID, testCaseID, iteration)
}

func (c *S3Collector) objectKey(data EvidenceData) string {
	return fmt.Sprintf("evidence/%s/%s/%d-%s.json",
		SanitizeID(c.runID), SanitizeID(data.TestCaseID), data.Iteration, SanitizeID(data.ReferenceID))
}

func (c *S3Collector) StoreEvidence(ctx context.Context, data EvidenceData) (*ReferenceInfo, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, &CollectorError{Category: CategoryValidation, Message: err.Error(), Cause: err}
	}

	key := c.objectKey(data)
	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"reference-id":      data.ReferenceID,
			"evaluation-run-id": data.EvaluationRunID,
			"test-case-id":      data.TestCaseID,
			"iteration":         fmt.Sprintf("%d", data.Iteration),
		},
	})
	if err != nil {
		return nil, classifyAWSError(err)
	}

	return &ReferenceInfo{
		ReferenceID:     data.ReferenceID,
		StorageLocation: fmt.Sprintf("s3://%s/%s", c.bucket, key),
		StorageType:     contracts.StorageObjectStore,
	}, nil
}

// TestConnection verifies the bucket exists and that a small test object can
// be written.
func (c *S3Collector) TestConnection(ctx context.Context) error {
	if _, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)}); err != nil {
		return classifyAWSError(err)
	}

	probe := fmt.Sprintf("evidence/%s/.connection-test", SanitizeID(c.runID))
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(probe),
		Body:        bytes.NewReader([]byte(`{"probe":true}`)),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return classifyAWSError(err)
	}
	return nil
}

func classifyAWSError(err error) *CollectorError {
	status := 0
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		status = respErr.HTTPStatusCode()
	}

	msg := err.Error()
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		msg = apiErr.ErrorCode() + ": " + apiErr.ErrorMessage()
		if status == 0 {
			switch apiErr.ErrorCode() {
			case "AccessDenied":
				status = http.StatusForbidden
			case "NoSuchBucket", "NotFound":
				status = http.StatusNotFound
			case "SlowDown", "RequestLimitExceeded":
				status = http.StatusTooManyRequests
			}
		}
	}

	ce := Classify(status, msg, false)
	ce.Cause = err
	return ce
}
