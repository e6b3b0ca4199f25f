package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/biaslens/biaslens/pkg/contracts"
)

// GCSCollector is the Google Cloud Storage flavor of the object-store
// backend; it uses the same key layout as the S3 collector.
type GCSCollector struct {
	client *storage.Client
	bucket string
	runID  string
}

// GCSConfig holds the decrypted customer credentials for GCS.
type GCSConfig struct {
	Bucket             string
	ServiceAccountJSON string // optional; ambient credentials when empty
}

// NewGCSCollector builds a collector for one evaluation run.
func NewGCSCollector(ctx context.Context, cfg GCSConfig, runID string) (*GCSCollector, error) {
	var opts []option.ClientOption
	if cfg.ServiceAccountJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("evidence: create GCS client: %w", err)
	}
	return &GCSCollector{client: client, bucket: cfg.Bucket, runID: runID}, nil
}

func (c *GCSCollector) StorageType() contracts.StorageType { return contracts.StorageObjectStore }

func (c *GCSCollector) GenerateReferenceID(runID, testCaseID string, iteration int) string {
	return CollectorReferenceID(runID, testCaseID, iteration)
}

func (c *GCSCollector) objectKey(data EvidenceData) string {
	return fmt.Sprintf("evidence/%s/%s/%d-%s.json",
		SanitizeID(c.runID), SanitizeID(data.TestCaseID), data.Iteration, SanitizeID(data.ReferenceID))
}

func (c *GCSCollector) StoreEvidence(ctx context.Context, data EvidenceData) (*ReferenceInfo, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, &CollectorError{Category: CategoryValidation, Message: err.Error(), Cause: err}
	}

	key := c.objectKey(data)
	w := c.client.Bucket(c.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/json"
	w.Metadata = map[string]string{
		"reference-id":      data.ReferenceID,
		"evaluation-run-id": data.EvaluationRunID,
		"test-case-id":      data.TestCaseID,
		"iteration":         fmt.Sprintf("%d", data.Iteration),
	}

	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return nil, classifyGCSError(err)
	}
	if err := w.Close(); err != nil {
		return nil, classifyGCSError(err)
	}

	return &ReferenceInfo{
		ReferenceID:     data.ReferenceID,
		StorageLocation: fmt.Sprintf("gs://%s/%s", c.bucket, key),
		StorageType:     contracts.StorageObjectStore,
	}, nil
}

// TestConnection verifies bucket attributes are readable and a small probe
// object can be written.
func (c *GCSCollector) TestConnection(ctx context.Context) error {
	if _, err := c.client.Bucket(c.bucket).Attrs(ctx); err != nil {
		return classifyGCSError(err)
	}

	probe := fmt.Sprintf("evidence/%s/.connection-test", SanitizeID(c.runID))
	w := c.client.Bucket(c.bucket).Object(probe).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write([]byte(`{"probe":true}`)); err != nil {
		_ = w.Close()
		return classifyGCSError(err)
	}
	if err := w.Close(); err != nil {
		return classifyGCSError(err)
	}
	return nil
}

func classifyGCSError(err error) *CollectorError {
	status := 0
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		status = apiErr.Code
	}
	ce := Classify(status, err.Error(), false)
	ce.Cause = err
	return ce
}
