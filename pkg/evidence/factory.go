package evidence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/biaslens/biaslens/pkg/contracts"
)

// Credentials is the decrypted shape of a team's evidence-store secret blob.
// Only the fields for the stored storage type are populated.
type Credentials struct {
	StorageType contracts.StorageType `json:"storageType"`

	// object_store
	Provider           string `json:"provider,omitempty"` // "s3" (default) | "gcs"
	Bucket             string `json:"bucket,omitempty"`
	Region             string `json:"region,omitempty"`
	Endpoint           string `json:"endpoint,omitempty"`
	AccessKeyID        string `json:"accessKeyId,omitempty"`
	SecretAccessKey    string `json:"secretAccessKey,omitempty"`
	ServiceAccountJSON string `json:"serviceAccountJson,omitempty"`

	// log_search / document_search
	Token    string `json:"token,omitempty"`
	APIKey   string `json:"apiKey,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Index    string `json:"index,omitempty"`
}

// ParseCredentials decodes a decrypted secret blob and validates it against
// the requested storage type. A type mismatch is a non-retryable validation
// failure.
func ParseCredentials(raw []byte, want contracts.StorageType) (*Credentials, error) {
	var creds Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, &CollectorError{Category: CategoryValidation, Message: "credentials are not valid JSON", Cause: err}
	}

	if creds.StorageType != want {
		return nil, &CollectorError{
			Category:  CategoryValidation,
			Message:   fmt.Sprintf("stored credentials are for %q, collector requested %q", creds.StorageType, want),
			Retryable: false,
		}
	}

	switch want {
	case contracts.StorageObjectStore:
		if creds.Bucket == "" {
			return nil, &CollectorError{Category: CategoryValidation, Message: "object store credentials missing bucket"}
		}
		if creds.Provider == "gcs" {
			// service account optional; ambient creds allowed
		} else if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
			return nil, &CollectorError{Category: CategoryValidation, Message: "object store credentials missing access key pair"}
		}
	case contracts.StorageLogSearch:
		if creds.Endpoint == "" {
			return nil, &CollectorError{Category: CategoryValidation, Message: "log search credentials missing endpoint"}
		}
		if creds.Token == "" && (creds.Username == "" || creds.Password == "") {
			return nil, &CollectorError{Category: CategoryValidation, Message: "log search credentials need a token or username/password"}
		}
	case contracts.StorageDocumentSearch:
		if creds.Endpoint == "" {
			return nil, &CollectorError{Category: CategoryValidation, Message: "document search credentials missing endpoint"}
		}
		if creds.APIKey == "" && (creds.Username == "" || creds.Password == "") {
			return nil, &CollectorError{Category: CategoryValidation, Message: "document search credentials need an api key or username/password"}
		}
	default:
		return nil, &CollectorError{Category: CategoryValidation, Message: fmt.Sprintf("unsupported storage type %q", want)}
	}

	return &creds, nil
}

// NewCollector constructs the backend collector for a run from validated
// credentials.
func NewCollector(ctx context.Context, creds *Credentials, runID string) (Collector, error) {
	switch creds.StorageType {
	case contracts.StorageObjectStore:
		if creds.Provider == "gcs" {
			return NewGCSCollector(ctx, GCSConfig{
				Bucket:             creds.Bucket,
				ServiceAccountJSON: creds.ServiceAccountJSON,
			}, runID)
		}
		return NewS3Collector(ctx, S3Config{
			Bucket:          creds.Bucket,
			Region:          creds.Region,
			Endpoint:        creds.Endpoint,
			AccessKeyID:     creds.AccessKeyID,
			SecretAccessKey: creds.SecretAccessKey,
		}, runID)
	case contracts.StorageLogSearch:
		return NewLogSearchCollector(LogSearchConfig{
			Endpoint: creds.Endpoint,
			Token:    creds.Token,
			Username: creds.Username,
			Password: creds.Password,
			Index:    creds.Index,
		}, runID), nil
	case contracts.StorageDocumentSearch:
		return NewDocSearchCollector(DocSearchConfig{
			Endpoint: creds.Endpoint,
			Index:    creds.Index,
			APIKey:   creds.APIKey,
			Username: creds.Username,
			Password: creds.Password,
		}, runID), nil
	default:
		return nil, &CollectorError{Category: CategoryValidation, Message: fmt.Sprintf("unsupported storage type %q", creds.StorageType)}
	}
}
