package evidence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biaslens/biaslens/pkg/contracts"
)

func TestParseCredentials(t *testing.T) {
	raw := []byte(`{"storageType":"object_store","bucket":"b","accessKeyId":"ak","secretAccessKey":"sk","region":"us-east-1"}`)
	creds, err := ParseCredentials(raw, contracts.StorageObjectStore)
	require.NoError(t, err)
	assert.Equal(t, "b", creds.Bucket)
	assert.Equal(t, "us-east-1", creds.Region)
}

func TestParseCredentialsTypeMismatch(t *testing.T) {
	raw := []byte(`{"storageType":"log_search","endpoint":"https://x","token":"t"}`)
	_, err := ParseCredentials(raw, contracts.StorageObjectStore)

	var ce *CollectorError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, CategoryValidation, ce.Category)
	assert.False(t, ce.Retryable)
	assert.Contains(t, ce.Message, "log_search")
}

func TestParseCredentialsValidation(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want contracts.StorageType
	}{
		{"not json", `{{`, contracts.StorageObjectStore},
		{"object store no bucket", `{"storageType":"object_store","accessKeyId":"a","secretAccessKey":"s"}`, contracts.StorageObjectStore},
		{"s3 missing keys", `{"storageType":"object_store","bucket":"b"}`, contracts.StorageObjectStore},
		{"log search no endpoint", `{"storageType":"log_search","token":"t"}`, contracts.StorageLogSearch},
		{"log search no auth", `{"storageType":"log_search","endpoint":"https://x"}`, contracts.StorageLogSearch},
		{"doc search no endpoint", `{"storageType":"document_search","apiKey":"k"}`, contracts.StorageDocumentSearch},
		{"doc search partial basic auth", `{"storageType":"document_search","endpoint":"https://x","username":"u"}`, contracts.StorageDocumentSearch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCredentials([]byte(tt.raw), tt.want)
			var ce *CollectorError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, CategoryValidation, ce.Category)
		})
	}
}

func TestParseCredentialsGCSAmbient(t *testing.T) {
	// GCS may rely on ambient credentials; only the bucket is required.
	raw := []byte(`{"storageType":"object_store","provider":"gcs","bucket":"b"}`)
	creds, err := ParseCredentials(raw, contracts.StorageObjectStore)
	require.NoError(t, err)
	assert.Equal(t, "gcs", creds.Provider)
}

func TestNewCollectorDispatch(t *testing.T) {
	c, err := NewCollector(context.Background(), &Credentials{
		StorageType: contracts.StorageLogSearch,
		Endpoint:    "https://logs.example.com",
		Token:       "t",
	}, "run1")
	require.NoError(t, err)
	assert.Equal(t, contracts.StorageLogSearch, c.StorageType())

	c, err = NewCollector(context.Background(), &Credentials{
		StorageType: contracts.StorageDocumentSearch,
		Endpoint:    "https://es.example.com",
		APIKey:      "k",
	}, "run1")
	require.NoError(t, err)
	assert.Equal(t, contracts.StorageDocumentSearch, c.StorageType())

	_, err = NewCollector(context.Background(), &Credentials{StorageType: "bogus"}, "run1")
	var ce *CollectorError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, CategoryValidation, ce.Category)
}
