package evidence

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/biaslens/biaslens/pkg/contracts"
)

// DocSearchConfig holds the decrypted customer credentials for the
// document-search backend. Either APIKey or Username/Password must be set.
type DocSearchConfig struct {
	Endpoint string
	Index    string
	APIKey   string
	Username string
	Password string
}

// DocSearchCollector ships evidence as documents via PUT /{index}/_doc/{id}.
type DocSearchCollector struct {
	cfg   DocSearchConfig
	runID string
	httpc *http.Client
}

// NewDocSearchCollector builds a collector for one evaluation run.
func NewDocSearchCollector(cfg DocSearchConfig, runID string) *DocSearchCollector {
	if cfg.Index == "" {
		cfg.Index = "biaslens-evidence"
	}
	return &DocSearchCollector{
		cfg:   cfg,
		runID: runID,
		httpc: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *DocSearchCollector) StorageType() contracts.StorageType {
	return contracts.StorageDocumentSearch
}

func (c *DocSearchCollector) GenerateReferenceID(runID, testCaseID string, iteration int) string {
	return CollectorReferenceID(runID, testCaseID, iteration)
}

func (c *DocSearchCollector) authorize(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "ApiKey "+c.cfg.APIKey)
		return
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.cfg.Username + ":" + c.cfg.Password))
	req.Header.Set("Authorization", "Basic "+basic)
}

func (c *DocSearchCollector) StoreEvidence(ctx context.Context, data EvidenceData) (*ReferenceInfo, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, &CollectorError{Category: CategoryValidation, Message: err.Error(), Cause: err}
	}

	endpoint := fmt.Sprintf("%s/%s/_doc/%s",
		strings.TrimRight(c.cfg.Endpoint, "/"), c.cfg.Index, data.ReferenceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, ClassifyErr(err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, ClassifyErr(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		// A missing index is recoverable: the engine creates it on first
		// successful write once auto-creation is allowed.
		recoverable := resp.StatusCode == http.StatusNotFound &&
			strings.Contains(string(respBody), "index_not_found")
		ce := Classify(resp.StatusCode, string(respBody), recoverable)
		ce.RateLimit = ExtractRateLimitInfo(resp.Header)
		return nil, ce
	}

	return &ReferenceInfo{
		ReferenceID:     data.ReferenceID,
		StorageLocation: fmt.Sprintf("%s/%s/_doc/%s", c.cfg.Endpoint, c.cfg.Index, data.ReferenceID),
		StorageType:     contracts.StorageDocumentSearch,
	}, nil
}

// TestConnection checks cluster health (red is fatal) and the index HEAD.
// A 404 on the index is acceptable; it will be created on first write.
func (c *DocSearchCollector) TestConnection(ctx context.Context) error {
	base := strings.TrimRight(c.cfg.Endpoint, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/_cluster/health", nil)
	if err != nil {
		return ClassifyErr(err)
	}
	c.authorize(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return ClassifyErr(err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		_ = resp.Body.Close()
		return Classify(resp.StatusCode, string(body), false)
	}
	var health struct {
		Status string `json:"status"`
	}
	err = json.NewDecoder(resp.Body).Decode(&health)
	_ = resp.Body.Close()
	if err == nil && health.Status == "red" {
		return &CollectorError{Category: CategoryServerError, Message: "cluster health is red", Retryable: true}
	}

	headReq, err := http.NewRequestWithContext(ctx, http.MethodHead, base+"/"+c.cfg.Index, nil)
	if err != nil {
		return ClassifyErr(err)
	}
	c.authorize(headReq)

	headResp, err := c.httpc.Do(headReq)
	if err != nil {
		return ClassifyErr(err)
	}
	defer func() { _ = headResp.Body.Close() }()

	if headResp.StatusCode != http.StatusOK && headResp.StatusCode != http.StatusNotFound {
		return Classify(headResp.StatusCode, "index check failed", false)
	}
	return nil
}
