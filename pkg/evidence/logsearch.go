package evidence

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/biaslens/biaslens/pkg/contracts"
)

const logSearchSourcetype = "biaslens:evidence"

// Default port conventions for log-search deployments: the event collector
// listens on one port, the management API (session login + simple receiver)
// on another.
const (
	defaultCollectorPort  = "8088"
	defaultManagementPort = "8089"
)

// LogSearchConfig holds the decrypted customer credentials for the
// log-search backend. Either Token (event-collector auth) or
// Username/Password (session auth against the management API) must be set.
type LogSearchConfig struct {
	Endpoint string // scheme://host[:port]
	Token    string
	Username string
	Password string
	Index    string // optional index hint sent with each event
}

// LogSearchCollector ships evidence as JSON events to a log-search engine.
type LogSearchCollector struct {
	cfg        LogSearchConfig
	runID      string
	httpc      *http.Client
	sessionKey string
}

// NewLogSearchCollector builds a collector for one evaluation run.
func NewLogSearchCollector(cfg LogSearchConfig, runID string) *LogSearchCollector {
	return &LogSearchCollector{
		cfg:   cfg,
		runID: runID,
		httpc: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *LogSearchCollector) StorageType() contracts.StorageType { return contracts.StorageLogSearch }

func (c *LogSearchCollector) GenerateReferenceID(runID, testCaseID string, iteration int) string {
	return CollectorReferenceID(runID, testCaseID, iteration)
}

// baseURL returns the endpoint with the conventional port applied when the
// operator configured a bare host.
func (c *LogSearchCollector) baseURL(management bool) (string, error) {
	u, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return "", &CollectorError{Category: CategoryValidation, Message: "invalid endpoint: " + err.Error(), Cause: err}
	}
	if u.Port() == "" {
		port := defaultCollectorPort
		if management {
			port = defaultManagementPort
		}
		u.Host = u.Hostname() + ":" + port
	}
	return strings.TrimRight(u.String(), "/"), nil
}

func (c *LogSearchCollector) StoreEvidence(ctx context.Context, data EvidenceData) (*ReferenceInfo, error) {
	if c.cfg.Token != "" {
		return c.storeViaCollector(ctx, data)
	}
	return c.storeViaReceiver(ctx, data)
}

// storeViaCollector posts a structured event to the HTTP event collector.
func (c *LogSearchCollector) storeViaCollector(ctx context.Context, data EvidenceData) (*ReferenceInfo, error) {
	base, err := c.baseURL(false)
	if err != nil {
		return nil, err
	}

	event := map[string]interface{}{
		"sourcetype": logSearchSourcetype,
		"event":      data,
	}
	if c.cfg.Index != "" {
		event["index"] = c.cfg.Index
	}
	body, _ := json.Marshal(event)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/services/collector/event", bytes.NewReader(body))
	if err != nil {
		return nil, ClassifyErr(err)
	}
	req.Header.Set("Authorization", "Splunk "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	if err := c.do(req); err != nil {
		return nil, err
	}
	return c.referenceInfo(data), nil
}

// storeViaReceiver authenticates with username/password for a session key,
// then posts the raw event to the simple receiver on the management port.
func (c *LogSearchCollector) storeViaReceiver(ctx context.Context, data EvidenceData) (*ReferenceInfo, error) {
	if c.sessionKey == "" {
		if err := c.login(ctx); err != nil {
			return nil, err
		}
	}

	base, err := c.baseURL(true)
	if err != nil {
		return nil, err
	}

	body, _ := json.Marshal(data)
	endpoint := fmt.Sprintf("%s/services/receivers/simple?sourcetype=%s", base, url.QueryEscape(logSearchSourcetype))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, ClassifyErr(err)
	}
	req.Header.Set("Authorization", "Splunk "+c.sessionKey)
	req.Header.Set("Content-Type", "application/json")

	if err := c.do(req); err != nil {
		return nil, err
	}
	return c.referenceInfo(data), nil
}

func (c *LogSearchCollector) login(ctx context.Context) error {
	base, err := c.baseURL(true)
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("username", c.cfg.Username)
	form.Set("password", c.cfg.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/services/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return ClassifyErr(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return ClassifyErr(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		ce := Classify(resp.StatusCode, string(body), false)
		ce.RateLimit = ExtractRateLimitInfo(resp.Header)
		return ce
	}

	var session struct {
		SessionKey string `xml:"sessionKey"`
	}
	if err := xml.NewDecoder(resp.Body).Decode(&session); err != nil || session.SessionKey == "" {
		return &CollectorError{Category: CategoryAuthentication, Message: "login response missing session key"}
	}
	c.sessionKey = session.SessionKey
	return nil
}

func (c *LogSearchCollector) do(req *http.Request) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return ClassifyErr(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		ce := Classify(resp.StatusCode, string(body), false)
		ce.RateLimit = ExtractRateLimitInfo(resp.Header)
		return ce
	}
	return nil
}

func (c *LogSearchCollector) referenceInfo(data EvidenceData) *ReferenceInfo {
	return &ReferenceInfo{
		ReferenceID:     data.ReferenceID,
		StorageLocation: fmt.Sprintf("%s#sourcetype=%s&ref=%s", c.cfg.Endpoint, logSearchSourcetype, data.ReferenceID),
		StorageType:     contracts.StorageLogSearch,
	}
}

// TestConnection validates credentials by posting a probe event.
func (c *LogSearchCollector) TestConnection(ctx context.Context) error {
	probe := EvidenceData{
		ReferenceID:     CollectorReferenceID(c.runID, "", 0),
		EvaluationRunID: c.runID,
		TestCaseID:      "connection-test",
		Timestamp:       time.Now().UTC(),
		Metadata:        map[string]string{"probe": "true"},
	}
	_, err := c.StoreEvidence(ctx, probe)
	return err
}
