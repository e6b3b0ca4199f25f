package contracts

import "time"

// StorageType identifies an evidence backend family.
type StorageType string

const (
	StorageObjectStore    StorageType = "object_store"
	StorageLogSearch      StorageType = "log_search"
	StorageDocumentSearch StorageType = "document_search"
)

// CapturedEvidence is the ephemeral in-memory tuple for one iteration.
// It exists only inside a running task's buffers and is discarded once
// shipped; it is never written to the control-plane store.
type CapturedEvidence struct {
	Prompt        string        `json:"prompt"`
	Output        string        `json:"output"`
	TestCaseID    string        `json:"testCaseId"`
	Iteration     int           `json:"iteration"`
	Timestamp     time.Time     `json:"timestamp"`
	HeuristicType HeuristicType `json:"heuristicType"`
	ReferenceID   string        `json:"referenceId"`
}

// EvidenceReference is the control-plane row locating one shipped iteration
// inside the customer's store. Raw prompt/output bytes never appear here.
type EvidenceReference struct {
	EvaluationID        string                               `json:"evaluationId"`
	TestCaseID          string                               `json:"testCaseId"`
	ReferenceID         string                               `json:"referenceId"`
	StorageLocation     string                               `json:"storageLocation"`
	StorageType         StorageType                          `json:"storageType"`
	DeterminismMode     DeterminismMode                      `json:"determinismMode"`
	SeedValue           int64                                `json:"seedValue"`
	IterationsRun       int                                  `json:"iterationsRun"`
	AchievedLevel       string                               `json:"achievedLevel,omitempty"`
	ParametersUsed      ParametersUsed                       `json:"parametersUsed"`
	ConfidenceIntervals map[HeuristicType]ConfidenceInterval `json:"confidenceIntervals,omitempty"`
	PerIterationResults []PerIterationResult                 `json:"perIterationResults,omitempty"`
}

// EvidenceCollectionConfig is a team's evidence-store configuration row.
// CredentialsEncrypted is a vault envelope decrypted just-in-time.
type EvidenceCollectionConfig struct {
	TeamID               string            `json:"teamId"`
	StorageType          StorageType       `json:"storageType"`
	IsEnabled            bool              `json:"isEnabled"`
	CredentialsEncrypted string            `json:"-"`
	Configuration        map[string]string `json:"configuration"`
	LastTestedAt         *time.Time        `json:"lastTestedAt,omitempty"`
}

// LLMConfig is a team's stored model-endpoint configuration.
// APIKeyEncrypted is a vault envelope decrypted just-in-time.
type LLMConfig struct {
	ID              string `json:"id"`
	TeamID          string `json:"teamId"`
	Provider        string `json:"provider"`
	ModelName       string `json:"modelName"`
	BaseURL         string `json:"baseUrl,omitempty"`
	APIKeyEncrypted string `json:"-"`
}

// SigningMode selects process-default or customer signing material.
type SigningMode string

const (
	SigningBiasLens SigningMode = "biaslens"
	SigningCustomer SigningMode = "customer"
)

// TeamSigningConfig selects the signing mode for a team.
type TeamSigningConfig struct {
	TeamID      string      `json:"teamId"`
	SigningMode SigningMode `json:"signingMode"`
}

// SigningKey is a customer-scoped key-pair row. PrivateKeyEncrypted is a
// vault envelope over the PKCS#8 PEM.
type SigningKey struct {
	ID                  string `json:"id"`
	TeamID              string `json:"teamId"`
	Authority           string `json:"authority"`
	Status              string `json:"status"` // active | revoked
	PublicKeyPEM        string `json:"publicKeyPem"`
	PrivateKeyEncrypted string `json:"-"`
}

// ReproPack is the persisted signed manifest record for one completed
// evaluation.
type ReproPack struct {
	ID               string                 `json:"id"`
	EvaluationRunID  string                 `json:"evaluationRunId"`
	ContentHash      string                 `json:"contentHash"`
	Signature        string                 `json:"signature"`
	SigningAuthority string                 `json:"signingAuthority"`
	SigningKeyID     string                 `json:"signingKeyId"`
	CreatedAt        time.Time              `json:"createdAt"`
	Content          map[string]interface{} `json:"reproPackContent"`
}

// Profile maps an authenticated user to a team.
type Profile struct {
	UserID string `json:"userId"`
	TeamID string `json:"teamId"`
}
