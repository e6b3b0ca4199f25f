// Package audit records the evaluation pipeline's decision trail as
// structured JSON lines. Every significant evidence-collection decision
// (config load, collector creation, per-item shipment, degradation) emits one
// event so operators can reconstruct a run without the raw traffic.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event names emitted by the evaluation pipeline.
const (
	EventCollectionStarted   = "evidence_collection_started"
	EventConfigLoaded        = "evidence_collection_config_loaded"
	EventConfigError         = "evidence_collection_config_error"
	EventCollectorCreated    = "evidence_collector_created"
	EventCreationFailed      = "evidence_collector_creation_failed"
	EventCaptured            = "evidence_captured"
	EventStorageStarted      = "evidence_storage_started"
	EventStorageSuccess      = "evidence_storage_success"
	EventStorageFailed       = "evidence_storage_failed"
	EventReferenceCreated    = "evidence_reference_created"
	EventReferenceStored     = "evidence_reference_stored"
	EventRefStorageFailed    = "evidence_reference_storage_failed"
	EventCollectionCompleted = "evidence_collection_completed"
	EventAsyncStarted        = "evidence_collection_async_started"
	EventAsyncCompleted      = "evidence_collection_async_completed"
)

// Event is a single structured audit record.
type Event struct {
	ID           string                 `json:"id"`
	TeamID       string                 `json:"team_id,omitempty"`
	EvaluationID string                 `json:"evaluation_id,omitempty"`
	Action       string                 `json:"action"`
	Timestamp    time.Time              `json:"timestamp"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// Logger records audit events.
type Logger interface {
	Record(ctx context.Context, action, teamID, evaluationID string, metadata map[string]interface{})
}

// logger writes JSON lines to a configurable Writer.
type logger struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewLogger creates a Logger writing to os.Stdout.
func NewLogger() Logger {
	return NewLoggerWithWriter(os.Stdout)
}

// NewLoggerWithWriter creates a Logger writing to the given writer.
// This allows injection for testing and custom sinks.
func NewLoggerWithWriter(w io.Writer) Logger {
	if w == nil {
		w = os.Stdout
	}
	return &logger{writer: w}
}

func (l *logger) Record(ctx context.Context, action, teamID, evaluationID string, metadata map[string]interface{}) {
	event := Event{
		ID:           uuid.New().String(),
		TeamID:       teamID,
		EvaluationID: evaluationID,
		Action:       action,
		Timestamp:    time.Now().UTC(),
		Metadata:     metadata,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := json.Marshal(event)
	if err != nil {
		return
	}
	// Prefix with AUDIT: for easy filtering
	_, _ = l.writer.Write(append([]byte("AUDIT: "), append(b, '\n')...))
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Record(context.Context, string, string, string, map[string]interface{}) {}
