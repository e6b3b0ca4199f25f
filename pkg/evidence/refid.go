package evidence

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var unsafeRefChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SanitizeID maps an identifier onto the reference-ID alphabet
// [A-Za-z0-9_-]; every other character becomes '-'.
func SanitizeID(id string) string {
	return unsafeRefChars.ReplaceAllString(id, "-")
}

// NewRunReferenceID returns a run-level reference: evaluation-run-{uuid}.
func NewRunReferenceID() string {
	return "evaluation-run-" + uuid.New().String()
}

// NewIterationReferenceID returns a per-iteration reference:
// test-case-{sanitizedTestCaseId}-{iteration}-{uuid}.
func NewIterationReferenceID(testCaseID string, iteration int) string {
	return fmt.Sprintf("test-case-%s-%d-%s", SanitizeID(testCaseID), iteration, uuid.New().String())
}

// CollectorReferenceID returns the backend-facing reference:
// evaluation-run-{runId}[-test-case-{id}][-iteration-{n}]-{uuid}.
func CollectorReferenceID(runID, testCaseID string, iteration int) string {
	var b strings.Builder
	b.WriteString("evaluation-run-")
	b.WriteString(SanitizeID(runID))
	if testCaseID != "" {
		b.WriteString("-test-case-")
		b.WriteString(SanitizeID(testCaseID))
	}
	if iteration > 0 {
		fmt.Fprintf(&b, "-iteration-%d", iteration)
	}
	b.WriteString("-")
	b.WriteString(uuid.New().String())
	return b.String()
}
