// Package llm defines the model-client contract used by the bias detectors
// and an OpenAI-compatible HTTP implementation.
package llm

import (
	"context"
	"fmt"
)

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SamplingOptions are the decoding parameters resolved for a run.
type SamplingOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	TopK        int     `json:"top_k,omitempty"`
	MaxTokens   int     `json:"max_tokens"`
	Seed        int64   `json:"seed,omitempty"`
	SeedSet     bool    `json:"-"`
}

// Client is a model endpoint capable of chat completion.
type Client interface {
	Chat(ctx context.Context, messages []Message, options *SamplingOptions) (string, error)
}

// APIError is a failed upstream call with its HTTP status. It satisfies the
// scheduler's StatusError and RetryAfterHinter contracts.
type APIError struct {
	Status     int
	RetryAfter int // seconds, from the Retry-After header; 0 when absent
	Body       string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("llm: upstream status %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("llm: upstream status %d", e.Status)
}

// HTTPStatus returns the upstream status code.
func (e *APIError) HTTPStatus() int { return e.Status }

// RetryAfterSeconds returns the server's Retry-After hint, 0 when absent.
func (e *APIError) RetryAfterSeconds() int { return e.RetryAfter }
