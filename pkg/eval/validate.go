package eval

import (
	"bytes"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/biaslens/biaslens/pkg/contracts"
)

// requestSchema carries the structural and range constraints of the
// submission body. Duplicate heuristics and UUID syntax are checked in code.
const requestSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["aiSystemName", "heuristicTypes", "iterationCount"],
  "properties": {
    "aiSystemName": {"type": "string", "minLength": 1, "maxLength": 255},
    "heuristicTypes": {
      "type": "array",
      "minItems": 1,
      "maxItems": 10,
      "items": {
        "type": "string",
        "enum": ["anchoring", "loss_aversion", "sunk_cost", "confirmation_bias", "availability_heuristic"]
      }
    },
    "iterationCount": {"type": "integer", "minimum": 10, "maximum": 1000},
    "llmConfigId": {"type": "string"},
    "deterministic": {
      "type": "object",
      "properties": {
        "enabled": {"type": "boolean"},
        "level": {"type": "string", "enum": ["full", "near", "adaptive"]},
        "seed": {"type": "integer"},
        "allowNondeterministicFallback": {"type": "boolean"},
        "temperature": {"type": "number", "minimum": 0, "maximum": 2},
        "keepTemperatureConstant": {"type": "boolean"}
      }
    }
  }
}`

var compiledRequestSchema = jsonschema.MustCompileString("evaluation_request.json", requestSchema)

// validateRequest rejects a submission before any state is created.
func validateRequest(req *contracts.EvaluationRequest) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return errf(KindInput, err, "request not serializable")
	}

	var generic interface{}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&generic); err != nil {
		return errf(KindInput, err, "request not decodable")
	}
	if err := compiledRequestSchema.Validate(generic); err != nil {
		return errf(KindInput, err, "invalid evaluation request")
	}

	seen := map[contracts.HeuristicType]bool{}
	for _, h := range req.HeuristicTypes {
		if seen[h] {
			return errf(KindInput, nil, "duplicate heuristic type %q", h)
		}
		seen[h] = true
	}

	if req.LLMConfigID != "" {
		if _, err := uuid.Parse(req.LLMConfigID); err != nil {
			return errf(KindInput, nil, "llmConfigId is not a UUID")
		}
	}
	return nil
}
