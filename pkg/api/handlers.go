package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/biaslens/biaslens/pkg/contracts"
	"github.com/biaslens/biaslens/pkg/eval"
	"github.com/biaslens/biaslens/pkg/repropack"
	"github.com/biaslens/biaslens/pkg/store"
)

// ProgressSubscription tells the caller where to follow live progress: the
// evaluation_progress change stream, filtered to this run.
type ProgressSubscription struct {
	Table  string `json:"table"`
	Filter string `json:"filter"`
}

// EvaluateResponse is the submission envelope.
type EvaluateResponse struct {
	Evaluation           *contracts.Evaluation `json:"evaluation"`
	Message              string                `json:"message"`
	ProgressSubscription ProgressSubscription  `json:"progress_subscription"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	var req contracts.EvaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	ev, err := s.Eval.Submit(r.Context(), UserID(r.Context()), &req)
	if err != nil {
		s.writeEvalError(w, r, err)
		return
	}

	writeJSON(w, &EvaluateResponse{
		Evaluation: ev,
		Message:    "Evaluation started. Subscribe to progress updates for live status.",
		ProgressSubscription: ProgressSubscription{
			Table:  "evaluation_progress",
			Filter: fmt.Sprintf("evaluation_id=eq.%s", ev.ID),
		},
	})
}

func (s *Server) handleGetEvaluation(w http.ResponseWriter, r *http.Request) {
	detail, err := s.Eval.Get(r.Context(), UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		s.writeEvalError(w, r, err)
		return
	}
	writeJSON(w, detail)
}

// VerifyRequest identifies a pack either by id or inline. Packs are unique
// per evaluation run, so the id is the evaluation run id.
type VerifyRequest struct {
	ReproPackID      string                 `json:"reproPackId,omitempty"`
	PackContent      map[string]interface{} `json:"packContent,omitempty"`
	Signature        string                 `json:"signature,omitempty"`
	ExpectedHash     string                 `json:"expectedHash,omitempty"`
	SigningAuthority string                 `json:"signingAuthority,omitempty"`
}

func (s *Server) handleVerifyReproPack(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 4<<20) // packs embed evidence summaries
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	var (
		result *repropack.VerifyResult
		err    error
	)
	switch {
	case req.ReproPackID != "":
		var pack *contracts.ReproPack
		pack, err = s.Store.GetReproPack(r.Context(), req.ReproPackID)
		if errors.Is(err, store.ErrNotFound) {
			WriteNotFound(w, fmt.Sprintf("Repro pack %s not found", req.ReproPackID))
			return
		}
		if err != nil {
			WriteInternal(w, err)
			return
		}
		result, err = s.Verifier.VerifyPack(r.Context(), pack)
	case req.PackContent != nil && req.Signature != "" && req.ExpectedHash != "":
		authority := req.SigningAuthority
		if authority == "" {
			authority = s.Verifier.DefaultAuthority
		}
		result, err = s.Verifier.Verify(r.Context(), req.PackContent, req.Signature, req.ExpectedHash, authority)
	default:
		WriteBadRequest(w, "Provide either reproPackId or packContent, signature, and expectedHash")
		return
	}

	if err != nil {
		// Verification errors describe the submitted pack, not server state.
		WriteBadRequest(w, err.Error())
		return
	}
	writeJSON(w, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// writeEvalError maps the orchestrator's error taxonomy onto HTTP statuses.
func (s *Server) writeEvalError(w http.ResponseWriter, r *http.Request, err error) {
	switch eval.KindOf(err) {
	case eval.KindInput, eval.KindProvider:
		WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", err.Error())
	case eval.KindAuth:
		WriteErrorR(w, r, http.StatusUnauthorized, "Unauthorized", err.Error())
	case eval.KindNotFound:
		WriteErrorR(w, r, http.StatusNotFound, "Not Found", err.Error())
	default:
		WriteInternal(w, err)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
