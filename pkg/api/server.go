package api

import (
	"log/slog"
	"net/http"

	"github.com/biaslens/biaslens/pkg/eval"
	"github.com/biaslens/biaslens/pkg/repropack"
	"github.com/biaslens/biaslens/pkg/store"
)

// Server is the HTTP surface: evaluation submission and reads, plus repro
// pack verification. All routes except /health require a bearer token.
type Server struct {
	Eval     *eval.Service
	Store    store.Store
	Verifier *repropack.Verifier
	Auth     *Authenticator
	Limiter  *GlobalRateLimiter
	Logger   *slog.Logger
}

// NewServer fills defaults and returns a ready server.
func NewServer(s Server) *Server {
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	s.Logger = s.Logger.With("component", "api")
	if s.Verifier == nil {
		s.Verifier = &repropack.Verifier{}
	}
	return &s
}

// Routes builds the handler chain: rate limiting, then auth, then the mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /evaluate", s.handleEvaluate)
	mux.HandleFunc("GET /evaluate/{id}", s.handleGetEvaluation)
	mux.HandleFunc("POST /verify-repro-pack", s.handleVerifyReproPack)

	var h http.Handler = mux
	h = NewMiddleware(s.Auth)(h)
	if s.Limiter != nil {
		h = s.Limiter.Middleware(h)
	}
	return h
}
