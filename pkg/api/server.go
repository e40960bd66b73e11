package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Mindburn-Labs/appops/pkg/appops"
	"github.com/Mindburn-Labs/appops/pkg/auth"
	"github.com/Mindburn-Labs/appops/pkg/observability"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// ServerOptions wire the transport concerns around the engine.
type ServerOptions struct {
	// Validator authenticates bearer tokens. Nil rejects every
	// authenticated route.
	Validator *auth.TokenValidator
	// Limiter is optional.
	Limiter *RateLimiter
	// Origins lists allowed CORS origins; empty allows all.
	Origins []string
	// Telemetry is optional.
	Telemetry *observability.Provider
}

// Server exposes an appops.Service over HTTP.
type Server struct {
	svc    *appops.Service
	opts   ServerOptions
	logger *slog.Logger
}

// NewServer returns a Server for svc.
func NewServer(svc *appops.Service, opts ServerOptions) *Server {
	return &Server{
		svc:    svc,
		opts:   opts,
		logger: slog.Default().With("component", "api"),
	}
}

// Handler returns the routed handler with the middleware chain applied:
// request id, CORS, authentication and rate limiting, outermost first.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "GET /health", s.handleHealth)
	s.route(mux, "GET /v1/catalog", s.handleCatalog)

	s.route(mux, "POST /v1/ops/check", s.handleCheck)
	s.route(mux, "POST /v1/ops/note", s.handleNote)
	s.route(mux, "POST /v1/ops/start", s.handleStart)
	s.route(mux, "POST /v1/ops/finish", s.handleFinish)
	s.route(mux, "GET /v1/ops/active", s.handleActive)
	s.route(mux, "GET /v1/ops/access", s.handleAccess)

	s.route(mux, "POST /v1/modes", s.handleSetMode)
	s.route(mux, "POST /v1/modes/uid", s.handleSetUIDMode)
	s.route(mux, "POST /v1/modes/reset", s.handleReset)
	s.route(mux, "POST /v1/state/reload", s.handleReload)
	s.route(mux, "DELETE /v1/packages", s.handleRemovePackage)

	s.route(mux, "GET /v1/watch/mode", s.handleWatchMode)

	var h http.Handler = mux
	if s.opts.Limiter != nil {
		h = s.opts.Limiter.Middleware(h)
	}
	h = Authenticate(s.opts.Validator)(h)
	h = CORSMiddleware(s.opts.Origins)(h)
	return RequestIDMiddleware(h)
}

func (s *Server) route(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	var h http.Handler = fn
	if s.opts.Telemetry != nil {
		h = s.opts.Telemetry.HTTPMiddleware(pattern, h)
	}
	mux.Handle(pattern, h)
}

// caller returns the authenticated caller. Authenticate guarantees one on
// every non-public route, so a miss is an internal error.
func (s *Server) caller(w http.ResponseWriter, r *http.Request) (auth.Caller, bool) {
	c, err := auth.CallerFrom(r.Context())
	if err != nil {
		WriteInternal(w, err)
		return auth.Caller{}, false
	}
	return c, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
