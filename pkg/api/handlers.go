package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Mindburn-Labs/appops/pkg/accesslog"
	"github.com/Mindburn-Labs/appops/pkg/activeops"
	"github.com/Mindburn-Labs/appops/pkg/appops"
	"github.com/Mindburn-Labs/appops/pkg/registry"
)

// CheckRequest is the body of POST /v1/ops/check.
type CheckRequest struct {
	Op      string `json:"op"`
	UID     int    `json:"uid"`
	Package string `json:"package"`
	Raw     bool   `json:"raw,omitempty"`
	NoThrow bool   `json:"no_throw,omitempty"`
}

// NoteRequest is the body of the note, start and finish endpoints.
type NoteRequest struct {
	appops.Request
	NoThrow bool `json:"no_throw,omitempty"`
}

// ModeResponse carries an evaluated mode.
type ModeResponse struct {
	Op   string        `json:"op"`
	Mode registry.Mode `json:"mode"`
}

// SetModeRequest is the body of POST /v1/modes and /v1/modes/uid. Package
// is ignored by the uid endpoint.
type SetModeRequest struct {
	Op      string        `json:"op"`
	UID     int           `json:"uid"`
	Package string        `json:"package,omitempty"`
	Mode    registry.Mode `json:"mode"`
}

// ResetRequest is the body of POST /v1/modes/reset.
type ResetRequest struct {
	UID     int    `json:"uid"`
	Package string `json:"package"`
}

// SpanView is one open span in GET /v1/ops/active.
type SpanView struct {
	Op             string    `json:"op"`
	UID            int       `json:"uid"`
	Package        string    `json:"package"`
	AttributionTag string    `json:"attribution_tag,omitempty"`
	Count          int       `json:"count"`
	StartedAt      time.Time `json:"started_at"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"ops":      s.svc.Catalog().Len(),
		"watchers": s.svc.Watchers(),
	})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ops": s.svc.Catalog().Ops()})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req CheckRequest
	if !decode(w, r, &req) {
		return
	}

	var (
		mode registry.Mode
		err  error
	)
	switch {
	case req.Raw && req.NoThrow:
		mode, err = s.svc.CheckOpRawNoThrow(r.Context(), caller, req.Op, req.UID, req.Package)
	case req.Raw:
		mode, err = s.svc.CheckOpRaw(r.Context(), caller, req.Op, req.UID, req.Package)
	case req.NoThrow:
		mode, err = s.svc.CheckOpNoThrow(r.Context(), caller, req.Op, req.UID, req.Package)
	default:
		mode, err = s.svc.CheckOp(r.Context(), caller, req.Op, req.UID, req.Package)
	}
	if err != nil {
		WriteEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ModeResponse{Op: req.Op, Mode: mode})
}

func (s *Server) handleNote(w http.ResponseWriter, r *http.Request) {
	s.noteLike(w, r, false)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.noteLike(w, r, true)
}

func (s *Server) noteLike(w http.ResponseWriter, r *http.Request, start bool) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req NoteRequest
	if !decode(w, r, &req) {
		return
	}

	var (
		mode registry.Mode
		err  error
	)
	switch {
	case start && req.NoThrow:
		mode, err = s.svc.StartOpNoThrow(r.Context(), caller, req.Request)
	case start:
		mode, err = s.svc.StartOp(r.Context(), caller, req.Request)
	case req.NoThrow:
		mode, err = s.svc.NoteOpNoThrow(r.Context(), caller, req.Request)
	default:
		mode, err = s.svc.NoteOp(r.Context(), caller, req.Request)
	}
	if err != nil {
		WriteEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ModeResponse{Op: req.Op, Mode: mode})
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req NoteRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.svc.FinishOp(r.Context(), caller, req.Request); err != nil {
		WriteEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req SetModeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.svc.SetMode(r.Context(), caller, req.Op, req.UID, req.Package, req.Mode); err != nil {
		WriteEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetUIDMode(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req SetModeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.svc.SetUidMode(r.Context(), caller, req.Op, req.UID, req.Mode); err != nil {
		WriteEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req ResetRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.svc.ResetAllModes(r.Context(), caller, req.UID, req.Package); err != nil {
		WriteEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	if err := s.svc.ReloadNonHistoricalState(r.Context(), caller); err != nil {
		WriteEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRemovePackage uninstalls the package named by the uid and package
// query parameters and drops its modes, spans and history.
func (s *Server) handleRemovePackage(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	uid, err := strconv.Atoi(q.Get("uid"))
	if err != nil {
		WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", "uid must be an integer")
		return
	}
	if err := s.svc.PackageRemoved(r.Context(), caller, uid, q.Get("package")); err != nil {
		WriteEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleActive lists open spans. uid defaults to the caller's own; -1 lists
// every uid.
func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	uid := caller.UID
	if v := r.URL.Query().Get("uid"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", "uid must be an integer")
			return
		}
		uid = n
	}

	spans, err := s.svc.ActiveSpans(r.Context(), caller, uid)
	if err != nil {
		WriteEngineError(w, r, err)
		return
	}
	out := make([]SpanView, 0, len(spans))
	for _, sp := range spans {
		out = append(out, s.spanView(sp))
	}
	writeJSON(w, http.StatusOK, map[string]any{"spans": out})
}

func (s *Server) spanView(sp activeops.Span) SpanView {
	name := strconv.Itoa(sp.Key.Op)
	if op, err := s.svc.Catalog().ByCode(sp.Key.Op); err == nil {
		name = op.Name
	}
	return SpanView{
		Op:             name,
		UID:            sp.Key.UID,
		Package:        sp.Key.Package,
		AttributionTag: sp.Key.AttributionTag,
		Count:          sp.Count,
		StartedAt:      sp.StartedAt,
	}
}

// handleAccess returns the access history of a package. With op set it
// returns only that op's last access, selected by filter
// (allowed|rejected|any).
func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	uid, err := strconv.Atoi(q.Get("uid"))
	if err != nil {
		WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", "uid must be an integer")
		return
	}
	pkg := q.Get("package")

	if op := q.Get("op"); op != "" {
		filter, ok := parseFilter(q.Get("filter"))
		if !ok {
			WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", "filter must be allowed, rejected or any")
			return
		}
		req := appops.Request{Op: op, UID: uid, Package: pkg, AttributionTag: q.Get("attribution_tag")}
		rec, found, err := s.svc.LastAccess(r.Context(), caller, req, filter)
		if err != nil {
			WriteEngineError(w, r, err)
			return
		}
		if !found {
			WriteErrorR(w, r, http.StatusNotFound, "Not Found", "no access recorded")
			return
		}
		writeJSON(w, http.StatusOK, rec)
		return
	}

	entries, err := s.svc.OpsForPackage(r.Context(), caller, uid, pkg)
	if err != nil {
		WriteEngineError(w, r, err)
		return
	}
	if entries == nil {
		entries = []appops.OpEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ops": entries})
}

func parseFilter(s string) (accesslog.Filter, bool) {
	switch s {
	case "", "any":
		return accesslog.FilterAny, true
	case "allowed":
		return accesslog.FilterAllowed, true
	case "rejected":
		return accesslog.FilterRejected, true
	}
	return 0, false
}
