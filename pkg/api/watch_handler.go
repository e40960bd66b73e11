package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Mindburn-Labs/appops/pkg/watch"
)

// sseKeepAlive is the interval between comment lines on an idle stream.
var sseKeepAlive = 15 * time.Second

// handleWatchMode streams mode changes as server-sent events until the
// client disconnects. Query parameters op and package narrow the stream.
func (s *Server) handleWatchMode(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteInternal(w, fmt.Errorf("response writer does not support streaming"))
		return
	}

	ctx := r.Context()
	events := make(chan watch.ModeEvent, 64)
	h, err := s.svc.StartWatchingMode(ctx, caller, r.URL.Query().Get("op"), r.URL.Query().Get("package"), watch.Async,
		func(ev watch.ModeEvent) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		})
	if err != nil {
		WriteEngineError(w, r, err)
		return
	}
	defer s.svc.StopWatchingMode(h)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, ": watching %s\n\n", h)
	flusher.Flush()

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.DebugContext(ctx, "mode stream closed", "handle", string(h), "uid", caller.UID)
			return
		case <-ticker.C:
			_, _ = fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case ev := <-events:
			data, err := json.Marshal(ev.Subject)
			if err != nil {
				s.logger.ErrorContext(ctx, "encode mode event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: mode\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
