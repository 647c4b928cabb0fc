package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"mercator-hq/callisto/pkg/admission"
)

// healthHandler answers liveness probes.
type healthHandler struct {
	server *Server
}

func newHealthHandler(s *Server) *healthHandler {
	return &healthHandler{server: s}
}

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusResponse is the wire shape of an admission status snapshot.
type statusResponse struct {
	TotalQueued int            `json:"total_queued"`
	Queues      map[string]int `json:"queues"`
}

// statusHandler serves a point-in-time snapshot of the admission queues.
type statusHandler struct {
	limiter *admission.Limiter
}

func newStatusHandler(l *admission.Limiter) *statusHandler {
	return &statusHandler{limiter: l}
}

func (h *statusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := h.limiter.Status()
	writeJSON(w, http.StatusOK, statusResponse{
		TotalQueued: status.TotalQueued,
		Queues:      status.Queues,
	})
}

// clearHandler drains admission queues. DELETE /admission/queues clears every
// key; DELETE /admission/queues/{key} clears one.
type clearHandler struct {
	limiter *admission.Limiter
}

func newClearHandler(l *admission.Limiter) *clearHandler {
	return &clearHandler{limiter: l}
}

func (h *clearHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	key := strings.TrimPrefix(r.URL.Path, "/admission/queues")
	key = strings.TrimPrefix(key, "/")

	if key == "" {
		h.limiter.ClearAll()
	} else {
		h.limiter.Clear(key)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
