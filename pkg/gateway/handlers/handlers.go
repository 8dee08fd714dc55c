// Package handlers implements the gateway's HTTP surface: service info,
// health, voice listing, image upload, and the WebSocket entry point.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/VighneshNilajakar/HOTPIN/pkg/gateway/mw"
)

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	writeJSON(w, status, errorBody{Error: msg, RequestID: reqID})
}

// InfoHandler serves GET / so a device can discover the endpoints.
type InfoHandler struct {
	Version string
}

func (h InfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "hotpin-gateway",
		"version": h.Version,
		"endpoints": map[string]string{
			"websocket": "/ws",
			"health":    "/health",
			"voices":    "/voices",
			"images":    "/images/{session_id}",
		},
	})
}
