package handlers

import (
	"net/http"

	"github.com/VighneshNilajakar/HOTPIN/pkg/core/voice/tts"
)

// VoicesHandler serves GET /voices from the configured synthesizer.
type VoicesHandler struct {
	Synthesizer tts.Synthesizer
}

func (h VoicesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	voices, err := h.Synthesizer.Voices(r.Context())
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "voice listing unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"engine": h.Synthesizer.Name(),
		"voices": voices,
	})
}
