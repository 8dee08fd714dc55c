package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/VighneshNilajakar/HOTPIN/pkg/core/voice/stt"
	"github.com/VighneshNilajakar/HOTPIN/pkg/core/voice/tts"
	"github.com/VighneshNilajakar/HOTPIN/pkg/core/workerpool"
	"github.com/VighneshNilajakar/HOTPIN/pkg/gateway/live/sessions"
)

// HealthHandler reports liveness of the gateway and readiness of the two
// speech backends. Probe failures degrade the report, they do not 500:
// a session can still connect while a backend is warming up.
type HealthHandler struct {
	Registry    *sessions.Registry
	Pool        *workerpool.Pool
	Transcriber stt.Transcriber
	Synthesizer tts.Synthesizer

	ProbeTimeout time.Duration
}

type backendHealth struct {
	Name  string `json:"name"`
	Ready bool   `json:"ready"`
	Error string `json:"error,omitempty"`
}

type healthResp struct {
	Status   string           `json:"status"`
	Sessions int              `json:"active_sessions"`
	Pool     workerpool.Stats `json:"pool"`
	STT      backendHealth    `json:"stt"`
	TTS      backendHealth    `json:"tts"`
}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	timeout := h.ProbeTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	resp := healthResp{Status: "healthy"}
	if h.Registry != nil {
		resp.Sessions = h.Registry.Count()
	}
	if h.Pool != nil {
		resp.Pool = h.Pool.Stats()
	}
	resp.STT = probe(ctx, h.Transcriber.Name(), h.Transcriber.Ready)
	resp.TTS = probe(ctx, h.Synthesizer.Name(), h.Synthesizer.Ready)
	if !resp.STT.Ready || !resp.TTS.Ready {
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}

func probe(ctx context.Context, name string, ready func(context.Context) error) backendHealth {
	if err := ready(ctx); err != nil {
		return backendHealth{Name: name, Ready: false, Error: err.Error()}
	}
	return backendHealth{Name: name, Ready: true}
}
