package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/VighneshNilajakar/HOTPIN/pkg/core/convo"
	"github.com/VighneshNilajakar/HOTPIN/pkg/core/providers"
	"github.com/VighneshNilajakar/HOTPIN/pkg/core/voice/stt"
	"github.com/VighneshNilajakar/HOTPIN/pkg/core/voice/tts"
	"github.com/VighneshNilajakar/HOTPIN/pkg/core/workerpool"
	"github.com/VighneshNilajakar/HOTPIN/pkg/gateway/config"
	"github.com/VighneshNilajakar/HOTPIN/pkg/gateway/live/session"
	"github.com/VighneshNilajakar/HOTPIN/pkg/gateway/live/sessions"
	"github.com/VighneshNilajakar/HOTPIN/pkg/gateway/mw"
)

// WSHandler upgrades GET /ws and hands the connection to a session. The
// session owns the socket from there on.
type WSHandler struct {
	Config      config.Config
	Logger      *slog.Logger
	Registry    *sessions.Registry
	Contexts    *convo.Store
	Pool        *workerpool.Pool
	Transcriber stt.Transcriber
	Completer   providers.Completer
	Synthesizer tts.Synthesizer
	Images      session.ImageSource

	// Draining reports whether the gateway is shutting down. New
	// connections are refused while true.
	Draining func() bool
}

func (h WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.Draining != nil && h.Draining() {
		writeError(w, r, http.StatusServiceUnavailable, "gateway is shutting down")
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  8192,
		WriteBufferSize: 8192,
		CheckOrigin:     h.originAllowed,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}

	reqID, _ := mw.RequestIDFrom(r.Context())
	sess, err := session.New(session.Dependencies{
		Conn:        conn,
		Logger:      h.Logger,
		Registry:    h.Registry,
		Contexts:    h.Contexts,
		Pool:        h.Pool,
		Transcriber: h.Transcriber,
		Completer:   h.Completer,
		Synthesizer: h.Synthesizer,
		Images:      h.Images,
		RequestID:   reqID,
		Config: session.Config{
			ChunkSize:         h.Config.ChunkSize,
			MaxUtteranceBytes: h.Config.MaxUtteranceBytes,
			CompletionTimeout: h.Config.CompletionTimeout,
			Voice:             h.Config.Voice,
			SpeechSpeed:       h.Config.SpeechSpeed,
			SystemPrompt:      h.Config.SystemPrompt,
			PingInterval:      h.Config.WSPingInterval,
			WriteTimeout:      h.Config.WSWriteTimeout,
			ReadTimeout:       h.Config.WSReadTimeout,
			OutboundQueueSize: h.Config.OutboundQueueSize,
		},
	})
	if err != nil {
		h.Logger.Error("session setup failed", "request_id", reqID, "error", err)
		conn.Close()
		return
	}
	if err := sess.Run(); err != nil {
		h.Logger.Warn("session ended with error", "request_id", reqID, "session_id", sess.ID(), "error", err)
	}
}

// originAllowed permits requests with no Origin header, which is how
// device clients connect. Browser origins are checked against the
// allowlist when one is configured.
func (h WSHandler) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.Config.AllowedOrigins) == 0 {
		return true
	}
	_, ok := h.Config.AllowedOrigins[origin]
	return ok
}
