// Package server wires the gateway's routes and middleware around the
// shared session infrastructure.
package server

import (
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/VighneshNilajakar/HOTPIN/pkg/core/convo"
	"github.com/VighneshNilajakar/HOTPIN/pkg/core/providers"
	"github.com/VighneshNilajakar/HOTPIN/pkg/core/voice/stt"
	"github.com/VighneshNilajakar/HOTPIN/pkg/core/voice/tts"
	"github.com/VighneshNilajakar/HOTPIN/pkg/core/workerpool"
	"github.com/VighneshNilajakar/HOTPIN/pkg/gateway/config"
	"github.com/VighneshNilajakar/HOTPIN/pkg/gateway/handlers"
	"github.com/VighneshNilajakar/HOTPIN/pkg/gateway/imagestore"
	"github.com/VighneshNilajakar/HOTPIN/pkg/gateway/live/sessions"
	"github.com/VighneshNilajakar/HOTPIN/pkg/gateway/mw"
)

// Version is stamped by the build; the default marks dev builds.
var Version = "dev"

// Dependencies are the long-lived services the routes share.
type Dependencies struct {
	Transcriber stt.Transcriber
	Completer   providers.Completer
	Synthesizer tts.Synthesizer
	Images      imagestore.Store
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	registry *sessions.Registry
	contexts *convo.Store
	pool     *workerpool.Pool
	deps     Dependencies

	draining atomic.Bool
}

func New(cfg config.Config, logger *slog.Logger, deps Dependencies) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		mux:      http.NewServeMux(),
		registry: sessions.NewRegistry(),
		contexts: convo.NewStore(cfg.MaxTurns),
		pool:     workerpool.New(cfg.PoolWorkers, cfg.PoolQueue, cfg.PoolPerSession),
		deps:     deps,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/", handlers.InfoHandler{Version: Version})
	s.mux.Handle("/health", handlers.HealthHandler{
		Registry:    s.registry,
		Pool:        s.pool,
		Transcriber: s.deps.Transcriber,
		Synthesizer: s.deps.Synthesizer,
	})
	s.mux.Handle("/voices", handlers.VoicesHandler{
		Synthesizer: s.deps.Synthesizer,
	})
	s.mux.Handle("/images/", handlers.ImagesHandler{
		Store:    s.deps.Images,
		Registry: s.registry,
		Logger:   s.logger,
	})
	s.mux.Handle("/ws", handlers.WSHandler{
		Config:      s.cfg,
		Logger:      s.logger,
		Registry:    s.registry,
		Contexts:    s.contexts,
		Pool:        s.pool,
		Transcriber: s.deps.Transcriber,
		Completer:   s.deps.Completer,
		Synthesizer: s.deps.Synthesizer,
		Images:      s.deps.Images,
		Draining:    s.draining.Load,
	})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// Registry exposes the live-session registry for shutdown coordination.
func (s *Server) Registry() *sessions.Registry { return s.registry }

// Pool exposes the stage worker pool for shutdown draining.
func (s *Server) Pool() *workerpool.Pool { return s.pool }

// StartDraining makes /ws refuse new connections. Existing sessions keep
// running until cancelled.
func (s *Server) StartDraining() { s.draining.Store(true) }
