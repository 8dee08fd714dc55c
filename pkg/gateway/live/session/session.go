// Package session owns one live voice connection: the handshake, the
// protocol state machine, utterance buffering, and the pipeline that turns
// buffered speech into streamed reply audio.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/VighneshNilajakar/HOTPIN/pkg/core/convo"
	"github.com/VighneshNilajakar/HOTPIN/pkg/core/providers"
	"github.com/VighneshNilajakar/HOTPIN/pkg/core/voice/stt"
	"github.com/VighneshNilajakar/HOTPIN/pkg/core/voice/tts"
	"github.com/VighneshNilajakar/HOTPIN/pkg/core/workerpool"
	"github.com/VighneshNilajakar/HOTPIN/pkg/gateway/live/protocol"
	"github.com/VighneshNilajakar/HOTPIN/pkg/gateway/live/sessions"
)

// Fixed client-facing strings. Internal error text never reaches the wire.
const (
	msgEmptyTranscript  = "Could not understand audio. Please try again."
	msgCompletionFailed = "I'm having trouble responding right now. Please rephrase your question."
	msgProcessingFailed = "An error occurred while processing your request."
	msgBufferExceeded   = "Audio message too long. Please try a shorter one."
)

// fallbackReply is synthesized when the completion stage returns empty
// text; synthesizing nothing is undefined.
const fallbackReply = "I'm sorry, I don't have a response for that."

// Conn is the subset of *websocket.Conn the session touches.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	wsWriter
}

// ImageSource hands the pipeline a pending camera frame for a session, or
// nil when there is none. Implemented by the image store.
type ImageSource interface {
	TakePending(ctx context.Context, sessionID string) ([]byte, error)
}

// Config tunes one session. Zero values select defaults in New.
type Config struct {
	// ChunkSize is the outbound audio chunk size in bytes.
	ChunkSize int

	// MaxUtteranceBytes bounds the inbound audio buffer. Exceeding it
	// drops the buffer and notifies the client.
	MaxUtteranceBytes int

	// CompletionTimeout bounds the completion stage call.
	CompletionTimeout time.Duration

	// Voice and SpeechSpeed are passed through to synthesis.
	Voice       string
	SpeechSpeed float64

	// SystemPrompt overrides the completer's default instruction.
	SystemPrompt string

	PingInterval time.Duration
	WriteTimeout time.Duration
	ReadTimeout  time.Duration

	OutboundQueueSize int
}

// Dependencies carries everything a session needs. Conn, Registry,
// Contexts, Pool and the three stage adapters are required.
type Dependencies struct {
	Conn        Conn
	Logger      *slog.Logger
	Registry    *sessions.Registry
	Contexts    *convo.Store
	Pool        *workerpool.Pool
	Transcriber stt.Transcriber
	Completer   providers.Completer
	Synthesizer tts.Synthesizer
	Images      ImageSource
	RequestID   string
	Config      Config
	Now         func() time.Time
}

// Session is one live voice connection. All mutable per-utterance state
// (buffer, stats, protocol state) belongs to the Run loop alone.
type Session struct {
	conn        Conn
	logger      *slog.Logger
	registry    *sessions.Registry
	contexts    *convo.Store
	pool        *workerpool.Pool
	transcriber stt.Transcriber
	completer   providers.Completer
	synthesizer tts.Synthesizer
	images      ImageSource
	requestID   string
	cfg         Config
	now         func() time.Time

	id string

	ctx    context.Context
	cancel context.CancelFunc

	state      atomic.Int32
	generation atomic.Int64

	outbound chan outboundFrame

	// Run-loop owned.
	buffer     []byte
	chunkCount int
	byteCount  int64
	pendingEOS bool
}

type inboundFrame struct {
	messageType int
	data        []byte
	err         error
}

type pipelineDone struct {
	gen int64
}

// New validates dependencies and applies config defaults.
func New(deps Dependencies) (*Session, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("session registry is required")
	}
	if deps.Contexts == nil {
		return nil, fmt.Errorf("context store is required")
	}
	if deps.Pool == nil {
		return nil, fmt.Errorf("worker pool is required")
	}
	if deps.Transcriber == nil {
		return nil, fmt.Errorf("transcriber is required")
	}
	if deps.Completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if deps.Synthesizer == nil {
		return nil, fmt.Errorf("synthesizer is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Config.ChunkSize <= 0 {
		deps.Config.ChunkSize = 4096
	}
	if deps.Config.MaxUtteranceBytes <= 0 {
		deps.Config.MaxUtteranceBytes = 10 << 20
	}
	if deps.Config.CompletionTimeout <= 0 {
		deps.Config.CompletionTimeout = 30 * time.Second
	}
	if deps.Config.OutboundQueueSize <= 0 {
		deps.Config.OutboundQueueSize = 128
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		conn:        deps.Conn,
		logger:      deps.Logger,
		registry:    deps.Registry,
		contexts:    deps.Contexts,
		pool:        deps.Pool,
		transcriber: deps.Transcriber,
		completer:   deps.Completer,
		synthesizer: deps.Synthesizer,
		images:      deps.Images,
		requestID:   deps.RequestID,
		cfg:         deps.Config,
		now:         deps.Now,
		ctx:         ctx,
		cancel:      cancel,
		outbound:    make(chan outboundFrame, deps.Config.OutboundQueueSize),
	}
	s.state.Store(int32(StateHandshaking))
	return s, nil
}

// ID returns the session id, empty until the handshake completes.
func (s *Session) ID() string { return s.id }

// State reports the current protocol state.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// stale reports whether gen has been superseded by a reset or teardown.
func (s *Session) stale(gen int64) bool {
	return s.generation.Load() != gen || s.ctx.Err() != nil
}

// Run drives the connection until disconnect or fatal protocol error.
func (s *Session) Run() error {
	defer s.cancel()
	defer s.setState(StateClosed)

	s.conn.SetReadLimit(int64(s.cfg.MaxUtteranceBytes) + 1024)
	if s.cfg.ReadTimeout > 0 {
		_ = s.conn.SetReadDeadline(s.now().Add(s.cfg.ReadTimeout))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(s.now().Add(s.cfg.ReadTimeout))
		})
	}

	if err := s.handshake(); err != nil {
		return err
	}
	logger := s.logger.With("session_id", s.id, "request_id", s.requestID)
	logger.Info("session established")

	unregister := s.registry.Register(s.id, sessions.Handle{
		Cancel: s.Cancel,
		Notify: s.notify,
	})
	var pipelineWG sync.WaitGroup
	defer func() {
		// Supersede and cancel any in-flight pipeline before waiting on it,
		// and release the registry entry before the wait so a slow stage
		// call never keeps the id registered.
		s.Cancel()
		unregister()
		// A replacement connection may have re-registered this id; its
		// conversation context is not ours to tear down.
		if !s.registry.Active(s.id) {
			s.contexts.Remove(s.id)
		}
		pipelineWG.Wait()
	}()

	writerErrCh := make(chan error, 1)
	go func() {
		w := outboundWriter{
			ws:           s.conn,
			ctx:          s.ctx,
			frames:       s.outbound,
			isStale:      s.stale,
			pingInterval: s.cfg.PingInterval,
			writeTimeout: s.cfg.WriteTimeout,
		}
		writerErrCh <- w.Run()
	}()

	readCh := make(chan inboundFrame, 64)
	go s.readLoop(readCh)

	s.sendStatus(s.generation.Load(), protocol.Connected(s.id))
	s.setState(StateReady)

	doneCh := make(chan pipelineDone, 1)
	for {
		select {
		case <-s.ctx.Done():
			return nil
		case err := <-writerErrCh:
			if err != nil {
				logger.Warn("writer stopped", "error", err)
			}
			return err
		case done := <-doneCh:
			if !s.stale(done.gen) {
				s.setState(StateReceiving)
				if s.pendingEOS {
					s.pendingEOS = false
					s.handleEOS(logger, &pipelineWG, doneCh)
				}
			}
		case frame := <-readCh:
			if frame.err != nil {
				if websocket.IsCloseError(frame.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Info("client disconnected")
					return nil
				}
				logger.Warn("read failed", "error", frame.err)
				return frame.err
			}
			if err := s.handleFrame(logger, frame, &pipelineWG, doneCh); err != nil {
				return err
			}
		}
	}
}

// Cancel asks the session to shut down from outside its loop. Used by the
// registry on duplicate registration and at server shutdown.
func (s *Session) Cancel() {
	s.generation.Add(1)
	s.cancel()
}

// handshake reads and validates the first frame. Failures close the
// connection with the bad-handshake code.
func (s *Session) handshake() error {
	mt, data, err := s.conn.ReadMessage()
	if err != nil {
		return err
	}
	if mt != websocket.TextMessage {
		s.closeWith(protocol.CloseBadHandshake, "expected handshake text frame")
		return fmt.Errorf("handshake: got binary frame")
	}
	hs, err := protocol.DecodeHandshake(data)
	if err != nil {
		s.closeWith(protocol.CloseBadHandshake, "Missing session_id in handshake")
		return fmt.Errorf("handshake: %w", err)
	}
	s.id = hs.SessionID
	return nil
}

func (s *Session) handleFrame(logger *slog.Logger, frame inboundFrame, wg *sync.WaitGroup, doneCh chan pipelineDone) error {
	switch frame.messageType {
	case websocket.BinaryMessage:
		s.appendAudio(logger, frame.data)
		return nil
	case websocket.TextMessage:
		msg, err := protocol.DecodeSignal(frame.data)
		if err != nil {
			s.closeWith(protocol.CloseBadHandshake, "malformed control frame")
			return fmt.Errorf("control frame: %w", err)
		}
		switch sig := msg.(type) {
		case protocol.EndOfSpeech:
			s.handleEOS(logger, wg, doneCh)
		case protocol.Reset:
			s.handleReset(logger)
		case protocol.Unknown:
			logger.Debug("ignoring unknown signal", "signal", sig.Signal)
		}
		return nil
	default:
		return nil
	}
}

// appendAudio grows the utterance buffer. During PROCESSING the buffer was
// already swapped out, so new frames land in the next utterance's buffer
// and are never merged into the in-flight one.
func (s *Session) appendAudio(logger *slog.Logger, data []byte) {
	if s.State() == StateReady {
		s.setState(StateReceiving)
	}
	if len(s.buffer)+len(data) > s.cfg.MaxUtteranceBytes {
		logger.Warn("utterance buffer limit exceeded", "buffered", len(s.buffer), "limit", s.cfg.MaxUtteranceBytes)
		s.resetUtterance()
		s.sendStatus(s.generation.Load(), protocol.ErrorNotice(protocol.ErrTypeFormat, msgBufferExceeded))
		return
	}
	before := s.byteCount
	s.buffer = append(s.buffer, data...)
	s.chunkCount++
	s.byteCount += int64(len(data))
	// Roughly once per second of 16 kHz s16le audio.
	if before/32000 != s.byteCount/32000 {
		logger.Debug("utterance buffering", "chunks", s.chunkCount, "bytes", s.byteCount)
	}
}

// handleEOS swaps the buffer out atomically and starts the pipeline. A
// spurious EOS with nothing buffered is a silent no-op; an EOS while a
// pipeline is already in flight is deferred until that pipeline completes,
// with the audio received meanwhile kept as the next utterance.
func (s *Session) handleEOS(logger *slog.Logger, wg *sync.WaitGroup, doneCh chan pipelineDone) {
	st := s.State()
	if st == StateProcessing || st == StateStreaming {
		s.pendingEOS = true
		logger.Debug("EOS while pipeline in flight, deferred")
		return
	}
	pcm := s.buffer
	s.resetUtterance()
	if len(pcm) == 0 {
		logger.Debug("EOS with empty buffer, skipping")
		return
	}

	logger.Info("utterance complete", "bytes", len(pcm))
	s.setState(StateProcessing)
	gen := s.generation.Load()
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runPipeline(logger, gen, pcm)
		select {
		case doneCh <- pipelineDone{gen: gen}:
		case <-s.ctx.Done():
		}
	}()
}

// handleReset clears context and buffer in place and supersedes any
// in-flight pipeline via the generation counter.
func (s *Session) handleReset(logger *slog.Logger) {
	s.generation.Add(1)
	s.contexts.Clear(s.id)
	s.resetUtterance()
	s.pendingEOS = false
	s.setState(StateReceiving)
	s.sendStatus(s.generation.Load(), protocol.ResetComplete())
	logger.Info("session reset")
}

func (s *Session) resetUtterance() {
	s.buffer = nil
	s.chunkCount = 0
	s.byteCount = 0
}

func (s *Session) readLoop(ch chan<- inboundFrame) {
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case ch <- inboundFrame{err: err}:
			case <-s.ctx.Done():
			}
			return
		}
		if s.cfg.ReadTimeout > 0 {
			_ = s.conn.SetReadDeadline(s.now().Add(s.cfg.ReadTimeout))
		}
		select {
		case ch <- inboundFrame{messageType: mt, data: data}:
		case <-s.ctx.Done():
			return
		}
	}
}

// sendStatus queues a text frame. Blocks only against a full queue, which
// resolves when the writer drains or the session is torn down.
func (s *Session) sendStatus(gen int64, status protocol.Status) {
	data, err := protocol.Encode(status)
	if err != nil {
		s.logger.Error("encode status frame", "error", err)
		return
	}
	select {
	case s.outbound <- outboundFrame{gen: gen, text: data}:
	case <-s.ctx.Done():
	}
}

func (s *Session) sendBinary(gen int64, data []byte) {
	select {
	case s.outbound <- outboundFrame{gen: gen, binary: data}:
	case <-s.ctx.Done():
	}
}

// notify implements the registry's broadcast hook.
func (s *Session) notify(message string) error {
	if s.ctx.Err() != nil {
		return errors.New("session closed")
	}
	s.sendStatus(s.generation.Load(), protocol.ErrorNotice(protocol.ErrTypeShutdown, message))
	return nil
}

func (s *Session) closeWith(code int, reason string) {
	deadline := s.now().Add(time.Second)
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = s.conn.Close()
}
