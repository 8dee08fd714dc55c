package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/VighneshNilajakar/HOTPIN/pkg/core/audio"
	"github.com/VighneshNilajakar/HOTPIN/pkg/core/convo"
	"github.com/VighneshNilajakar/HOTPIN/pkg/core/providers"
	"github.com/VighneshNilajakar/HOTPIN/pkg/core/voice/stt"
	"github.com/VighneshNilajakar/HOTPIN/pkg/core/voice/tts"
	"github.com/VighneshNilajakar/HOTPIN/pkg/core/workerpool"
	"github.com/VighneshNilajakar/HOTPIN/pkg/gateway/live/sessions"
)

type inMsg struct {
	mt   int
	data []byte
}

type outMsg struct {
	mt   int
	data []byte
}

type closeMsg struct {
	code   int
	reason string
}

type fakeConn struct {
	in        chan inMsg
	closeOnce sync.Once

	mu       sync.Mutex
	frames   []outMsg
	controls []closeMsg
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan inMsg, 64)}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	m, ok := <-c.in
	if !ok {
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
	return m.mt, m.data, nil
}

func (c *fakeConn) WriteMessage(mt int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	c.frames = append(c.frames, outMsg{mt: mt, data: cp})
	return nil
}

func (c *fakeConn) WriteControl(mt int, data []byte, _ time.Time) error {
	if mt == websocket.CloseMessage {
		code := websocket.CloseNoStatusReceived
		reason := ""
		if len(data) >= 2 {
			code = int(data[0])<<8 | int(data[1])
			reason = string(data[2:])
		}
		c.mu.Lock()
		c.controls = append(c.controls, closeMsg{code: code, reason: reason})
		c.mu.Unlock()
	}
	return nil
}

func (c *fakeConn) SetReadLimit(int64)                {}
func (c *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}
func (c *fakeConn) Close() error                      { return nil }

func (c *fakeConn) sendText(s string)    { c.in <- inMsg{mt: websocket.TextMessage, data: []byte(s)} }
func (c *fakeConn) sendBinary(b []byte)  { c.in <- inMsg{mt: websocket.BinaryMessage, data: b} }
func (c *fakeConn) disconnect()          { c.closeOnce.Do(func() { close(c.in) }) }

func (c *fakeConn) statuses() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, f := range c.frames {
		if f.mt != websocket.TextMessage {
			continue
		}
		var m map[string]any
		if json.Unmarshal(f.data, &m) == nil {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) binaryPayload() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []byte
	for _, f := range c.frames {
		if f.mt == websocket.BinaryMessage {
			out = append(out, f.data...)
		}
	}
	return out
}

func (c *fakeConn) waitForStatus(t *testing.T, status string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, m := range c.statuses() {
			if m["status"] == status {
				return m
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("never saw status %q; frames: %v", status, c.statuses())
	return nil
}

func (c *fakeConn) countStatus(status string) int {
	n := 0
	for _, m := range c.statuses() {
		if m["status"] == status {
			n++
		}
	}
	return n
}

type fakeTranscriber struct {
	mu    sync.Mutex
	calls [][]byte
	text  string
	err   error
}

func (f *fakeTranscriber) Name() string { return "fake-stt" }

func (f *fakeTranscriber) Transcribe(_ context.Context, pcm []byte) (stt.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	f.calls = append(f.calls, cp)
	return stt.Result{Text: f.text}, f.err
}

func (f *fakeTranscriber) setText(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text = text
}

func (f *fakeTranscriber) Ready(context.Context) error { return nil }

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeCompleter struct {
	mu    sync.Mutex
	calls []providers.Request
	reply string
	err   error
	gate  chan struct{} // when non-nil, Complete blocks until closed
}

func (f *fakeCompleter) Name() string { return "fake-llm" }

func (f *fakeCompleter) Complete(ctx context.Context, req providers.Request) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	gate := f.gate
	reply, err := f.reply, f.err
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return reply, err
}

func (f *fakeCompleter) set(reply string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reply, f.err = reply, err
}

func (f *fakeCompleter) call(i int) providers.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeSynth struct {
	mu    sync.Mutex
	spans []string
	pcm   []byte
	err   error
}

func (f *fakeSynth) Name() string { return "fake-tts" }

func (f *fakeSynth) Synthesize(_ context.Context, text string, _ tts.SynthesizeOptions) (tts.Clip, error) {
	f.mu.Lock()
	f.spans = append(f.spans, text)
	f.mu.Unlock()
	if f.err != nil {
		return tts.Clip{}, f.err
	}
	return tts.Clip{PCM: f.pcm, Format: audio.CaptureProfile}, nil
}

func (f *fakeSynth) Voices(context.Context) ([]tts.Voice, error) { return nil, nil }
func (f *fakeSynth) Ready(context.Context) error                 { return nil }

func (f *fakeSynth) spanCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.spans)
}

type harness struct {
	conn      *fakeConn
	sess      *Session
	registry  *sessions.Registry
	contexts  *convo.Store
	trans     *fakeTranscriber
	comp      *fakeCompleter
	synth     *fakeSynth
	runExited chan struct{}
	runErr    error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		conn:     newFakeConn(),
		registry: sessions.NewRegistry(),
		contexts: convo.NewStore(5),
		trans:    &fakeTranscriber{text: "hello"},
		comp:     &fakeCompleter{reply: "Hello to you as well."},
		synth:    &fakeSynth{pcm: bytes.Repeat([]byte{1, 0}, 800)},
	}
	pool := workerpool.New(2, 32, 0)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = pool.Drain(ctx)
	})

	sess, err := New(Dependencies{
		Conn:        h.conn,
		Logger:      slog.New(slog.DiscardHandler),
		Registry:    h.registry,
		Contexts:    h.contexts,
		Pool:        pool,
		Transcriber: h.trans,
		Completer:   h.comp,
		Synthesizer: h.synth,
		Config:      Config{ChunkSize: 512},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.sess = sess
	h.runExited = make(chan struct{})
	go func() {
		h.runErr = sess.Run()
		close(h.runExited)
	}()
	t.Cleanup(func() {
		h.conn.disconnect()
		select {
		case <-h.runExited:
		case <-time.After(2 * time.Second):
			t.Error("session did not stop")
		}
	})
	return h
}

func (h *harness) handshake(t *testing.T) {
	t.Helper()
	h.conn.sendText(`{"session_id":"s1"}`)
	h.conn.waitForStatus(t, "connected")
}

func TestSession_BadHandshakeCloses(t *testing.T) {
	conn := newFakeConn()
	sess, err := New(Dependencies{
		Conn:        conn,
		Logger:      slog.New(slog.DiscardHandler),
		Registry:    sessions.NewRegistry(),
		Contexts:    convo.NewStore(5),
		Pool:        workerpool.New(1, 4, 0),
		Transcriber: &fakeTranscriber{},
		Completer:   &fakeCompleter{},
		Synthesizer: &fakeSynth{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- sess.Run() }()
	conn.sendText(`{"no_session":"x"}`)

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Run returned nil for bad handshake")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.controls) == 0 || conn.controls[0].code != 1008 {
		t.Fatalf("controls=%v, want close 1008", conn.controls)
	}
}

func TestSession_PipelineRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.handshake(t)

	// Property: the bytes handed to transcription are exactly the
	// concatenation of the binary frames, in order.
	h.conn.sendBinary([]byte{1, 2, 3})
	h.conn.sendBinary([]byte{4, 5})
	h.conn.sendBinary([]byte{6})
	h.conn.sendText(`{"signal":"EOS"}`)

	h.conn.waitForStatus(t, "complete")

	h.trans.mu.Lock()
	got := h.trans.calls
	h.trans.mu.Unlock()
	if len(got) != 1 || !bytes.Equal(got[0], []byte{1, 2, 3, 4, 5, 6}) {
		t.Fatalf("transcriber calls=%v", got)
	}

	var sawTranscript, sawResponse bool
	for _, m := range h.conn.statuses() {
		if m["stage"] == "llm" && m["transcript"] == "hello" {
			sawTranscript = true
		}
		if m["stage"] == "tts" && m["response"] == "Hello to you as well." {
			sawResponse = true
		}
	}
	if !sawTranscript || !sawResponse {
		t.Fatalf("missing progress detail: transcript=%v response=%v frames=%v", sawTranscript, sawResponse, h.conn.statuses())
	}

	// Streamed binary reassembles into a capture-profile WAV of the
	// synthesized PCM.
	pcm, err := audio.DecodeCapture(h.conn.binaryPayload())
	if err != nil {
		t.Fatalf("reassembled audio: %v", err)
	}
	if !bytes.Equal(pcm, h.synth.pcm) {
		t.Fatalf("streamed pcm mismatch: got %d bytes, want %d", len(pcm), len(h.synth.pcm))
	}
}

func TestSession_SilentUtteranceNoSynthesis(t *testing.T) {
	h := newHarness(t)
	h.trans.setText("") // silence
	h.handshake(t)

	h.conn.sendBinary(make([]byte, 32000))
	h.conn.sendText(`{"signal":"EOS"}`)

	m := h.conn.waitForStatus(t, "error")
	if m["error_type"] != "transcription_error" {
		t.Fatalf("error frame=%v", m)
	}
	if h.comp.callCount() != 0 || h.synth.spanCount() != 0 {
		t.Fatalf("llm/tts called for silent utterance: %d/%d", h.comp.callCount(), h.synth.spanCount())
	}
	if h.conn.countStatus("complete") != 0 {
		t.Fatal("unexpected complete status")
	}
}

func TestSession_ResetThenEmptyEOSIsNoOp(t *testing.T) {
	h := newHarness(t)
	h.handshake(t)

	h.conn.sendText(`{"signal":"RESET"}`)
	h.conn.sendText(`{"signal":"EOS"}`)
	h.conn.waitForStatus(t, "reset_complete")

	// Nudge the loop with a second reset to make sure the EOS was fully
	// handled before asserting.
	h.conn.sendText(`{"signal":"RESET"}`)
	deadline := time.Now().Add(2 * time.Second)
	for h.conn.countStatus("reset_complete") < 2 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}

	if h.trans.callCount() != 0 {
		t.Fatalf("transcriber called %d times for empty EOS", h.trans.callCount())
	}
	// connected + two reset_complete, nothing else.
	if got := len(h.conn.statuses()); got != 3 {
		t.Fatalf("status frames=%v", h.conn.statuses())
	}
}

func TestSession_ContextWindowAcrossUtterances(t *testing.T) {
	h := newHarness(t)
	h.handshake(t)

	h.trans.setText("first question")
	h.comp.set("First answer.", nil)
	h.conn.sendBinary([]byte{1, 0})
	h.conn.sendText(`{"signal":"EOS"}`)
	h.conn.waitForStatus(t, "complete")

	h.trans.setText("second question")
	h.comp.set("Second answer.", nil)
	h.conn.sendBinary([]byte{2, 0})
	h.conn.sendText(`{"signal":"EOS"}`)
	deadline := time.Now().Add(2 * time.Second)
	for h.conn.countStatus("complete") < 2 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}

	if h.comp.callCount() != 2 {
		t.Fatalf("completer calls=%d", h.comp.callCount())
	}
	second := h.comp.call(1)
	if second.UserText != "second question" {
		t.Fatalf("second user text=%q", second.UserText)
	}
	want := []convo.Turn{
		{Role: convo.RoleUser, Text: "first question"},
		{Role: convo.RoleAssistant, Text: "First answer."},
	}
	if len(second.History) != 2 || second.History[0] != want[0] || second.History[1] != want[1] {
		t.Fatalf("second call history=%v, want %v", second.History, want)
	}
}

func TestSession_CompletionFailureRecovers(t *testing.T) {
	h := newHarness(t)
	h.comp.set("", errors.New("upstream 500"))
	h.handshake(t)

	h.conn.sendBinary([]byte{1, 0})
	h.conn.sendText(`{"signal":"EOS"}`)
	m := h.conn.waitForStatus(t, "error")
	if m["error_type"] != "llm_error" {
		t.Fatalf("error frame=%v", m)
	}
	if m["message"] == "upstream 500" {
		t.Fatal("internal error text leaked to the wire")
	}

	// The session is not stuck: a second utterance succeeds.
	h.comp.set("Back on track.", nil)
	deadline := time.Now().Add(2 * time.Second)
	for h.sess.State() != StateReceiving && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	h.conn.sendBinary([]byte{2, 0})
	h.conn.sendText(`{"signal":"EOS"}`)
	h.conn.waitForStatus(t, "complete")
}

func TestSession_CompletionTimeout(t *testing.T) {
	conn := newFakeConn()
	comp := &fakeCompleter{reply: "late", gate: make(chan struct{})}
	trans := &fakeTranscriber{text: "hello"}
	synth := &fakeSynth{pcm: []byte{0, 0}}
	sess, err := New(Dependencies{
		Conn:        conn,
		Logger:      slog.New(slog.DiscardHandler),
		Registry:    sessions.NewRegistry(),
		Contexts:    convo.NewStore(5),
		Pool:        workerpool.New(2, 8, 0),
		Transcriber: trans,
		Completer:   comp,
		Synthesizer: synth,
		Config:      Config{CompletionTimeout: 30 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- sess.Run() }()
	defer func() {
		conn.disconnect()
		<-done
	}()

	conn.sendText(`{"session_id":"s1"}`)
	conn.waitForStatus(t, "connected")
	conn.sendBinary([]byte{1, 0})
	conn.sendText(`{"signal":"EOS"}`)

	m := conn.waitForStatus(t, "error")
	if m["error_type"] != "llm_error" {
		t.Fatalf("error frame=%v", m)
	}
	if conn.countStatus("error") != 1 {
		t.Fatalf("error notices=%d, want exactly 1", conn.countStatus("error"))
	}

	// The session recovers: the next EOS runs to completion.
	comp.set("On time now.", nil)
	comp.mu.Lock()
	comp.gate = nil
	comp.mu.Unlock()
	deadline := time.Now().Add(2 * time.Second)
	for sess.State() != StateReceiving && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	conn.sendBinary([]byte{2, 0})
	conn.sendText(`{"signal":"EOS"}`)
	conn.waitForStatus(t, "complete")
}

func TestSession_DisconnectDiscardsInFlightResult(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.comp.gate = gate
	h.handshake(t)

	h.conn.sendBinary([]byte{1, 0})
	h.conn.sendText(`{"signal":"EOS"}`)
	deadline := time.Now().Add(2 * time.Second)
	for h.comp.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}

	h.conn.disconnect()
	select {
	case <-h.runExited:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop on disconnect")
	}
	framesAtExit := len(h.conn.statuses())

	close(gate)
	time.Sleep(50 * time.Millisecond)
	if got := len(h.conn.statuses()); got != framesAtExit {
		t.Fatalf("stale pipeline wrote %d frames after disconnect", got-framesAtExit)
	}
	if len(h.conn.binaryPayload()) != 0 || h.synth.spanCount() != 0 {
		t.Fatal("stale audio produced after disconnect")
	}
}

// failingWriteConn delivers the first write and fails every one after,
// like a peer that vanished mid-stream.
type failingWriteConn struct {
	*fakeConn
	writes atomic.Int32
}

func (c *failingWriteConn) WriteMessage(mt int, data []byte) error {
	if c.writes.Add(1) > 1 {
		return errors.New("write: broken pipe")
	}
	return c.fakeConn.WriteMessage(mt, data)
}

func TestSession_WriterFailureTearsDown(t *testing.T) {
	conn := &failingWriteConn{fakeConn: newFakeConn()}
	defer conn.disconnect()
	reg := sessions.NewRegistry()
	sess, err := New(Dependencies{
		Conn:        conn,
		Logger:      slog.New(slog.DiscardHandler),
		Registry:    reg,
		Contexts:    convo.NewStore(5),
		Pool:        workerpool.New(2, 8, 0),
		Transcriber: &fakeTranscriber{text: "hello"},
		Completer:   &fakeCompleter{reply: "hi there, how can I help?"},
		Synthesizer: &fakeSynth{pcm: bytes.Repeat([]byte{0, 0}, 4096)},
		Config:      Config{ChunkSize: 256, OutboundQueueSize: 1},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- sess.Run() }()

	conn.sendText(`{"session_id":"s1"}`)
	conn.waitForStatus(t, "connected")
	// The pipeline floods the single-slot queue while the writer is dead;
	// teardown must still unwedge it.
	conn.sendBinary([]byte{1, 0})
	conn.sendText(`{"signal":"EOS"}`)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session wedged after writer failure")
	}
	if n := reg.Count(); n != 0 {
		t.Fatalf("registered sessions=%d, want 0", n)
	}
}

func TestSession_EOSDeferredWhileProcessing(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.comp.gate = gate
	h.handshake(t)

	h.conn.sendBinary([]byte{1, 0})
	h.conn.sendText(`{"signal":"EOS"}`)
	deadline := time.Now().Add(2 * time.Second)
	for h.comp.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}

	// The second utterance ends while the first is still completing; it
	// must run once the first finishes, without another EOS.
	h.conn.sendBinary([]byte{2, 0})
	h.conn.sendText(`{"signal":"EOS"}`)
	close(gate)

	for h.conn.countStatus("complete") < 2 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if got := h.conn.countStatus("complete"); got != 2 {
		t.Fatalf("complete frames=%d, want 2", got)
	}
	if got := h.comp.callCount(); got != 2 {
		t.Fatalf("completer calls=%d, want 2", got)
	}
}

func TestSession_ResetDiscardsInFlightResult(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.comp.gate = gate
	h.handshake(t)

	h.conn.sendBinary([]byte{1, 0})
	h.conn.sendText(`{"signal":"EOS"}`)
	// Wait until the pipeline reaches the completion stage.
	deadline := time.Now().Add(2 * time.Second)
	for h.comp.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}

	h.conn.sendText(`{"signal":"RESET"}`)
	h.conn.waitForStatus(t, "reset_complete")
	close(gate)

	// Give the stale pipeline time to finish, then confirm nothing from
	// it reached the wire.
	time.Sleep(50 * time.Millisecond)
	if h.conn.countStatus("complete") != 0 {
		t.Fatal("stale pipeline result reached the wire")
	}
	if len(h.conn.binaryPayload()) != 0 {
		t.Fatal("stale audio reached the wire")
	}
	if h.synth.spanCount() != 0 {
		t.Fatal("synthesis ran for a superseded utterance")
	}
}

func TestSession_DuplicateSessionReplacesOld(t *testing.T) {
	h := newHarness(t)
	h.handshake(t)

	conn2 := newFakeConn()
	sess2, err := New(Dependencies{
		Conn:        conn2,
		Logger:      slog.New(slog.DiscardHandler),
		Registry:    h.registry,
		Contexts:    h.contexts,
		Pool:        workerpool.New(1, 4, 0),
		Transcriber: h.trans,
		Completer:   h.comp,
		Synthesizer: h.synth,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	done2 := make(chan error, 1)
	go func() { done2 <- sess2.Run() }()
	conn2.sendText(`{"session_id":"s1"}`)
	conn2.waitForStatus(t, "connected")

	// The first session is cancelled by the replacement.
	select {
	case <-h.runExited:
	case <-time.After(2 * time.Second):
		t.Fatal("old session not shut down on duplicate id")
	}
	if h.registry.Count() != 1 {
		t.Fatalf("registry count=%d, want 1", h.registry.Count())
	}

	conn2.disconnect()
	select {
	case <-done2:
	case <-time.After(2 * time.Second):
		t.Fatal("replacement session did not stop")
	}
}

func TestSession_BufferLimitResetsWithNotice(t *testing.T) {
	conn := newFakeConn()
	registry := sessions.NewRegistry()
	trans := &fakeTranscriber{text: "hi"}
	sess, err := New(Dependencies{
		Conn:        conn,
		Logger:      slog.New(slog.DiscardHandler),
		Registry:    registry,
		Contexts:    convo.NewStore(5),
		Pool:        workerpool.New(1, 4, 0),
		Transcriber: trans,
		Completer:   &fakeCompleter{reply: "ok"},
		Synthesizer: &fakeSynth{pcm: []byte{0, 0}},
		Config:      Config{MaxUtteranceBytes: 8},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- sess.Run() }()
	defer func() {
		conn.disconnect()
		<-done
	}()

	conn.sendText(`{"session_id":"s1"}`)
	conn.waitForStatus(t, "connected")

	conn.sendBinary(make([]byte, 6))
	conn.sendBinary(make([]byte, 6)) // exceeds the 8-byte bound
	m := conn.waitForStatus(t, "error")
	if m["error_type"] != "format_error" {
		t.Fatalf("error frame=%v", m)
	}

	// Buffer was dropped: EOS now has nothing to process.
	conn.sendText(`{"signal":"EOS"}`)
	conn.sendText(`{"signal":"RESET"}`)
	conn.waitForStatus(t, "reset_complete")
	if trans.callCount() != 0 {
		t.Fatalf("transcriber ran on a dropped buffer: %d", trans.callCount())
	}
}
