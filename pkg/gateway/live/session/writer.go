package session

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

type wsWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// outboundFrame is one queued wire message. Exactly one of text or binary
// is set. gen is the utterance generation that produced it; frames from a
// superseded generation are dropped instead of written.
type outboundFrame struct {
	gen    int64
	text   []byte
	binary []byte
}

// outboundWriter is the single goroutine allowed to write to the socket.
// Frames go out strictly in queue order, interleaved only with pings.
type outboundWriter struct {
	ws           wsWriter
	ctx          context.Context
	frames       <-chan outboundFrame
	isStale      func(gen int64) bool
	pingInterval time.Duration
	writeTimeout time.Duration
}

func (w *outboundWriter) Run() error {
	pingInterval := w.pingInterval
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	writeTimeout := w.writeTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			deadline := time.Now().Add(writeTimeout)
			_ = w.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			_ = w.ws.Close()
			return nil
		case <-pingTicker.C:
			deadline := time.Now().Add(writeTimeout)
			if err := w.ws.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				return err
			}
		case frame, ok := <-w.frames:
			if !ok {
				return nil
			}
			if err := w.writeFrame(frame, writeTimeout); err != nil {
				return err
			}
		}
	}
}

func (w *outboundWriter) writeFrame(frame outboundFrame, writeTimeout time.Duration) error {
	if w.isStale != nil && w.isStale(frame.gen) {
		return nil
	}
	if err := w.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	if frame.text != nil {
		return w.ws.WriteMessage(websocket.TextMessage, frame.text)
	}
	return w.ws.WriteMessage(websocket.BinaryMessage, frame.binary)
}
