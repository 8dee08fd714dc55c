package session

// State is the per-connection protocol state. Transitions happen only on
// the session's own loop; the atomic storage exists so /health and tests
// can observe without racing.
type State int32

const (
	// StateHandshaking: connected, waiting for the session_id frame.
	StateHandshaking State = iota
	// StateReady: registered, no audio received yet.
	StateReady
	// StateReceiving: accumulating utterance audio.
	StateReceiving
	// StateProcessing: pipeline in flight; inbound audio goes to the
	// next utterance's buffer, never the in-flight one.
	StateProcessing
	// StateStreaming: synthesized audio going out.
	StateStreaming
	// StateClosed: terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateReceiving:
		return "receiving"
	case StateProcessing:
		return "processing"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
