// Package convo keeps per-session bounded conversation history, independent
// of the transport that feeds it.
package convo

import (
	"sync"
	"time"
)

// Turn is one message in a conversation, tagged with its speaker role.
type Turn struct {
	Role string `json:"role"` // "user" or "assistant"
	Text string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultMaxTurns bounds history to this many user/assistant pairs.
const DefaultMaxTurns = 10

type entry struct {
	history      []Turn
	lastActivity time.Time
}

// Store maps session ids to bounded conversation histories. A context is
// created lazily on first append and dropped on Remove. The map is safe for
// concurrent use; individual histories are mutated only through the store.
type Store struct {
	maxTurns int
	now      func() time.Time

	mu       sync.Mutex
	contexts map[string]*entry
}

// NewStore creates a store keeping at most maxTurns user/assistant pairs
// per session. maxTurns <= 0 selects DefaultMaxTurns.
func NewStore(maxTurns int) *Store {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Store{
		maxTurns: maxTurns,
		now:      time.Now,
		contexts: make(map[string]*entry),
	}
}

// Append records a turn and enforces the history cap in the same critical
// section. When the cap is exceeded the oldest whole pair is dropped, never
// a single message, so roles stay aligned.
func (s *Store) Append(id, role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.contexts[id]
	if e == nil {
		e = &entry{history: make([]Turn, 0, 2*s.maxTurns)}
		s.contexts[id] = e
	}
	e.history = append(e.history, Turn{Role: role, Text: text})
	e.lastActivity = s.now()

	maxMessages := 2 * s.maxTurns
	for len(e.history) > maxMessages {
		drop := 1
		if len(e.history) >= 2 && e.history[0].Role == RoleUser && e.history[1].Role == RoleAssistant {
			drop = 2
		}
		e.history = e.history[drop:]
	}
}

// Window returns a copy of the session's current history in order, oldest
// first. Unknown sessions yield an empty window.
func (s *Store) Window(id string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.contexts[id]
	if e == nil {
		return nil
	}
	out := make([]Turn, len(e.history))
	copy(out, e.history)
	return out
}

// Clear resets a session's history without removing the session entry.
func (s *Store) Clear(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.contexts[id]; e != nil {
		e.history = e.history[:0]
		e.lastActivity = s.now()
	}
}

// Remove drops the session's context entirely. Called on teardown so the
// store cannot grow without bound under connection churn.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contexts, id)
}

// LastActivity reports when the session's history last changed.
func (s *Store) LastActivity(id string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.contexts[id]
	if e == nil {
		return time.Time{}, false
	}
	return e.lastActivity, true
}

// Len reports the number of tracked contexts.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contexts)
}
