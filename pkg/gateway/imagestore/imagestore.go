// Package imagestore holds camera frames uploaded out of band until the
// next utterance consumes them. A frame is pending for at most one
// completion: TakePending removes what it returns.
package imagestore

import (
	"context"
	"time"
)

// DefaultTTL is how long an uploaded frame stays pending before it is
// considered stale and dropped.
const DefaultTTL = 2 * time.Minute

// MaxImageBytes bounds a single uploaded frame.
const MaxImageBytes = 8 << 20

// Store keeps at most one pending frame per session.
type Store interface {
	// Put replaces the session's pending frame.
	Put(ctx context.Context, sessionID string, jpeg []byte) error

	// TakePending removes and returns the session's pending frame, or
	// (nil, nil) when there is none or it has expired.
	TakePending(ctx context.Context, sessionID string) ([]byte, error)

	// Discard drops the session's pending frame if any.
	Discard(ctx context.Context, sessionID string) error

	Close() error
}
