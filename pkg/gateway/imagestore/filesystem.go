package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Filesystem stores one pending frame per session as a file. It survives
// restarts without needing a database, which suits single-node deployments.
type Filesystem struct {
	dir string
	ttl time.Duration
}

// NewFilesystem creates dir if needed. ttl <= 0 selects DefaultTTL.
func NewFilesystem(dir string, ttl time.Duration) (*Filesystem, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	return &Filesystem{dir: dir, ttl: ttl}, nil
}

// path flattens the session id so it cannot escape the store directory.
func (f *Filesystem) path(sessionID string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, sessionID)
	return filepath.Join(f.dir, safe+".jpg")
}

func (f *Filesystem) Put(_ context.Context, sessionID string, jpeg []byte) error {
	path := f.path(sessionID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, jpeg, 0o644); err != nil {
		return fmt.Errorf("write pending image: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write pending image: %w", err)
	}
	return nil
}

func (f *Filesystem) TakePending(_ context.Context, sessionID string) ([]byte, error) {
	path := f.path(sessionID)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("take pending image: %w", err)
	}
	jpeg, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("take pending image: %w", err)
	}
	_ = os.Remove(path)
	if time.Since(info.ModTime()) > f.ttl {
		return nil, nil
	}
	return jpeg, nil
}

func (f *Filesystem) Discard(_ context.Context, sessionID string) error {
	err := os.Remove(f.path(sessionID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("discard pending image: %w", err)
	}
	return nil
}

func (f *Filesystem) Close() error { return nil }
