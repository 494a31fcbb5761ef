// File: internal/store/file.go
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/a0x-labs/agentdeck/api/schemas"
)

// FileMirror keeps transcripts as JSON files under a directory. It is the
// TranscriptMirror used when no database is configured.
type FileMirror struct {
	dir string
	log *zap.Logger
	now func() time.Time

	mu sync.Mutex
}

// NewFileMirror creates dir (after "~" expansion) if needed.
func NewFileMirror(dir string, logger *zap.Logger) (*FileMirror, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand transcript dir %q: %w", dir, err)
	}
	if err := os.MkdirAll(expanded, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create transcript dir: %w", err)
	}
	return &FileMirror{dir: expanded, log: logger.Named("file_mirror"), now: time.Now}, nil
}

// Dir is the expanded directory transcripts are written to.
func (m *FileMirror) Dir() string { return m.dir }

func (m *FileMirror) path(key string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		}
		return '_'
	}, key)
	return filepath.Join(m.dir, safe+".json")
}

func (m *FileMirror) read(key string) (schemas.Transcript, error) {
	data, err := os.ReadFile(m.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return schemas.Transcript{}, nil
	}
	if err != nil {
		return schemas.Transcript{}, err
	}
	var t schemas.Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return schemas.Transcript{}, fmt.Errorf("corrupt transcript %q: %w", key, err)
	}
	return t, nil
}

// Save replaces the history under key, keeping the first creation time.
func (m *FileMirror) Save(_ context.Context, key string, messages []schemas.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.read(key)
	if err != nil {
		m.log.Warn("Overwriting unreadable transcript.", zap.String("key", key), zap.Error(err))
		t = schemas.Transcript{}
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = m.now().UTC()
	}
	t.Messages = messages
	if t.Messages == nil {
		t.Messages = []schemas.ChatMessage{}
	}

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}
	tmp, err := os.CreateTemp(m.dir, ".transcript-*")
	if err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	return nil
}

// Load returns the transcript under key, or a zero Transcript.
func (m *FileMirror) Load(_ context.Context, key string) (schemas.Transcript, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read(key)
}

// Clear removes the transcript file. A missing file is not an error.
func (m *FileMirror) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.Remove(m.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to clear transcript %q: %w", key, err)
	}
	return nil
}
