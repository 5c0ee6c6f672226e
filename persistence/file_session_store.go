package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BaSui01/phasegate/types"
)

// FileSessionStore keeps one JSON file per session. Suitable for single-node
// deployments; writes are atomic via temp-file rename and the revision check
// runs under a process-wide lock.
type FileSessionStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileSessionStore creates the base directory if needed.
func NewFileSessionStore(baseDir string) (*FileSessionStore, error) {
	dir := filepath.Join(baseDir, "sessions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session dir: %w", err)
	}
	return &FileSessionStore{dir: dir}, nil
}

func (s *FileSessionStore) path(sessionID string) string {
	// Session IDs are caller-supplied; flatten anything path-like.
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(sessionID)
	return filepath.Join(s.dir, safe+".json")
}

// Create stores a new session file, failing if one exists.
func (s *FileSessionStore) Create(_ context.Context, state *types.WorkflowState) error {
	if state == nil || state.SessionID == "" {
		return types.NewError(types.ErrInternalError, "invalid session state")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.path(state.SessionID)); err == nil {
		return types.NewErrorf(types.ErrSessionExists, "session %s already exists", state.SessionID)
	}
	return s.writeLocked(state)
}

// Load reads and parses the session file.
func (s *FileSessionStore) Load(_ context.Context, sessionID string) (*types.WorkflowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(sessionID)
}

func (s *FileSessionStore) loadLocked(sessionID string) (*types.WorkflowState, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if os.IsNotExist(err) {
		return nil, types.NewErrorf(types.ErrSessionNotFound, "session %s not found", sessionID)
	}
	if err != nil {
		return nil, types.NewError(types.ErrStoreUnavailable, "failed to read session file").WithCause(err)
	}
	var state types.WorkflowState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &state, nil
}

// Save replaces the file only when the stored revision matches.
func (s *FileSessionStore) Save(_ context.Context, state *types.WorkflowState, expectedRevision uint64) error {
	if state == nil || state.SessionID == "" {
		return types.NewError(types.ErrInternalError, "invalid session state")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.loadLocked(state.SessionID)
	if err != nil {
		return err
	}
	if cur.Revision != expectedRevision {
		return types.NewStaleRevisionError(state.SessionID, expectedRevision, cur.Revision)
	}
	return s.writeLocked(state)
}

func (s *FileSessionStore) writeLocked(state *types.WorkflowState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	tmp := s.path(state.SessionID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return types.NewError(types.ErrStoreUnavailable, "failed to write session file").WithCause(err)
	}
	if err := os.Rename(tmp, s.path(state.SessionID)); err != nil {
		return types.NewError(types.ErrStoreUnavailable, "failed to replace session file").WithCause(err)
	}
	return nil
}

// Delete removes the session file.
func (s *FileSessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.path(sessionID))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Ping checks the base directory is reachable.
func (s *FileSessionStore) Ping(_ context.Context) error {
	_, err := os.Stat(s.dir)
	return err
}

// Close is a no-op for the file store.
func (s *FileSessionStore) Close() error { return nil }
