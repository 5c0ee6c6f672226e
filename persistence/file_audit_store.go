package persistence

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BaSui01/phasegate/types"
)

// FileAuditStore appends one JSON line per record to a per-session file.
// Records are never rewritten; the file itself is the append-only trail.
type FileAuditStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileAuditStore creates the base directory if needed.
func NewFileAuditStore(baseDir string) (*FileAuditStore, error) {
	dir := filepath.Join(baseDir, "audit")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit dir: %w", err)
	}
	return &FileAuditStore{dir: dir}, nil
}

func (s *FileAuditStore) path(sessionID string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(sessionID)
	return filepath.Join(s.dir, safe+".jsonl")
}

// Append writes the record as one JSON line.
func (s *FileAuditStore) Append(_ context.Context, rec types.AuditRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path(rec.SessionID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return types.NewError(types.ErrAuditUnavailable, "failed to open audit file").WithCause(err).WithRetryable(true)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return types.NewError(types.ErrAuditUnavailable, "failed to append audit record").WithCause(err).WithRetryable(true)
	}
	return f.Sync()
}

// Query reads the session's file line by line, in append order.
func (s *FileAuditStore) Query(_ context.Context, sessionID string) ([]types.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path(sessionID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewError(types.ErrAuditUnavailable, "failed to open audit file").WithCause(err).WithRetryable(true)
	}
	defer f.Close()

	var out []types.AuditRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec types.AuditRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit record: %w", err)
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit file: %w", err)
	}
	return out, nil
}

// Close is a no-op for the file store.
func (s *FileAuditStore) Close() error { return nil }
