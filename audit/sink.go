package audit

import (
	"context"
	"sort"
	"sync"

	"github.com/BaSui01/phasegate/types"
)

// Sink accepts append-only audit records and serves chronological retrieval
// by session. Append must never fail silently: an error return means the
// record was not durably accepted and the caller decides policy (reject the
// mutating operation, or buffer and retry via Buffered).
type Sink interface {
	// Append stores one record. Records are immutable once accepted.
	Append(ctx context.Context, rec types.AuditRecord) error

	// Query returns all records for a session in chronological order.
	Query(ctx context.Context, sessionID string) ([]types.AuditRecord, error)

	// Close flushes and releases the sink.
	Close() error
}

// MemorySink is an in-memory Sink for development and tests.
type MemorySink struct {
	mu      sync.RWMutex
	records map[string][]types.AuditRecord
	closed  bool
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{records: make(map[string][]types.AuditRecord)}
}

// Append stores the record in arrival order.
func (s *MemorySink) Append(_ context.Context, rec types.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.NewError(types.ErrAuditUnavailable, "audit sink is closed")
	}
	s.records[rec.SessionID] = append(s.records[rec.SessionID], rec)
	return nil
}

// Query returns the session's records ordered by timestamp, preserving
// arrival order for equal timestamps.
func (s *MemorySink) Query(_ context.Context, sessionID string) ([]types.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, types.NewError(types.ErrAuditUnavailable, "audit sink is closed")
	}
	src := s.records[sessionID]
	out := make([]types.AuditRecord, len(src))
	copy(out, src)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Close marks the sink closed. Further appends fail.
func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ Sink = (*MemorySink)(nil)
