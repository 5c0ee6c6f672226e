package persistence

import (
	"context"
	"sync"

	"github.com/BaSui01/phasegate/types"
)

// MemorySessionStore is an in-memory session store with revision CAS.
// Suitable for development and testing.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*types.WorkflowState
	closed   bool
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*types.WorkflowState)}
}

// Create stores a new session.
func (s *MemorySessionStore) Create(_ context.Context, state *types.WorkflowState) error {
	if state == nil || state.SessionID == "" {
		return types.NewError(types.ErrInternalError, "invalid session state")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.NewError(types.ErrStoreUnavailable, "session store is closed")
	}
	if _, ok := s.sessions[state.SessionID]; ok {
		return types.NewErrorf(types.ErrSessionExists, "session %s already exists", state.SessionID)
	}
	s.sessions[state.SessionID] = state.Clone()
	return nil
}

// Load returns a copy of the current state.
func (s *MemorySessionStore) Load(_ context.Context, sessionID string) (*types.WorkflowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, types.NewError(types.ErrStoreUnavailable, "session store is closed")
	}
	st, ok := s.sessions[sessionID]
	if !ok {
		return nil, types.NewErrorf(types.ErrSessionNotFound, "session %s not found", sessionID)
	}
	return st.Clone(), nil
}

// Save replaces the state only when the stored revision still equals
// expectedRevision.
func (s *MemorySessionStore) Save(_ context.Context, state *types.WorkflowState, expectedRevision uint64) error {
	if state == nil || state.SessionID == "" {
		return types.NewError(types.ErrInternalError, "invalid session state")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.NewError(types.ErrStoreUnavailable, "session store is closed")
	}
	cur, ok := s.sessions[state.SessionID]
	if !ok {
		return types.NewErrorf(types.ErrSessionNotFound, "session %s not found", state.SessionID)
	}
	if cur.Revision != expectedRevision {
		return types.NewStaleRevisionError(state.SessionID, expectedRevision, cur.Revision)
	}
	s.sessions[state.SessionID] = state.Clone()
	return nil
}

// Delete removes a session.
func (s *MemorySessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// Ping reports store health.
func (s *MemorySessionStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return types.NewError(types.ErrStoreUnavailable, "session store is closed")
	}
	return nil
}

// Close marks the store closed.
func (s *MemorySessionStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
