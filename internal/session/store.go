package session

import "sync"

// Store tracks every live call. The session_id map is the canonical owner;
// the call_id index is secondary and populated once the provider reveals the
// call identifier.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*CallSession
	byCallID map[string]string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*CallSession),
		byCallID: make(map[string]string),
	}
}

// Add registers a freshly created session under its session ID.
func (st *Store) Add(s *CallSession) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.ID] = s
}

// Index records the call_id → session mapping once the provider assigns one.
func (st *Store) Index(s *CallSession) {
	callID := s.CallID()
	if callID == "" {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.byCallID[callID] = s.ID
}

// Get returns the session with the given session ID.
func (st *Store) Get(sessionID string) (*CallSession, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[sessionID]
	return s, ok
}

// GetByCallID returns the session owning the given provider call ID.
func (st *Store) GetByCallID(callID string) (*CallSession, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	id, ok := st.byCallID[callID]
	if !ok {
		return nil, false
	}
	s, ok := st.sessions[id]
	return s, ok
}

// Remove ends the session and drops it from both maps. Removing an unknown
// or already removed session is a no-op.
func (st *Store) Remove(sessionID string) {
	st.mu.Lock()
	s, ok := st.sessions[sessionID]
	if ok {
		delete(st.sessions, sessionID)
		if cid := s.CallID(); cid != "" {
			delete(st.byCallID, cid)
		}
	}
	st.mu.Unlock()
	if ok {
		s.End()
	}
}

// ActiveCount returns the number of tracked sessions.
func (st *Store) ActiveCount() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Cleanup removes every session that has already ended and returns how many
// were dropped.
func (st *Store) Cleanup() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	n := 0
	for id, s := range st.sessions {
		if s.IsActive() {
			continue
		}
		delete(st.sessions, id)
		if cid := s.CallID(); cid != "" {
			delete(st.byCallID, cid)
		}
		n++
	}
	return n
}
