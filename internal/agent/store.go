package agent

import "sync"

// Store keeps sessions for the REST chat endpoint, keyed by caller-provided
// session id. Realtime connections own their sessions directly and never go
// through the store.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Get returns the session for id, creating it on first use.
func (st *Store) Get(id string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[id]; ok {
		return s
	}
	s := NewSession(id)
	st.sessions[id] = s
	return s
}

// Delete removes a session from the store.
func (st *Store) Delete(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}
