package agent

import "sync"

// Session holds one connection's conversation state. It is created when the
// connection opens and discarded when it closes. History appends go through
// the session so the single-writer rule holds even though the pipeline run
// executes on its own goroutines.
type Session struct {
	ID string

	mu      sync.Mutex
	history []Utterance
	run     *Run
}

func NewSession(id string) *Session {
	return &Session{ID: id}
}

// History returns a snapshot of the conversation in insertion order.
func (s *Session) History() []Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Utterance, len(s.history))
	copy(out, s.history)
	return out
}

// AppendExchange commits one completed user/assistant turn pair.
func (s *Session) AppendExchange(user, assistant string) {
	s.mu.Lock()
	s.history = append(s.history, Utterance{Role: RoleUser, Text: user})
	s.history = append(s.history, Utterance{Role: RoleAssistant, Text: assistant})
	s.mu.Unlock()
}

// ActiveRun returns the in-flight pipeline run, if any.
func (s *Session) ActiveRun() *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run
}

func (s *Session) setRun(r *Run) {
	s.mu.Lock()
	s.run = r
	s.mu.Unlock()
}

func (s *Session) clearRun(r *Run) {
	s.mu.Lock()
	if s.run == r {
		s.run = nil
	}
	s.mu.Unlock()
}
