package infrastructure

import (
	"sync"
	"time"

	"github.com/perzivalh/botsito-podopie/internal/entities"
)

type sessionEntry struct {
	mu      sync.Mutex
	session entities.Session
}

// SessionStore keeps per-user conversational state for the process
// lifetime. Events for one wa_id are serialized through the entry
// mutex; different identities run fully in parallel.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*sessionEntry),
	}
}

func (s *SessionStore) entry(waID string) *sessionEntry {
	s.mu.RLock()
	e, ok := s.sessions[waID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.sessions[waID]; ok {
		return e
	}
	e = &sessionEntry{
		session: entities.Session{
			WaID:      waID,
			State:     entities.StateNew,
			UpdatedAt: time.Now(),
		},
	}
	s.sessions[waID] = e
	return e
}

// Do runs fn with exclusive access to the identity's session, creating
// it at the start state on first use. The whole turn for one identity
// runs under this lock, which is what guarantees arrival-order
// application of same-identity events.
func (s *SessionStore) Do(waID string, fn func(*entities.Session)) {
	e := s.entry(waID)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.session)
	e.session.UpdatedAt = time.Now()
}

// Reset clears the identity's progress. The session record persists.
func (s *SessionStore) Reset(waID string) {
	s.Do(waID, func(sess *entities.Session) {
		sess.Reset()
	})
}

// Snapshot copies every session for the diagnostic read path.
func (s *SessionStore) Snapshot() []entities.Session {
	s.mu.RLock()
	entries := make([]*sessionEntry, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]entities.Session, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		copy := e.session
		copy.Fields = append([]entities.Field(nil), e.session.Fields...)
		e.mu.Unlock()
		out = append(out, copy)
	}
	return out
}

// Len returns the number of known identities.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
