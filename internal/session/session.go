// Package session keeps per-conversation runtime state in memory with
// age-based eviction. The pipeline is the only writer; a maintenance job
// prunes sessions that went quiet.
package session

import (
	"sync"
	"time"

	"github.com/destekhq/runtime/internal/convstate"
)

// Session is everything the pipeline needs to remember between turns of
// one conversation. Chat history itself arrives with every inbound turn,
// so it is not stored here.
type Session struct {
	ID                    string
	Channel               string
	State                 convstate.State
	ClarificationAttempts int
	LastTicketID          string
	LastTicketStatus      string
	EscalationAnnounced   bool
	FarewellSeen          bool
	CreatedAt             time.Time
	LastSeen              time.Time
}

type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// GetOrCreate returns the session for id, creating a fresh one in the
// welcome state when the id is unknown. LastSeen is stamped either way.
func (s *Store) GetOrCreate(id, channel string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	existing, ok := s.sessions[id]
	if ok {
		existing.LastSeen = now
		return existing
	}

	created := &Session{
		ID:        id,
		Channel:   channel,
		State:     convstate.NewState(),
		CreatedAt: now,
		LastSeen:  now,
	}
	s.sessions[id] = created
	return created
}

func (s *Store) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	return session, ok
}

func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// PruneIdle evicts sessions whose last activity is older than maxIdle and
// returns how many were dropped.
func (s *Store) PruneIdle(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().UTC().Add(-maxIdle)
	pruned := 0
	for id, session := range s.sessions {
		if session.LastSeen.Before(cutoff) {
			delete(s.sessions, id)
			pruned++
		}
	}
	return pruned
}
