package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const stateTTL = 10 * time.Minute

// StateStore remembers issued OAuth state nonces for one process.
type StateStore struct {
	mu     sync.Mutex
	issued map[string]time.Time
	ttl    time.Duration
	now    func() time.Time
}

func NewStateStore() *StateStore {
	return &StateStore{issued: make(map[string]time.Time), ttl: stateTTL, now: time.Now}
}

// Issue creates a new nonce and prunes expired ones.
func (s *StateStore) Issue() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, exp := range s.issued {
		if now.After(exp) {
			delete(s.issued, k)
		}
	}
	state := uuid.NewString()
	s.issued[state] = now.Add(s.ttl)
	return state
}

// Consume reports whether state was issued and unexpired. A nonce is valid once.
func (s *StateStore) Consume(state string) bool {
	if state == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.issued[state]
	if !ok {
		return false
	}
	delete(s.issued, state)
	return !s.now().After(exp)
}
