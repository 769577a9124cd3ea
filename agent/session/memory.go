package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/saralytics/saralytics/agent/contract"
)

var ErrInvalidSession = errors.New("session id is empty")

// MemoryStore keeps turn history in process memory. Appends to one session
// are serialized by a per-session mutex; distinct sessions never contend
// beyond the brief index lookup.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
}

type memorySession struct {
	mu    sync.Mutex
	turns []contract.Turn
}

var _ contract.SessionStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*memorySession)}
}

func (s *MemoryStore) List(ctx context.Context, sessionID string) ([]contract.Turn, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	s.mu.RLock()
	sess := s.sessions[sessionID]
	s.mu.RUnlock()
	if sess == nil {
		return []contract.Turn{}, nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]contract.Turn, len(sess.turns))
	copy(out, sess.turns)
	return out, nil
}

func (s *MemoryStore) Append(ctx context.Context, sessionID string, turns ...contract.Turn) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ErrInvalidSession
	}
	if len(turns) == 0 {
		return nil
	}

	sess := s.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.turns = append(sess.turns, turns...)
	return nil
}

func (s *MemoryStore) session(sessionID string) *memorySession {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[sessionID]
	if sess == nil {
		sess = &memorySession{}
		s.sessions[sessionID] = sess
	}
	return sess
}
