package controller

import (
	"container/list"
	"sync"
	"time"

	"github/itish2003/tenantrag/models"

	"github.com/google/uuid"
)

// SessionStore keeps chat sessions in memory. Sessions idle for longer than
// the TTL expire, the least recently used session is evicted once the store
// is full, and each history keeps only its most recent turns.
type SessionStore struct {
	mu          sync.Mutex
	maxTurns    int
	ttl         time.Duration
	maxSessions int
	now         func() time.Time

	sessions map[string]*list.Element
	// order holds *sessionEntry values, most recently used first.
	order *list.List
}

type sessionEntry struct {
	session  *models.Session
	lastUsed time.Time
}

func NewSessionStore(maxTurns int, ttl time.Duration, maxSessions int) *SessionStore {
	if maxTurns < 2 {
		maxTurns = 2
	}
	if maxSessions < 1 {
		maxSessions = 1
	}
	return &SessionStore{
		maxTurns:    maxTurns,
		ttl:         ttl,
		maxSessions: maxSessions,
		now:         time.Now,
		sessions:    make(map[string]*list.Element),
		order:       list.New(),
	}
}

// Resolve returns the session id and a copy of its history. Unknown or
// expired ids, and ids that belong to another tenant, start a fresh session.
func (s *SessionStore) Resolve(id string, tenant models.TenantID) (string, []models.ConversationTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.pruneExpired(now)

	if el, ok := s.sessions[id]; ok {
		entry := el.Value.(*sessionEntry)
		if entry.session.Tenant == tenant {
			entry.lastUsed = now
			s.order.MoveToFront(el)
			history := make([]models.ConversationTurn, len(entry.session.History))
			copy(history, entry.session.History)
			return entry.session.ID, history
		}
	}

	for s.order.Len() >= s.maxSessions {
		s.remove(s.order.Back())
	}
	sess := &models.Session{ID: uuid.NewString(), Tenant: tenant}
	s.sessions[sess.ID] = s.order.PushFront(&sessionEntry{session: sess, lastUsed: now})
	return sess.ID, nil
}

// Append adds turns to a session's history, dropping the oldest turns past
// the history cap.
func (s *SessionStore) Append(id string, turns ...models.ConversationTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.sessions[id]
	if !ok {
		return
	}
	entry := el.Value.(*sessionEntry)
	history := append(entry.session.History, turns...)
	if over := len(history) - s.maxTurns; over > 0 {
		history = append([]models.ConversationTurn(nil), history[over:]...)
	}
	entry.session.History = history
	entry.lastUsed = s.now()
	s.order.MoveToFront(el)
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

func (s *SessionStore) pruneExpired(now time.Time) {
	if s.ttl <= 0 {
		return
	}
	for el := s.order.Back(); el != nil; el = s.order.Back() {
		if now.Sub(el.Value.(*sessionEntry).lastUsed) < s.ttl {
			return
		}
		s.remove(el)
	}
}

func (s *SessionStore) remove(el *list.Element) {
	entry := s.order.Remove(el).(*sessionEntry)
	delete(s.sessions, entry.session.ID)
}
