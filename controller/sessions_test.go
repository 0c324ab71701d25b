package controller

import (
	"fmt"
	"testing"
	"time"

	"github/itish2003/tenantrag/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClockedStore(maxTurns int, ttl time.Duration, maxSessions int) (*SessionStore, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	s := NewSessionStore(maxTurns, ttl, maxSessions)
	s.now = clock.now
	return s, clock
}

func turn(i int) models.ConversationTurn {
	return models.ConversationTurn{Role: models.RoleUser, Content: fmt.Sprintf("turn %d", i)}
}

func TestSessionStoreExpiresIdleSessions(t *testing.T) {
	s, clock := newClockedStore(10, 30*time.Minute, 100)

	id, _ := s.Resolve("", "acme")
	s.Append(id, turn(1))

	clock.advance(20 * time.Minute)
	got, history := s.Resolve(id, "acme")
	require.Equal(t, id, got)
	assert.Len(t, history, 1)

	clock.advance(20 * time.Minute)
	got, history = s.Resolve(id, "acme")
	assert.Equal(t, id, got, "use refreshes the idle timer")
	assert.Len(t, history, 1)

	clock.advance(31 * time.Minute)
	got, history = s.Resolve(id, "acme")
	assert.NotEqual(t, id, got)
	assert.Empty(t, history)
	assert.Equal(t, 1, s.Len())
}

func TestSessionStoreEvictsLeastRecentlyUsed(t *testing.T) {
	s, clock := newClockedStore(10, time.Hour, 3)

	a, _ := s.Resolve("", "acme")
	clock.advance(time.Second)
	b, _ := s.Resolve("", "acme")
	clock.advance(time.Second)
	_, _ = s.Resolve("", "acme")
	clock.advance(time.Second)

	got, _ := s.Resolve(a, "acme")
	require.Equal(t, a, got)

	d, _ := s.Resolve("", "acme")
	assert.Equal(t, 3, s.Len())

	got, _ = s.Resolve(b, "acme")
	assert.NotEqual(t, b, got, "b was the least recently used")
	for _, id := range []string{a, d} {
		got, _ = s.Resolve(id, "acme")
		assert.Equal(t, id, got)
	}
	assert.Equal(t, 3, s.Len())
}

func TestSessionStoreCapsHistory(t *testing.T) {
	s, _ := newClockedStore(4, time.Hour, 10)

	id, _ := s.Resolve("", "acme")
	for i := 1; i <= 7; i++ {
		s.Append(id, turn(i))
	}

	_, history := s.Resolve(id, "acme")
	assert.Equal(t, []models.ConversationTurn{turn(4), turn(5), turn(6), turn(7)}, history)
}

func TestSessionStoreHistoryIsACopy(t *testing.T) {
	s, _ := newClockedStore(4, time.Hour, 10)

	id, _ := s.Resolve("", "acme")
	s.Append(id, turn(1))
	_, history := s.Resolve(id, "acme")
	history[0].Content = "changed"

	_, again := s.Resolve(id, "acme")
	assert.Equal(t, "turn 1", again[0].Content)
}

func TestSessionStoreRejectsOtherTenants(t *testing.T) {
	s, _ := newClockedStore(4, time.Hour, 10)

	id, _ := s.Resolve("", "acme")
	s.Append(id, turn(1))

	other, history := s.Resolve(id, "globex")
	assert.NotEqual(t, id, other)
	assert.Empty(t, history)

	_, history = s.Resolve(id, "acme")
	assert.Len(t, history, 1)
}
