package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWorkspaceKey(t *testing.T) {
	assert.Equal(t, "tg:-100:42", Key{ChatID: -100, UserID: 42}.WorkspaceKey())
}

func TestStorePanel(t *testing.T) {
	s := NewStore(Options{})
	key := Key{ChatID: 1, UserID: 2}

	assert.Equal(t, 0, s.Panel(key))

	sess := s.Touch(key, "alice")
	assert.Equal(t, "alice", sess.Username)

	s.SetPanel(key, 77)
	assert.Equal(t, 77, s.Panel(key))

	got, ok := s.Get(key)
	assert.True(t, ok)
	assert.Equal(t, "alice", got.Username)

	s.Clear(key)
	assert.Equal(t, 0, s.Panel(key))
}

func TestStorePrune(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStore(Options{Now: func() time.Time { return now }})

	s.Touch(Key{ChatID: 1, UserID: 1}, "")
	now = now.Add(2 * time.Hour)
	s.Touch(Key{ChatID: 2, UserID: 2}, "")

	assert.Equal(t, 1, s.Prune(time.Hour))
	_, ok := s.Get(Key{ChatID: 1, UserID: 1})
	assert.False(t, ok)
	_, ok = s.Get(Key{ChatID: 2, UserID: 2})
	assert.True(t, ok)
}
