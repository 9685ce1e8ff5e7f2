package session

import (
	"fmt"
	"sync"
	"time"
)

// Key identifies one user's conversation in one chat. Each key owns one
// workspace.
type Key struct {
	ChatID int64
	UserID int64
}

// WorkspaceKey is the workspace store key for k.
func (k Key) WorkspaceKey() string {
	return fmt.Sprintf("tg:%d:%d", k.ChatID, k.UserID)
}

type Session struct {
	Key
	Username string
	// PanelMessageID is the message carrying the workspace keyboard, zero
	// until one was sent.
	PanelMessageID int
	LastActivity   time.Time
}

type Options struct {
	Now func() time.Time
}

type Store struct {
	mu       sync.Mutex
	sessions map[Key]*Session
	now      func() time.Time
}

func NewStore(opts Options) *Store {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		sessions: make(map[Key]*Session),
		now:      now,
	}
}

// Touch records activity and returns a copy of the session.
func (s *Store) Touch(key Key, username string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(key, username)
	sess.LastActivity = s.now()
	return *sess
}

func (s *Store) Get(key Key) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

func (s *Store) SetPanel(key Key, messageID int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(key, "")
	sess.PanelMessageID = messageID
	sess.LastActivity = s.now()
}

func (s *Store) Panel(key Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[key]; ok {
		return sess.PanelMessageID
	}
	return 0
}

// Clear forgets the session. The next Touch starts over without a panel.
func (s *Store) Clear(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
}

// Prune drops sessions idle for longer than maxIdle.
func (s *Store) Prune(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxIdle)
	n := 0
	for key, sess := range s.sessions {
		if sess.LastActivity.Before(cutoff) {
			delete(s.sessions, key)
			n++
		}
	}
	return n
}

func (s *Store) getOrCreateLocked(key Key, username string) *Session {
	if sess, ok := s.sessions[key]; ok {
		if username != "" {
			sess.Username = username
		}
		return sess
	}

	sess := &Session{
		Key:          key,
		Username:     username,
		LastActivity: s.now(),
	}
	s.sessions[key] = sess
	return sess
}
