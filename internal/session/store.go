package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"fashion-script-studio/internal/metrics"
	"fashion-script-studio/internal/workflow"
)

type Options struct {
	Controller *workflow.Controller
	// IdleTTL drops sessions nobody touched for this long.
	IdleTTL time.Duration
}

type Store struct {
	mu         sync.Mutex
	controller *workflow.Controller
	sessions   *cache.Cache
	ttl        time.Duration
}

func NewStore(opts Options) *Store {
	ttl := opts.IdleTTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}

	s := &Store{
		controller: opts.Controller,
		sessions:   cache.New(ttl, ttl/2),
		ttl:        ttl,
	}
	s.sessions.OnEvicted(func(string, interface{}) {
		metrics.ActiveSessions.Set(float64(s.sessions.ItemCount()))
	})
	return s
}

// Create opens a fresh session under a random id.
func (s *Store) Create(subject string) *workflow.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.controller.NewSession(uuid.NewString(), subject)
	s.sessions.SetDefault(sess.ID, sess)
	metrics.ActiveSessions.Set(float64(s.sessions.ItemCount()))
	return sess
}

// Get returns the session and extends its idle lifetime.
func (s *Store) Get(id string) (*workflow.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.sessions.Get(id)
	if !ok {
		return nil, false
	}
	sess := v.(*workflow.Session)
	s.sessions.SetDefault(id, sess)
	return sess, true
}

// ForChat returns the session bound to a Telegram (chat, user) pair, creating
// it on first use.
func (s *Store) ForChat(chatID, userID int64) *workflow.Session {
	key := ChatKey(chatID, userID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.sessions.Get(key); ok {
		sess := v.(*workflow.Session)
		s.sessions.SetDefault(key, sess)
		return sess
	}

	sess := s.controller.NewSession(key, fmt.Sprintf("tg:%d", userID))
	s.sessions.SetDefault(key, sess)
	metrics.ActiveSessions.Set(float64(s.sessions.ItemCount()))
	return sess
}

func (s *Store) Delete(id string) {
	s.sessions.Delete(id)
}

func (s *Store) Len() int {
	return s.sessions.ItemCount()
}

func ChatKey(chatID, userID int64) string {
	return fmt.Sprintf("tg:%d:%d", chatID, userID)
}
