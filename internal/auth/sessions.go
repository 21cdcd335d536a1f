package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event reports a session change. User is nil when the session ended.
type Event struct {
	SessionID string
	User      *User
}

type session struct {
	user    *User
	expires time.Time
}

// Sessions maps opaque session IDs to signed-in users.
type Sessions struct {
	mu          sync.Mutex
	ttl         time.Duration
	sessions    map[string]*session
	subscribers map[int]func(Event)
	nextSub     int
	now         func() time.Time
}

// NewSessions creates a session table. Sessions expire ttl after their last use.
func NewSessions(ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Sessions{
		ttl:         ttl,
		sessions:    make(map[string]*session),
		subscribers: make(map[int]func(Event)),
		now:         time.Now,
	}
}

// Subscribe registers fn for every sign-in and sign-out. The returned func unsubscribes.
func (s *Sessions) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// Create starts a session for u and returns its ID.
func (s *Sessions) Create(u *User) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = &session{user: u, expires: s.now().Add(s.ttl)}
	s.mu.Unlock()

	s.emit(Event{SessionID: id, User: u})
	return id
}

// Get returns the session's user, extending its lifetime.
func (s *Sessions) Get(id string) (*User, bool) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	now := s.now()
	if now.After(sess.expires) {
		delete(s.sessions, id)
		s.mu.Unlock()
		s.emit(Event{SessionID: id})
		return nil, false
	}
	sess.expires = now.Add(s.ttl)
	u := sess.user
	s.mu.Unlock()
	return u, true
}

// Update replaces the session's user after a profile change.
func (s *Sessions) Update(id string, u *User) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if ok {
		sess.user = u
	}
	return ok
}

// Destroy ends a session.
func (s *Sessions) Destroy(id string) {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if ok {
		s.emit(Event{SessionID: id})
	}
}

// Sweep ends every expired session and returns how many were removed.
func (s *Sessions) Sweep() int {
	s.mu.Lock()
	now := s.now()
	var expired []string
	for id, sess := range s.sessions {
		if now.After(sess.expires) {
			expired = append(expired, id)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, id := range expired {
		s.emit(Event{SessionID: id})
	}
	return len(expired)
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Sessions) emit(e Event) {
	s.mu.Lock()
	subs := make([]func(Event), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(e)
	}
}
