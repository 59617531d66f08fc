package memory

import "sync"

// SessionStore keeps one live value per key so that every connection working
// on the same quiz shares one controller (and one countdown).
type SessionStore[T any] struct {
	mu       sync.Mutex
	sessions map[string]T
}

func NewSessionStore[T any]() *SessionStore[T] {
	return &SessionStore[T]{sessions: make(map[string]T)}
}

// GetOrCreate returns the live value for key, building it with create on a miss.
// create runs under the store lock; errors leave nothing registered.
func (s *SessionStore[T]) GetOrCreate(key string, create func() (T, error)) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[key]; ok {
		return session, nil
	}
	session, err := create()
	if err != nil {
		var zero T
		return zero, err
	}
	s.sessions[key] = session
	return session, nil
}

func (s *SessionStore[T]) Get(key string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[key]
	return session, ok
}

// DeleteIf drops the value for key when idle reports true and returns whether
// it was removed.
func (s *SessionStore[T]) DeleteIf(key string, idle func(T) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[key]
	if !ok || !idle(session) {
		return false
	}
	delete(s.sessions, key)
	return true
}

// Len returns the number of live values.
func (s *SessionStore[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Keys returns the keys of every live value.
func (s *SessionStore[T]) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.sessions))
	for k := range s.sessions {
		keys = append(keys, k)
	}
	return keys
}
