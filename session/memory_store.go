package session

import (
	"sync"

	"github.com/jrsteele09/remycare-client/users"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is the tab-scoped Store: one instance per client, never shared.
type MemoryStore struct {
	lock    sync.RWMutex
	session *Session
	hasUser bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(access, refresh string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if access == "" && refresh == "" {
		s.session = nil
		s.hasUser = false
		return
	}
	s.session = &Session{AccessToken: access, RefreshToken: refresh}
	s.hasUser = false
}

func (s *MemoryStore) SaveUser(user users.UserSummary) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.session == nil {
		return
	}
	s.session.User = user
	s.hasUser = true
}

func (s *MemoryStore) AccessToken() (string, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.session == nil || s.session.AccessToken == "" {
		return "", false
	}
	return s.session.AccessToken, true
}

func (s *MemoryStore) RefreshToken() (string, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.session == nil || s.session.RefreshToken == "" {
		return "", false
	}
	return s.session.RefreshToken, true
}

func (s *MemoryStore) User() (users.UserSummary, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.session == nil || !s.hasUser {
		return users.UserSummary{}, false
	}
	return s.session.User, true
}

func (s *MemoryStore) UpdateAccessToken(access string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.session == nil || access == "" {
		return false
	}
	s.session.AccessToken = access
	return true
}

func (s *MemoryStore) Snapshot() (Session, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.session == nil {
		return Session{}, false
	}
	return *s.session, true
}

func (s *MemoryStore) Clear() {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.session = nil
	s.hasUser = false
}
