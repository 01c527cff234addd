package token

import (
	"sync"
	"time"
)

// RevocationList remembers revoked token ids until the tokens would have
// expired anyway.
type RevocationList struct {
	revoked map[string]time.Time // jti -> exp
	mu      sync.RWMutex
}

func NewRevocationList() *RevocationList {
	return &RevocationList{
		revoked: make(map[string]time.Time),
	}
}

func (r *RevocationList) Revoke(jti string, exp time.Time) {
	if jti == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked[jti] = exp
}

func (r *RevocationList) IsRevoked(jti string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.revoked[jti]
	return exists
}

// Cleanup drops entries whose token has expired and returns how many went.
func (r *RevocationList) Cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := NowTimeFunc()
	removed := 0
	for jti, exp := range r.revoked {
		if now.After(exp) {
			delete(r.revoked, jti)
			removed++
		}
	}
	return removed
}
