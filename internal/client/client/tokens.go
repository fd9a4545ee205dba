package client

import (
	"sync"
	"time"
)

// Tokens is the pair the client currently holds.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

func (t Tokens) Empty() bool {
	return t.RefreshToken == ""
}

// TokenHolder guards the current pair. Interceptors read it on every call
// and the refresh path replaces it.
type TokenHolder struct {
	mu     sync.RWMutex
	tokens Tokens
}

func (h *TokenHolder) Get() Tokens {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.tokens
}

func (h *TokenHolder) Set(t Tokens) {
	h.mu.Lock()
	h.tokens = t
	h.mu.Unlock()
}

func (h *TokenHolder) Clear() {
	h.Set(Tokens{})
}
