package client

import (
	"sync"
)

// sessionTokens remembers the latest session token per container so reads
// observe this client's own writes under Session consistency.
type sessionTokens struct {
	enabled bool

	mutex  sync.RWMutex
	tokens map[string]string
}

func newSessionTokens(enabled bool) *sessionTokens {
	return &sessionTokens{enabled: enabled, tokens: make(map[string]string)}
}

func (s *sessionTokens) get(link string) string {
	if s == nil || !s.enabled {
		return ""
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.tokens[link]
}

func (s *sessionTokens) set(link, token string) {
	if s == nil || !s.enabled || token == "" {
		return
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.tokens[link] = token
}
