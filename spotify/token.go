package spotify

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// TokenSet is the access/refresh token bundle issued by the accounts service
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
}

// Store holds the single TokenSet of the process. It is either empty
// (unauthenticated) or holds one TokenSet (authenticated).
type Store struct {
	mu     sync.RWMutex
	tokens *TokenSet
}

// NewStore creates an empty token store
func NewStore() *Store {
	return &Store{}
}

// Get returns a copy of the current TokenSet and whether one is present
func (s *Store) Get() (TokenSet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.tokens == nil {
		return TokenSet{}, false
	}
	return *s.tokens, true
}

// Authenticated reports whether a TokenSet is present
func (s *Store) Authenticated() bool {
	_, ok := s.Get()
	return ok
}

// Set replaces the TokenSet after a successful code exchange
func (s *Store) Set(tokens TokenSet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := tokens
	s.tokens = &t

	log.WithFields(log.Fields{
		"hasAccessToken":  tokens.AccessToken != "",
		"hasRefreshToken": tokens.RefreshToken != "",
		"tokenType":       tokens.TokenType,
		"expiresIn":       tokens.ExpiresIn,
		"scope":           tokens.Scope,
	}).Debug("Token store updated")
}

// UpdateAccessToken replaces only the access token of the stored TokenSet.
// It returns false when there is nothing to update.
func (s *Store) UpdateAccessToken(accessToken string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tokens == nil {
		return false
	}
	s.tokens.AccessToken = accessToken
	log.Debug("Access token replaced after refresh")
	return true
}
