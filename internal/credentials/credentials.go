// Package credentials holds the CS access/refresh token pair.
package credentials

import (
	"sync"

	"leviosa/internal/localstore"
	"leviosa/internal/logging"
)

const (
	AccessTokenKey  = "leviosa_cs_access_token"
	RefreshTokenKey = "leviosa_cs_refresh_token"
)

// TokenPair is the credential pair issued by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// Store reads and writes the token pair. A Store over a nil area reports
// every token absent and ignores writes.
type Store struct {
	mu sync.RWMutex
	kv localstore.KV
}

// NewStore wraps a key-value area. kv may be nil.
func NewStore(kv localstore.KV) *Store {
	return &Store{kv: kv}
}

func (s *Store) get(key string) (string, bool) {
	if s == nil || s.kv == nil {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok, err := s.kv.Get(key)
	if err != nil {
		logging.AuthWarn("credential read failed for %s: %v", key, err)
		return "", false
	}
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// AccessToken returns the stored access token.
func (s *Store) AccessToken() (string, bool) {
	return s.get(AccessTokenKey)
}

// RefreshToken returns the stored refresh token.
func (s *Store) RefreshToken() (string, bool) {
	return s.get(RefreshTokenKey)
}

// SetTokens replaces both tokens in one write.
func (s *Store) SetTokens(pair TokenPair) {
	if s == nil || s.kv == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.kv.SetMany(map[string]string{
		AccessTokenKey:  pair.AccessToken,
		RefreshTokenKey: pair.RefreshToken,
	})
	if err != nil {
		logging.AuthWarn("failed to persist credentials: %v", err)
	}
}

// ClearTokens removes both tokens. Safe to call repeatedly.
func (s *Store) ClearTokens() {
	if s == nil || s.kv == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Remove(AccessTokenKey, RefreshTokenKey); err != nil {
		logging.AuthWarn("failed to clear credentials: %v", err)
	}
}

// HasAccessToken reports whether an access token is stored.
func (s *Store) HasAccessToken() bool {
	_, ok := s.AccessToken()
	return ok
}
