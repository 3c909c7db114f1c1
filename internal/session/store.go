// Package session owns the upstream session: the current access token, the
// exchange token used to mint new ones, persistence of both, and the
// refresh flow.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zcc135820/imagebridge/internal/token"
)

// cacheRecord is the persisted shape of the session cache.
type cacheRecord struct {
	AccessToken   string `json:"accessToken,omitempty"`
	ExchangeToken string `json:"exchangeToken,omitempty"`
	SavedAt       string `json:"savedAt,omitempty"`
}

// Store holds the mutable session state. It is constructed once at startup
// and passed by reference to every consumer; all access goes through the
// internal lock.
type Store struct {
	mu            sync.RWMutex
	persist       PersistStore
	accessToken   string
	exchangeToken string
}

// Info is a read-only snapshot of the session, safe to serve verbatim.
type Info struct {
	Valid          bool    `json:"valid"`
	Subject        string  `json:"subject,omitempty"`
	ClientID       string  `json:"clientId,omitempty"`
	ExpiresAt      string  `json:"expiresAt,omitempty"`
	ExpiresInDays  float64 `json:"expiresInDays,omitempty"`
	ExpiresInHours float64 `json:"expiresInHours,omitempty"`
	NeedsRefresh   bool    `json:"needsRefresh"`
	Error          string  `json:"error,omitempty"`
}

// NewStore creates an empty session store backed by the given persistence.
func NewStore(persist PersistStore) *Store {
	return &Store{persist: persist}
}

// Seed fills in tokens from the environment. Seeded values do not persist;
// a later Load overrides them when the cache holds non-empty values.
func (s *Store) Seed(accessToken, exchangeToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if accessToken != "" {
		s.accessToken = accessToken
	}
	if exchangeToken != "" {
		s.exchangeToken = exchangeToken
	}
}

// Load reads the persisted cache. Read or parse failures degrade to "no
// cache"; they are logged, never propagated.
func (s *Store) Load(ctx context.Context) {
	if s.persist == nil {
		return
	}
	data, err := s.persist.Load(ctx)
	if err != nil {
		log.Warnf("session cache read failed, continuing without cache: %v", err)
		return
	}
	if len(data) == 0 {
		return
	}
	var record cacheRecord
	if err = json.Unmarshal(data, &record); err != nil {
		log.Warnf("session cache parse failed, continuing without cache: %v", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.AccessToken != "" {
		s.accessToken = record.AccessToken
	}
	if record.ExchangeToken != "" {
		s.exchangeToken = record.ExchangeToken
	}
}

// save persists the current state. Callers must hold the write lock.
func (s *Store) saveLocked(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	record := cacheRecord{
		AccessToken:   s.accessToken,
		ExchangeToken: s.exchangeToken,
		SavedAt:       time.Now().Format(time.RFC3339),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("session: marshal cache failed: %w", err)
	}
	return s.persist.Save(ctx, data)
}

// SetAccessToken updates the access token and persists the cache.
func (s *Store) SetAccessToken(ctx context.Context, tok string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = tok
	return s.saveLocked(ctx)
}

// SetExchangeToken updates the exchange token and persists the cache.
func (s *Store) SetExchangeToken(ctx context.Context, tok string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exchangeToken = tok
	return s.saveLocked(ctx)
}

// AccessToken returns the current access token, empty when none is set.
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// ExchangeToken returns the current exchange token.
func (s *Store) ExchangeToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exchangeToken
}

// Info returns a snapshot describing the current session. It never fails;
// an absent or undecodable token yields {valid:false, error}.
func (s *Store) Info() Info {
	tok := s.AccessToken()
	if tok == "" {
		return Info{Valid: false, NeedsRefresh: true, Error: "no access token configured"}
	}
	claims, err := token.Decode(tok)
	if err != nil {
		return Info{Valid: false, NeedsRefresh: true, Error: err.Error()}
	}
	expire := claims.ExpireTime()
	remaining := time.Until(expire)
	return Info{
		Valid:          remaining > 0,
		Subject:        claims.Subject,
		ClientID:       claims.ClientID,
		ExpiresAt:      expire.Format(time.RFC3339),
		ExpiresInDays:  remaining.Hours() / 24,
		ExpiresInHours: remaining.Hours(),
		NeedsRefresh:   token.NeedsRefresh(tok),
	}
}
