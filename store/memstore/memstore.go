// Package memstore is an in-memory AccountProvider used by tests and local
// development. The conditional-swap semantics match what a production store
// must provide: swaps compare the stored token under the same lock that
// performs the write, so concurrent rotations observe exactly one winner.
package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	authcore "github.com/opsdesk/authcore"
	"github.com/opsdesk/authcore/session"
)

// Store holds accounts keyed by id with an email index.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]*authcore.Account
	byEmail map[string]string
}

// New creates an empty store.
func New() *Store {
	return &Store{
		byID:    make(map[string]*authcore.Account),
		byEmail: make(map[string]string),
	}
}

// Seed inserts an account as-is, allocating an id when absent. Test helper;
// use CreateAccount for duplicate checking.
func (s *Store) Seed(acct authcore.Account) authcore.Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	copied := cloneAccount(&acct)
	s.byID[acct.ID] = &copied
	s.byEmail[normalizeEmail(acct.Email)] = acct.ID
	return acct
}

func (s *Store) GetAccountByEmail(_ context.Context, email string) (authcore.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return authcore.Account{}, authcore.ErrAccountNotFound
	}
	return cloneAccount(s.byID[id]), nil
}

func (s *Store) GetAccountByID(_ context.Context, id string) (authcore.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.byID[id]
	if !ok {
		return authcore.Account{}, authcore.ErrAccountNotFound
	}
	return cloneAccount(acct), nil
}

func (s *Store) CreateAccount(_ context.Context, acct authcore.Account) (authcore.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalizeEmail(acct.Email)
	if _, exists := s.byEmail[key]; exists {
		return authcore.Account{}, authcore.ErrAccountExists
	}

	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	copied := cloneAccount(&acct)
	s.byID[acct.ID] = &copied
	s.byEmail[key] = acct.ID
	return cloneAccount(&copied), nil
}

func (s *Store) AppendSession(_ context.Context, accountID string, sess session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.byID[accountID]
	if !ok {
		return authcore.ErrAccountNotFound
	}
	acct.Sessions = session.Append(session.PruneExpired(acct.Sessions, time.Now()), sess)
	return nil
}

func (s *Store) ReplaceSessions(_ context.Context, accountID string, sessions []session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.byID[accountID]
	if !ok {
		return authcore.ErrAccountNotFound
	}
	acct.Sessions = append([]session.Session(nil), sessions...)
	return nil
}

func (s *Store) SwapSessionToken(_ context.Context, accountID, sessionID, prevToken string, next authcore.SessionUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.byID[accountID]
	if !ok {
		return false, authcore.ErrAccountNotFound
	}

	for i := range acct.Sessions {
		sess := &acct.Sessions[i]
		if sess.ID != sessionID {
			continue
		}
		if sess.RefreshToken != prevToken {
			return false, nil
		}
		sess.RefreshToken = next.RefreshToken
		sess.ExpiresAt = next.ExpiresAt
		sess.LastUsedAt = next.LastUsedAt
		return true, nil
	}
	return false, nil
}

func (s *Store) SwapLegacyToken(_ context.Context, accountID, prevToken, next string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.byID[accountID]
	if !ok {
		return false, authcore.ErrAccountNotFound
	}
	if acct.LegacyRefreshToken != prevToken {
		return false, nil
	}
	acct.LegacyRefreshToken = next
	return true, nil
}

func (s *Store) ClearLegacyToken(_ context.Context, accountID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.byID[accountID]
	if !ok {
		return false, authcore.ErrAccountNotFound
	}
	if acct.LegacyRefreshToken == "" {
		return false, nil
	}
	acct.LegacyRefreshToken = ""
	return true, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cloneAccount(acct *authcore.Account) authcore.Account {
	copied := *acct
	copied.Sessions = append([]session.Session(nil), acct.Sessions...)
	return copied
}
