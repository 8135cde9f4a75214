// Package memory is an in-process shopguard.UserProvider for tests, demos and
// single-node deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yldrmabdullah/shopguard"
	"github.com/yldrmabdullah/shopguard/clock"
)

var _ shopguard.UserProvider = (*Store)(nil)

// Store keeps accounts in maps guarded by one RWMutex. Emails are stored as
// given; the engine hands over sanitized, lower-cased addresses.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]*shopguard.UserRecord
	byEmail map[string]string
	clock   clock.Clock
}

// New returns an empty Store. A nil clock selects the system clock.
func New(clk clock.Clock) *Store {
	return &Store{
		byID:    make(map[string]*shopguard.UserRecord),
		byEmail: make(map[string]string),
		clock:   clock.Or(clk),
	}
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (shopguard.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return shopguard.UserRecord{}, shopguard.ErrUserNotFound
	}
	return *s.byID[id], nil
}

func (s *Store) GetUserByID(_ context.Context, userID string) (shopguard.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[userID]
	if !ok {
		return shopguard.UserRecord{}, shopguard.ErrUserNotFound
	}
	return *u, nil
}

// CreateUser assigns a random UUID and marks the account active.
func (s *Store) CreateUser(_ context.Context, in shopguard.CreateUserInput) (shopguard.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[in.Email]; ok {
		return shopguard.UserRecord{}, shopguard.ErrAccountExists
	}
	u := &shopguard.UserRecord{
		UserID:       uuid.NewString(),
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: in.PasswordHash,
		Active:       true,
		CreatedAt:    s.clock.Now().UTC(),
	}
	s.byID[u.UserID] = u
	s.byEmail[u.Email] = u.UserID
	return *u, nil
}

func (s *Store) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return shopguard.ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (s *Store) RecordLogin(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return shopguard.ErrUserNotFound
	}
	u.LastLogin = at.UTC()
	return nil
}

// SetActive enables or disables an account.
func (s *Store) SetActive(userID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return shopguard.ErrUserNotFound
	}
	u.Active = active
	return nil
}

// Len returns the number of accounts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
