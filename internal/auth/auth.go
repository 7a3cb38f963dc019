// Package auth answers the two questions the broker asks about logins.
//
// It holds no policy about sessions; the broker decides what a positive or
// negative answer means for a connecting client.
package auth

import (
	"crypto/subtle"
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// Directory is the registered-user database.
type Directory interface {
	// IsRegistered reports whether login exists and password matches.
	IsRegistered(login, password string) bool
	// Exists reports whether login is registered at all.
	Exists(login string) bool
}

// Store is an in-memory Directory of bcrypt password hashes.
type Store struct {
	mu    sync.RWMutex
	users map[string][]byte
}

// NewStore copies creds, a login to bcrypt hash map.
func NewStore(creds map[string][]byte) *Store {
	users := make(map[string][]byte, len(creds))
	for login, hash := range creds {
		users[login] = append([]byte(nil), hash...)
	}
	return &Store{users: users}
}

// Hash returns the bcrypt hash stored for password.
func Hash(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// Put registers or replaces login.
func (s *Store) Put(login string, hash []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[login] = append([]byte(nil), hash...)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

func (s *Store) Exists(login string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[login]
	return ok
}

func (s *Store) IsRegistered(login, password string) bool {
	return s.Check(login, password) == nil
}

// Check compares password against login's hash. An unknown login still
// pays for one bcrypt comparison.
func (s *Store) Check(login, password string) error {
	s.mu.RLock()
	hash, ok := s.users[login]
	s.mu.RUnlock()
	if !ok {
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
		return ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return ErrUnauthorized
	}
	return nil
}

var (
	dummyOnce sync.Once
	dummy     []byte
)

func dummyHash() []byte {
	dummyOnce.Do(func() {
		dummy, _ = bcrypt.GenerateFromPassword([]byte("chathack"), bcrypt.MinCost)
	})
	return dummy
}

// Static is a Directory of plain-text credentials for development and
// tests.
type Static map[string]string

func (s Static) Exists(login string) bool {
	_, ok := s[login]
	return ok
}

func (s Static) IsRegistered(login, password string) bool {
	want, ok := s[login]
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(password)) == 1
}

// Funcs adapts two functions into a Directory.
type Funcs struct {
	Registered func(login, password string) bool
	Known      func(login string) bool
}

func (f Funcs) IsRegistered(login, password string) bool { return f.Registered(login, password) }
func (f Funcs) Exists(login string) bool                 { return f.Known(login) }
