package client

import "errors"

var ErrTokenSpace = errors.New("client: no free rendezvous token")

// TokenTable tracks rendezvous tokens minted by the accepting side. A token
// is pending from Mint until the requester authenticates with it, then
// bound until its channel closes; it is never reissued meanwhile.
type TokenTable struct {
	candidate func() uint32
	attempts  int
	pending   map[uint32]string
	bound     map[uint32]string
}

// NewTokenTable draws candidates from candidate, giving up after attempts
// collisions in a row.
func NewTokenTable(candidate func() uint32, attempts int) *TokenTable {
	if attempts <= 0 {
		attempts = 64
	}
	return &TokenTable{
		candidate: candidate,
		attempts:  attempts,
		pending:   make(map[uint32]string),
		bound:     make(map[uint32]string),
	}
}

func (t *TokenTable) inUse(token uint32) bool {
	_, p := t.pending[token]
	_, b := t.bound[token]
	return p || b
}

// Mint reserves a fresh token for login.
func (t *TokenTable) Mint(login string) (uint32, error) {
	for i := 0; i < t.attempts; i++ {
		token := t.candidate()
		if t.inUse(token) {
			continue
		}
		t.pending[token] = login
		return token, nil
	}
	return 0, ErrTokenSpace
}

// Consume binds token if it is pending for exactly login.
func (t *TokenTable) Consume(token uint32, login string) bool {
	want, ok := t.pending[token]
	if !ok || want != login {
		return false
	}
	delete(t.pending, token)
	t.bound[token] = login
	return true
}

// Release forgets token whether pending or bound.
func (t *TokenTable) Release(token uint32) {
	delete(t.pending, token)
	delete(t.bound, token)
}

// ReleaseLogin drops every pending token minted for login.
func (t *TokenTable) ReleaseLogin(login string) {
	for token, l := range t.pending {
		if l == login {
			delete(t.pending, token)
		}
	}
}

func (t *TokenTable) Pending() int { return len(t.pending) }
func (t *TokenTable) Bound() int   { return len(t.bound) }
