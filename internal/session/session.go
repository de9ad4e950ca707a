// Package session implements the server-side session store backing login
// state. Sessions are process-local: the relational store remains the source
// of truth for anything needing cross-process consistency.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Session is the per-browser authentication state. PendingTwoFactor marks a
// login that passed the password check but still owes a two-factor code; it
// is the only auth state that lives here rather than on the user record.
type Session struct {
	UserID           int64
	PendingTwoFactor bool
	ExpiresAt        time.Time
}

// Manager stores active sessions keyed by opaque token.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
}

// NewManager creates a session manager with the given session lifetime.
func NewManager(ttl time.Duration) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}
}

// Create establishes a new session and returns its token. pending marks the
// session as awaiting two-factor verification.
func (m *Manager) Create(userID int64, pending bool) (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	token := hex.EncodeToString(tokenBytes)

	m.mu.Lock()
	m.sessions[token] = &Session{
		UserID:           userID,
		PendingTwoFactor: pending,
		ExpiresAt:        time.Now().Add(m.ttl),
	}
	m.mu.Unlock()

	return token, nil
}

// Get returns the session for a token, or false if the token is unknown or
// expired. Expiry is checked lazily; expired entries are dropped on read.
func (m *Manager) Get(token string) (*Session, bool) {
	m.mu.RLock()
	sess, ok := m.sessions[token]
	m.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if time.Now().After(sess.ExpiresAt) {
		m.mu.Lock()
		delete(m.sessions, token)
		m.mu.Unlock()
		return nil, false
	}

	copied := *sess
	return &copied, true
}

// Promote clears the pending-2FA marker after a successful code verification.
// Returns false if the token does not reference a live pending session.
func (m *Manager) Promote(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[token]
	if !ok || time.Now().After(sess.ExpiresAt) || !sess.PendingTwoFactor {
		return false
	}

	sess.PendingTwoFactor = false
	return true
}

// Delete destroys a session. Unknown tokens are a no-op.
func (m *Manager) Delete(token string) {
	m.mu.Lock()
	delete(m.sessions, token)
	m.mu.Unlock()
}

// DeleteForUser destroys every session belonging to a user (password reset,
// 2FA disable by admin, and similar credential-changing events).
func (m *Manager) DeleteForUser(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for token, sess := range m.sessions {
		if sess.UserID == userID {
			delete(m.sessions, token)
			deleted++
		}
	}
	return deleted
}

// DeleteExpired sweeps expired sessions; called by the background cleanup.
func (m *Manager) DeleteExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	deleted := 0
	for token, sess := range m.sessions {
		if now.After(sess.ExpiresAt) {
			delete(m.sessions, token)
			deleted++
		}
	}
	return deleted
}
