package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"
)

var (
	ErrInvalidSessionToken = errors.New("session token is invalid")
	ErrExpiredSessionToken = errors.New("token is expired")
)

// A session token bridges the two halves of an OTP login: it is issued after
// the password check and redeemed by the code verification. It only needs to
// outlive one login attempt.
const defaultSessionTokenDuration = 5 * time.Minute

type SessionManagerInterface interface {
	VerifySessionToken(sessionToken string) (string, error)
	DeleteSessionToken(sessionToken string)
	StartSessionTokenCleanup(interval time.Duration)
	GenerateSessionToken(userID string, duration time.Duration) (string, error)
}

type pendingLogin struct {
	userID    string
	expiresAt time.Time
}

// SessionManager keeps pending OTP logins in memory. Tokens are single-node
// state; a restart just forces the user to log in again.
type SessionManager struct {
	mu      sync.RWMutex
	pending map[string]pendingLogin
}

func NewSessionManager() SessionManagerInterface {
	return &SessionManager{
		pending: make(map[string]pendingLogin),
	}
}

func (sm *SessionManager) GenerateSessionToken(userID string, duration time.Duration) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	token := hex.EncodeToString(raw)

	sm.mu.Lock()
	sm.pending[token] = pendingLogin{
		userID:    userID,
		expiresAt: time.Now().Add(duration),
	}
	sm.mu.Unlock()
	return token, nil
}

func (sm *SessionManager) VerifySessionToken(sessionToken string) (string, error) {
	sm.mu.RLock()
	login, exists := sm.pending[sessionToken]
	sm.mu.RUnlock()

	if !exists {
		return "", ErrInvalidSessionToken
	}
	if time.Now().After(login.expiresAt) {
		return "", ErrExpiredSessionToken
	}
	return login.userID, nil
}

func (sm *SessionManager) DeleteSessionToken(sessionToken string) {
	sm.mu.Lock()
	delete(sm.pending, sessionToken)
	sm.mu.Unlock()
}

// StartSessionTokenCleanup sweeps expired tokens so abandoned login attempts
// do not accumulate.
func (sm *SessionManager) StartSessionTokenCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for range ticker.C {
			sm.purgeExpired(time.Now())
		}
	}()
}

func (sm *SessionManager) purgeExpired(now time.Time) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for token, login := range sm.pending {
		if now.After(login.expiresAt) {
			delete(sm.pending, token)
		}
	}
}
