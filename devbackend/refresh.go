package devbackend

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-erp-portal/internal/errors"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// StoredRefreshToken is the server-side record of an issued refresh token.
type StoredRefreshToken struct {
	Token  string
	UserID string
	Iat    time.Time
}

// RefreshTokens issues opaque refresh tokens, one per user, rotated on every use.
type RefreshTokens struct {
	tokens  map[string]*StoredRefreshToken
	userIDs map[string]string // user ID to token
	length  int
	expiry  time.Duration
	lock    sync.Mutex
}

func NewRefreshTokens(length int, expiry time.Duration) *RefreshTokens {
	return &RefreshTokens{
		tokens:  make(map[string]*StoredRefreshToken),
		userIDs: make(map[string]string),
		length:  length,
		expiry:  expiry,
	}
}

// Create replaces any existing refresh token of userID with a new one.
func (m *RefreshTokens) Create(userID string) (string, error) {
	tokenBytes := make([]byte, m.length)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	tokenStr := hex.EncodeToString(tokenBytes)

	m.lock.Lock()
	defer m.lock.Unlock()
	m.deleteUserLocked(userID)
	m.tokens[tokenStr] = &StoredRefreshToken{Token: tokenStr, UserID: userID, Iat: NowTimeFunc()}
	m.userIDs[userID] = tokenStr
	return tokenStr, nil
}

// Consume validates and removes token, returning its user.
func (m *RefreshTokens) Consume(token string) (string, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	rt, ok := m.tokens[token]
	if !ok {
		return "", errors.ErrInvalidRefreshToken
	}
	m.deleteUserLocked(rt.UserID)
	if m.expiry > 0 && NowTimeFunc().Sub(rt.Iat) > m.expiry {
		return "", errors.Wrapf(errors.ErrInvalidRefreshToken, "[RefreshTokens Consume] expired")
	}
	return rt.UserID, nil
}

// Revoke deletes the refresh token of userID, if any.
func (m *RefreshTokens) Revoke(userID string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.deleteUserLocked(userID)
}

func (m *RefreshTokens) deleteUserLocked(userID string) {
	if tok, ok := m.userIDs[userID]; ok {
		delete(m.tokens, tok)
		delete(m.userIDs, userID)
	}
}

// RevokedTokens remembers logged-out access tokens until they expire.
type RevokedTokens struct {
	revoked map[string]time.Time
	mu      sync.RWMutex
}

func NewRevokedTokens() *RevokedTokens {
	return &RevokedTokens{revoked: make(map[string]time.Time)}
}

func (c *RevokedTokens) Add(jti string, exp time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revoked[jti] = exp
}

func (c *RevokedTokens) IsRevoked(jti string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.revoked[jti]
	return exists
}

// Cleanup drops entries whose token has expired anyway.
func (c *RevokedTokens) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := NowTimeFunc()
	for jti, exp := range c.revoked {
		if now.After(exp) {
			delete(c.revoked, jti)
		}
	}
}
