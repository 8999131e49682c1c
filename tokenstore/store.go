// Package tokenstore persists the access token, refresh token and user snapshot of one portal
// session. The three values are written and removed together.
package tokenstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jrsteele09/go-erp-portal/internal/errors"
	"github.com/jrsteele09/go-erp-portal/token"
	"github.com/jrsteele09/go-erp-portal/users"
	"github.com/rs/zerolog/log"
)

// Fixed keys inside a session namespace.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyUser         = "user"

	// Ephemeral session-scoped keys, removed by ClearAuthData.
	KeyReturnTo    = "returnTo"
	KeySSOState    = "ssoState"
	KeySSONonce    = "ssoNonce"
	KeySSOVerifier = "ssoVerifier"
)

var authKeys = []string{KeyAccessToken, KeyRefreshToken, KeyUser}

var ephemeralKeys = []string{KeyReturnTo, KeySSOState, KeySSONonce, KeySSOVerifier}

// Backend is the key-value storage behind a Store. SetAll and DeleteAll must apply to every key
// or to none.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetAll(ctx context.Context, values map[string]string, ttl time.Duration) error
	DeleteAll(ctx context.Context, keys ...string) error
}

// Store is the token store of one portal session.
type Store struct {
	backend   Backend
	namespace string
	ttl       time.Duration
}

// New returns a Store whose keys live under namespace. ttl bounds how long the values survive
// in the backend; zero means no expiry.
func New(backend Backend, namespace string, ttl time.Duration) *Store {
	return &Store{backend: backend, namespace: namespace, ttl: ttl}
}

// Detached returns a Store with no storage attached. Reads return zero values, writes are dropped.
func Detached() *Store {
	return &Store{}
}

// Attached reports whether the store has a backend.
func (s *Store) Attached() bool {
	return s != nil && s.backend != nil
}

func (s *Store) key(name string) string {
	if s.namespace == "" {
		return name
	}
	return s.namespace + ":" + name
}

func (s *Store) get(ctx context.Context, name string) string {
	if !s.Attached() {
		return ""
	}
	v, ok, err := s.backend.Get(ctx, s.key(name))
	if err != nil {
		log.Err(err).Str("key", name).Msg("token store read failed")
		return ""
	}
	if !ok {
		return ""
	}
	return v
}

func (s *Store) GetAccessToken(ctx context.Context) string {
	return s.get(ctx, KeyAccessToken)
}

func (s *Store) GetRefreshToken(ctx context.Context) string {
	return s.get(ctx, KeyRefreshToken)
}

// GetUser returns the cached profile, or nil when absent or unreadable.
func (s *Store) GetUser(ctx context.Context) *users.UserProfile {
	raw := s.get(ctx, KeyUser)
	if raw == "" {
		return nil
	}
	var u users.UserProfile
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		log.Err(err).Msg("token store holds an unreadable user snapshot")
		return nil
	}
	u = u.Normalized()
	return &u
}

// SetAuthData is the only write path for credentials: tokens and user are stored as a unit.
func (s *Store) SetAuthData(ctx context.Context, pair token.Pair, user users.UserProfile) error {
	if !s.Attached() {
		return nil
	}
	if pair.AccessToken == "" {
		return errors.Wrapf(errors.ErrInvalidToken, "[Store SetAuthData] access token is required")
	}
	raw, err := json.Marshal(user.Normalized())
	if err != nil {
		return errors.Wrapf(err, "[Store SetAuthData] marshal user")
	}
	values := map[string]string{
		s.key(KeyAccessToken):  pair.AccessToken,
		s.key(KeyRefreshToken): pair.RefreshToken,
		s.key(KeyUser):         string(raw),
	}
	if err := s.backend.SetAll(ctx, values, s.ttl); err != nil {
		return errors.Wrapf(err, "[Store SetAuthData]")
	}
	return nil
}

// ClearAuthData removes the credentials and every ephemeral session value. Clearing an empty
// store succeeds.
func (s *Store) ClearAuthData(ctx context.Context) error {
	if !s.Attached() {
		return nil
	}
	keys := make([]string, 0, len(authKeys)+len(ephemeralKeys))
	for _, k := range authKeys {
		keys = append(keys, s.key(k))
	}
	for _, k := range ephemeralKeys {
		keys = append(keys, s.key(k))
	}
	if err := s.backend.DeleteAll(ctx, keys...); err != nil {
		return errors.Wrapf(err, "[Store ClearAuthData]")
	}
	return nil
}

// IsAuthenticated reports whether an access token and a user snapshot are both present.
// Expiry is not checked here; see token.IsTokenExpired.
func (s *Store) IsAuthenticated(ctx context.Context) bool {
	return s.GetAccessToken(ctx) != "" && s.GetUser(ctx) != nil
}

// SetEphemeral stores a session-scoped value such as the post-login return path.
func (s *Store) SetEphemeral(ctx context.Context, name, value string) error {
	if !s.Attached() {
		return nil
	}
	if err := s.backend.SetAll(ctx, map[string]string{s.key(name): value}, s.ttl); err != nil {
		return errors.Wrapf(err, "[Store SetEphemeral] %s", name)
	}
	return nil
}

func (s *Store) GetEphemeral(ctx context.Context, name string) string {
	return s.get(ctx, name)
}

// TakeEphemeral reads and removes a session-scoped value.
func (s *Store) TakeEphemeral(ctx context.Context, name string) string {
	v := s.get(ctx, name)
	if v == "" || !s.Attached() {
		return v
	}
	if err := s.backend.DeleteAll(ctx, s.key(name)); err != nil {
		log.Err(err).Str("key", name).Msg("token store delete failed")
	}
	return v
}
