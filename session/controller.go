// Package session holds the auth state machine of one portal session and the registry of all
// open sessions.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-erp-portal/authapi"
	"github.com/jrsteele09/go-erp-portal/internal/errors"
	"github.com/jrsteele09/go-erp-portal/internal/metrics"
	"github.com/jrsteele09/go-erp-portal/scheduler"
	"github.com/jrsteele09/go-erp-portal/token"
	"github.com/jrsteele09/go-erp-portal/tokenstore"
	"github.com/jrsteele09/go-erp-portal/users"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Action names used for logging and metrics.
const (
	ActionCheckAuth = "check_auth"
	ActionLogin     = "login"
	ActionLogout    = "logout"
	ActionRegister  = "register"
	ActionRefresh   = "refresh"
)

// AuthAPI is the part of the external Auth API the controller drives.
type AuthAPI interface {
	Login(ctx context.Context, req authapi.LoginRequest) (*authapi.AuthResponse, error)
	Register(ctx context.Context, req authapi.RegisterRequest) error
	Refresh(ctx context.Context, refreshToken string) (*authapi.AuthResponse, error)
	Me(ctx context.Context, accessToken string) (*users.UserProfile, error)
	Logout(ctx context.Context, accessToken string) error
}

// Scheduler is re-armed after every token change and stopped when the session closes.
type Scheduler interface {
	Arm(ctx context.Context)
	Disarm()
	Stop()
}

// Status is the coarse state derived from a State.
type Status string

const (
	StatusUnauthenticated Status = "unauthenticated"
	StatusLoading         Status = "loading"
	StatusAuthenticated   Status = "authenticated"
	StatusError           Status = "error"
)

// State is a snapshot of the session. IsAuthenticated is true exactly when User is set.
type State struct {
	User            *users.UserProfile `json:"user"`
	IsAuthenticated bool               `json:"isAuthenticated"`
	IsLoading       bool               `json:"isLoading"`
	Error           string             `json:"error,omitempty"`
}

// Status reports the state machine position.
func (s State) Status() Status {
	switch {
	case s.IsLoading:
		return StatusLoading
	case s.Error != "":
		return StatusError
	case s.IsAuthenticated:
		return StatusAuthenticated
	}
	return StatusUnauthenticated
}

func authenticated(u users.UserProfile) State {
	return State{User: &u, IsAuthenticated: true}
}

// Controller is the auth state machine of one portal session.
type Controller struct {
	api     AuthAPI
	store   *tokenstore.Store
	sched   Scheduler
	metrics *metrics.Metrics

	mu    sync.RWMutex
	state State

	// mutate serialises the actions that write the token store.
	mutate    sync.Mutex
	refreshes singleflight.Group
}

// ControllerOption defines a function type to modify the Controller instance.
type ControllerOption func(*Controller)

// WithMetrics records action outcomes.
func WithMetrics(m *metrics.Metrics) ControllerOption {
	return func(c *Controller) {
		c.metrics = m
	}
}

// NewController creates an unauthenticated controller backed by store.
// A nil store behaves like a detached one.
func NewController(api AuthAPI, store *tokenstore.Store, options ...ControllerOption) *Controller {
	if store == nil {
		store = tokenstore.Detached()
	}
	c := &Controller{api: api, store: store}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// SetScheduler attaches the refresh scheduler.
func (c *Controller) SetScheduler(s Scheduler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sched = s
}

func (c *Controller) scheduler() Scheduler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sched
}

func (c *Controller) arm(ctx context.Context) {
	if s := c.scheduler(); s != nil {
		s.Arm(ctx)
	}
}

func (c *Controller) disarm() {
	if s := c.scheduler(); s != nil {
		s.Disarm()
	}
}

// Store returns the token store of this session.
func (c *Controller) Store() *tokenstore.Store {
	return c.store
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.state
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *Controller) update(f func(*State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f(&c.state)
}

func (c *Controller) startLoading() {
	c.update(func(s *State) {
		s.IsLoading = true
		s.Error = ""
	})
}

func (c *Controller) fail(err error) {
	c.setState(State{Error: authapi.UserMessage(err)})
}

// Restore trusts a stored token and user without calling the Auth API. It reports whether the
// session came back authenticated.
func (c *Controller) Restore(ctx context.Context) bool {
	c.mutate.Lock()
	defer c.mutate.Unlock()

	user := c.store.GetUser(ctx)
	if user == nil || c.store.GetAccessToken(ctx) == "" {
		c.setState(State{})
		return false
	}
	c.setState(authenticated(*user))
	c.arm(ctx)
	return true
}

// CheckAuth confirms the stored token with the Auth API. Failures leave the session
// unauthenticated without an error message.
func (c *Controller) CheckAuth(ctx context.Context) {
	c.mutate.Lock()
	defer c.mutate.Unlock()

	access := c.store.GetAccessToken(ctx)
	if access == "" || !token.IsTokenValid(access) {
		c.setState(State{})
		c.metrics.AuthAction(ActionCheckAuth, errors.ErrInvalidToken)
		return
	}

	c.update(func(s *State) { s.IsLoading = true })
	profile, err := c.api.Me(ctx, access)
	c.metrics.AuthAction(ActionCheckAuth, err)
	if err != nil {
		if authapi.IsUnauthorized(err) {
			log.Info().Msg("stored token rejected by auth api, logging out")
			c.logoutLocked(ctx)
			return
		}
		log.Debug().Err(err).Msg("session check failed")
		c.setState(State{})
		return
	}

	pair := token.Pair{AccessToken: access, RefreshToken: c.store.GetRefreshToken(ctx)}
	if err := c.store.SetAuthData(ctx, pair, *profile); err != nil {
		log.Err(err).Msg("failed to persist refreshed profile")
	}
	c.setState(authenticated(profile.Normalized()))
	c.arm(ctx)
}

// Login authenticates with username and password. On failure the session carries a
// human-readable error and the error is returned.
func (c *Controller) Login(ctx context.Context, username, password string) (users.UserProfile, error) {
	c.mutate.Lock()
	defer c.mutate.Unlock()

	c.startLoading()
	user, err := c.login(ctx, authapi.LoginRequest{Username: username, Password: password})
	c.metrics.AuthAction(ActionLogin, err)
	if err != nil {
		log.Info().Err(err).Str("username", username).Msg("login failed")
		// a failed attempt also ends any earlier session held by this controller
		c.logoutLocked(ctx)
		c.fail(err)
		return users.UserProfile{}, err
	}
	c.setState(authenticated(user))
	c.arm(ctx)
	return user, nil
}

func (c *Controller) login(ctx context.Context, req authapi.LoginRequest) (users.UserProfile, error) {
	if err := req.Validate(); err != nil {
		return users.UserProfile{}, err
	}
	resp, err := c.api.Login(ctx, req)
	if err != nil {
		return users.UserProfile{}, err
	}
	return c.persist(ctx, resp, "")
}

// Authenticate stores credentials obtained outside the Auth API login endpoint, such as an
// SSO exchange.
func (c *Controller) Authenticate(ctx context.Context, pair token.Pair, user users.UserProfile) error {
	c.mutate.Lock()
	defer c.mutate.Unlock()

	resp := &authapi.AuthResponse{User: &user, AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}
	persisted, err := c.persist(ctx, resp, "")
	c.metrics.AuthAction(ActionLogin, err)
	if err != nil {
		c.fail(err)
		return err
	}
	c.setState(authenticated(persisted))
	c.arm(ctx)
	return nil
}

// persist writes a login or refresh response to the store. previousRefresh is kept when the
// response does not rotate the refresh token.
func (c *Controller) persist(ctx context.Context, resp *authapi.AuthResponse, previousRefresh string) (users.UserProfile, error) {
	if !resp.Complete() {
		return users.UserProfile{}, errors.Wrapf(errors.ErrIncompleteResponse, "[Controller persist] missing user or access token")
	}
	pair := resp.Pair()
	if pair.RefreshToken == "" {
		pair.RefreshToken = previousRefresh
	}
	user := resp.User.Normalized()
	if err := c.store.SetAuthData(ctx, pair, user); err != nil {
		if clearErr := c.store.ClearAuthData(ctx); clearErr != nil {
			log.Err(clearErr).Msg("failed to clear partially written session")
		}
		return users.UserProfile{}, errors.Wrapf(err, "[Controller persist]")
	}
	return user, nil
}

// Logout ends the session. The Auth API call is best effort; local state is always cleared.
func (c *Controller) Logout(ctx context.Context) {
	c.mutate.Lock()
	defer c.mutate.Unlock()
	c.logoutLocked(ctx)
	c.metrics.AuthAction(ActionLogout, nil)
}

func (c *Controller) logoutLocked(ctx context.Context) {
	if access := c.store.GetAccessToken(ctx); access != "" {
		if err := c.api.Logout(ctx, access); err != nil {
			log.Warn().Err(err).Msg("auth api logout failed, clearing local session anyway")
		}
	}
	if err := c.store.ClearAuthData(ctx); err != nil {
		log.Err(err).Msg("failed to clear token store")
	}
	c.disarm()
	c.setState(State{})
}

// Register creates an account without signing in. The error is recorded in the session and
// returned.
func (c *Controller) Register(ctx context.Context, req authapi.RegisterRequest) error {
	c.startLoading()

	req = req.Normalize()
	err := req.Validate()
	if err == nil {
		err = c.api.Register(ctx, req)
	}
	c.metrics.AuthAction(ActionRegister, err)
	if err != nil {
		log.Info().Err(err).Str("username", req.Username).Msg("registration failed")
		c.update(func(s *State) {
			s.IsLoading = false
			s.Error = authapi.UserMessage(err)
		})
		return err
	}
	c.update(func(s *State) { s.IsLoading = false })
	return nil
}

// RefreshAuth trades the stored refresh token for a new pair. Any failure logs the session out.
// Concurrent calls share one Auth API request.
func (c *Controller) RefreshAuth(ctx context.Context) error {
	_, err, _ := c.refreshes.Do(ActionRefresh, func() (any, error) {
		c.mutate.Lock()
		defer c.mutate.Unlock()
		return nil, c.refreshLocked(ctx)
	})
	c.metrics.AuthAction(ActionRefresh, err)
	return err
}

func (c *Controller) refreshLocked(ctx context.Context) error {
	refreshToken := c.store.GetRefreshToken(ctx)
	if refreshToken == "" {
		c.logoutLocked(ctx)
		return errors.ErrNoRefreshToken
	}

	resp, err := c.api.Refresh(ctx, refreshToken)
	if err == nil {
		var user users.UserProfile
		if user, err = c.persist(ctx, resp, refreshToken); err == nil {
			c.setState(authenticated(user))
			c.arm(ctx)
			return nil
		}
	}

	log.Info().Err(err).Msg("token refresh failed, logging out")
	c.logoutLocked(ctx)
	if authapi.IsUnauthorized(err) {
		return errors.Wrapf(errors.ErrInvalidRefreshToken, "[Controller RefreshAuth] %v", err)
	}
	return errors.Wrapf(err, "[Controller RefreshAuth]")
}

// EnsureFresh refreshes synchronously when the stored access token has expired, has no
// readable expiry, or is inside the lead window. A session without credentials is left alone;
// a failed refresh logs the session out like RefreshAuth.
func (c *Controller) EnsureFresh(ctx context.Context, lead time.Duration) error {
	access := c.store.GetAccessToken(ctx)
	if access == "" {
		return nil
	}
	if exp, ok := token.GetTokenExpirationTime(access); ok {
		if _, later := scheduler.Delay(exp, token.NowTimeFunc(), lead); later {
			return nil
		}
	}
	log.Debug().Msg("access token inside the refresh window, refreshing before the request")
	return c.RefreshAuth(ctx)
}

// Close stops the refresh timer. The stored tokens are left in place.
func (c *Controller) Close() {
	if s := c.scheduler(); s != nil {
		s.Stop()
	}
}
