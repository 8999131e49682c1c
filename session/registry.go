package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-erp-portal/internal/errors"
	"github.com/jrsteele09/go-erp-portal/internal/metrics"
	"github.com/jrsteele09/go-erp-portal/scheduler"
	"github.com/jrsteele09/go-erp-portal/tokenstore"
	"github.com/rs/zerolog/log"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

type entry struct {
	ctrl     *Controller
	lastSeen time.Time
}

// Registry owns one Controller per portal session ID.
type Registry struct {
	api         AuthAPI
	backend     tokenstore.Backend
	storeTTL    time.Duration
	idleTimeout time.Duration
	leadTime    time.Duration
	metrics     *metrics.Metrics
	schedOpts   []scheduler.Option

	mu       sync.Mutex
	sessions map[string]*entry
}

// RegistryOption defines a function type to modify the Registry instance.
type RegistryOption func(*Registry)

// WithStoreTTL bounds how long a session's tokens live in the backend.
func WithStoreTTL(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.storeTTL = d
	}
}

// WithIdleTimeout enables eviction of unauthenticated sessions not seen for d.
func WithIdleTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.idleTimeout = d
	}
}

// WithRefreshLeadTime sets how early scheduled refreshes fire.
func WithRefreshLeadTime(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.leadTime = d
	}
}

// WithRegistryMetrics records open sessions and action outcomes.
func WithRegistryMetrics(m *metrics.Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithSchedulerOptions passes extra options to every session's scheduler.
func WithSchedulerOptions(opts ...scheduler.Option) RegistryOption {
	return func(r *Registry) {
		r.schedOpts = append(r.schedOpts, opts...)
	}
}

// NewRegistry creates an empty registry whose sessions store tokens in backend.
func NewRegistry(api AuthAPI, backend tokenstore.Backend, options ...RegistryOption) *Registry {
	r := &Registry{
		api:      api,
		backend:  backend,
		leadTime: scheduler.DefaultLeadTime,
		sessions: make(map[string]*entry),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Open returns the controller for id, creating it when needed. An empty or malformed id gets a
// fresh session ID. A new controller restores any tokens already in the backend under id.
func (r *Registry) Open(ctx context.Context, id string) (string, *Controller) {
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}

	r.mu.Lock()
	if e, ok := r.sessions[id]; ok {
		e.lastSeen = NowTimeFunc()
		r.mu.Unlock()
		return id, e.ctrl
	}
	ctrl := r.newController(id)
	r.sessions[id] = &entry{ctrl: ctrl, lastSeen: NowTimeFunc()}
	r.mu.Unlock()

	r.metrics.SessionOpened()
	if ctrl.Restore(ctx) {
		log.Debug().Str("session", id).Msg("restored session from token store")
	}
	return id, ctrl
}

func (r *Registry) newController(id string) *Controller {
	store := tokenstore.New(r.backend, id, r.storeTTL)
	ctrl := NewController(r.api, store, WithMetrics(r.metrics))
	opts := append([]scheduler.Option{
		scheduler.WithLeadTime(r.leadTime),
		scheduler.WithMetrics(r.metrics),
	}, r.schedOpts...)
	ctrl.SetScheduler(scheduler.New(ctrl, store, opts...))
	return ctrl
}

// Get returns the controller for an open session.
func (r *Registry) Get(id string) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrSessionNotFound, "[Registry Get] %s", id)
	}
	e.lastSeen = NowTimeFunc()
	return e.ctrl, nil
}

// Close stops the session's scheduler and forgets it. Stored tokens are kept.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return errors.Wrapf(errors.ErrSessionNotFound, "[Registry Close] %s", id)
	}
	e.ctrl.Close()
	r.metrics.SessionClosed()
	return nil
}

// CloseAll closes every open session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()
	for _, e := range all {
		e.ctrl.Close()
		r.metrics.SessionClosed()
	}
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// LeadTime is how long before expiry each session's tokens are refreshed.
func (r *Registry) LeadTime() time.Duration {
	return r.leadTime
}

// EvictIdle closes unauthenticated sessions not seen since the idle timeout and returns how
// many were closed.
func (r *Registry) EvictIdle(ctx context.Context) int {
	if r.idleTimeout <= 0 {
		return 0
	}
	cutoff := NowTimeFunc().Add(-r.idleTimeout)

	r.mu.Lock()
	var idle []string
	for id, e := range r.sessions {
		if e.lastSeen.Before(cutoff) {
			idle = append(idle, id)
		}
	}
	r.mu.Unlock()

	evicted := 0
	for _, id := range idle {
		ctrl, err := r.peek(id)
		if err != nil || ctrl.Store().IsAuthenticated(ctx) {
			continue
		}
		if r.Close(id) == nil {
			evicted++
		}
	}
	return evicted
}

func (r *Registry) peek(id string) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, errors.ErrSessionNotFound
	}
	return e.ctrl, nil
}

// RunEviction calls EvictIdle every interval until ctx is done.
func (r *Registry) RunEviction(ctx context.Context, interval time.Duration) {
	if r.idleTimeout <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.EvictIdle(ctx); n > 0 {
				log.Debug().Int("evicted", n).Msg("closed idle sessions")
			}
		}
	}
}
