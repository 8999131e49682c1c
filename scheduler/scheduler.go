// Package scheduler refreshes a session's access token shortly before it expires.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-erp-portal/internal/metrics"
	"github.com/jrsteele09/go-erp-portal/token"
	"github.com/rs/zerolog/log"
)

// DefaultLeadTime is how long before expiry the refresh fires.
const DefaultLeadTime = 60 * time.Second

const defaultRefreshTimeout = 15 * time.Second

// Refresher performs the refresh when the timer fires.
type Refresher interface {
	RefreshAuth(ctx context.Context) error
}

// TokenSource yields the current access token.
type TokenSource interface {
	GetAccessToken(ctx context.Context) string
}

// Timer is the part of *time.Timer the scheduler uses.
type Timer interface {
	Stop() bool
}

// AfterFunc starts a timer that calls f after d.
type AfterFunc func(d time.Duration, f func()) Timer

// Scheduler owns at most one outstanding refresh timer.
type Scheduler struct {
	mu         sync.Mutex
	refresher  Refresher
	tokens     TokenSource
	leadTime   time.Duration
	timeout    time.Duration
	now        func() time.Time
	afterFunc  AfterFunc
	metrics    *metrics.Metrics
	timer      Timer
	generation uint64
	stopped    bool
}

// Option defines a function type to modify the Scheduler instance.
type Option func(*Scheduler)

// WithLeadTime overrides DefaultLeadTime.
func WithLeadTime(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.leadTime = d
		}
	}
}

// WithClock replaces time.Now and time.AfterFunc.
func WithClock(now func() time.Time, afterFunc AfterFunc) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
		if afterFunc != nil {
			s.afterFunc = afterFunc
		}
	}
}

// WithRefreshTimeout bounds each scheduled refresh call.
func WithRefreshTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		s.timeout = d
	}
}

// WithMetrics records scheduled refresh outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// New creates a disarmed scheduler.
func New(refresher Refresher, tokens TokenSource, options ...Option) *Scheduler {
	s := &Scheduler{
		refresher: refresher,
		tokens:    tokens,
		leadTime:  DefaultLeadTime,
		timeout:   defaultRefreshTimeout,
		now:       time.Now,
		afterFunc: func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) },
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Delay returns how long to wait before refreshing a token that expires at exp.
// The second result is false when the refresh point has already passed.
func (s *Scheduler) Delay(exp, now time.Time) (time.Duration, bool) {
	return Delay(exp, now, s.leadTime)
}

// Delay is exp - now - lead; non-positive delays are not scheduled.
func Delay(exp, now time.Time, lead time.Duration) (time.Duration, bool) {
	d := exp.Sub(now) - lead
	if d <= 0 {
		return 0, false
	}
	return d, true
}

// Arm replaces any pending timer with one derived from the stored access token.
// Without a token, or with a token already inside the lead window, the scheduler is left disarmed.
func (s *Scheduler) Arm(ctx context.Context) {
	if s == nil {
		return
	}
	var access string
	if s.tokens != nil {
		access = s.tokens.GetAccessToken(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.cancelLocked()

	if access == "" {
		return
	}
	exp, ok := token.GetTokenExpirationTime(access)
	if !ok {
		return
	}
	d, ok := s.Delay(exp, s.now())
	if !ok {
		log.Debug().Time("exp", exp).Msg("access token inside refresh window, not scheduling")
		return
	}
	gen := s.generation
	s.timer = s.afterFunc(d, func() { s.fire(gen) })
	log.Debug().Dur("in", d).Msg("token refresh scheduled")
}

// Armed reports whether a refresh timer is pending.
func (s *Scheduler) Armed() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Disarm cancels the pending timer but keeps the scheduler usable.
func (s *Scheduler) Disarm() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

// Stop cancels the pending timer. Later Arm calls and fires are no-ops.
func (s *Scheduler) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.stopped = true
}

func (s *Scheduler) cancelLocked() {
	s.generation++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if s.stopped || gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	err := s.refresher.RefreshAuth(ctx)
	s.metrics.Refresh(err)
	if err != nil {
		// The refresher has already logged the session out.
		log.Warn().Err(err).Msg("scheduled token refresh failed")
		return
	}
	s.Arm(ctx)
}
