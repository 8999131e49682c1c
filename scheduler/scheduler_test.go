package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-erp-portal/scheduler"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub": "u1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test"))
	require.NoError(t, err)
	return tok
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) afterFunc(d time.Duration, f func()) scheduler.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) last() *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		return nil
	}
	return c.timers[len(c.timers)-1]
}

func (c *fakeClock) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

type tokenSource struct {
	mu  sync.Mutex
	tok string
}

func (s *tokenSource) GetAccessToken(context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tok
}

func (s *tokenSource) set(tok string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok = tok
}

type refresher struct {
	calls int
	next  string
	err   error
	src   *tokenSource
}

func (r *refresher) RefreshAuth(context.Context) error {
	r.calls++
	if r.err != nil {
		r.src.set("")
		return r.err
	}
	r.src.set(r.next)
	return nil
}

func newScheduler(src *tokenSource, r *refresher, clock *fakeClock) *scheduler.Scheduler {
	return scheduler.New(r, src, scheduler.WithClock(func() time.Time { return epoch }, clock.afterFunc))
}

func TestDelay(t *testing.T) {
	d, ok := scheduler.Delay(epoch.Add(5*time.Minute), epoch, scheduler.DefaultLeadTime)
	require.True(t, ok)
	require.Equal(t, int64(240000), d.Milliseconds())

	_, ok = scheduler.Delay(epoch.Add(30*time.Second), epoch, scheduler.DefaultLeadTime)
	require.False(t, ok)

	_, ok = scheduler.Delay(epoch.Add(60*time.Second), epoch, scheduler.DefaultLeadTime)
	require.False(t, ok)

	_, ok = scheduler.Delay(epoch.Add(-time.Hour), epoch, scheduler.DefaultLeadTime)
	require.False(t, ok)
}

func TestArm_SchedulesBeforeExpiry(t *testing.T) {
	clock := &fakeClock{}
	src := &tokenSource{tok: signed(t, epoch.Add(5*time.Minute))}
	s := newScheduler(src, &refresher{src: src}, clock)

	s.Arm(context.Background())
	require.True(t, s.Armed())
	require.Equal(t, 1, clock.count())
	require.Equal(t, 240*time.Second, clock.last().d)
}

func TestArm_ExpiredTokenNotScheduled(t *testing.T) {
	clock := &fakeClock{}
	src := &tokenSource{tok: signed(t, epoch.Add(-time.Minute))}
	s := newScheduler(src, &refresher{src: src}, clock)

	s.Arm(context.Background())
	require.False(t, s.Armed())
	require.Equal(t, 0, clock.count())
}

func TestArm_NoTokenDisarms(t *testing.T) {
	clock := &fakeClock{}
	src := &tokenSource{tok: signed(t, epoch.Add(10*time.Minute))}
	s := newScheduler(src, &refresher{src: src}, clock)

	s.Arm(context.Background())
	first := clock.last()
	src.set("")
	s.Arm(context.Background())
	require.True(t, first.stopped)
	require.False(t, s.Armed())
}

func TestArm_ReplacesPreviousTimer(t *testing.T) {
	clock := &fakeClock{}
	src := &tokenSource{tok: signed(t, epoch.Add(5*time.Minute))}
	r := &refresher{src: src}
	s := newScheduler(src, r, clock)

	s.Arm(context.Background())
	first := clock.last()
	src.set(signed(t, epoch.Add(10*time.Minute)))
	s.Arm(context.Background())

	require.Equal(t, 2, clock.count())
	require.True(t, first.stopped)
	require.Equal(t, 540*time.Second, clock.last().d)

	// A stale timer firing late must not refresh.
	first.f()
	require.Equal(t, 0, r.calls)
}

func TestFire_RefreshesAndRearms(t *testing.T) {
	clock := &fakeClock{}
	src := &tokenSource{tok: signed(t, epoch.Add(5*time.Minute))}
	r := &refresher{src: src, next: signed(t, epoch.Add(15*time.Minute))}
	s := newScheduler(src, r, clock)

	s.Arm(context.Background())
	clock.last().f()

	require.Equal(t, 1, r.calls)
	require.True(t, s.Armed())
	require.Equal(t, 840*time.Second, clock.last().d)
}

func TestFire_FailureLeavesDisarmed(t *testing.T) {
	clock := &fakeClock{}
	src := &tokenSource{tok: signed(t, epoch.Add(5*time.Minute))}
	r := &refresher{src: src, err: errors.New("refresh rejected")}
	s := newScheduler(src, r, clock)

	s.Arm(context.Background())
	clock.last().f()

	require.Equal(t, 1, r.calls)
	require.False(t, s.Armed())
	require.Equal(t, 1, clock.count())
}

func TestStop(t *testing.T) {
	clock := &fakeClock{}
	src := &tokenSource{tok: signed(t, epoch.Add(5*time.Minute))}
	r := &refresher{src: src}
	s := newScheduler(src, r, clock)

	s.Arm(context.Background())
	timer := clock.last()
	s.Stop()
	require.True(t, timer.stopped)

	timer.f()
	require.Equal(t, 0, r.calls)

	s.Arm(context.Background())
	require.False(t, s.Armed())
	require.Equal(t, 1, clock.count())
}

func TestNilScheduler(t *testing.T) {
	var s *scheduler.Scheduler
	s.Arm(context.Background())
	s.Disarm()
	s.Stop()
	require.False(t, s.Armed())
}
