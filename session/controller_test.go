package session_test

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-erp-portal/authapi"
	"github.com/jrsteele09/go-erp-portal/internal/errors"
	"github.com/jrsteele09/go-erp-portal/session"
	"github.com/jrsteele09/go-erp-portal/token"
	"github.com/jrsteele09/go-erp-portal/tokenstore"
	"github.com/jrsteele09/go-erp-portal/users"
	"github.com/stretchr/testify/require"
)

func accessToken(t *testing.T, ttl time.Duration) string {
	t.Helper()
	tok, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(ttl).Unix(),
	}).SignedString([]byte("test"))
	require.NoError(t, err)
	return tok
}

type fakeAPI struct {
	mu sync.Mutex

	loginResp   *authapi.AuthResponse
	loginErr    error
	refreshResp *authapi.AuthResponse
	refreshErr  error
	meResp      *users.UserProfile
	meErr       error
	logoutErr   error
	registerErr error

	refreshDelay time.Duration
	refreshCalls atomic.Int32
	meCalls      int
	logoutCalls  int
	registered   []authapi.RegisterRequest
}

func (f *fakeAPI) Login(_ context.Context, req authapi.LoginRequest) (*authapi.AuthResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginResp, f.loginErr
}

func (f *fakeAPI) Register(_ context.Context, req authapi.RegisterRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, req)
	return f.registerErr
}

func (f *fakeAPI) Refresh(_ context.Context, _ string) (*authapi.AuthResponse, error) {
	f.refreshCalls.Add(1)
	time.Sleep(f.refreshDelay)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshResp, f.refreshErr
}

func (f *fakeAPI) Me(_ context.Context, _ string) (*users.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meCalls++
	return f.meResp, f.meErr
}

func (f *fakeAPI) Logout(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	return f.logoutErr
}

type fakeScheduler struct {
	arms, disarms, stops int
}

func (s *fakeScheduler) Arm(context.Context) { s.arms++ }
func (s *fakeScheduler) Disarm()             { s.disarms++ }
func (s *fakeScheduler) Stop()               { s.stops++ }

var alice = users.UserProfile{ID: "1", Username: "alice", FirstName: "Alice", Role: users.Role("role_student")}

func newController(api *fakeAPI) (*session.Controller, *tokenstore.Store, *fakeScheduler) {
	store := tokenstore.New(tokenstore.NewMemoryBackend(), "s1", 0)
	ctrl := session.NewController(api, store)
	sched := &fakeScheduler{}
	ctrl.SetScheduler(sched)
	return ctrl, store, sched
}

func seed(t *testing.T, store *tokenstore.Store, access string) {
	t.Helper()
	require.NoError(t, store.SetAuthData(context.Background(), token.Pair{AccessToken: access, RefreshToken: "r1"}, alice))
}

func requireInvariant(t *testing.T, s session.State) {
	t.Helper()
	require.Equal(t, s.User != nil, s.IsAuthenticated)
}

func TestLogin_Success(t *testing.T) {
	ctx := context.Background()
	access := accessToken(t, time.Hour)
	api := &fakeAPI{loginResp: &authapi.AuthResponse{User: &alice, AccessToken: access, RefreshToken: "r1"}}
	ctrl, store, sched := newController(api)

	user, err := ctrl.Login(ctx, "alice", "Secret123")
	require.NoError(t, err)
	require.Equal(t, users.RoleStudent, user.Role)

	state := ctrl.State()
	require.True(t, state.IsAuthenticated)
	require.NotNil(t, state.User)
	require.False(t, state.IsLoading)
	require.Empty(t, state.Error)
	require.Equal(t, session.StatusAuthenticated, state.Status())

	require.Equal(t, access, store.GetAccessToken(ctx))
	require.Equal(t, "r1", store.GetRefreshToken(ctx))
	require.Equal(t, users.RoleStudent, store.GetUser(ctx).Role)
	require.Equal(t, 1, sched.arms)
}

func TestLogin_Unauthorized(t *testing.T) {
	api := &fakeAPI{loginErr: &authapi.APIError{Endpoint: authapi.EndpointLogin, Status: http.StatusUnauthorized}}
	ctrl, store, sched := newController(api)

	_, err := ctrl.Login(context.Background(), "alice", "wrong")
	require.Error(t, err)

	state := ctrl.State()
	requireInvariant(t, state)
	require.False(t, state.IsAuthenticated)
	require.False(t, state.IsLoading)
	require.Equal(t, "Invalid username or password", state.Error)
	require.Equal(t, session.StatusError, state.Status())
	require.False(t, store.IsAuthenticated(context.Background()))
	require.Zero(t, sched.arms)
}

func TestLogin_IncompleteResponse(t *testing.T) {
	api := &fakeAPI{loginResp: &authapi.AuthResponse{AccessToken: accessToken(t, time.Hour)}}
	ctrl, store, _ := newController(api)

	_, err := ctrl.Login(context.Background(), "alice", "Secret123")
	require.True(t, errors.Is(err, errors.ErrIncompleteResponse))
	require.False(t, ctrl.State().IsAuthenticated)
	require.NotEmpty(t, ctrl.State().Error)
	require.Empty(t, store.GetAccessToken(context.Background()))
}

func TestLogin_ValidationSkipsNetwork(t *testing.T) {
	api := &fakeAPI{loginErr: errors.New("must not be called")}
	ctrl, _, _ := newController(api)

	_, err := ctrl.Login(context.Background(), "", "x")
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
	require.Equal(t, "Username is required", ctrl.State().Error)
}

func TestLogout_AlwaysClears(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{logoutErr: errors.New("network down")}
	ctrl, store, sched := newController(api)
	seed(t, store, accessToken(t, time.Hour))
	require.True(t, ctrl.Restore(ctx))

	ctrl.Logout(ctx)

	state := ctrl.State()
	require.False(t, state.IsAuthenticated)
	require.Nil(t, state.User)
	require.Equal(t, session.State{}, state)
	require.Empty(t, store.GetAccessToken(ctx))
	require.Empty(t, store.GetRefreshToken(ctx))
	require.Nil(t, store.GetUser(ctx))
	require.Equal(t, 1, api.logoutCalls)
	require.Equal(t, 1, sched.disarms)
}

func TestCheckAuth_NoTokenSkipsNetwork(t *testing.T) {
	api := &fakeAPI{}
	ctrl, _, _ := newController(api)

	ctrl.CheckAuth(context.Background())
	require.Equal(t, session.State{}, ctrl.State())
	require.Zero(t, api.meCalls)
}

func TestCheckAuth_ExpiredTokenSkipsNetwork(t *testing.T) {
	api := &fakeAPI{}
	ctrl, store, _ := newController(api)
	seed(t, store, accessToken(t, -time.Minute))

	ctrl.CheckAuth(context.Background())
	require.False(t, ctrl.State().IsAuthenticated)
	require.Zero(t, api.meCalls)
}

func TestCheckAuth_Success(t *testing.T) {
	ctx := context.Background()
	updated := alice
	updated.FirstName = "Alicia"
	api := &fakeAPI{meResp: &updated}
	ctrl, store, sched := newController(api)
	access := accessToken(t, time.Hour)
	seed(t, store, access)

	ctrl.CheckAuth(ctx)
	state := ctrl.State()
	require.True(t, state.IsAuthenticated)
	require.Equal(t, "Alicia", state.User.FirstName)
	require.Equal(t, "Alicia", store.GetUser(ctx).FirstName)
	require.Equal(t, access, store.GetAccessToken(ctx))
	require.Equal(t, "r1", store.GetRefreshToken(ctx))
	require.Equal(t, 1, sched.arms)
}

func TestCheckAuth_FailureIsSilent(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{meErr: &authapi.APIError{Status: http.StatusBadGateway}}
	ctrl, store, _ := newController(api)
	seed(t, store, accessToken(t, time.Hour))

	ctrl.CheckAuth(ctx)
	state := ctrl.State()
	require.False(t, state.IsAuthenticated)
	require.Empty(t, state.Error)
	require.NotEmpty(t, store.GetAccessToken(ctx))
}

func TestCheckAuth_UnauthorizedForcesLogout(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{meErr: &authapi.APIError{Status: http.StatusUnauthorized}}
	ctrl, store, _ := newController(api)
	seed(t, store, accessToken(t, time.Hour))

	ctrl.CheckAuth(ctx)
	require.Empty(t, ctrl.State().Error)
	require.False(t, store.IsAuthenticated(ctx))
	require.Empty(t, store.GetRefreshToken(ctx))
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{}
	ctrl, store, sched := newController(api)
	require.False(t, ctrl.Restore(ctx))

	// Expired but present data is trusted without a network call.
	seed(t, store, accessToken(t, -time.Minute))
	require.True(t, ctrl.Restore(ctx))
	require.True(t, ctrl.State().IsAuthenticated)
	require.Zero(t, api.meCalls)
	require.Equal(t, 1, sched.arms)
}

func TestRegister(t *testing.T) {
	api := &fakeAPI{}
	ctrl, store, _ := newController(api)
	req := authapi.RegisterRequest{
		Username: " bob ", Password: "Passw0rdOK", Email: "bob@uni.edu",
		FirstName: "Bob", LastName: "B", Role: "faculty",
	}

	require.NoError(t, ctrl.Register(context.Background(), req))
	state := ctrl.State()
	require.False(t, state.IsLoading)
	require.False(t, state.IsAuthenticated)
	require.Empty(t, state.Error)
	require.False(t, store.IsAuthenticated(context.Background()))
	require.Len(t, api.registered, 1)
	require.Equal(t, "bob", api.registered[0].Username)
	require.Equal(t, users.RoleInstructor, api.registered[0].Role)
}

func TestRegister_Failure(t *testing.T) {
	api := &fakeAPI{registerErr: &authapi.APIError{Status: http.StatusConflict, Message: "Username already exists"}}
	ctrl, _, _ := newController(api)
	req := authapi.RegisterRequest{
		Username: "bob", Password: "Passw0rdOK", Email: "bob@uni.edu",
		FirstName: "Bob", LastName: "B", Role: users.RoleInstructor,
	}

	err := ctrl.Register(context.Background(), req)
	require.True(t, errors.Is(err, errors.ErrUserExists))
	state := ctrl.State()
	require.False(t, state.IsLoading)
	require.Equal(t, "Username already exists", state.Error)
}

func TestRefreshAuth_Success(t *testing.T) {
	ctx := context.Background()
	next := accessToken(t, 2*time.Hour)
	api := &fakeAPI{refreshResp: &authapi.AuthResponse{User: &alice, AccessToken: next, RefreshToken: "r2"}}
	ctrl, store, sched := newController(api)
	seed(t, store, accessToken(t, time.Minute))

	require.NoError(t, ctrl.RefreshAuth(ctx))
	require.Equal(t, next, store.GetAccessToken(ctx))
	require.Equal(t, "r2", store.GetRefreshToken(ctx))
	require.True(t, ctrl.State().IsAuthenticated)
	require.Equal(t, 1, sched.arms)
}

func TestRefreshAuth_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{refreshResp: &authapi.AuthResponse{User: &alice, AccessToken: accessToken(t, time.Hour)}}
	ctrl, store, _ := newController(api)
	seed(t, store, accessToken(t, time.Minute))

	require.NoError(t, ctrl.RefreshAuth(ctx))
	require.Equal(t, "r1", store.GetRefreshToken(ctx))
}

func TestRefreshAuth_NoRefreshTokenLogsOut(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{}
	ctrl, store, _ := newController(api)
	require.NoError(t, store.SetAuthData(ctx, token.Pair{AccessToken: accessToken(t, time.Hour)}, alice))

	err := ctrl.RefreshAuth(ctx)
	require.True(t, errors.Is(err, errors.ErrNoRefreshToken))
	require.Zero(t, api.refreshCalls.Load())
	require.False(t, store.IsAuthenticated(ctx))
}

func TestRefreshAuth_FailureLogsOut(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{refreshErr: &authapi.APIError{Status: http.StatusUnauthorized}}
	ctrl, store, _ := newController(api)
	seed(t, store, accessToken(t, time.Minute))
	require.True(t, ctrl.Restore(ctx))

	err := ctrl.RefreshAuth(ctx)
	require.True(t, errors.Is(err, errors.ErrInvalidRefreshToken))
	require.Equal(t, session.State{}, ctrl.State())
	require.False(t, store.IsAuthenticated(ctx))
}

func TestRefreshAuth_ConcurrentCallsShareOneRequest(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{
		refreshResp:  &authapi.AuthResponse{User: &alice, AccessToken: accessToken(t, time.Hour), RefreshToken: "r2"},
		refreshDelay: 50 * time.Millisecond,
	}
	ctrl, store, _ := newController(api)
	seed(t, store, accessToken(t, time.Minute))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, ctrl.RefreshAuth(ctx))
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), api.refreshCalls.Load())
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	ctrl, store, sched := newController(&fakeAPI{})
	access := accessToken(t, time.Hour)

	require.NoError(t, ctrl.Authenticate(ctx, token.Pair{AccessToken: access}, alice))
	require.True(t, ctrl.State().IsAuthenticated)
	require.Equal(t, access, store.GetAccessToken(ctx))
	require.Equal(t, 1, sched.arms)

	require.Error(t, ctrl.Authenticate(ctx, token.Pair{}, alice))
	require.False(t, ctrl.State().IsAuthenticated)
}

func TestStateReturnsCopy(t *testing.T) {
	ctx := context.Background()
	ctrl, store, _ := newController(&fakeAPI{})
	seed(t, store, accessToken(t, time.Hour))
	ctrl.Restore(ctx)

	s := ctrl.State()
	s.User.Username = "mallory"
	require.Equal(t, "alice", ctrl.State().User.Username)
}

func TestClose(t *testing.T) {
	ctrl, _, sched := newController(&fakeAPI{})
	ctrl.Close()
	require.Equal(t, 1, sched.stops)
}

func TestDetachedStore(t *testing.T) {
	ctx := context.Background()
	ctrl := session.NewController(&fakeAPI{}, nil)
	require.False(t, ctrl.Restore(ctx))
	ctrl.CheckAuth(ctx)
	ctrl.Logout(ctx)
	require.Equal(t, session.State{}, ctrl.State())
}

func TestLogin_FailureEndsEarlierSession(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{loginErr: &authapi.APIError{Endpoint: authapi.EndpointLogin, Status: http.StatusUnauthorized}}
	ctrl, store, _ := newController(api)
	seed(t, store, accessToken(t, time.Hour))
	require.True(t, ctrl.Restore(ctx))

	_, err := ctrl.Login(ctx, "bob", "wrong")
	require.Error(t, err)

	state := ctrl.State()
	requireInvariant(t, state)
	require.False(t, state.IsAuthenticated)
	require.Equal(t, "Invalid username or password", state.Error)
	require.Empty(t, store.GetAccessToken(ctx))
	require.Empty(t, store.GetRefreshToken(ctx))
	require.False(t, store.IsAuthenticated(ctx))
	require.Equal(t, 1, api.logoutCalls)
}

func TestEnsureFresh_NoTokenIsLeftAlone(t *testing.T) {
	api := &fakeAPI{}
	ctrl, _, _ := newController(api)

	require.NoError(t, ctrl.EnsureFresh(context.Background(), time.Minute))
	require.Zero(t, api.refreshCalls.Load())
}

func TestEnsureFresh_ValidTokenSkipsRefresh(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{}
	ctrl, store, _ := newController(api)
	access := accessToken(t, time.Hour)
	seed(t, store, access)

	require.NoError(t, ctrl.EnsureFresh(ctx, time.Minute))
	require.Zero(t, api.refreshCalls.Load())
	require.Equal(t, access, store.GetAccessToken(ctx))
}

func TestEnsureFresh_RefreshesInsideLeadWindow(t *testing.T) {
	tests := []struct {
		name string
		ttl  time.Duration
	}{
		{name: "expiring soon", ttl: 30 * time.Second},
		{name: "already expired", ttl: -5 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			next := accessToken(t, time.Hour)
			api := &fakeAPI{refreshResp: &authapi.AuthResponse{User: &alice, AccessToken: next, RefreshToken: "r2"}}
			ctrl, store, sched := newController(api)
			seed(t, store, accessToken(t, tt.ttl))
			require.True(t, ctrl.Restore(ctx))

			require.NoError(t, ctrl.EnsureFresh(ctx, time.Minute))
			require.Equal(t, int32(1), api.refreshCalls.Load())
			require.Equal(t, next, store.GetAccessToken(ctx))
			require.Equal(t, "r2", store.GetRefreshToken(ctx))
			require.True(t, ctrl.State().IsAuthenticated)
			require.NotZero(t, sched.arms)
		})
	}
}

func TestEnsureFresh_FailedRefreshLogsOut(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{refreshErr: &authapi.APIError{Status: http.StatusUnauthorized}}
	ctrl, store, _ := newController(api)
	seed(t, store, accessToken(t, -time.Minute))
	require.True(t, ctrl.Restore(ctx))

	err := ctrl.EnsureFresh(ctx, time.Minute)
	require.True(t, errors.Is(err, errors.ErrInvalidRefreshToken))
	require.Equal(t, session.State{}, ctrl.State())
	require.False(t, store.IsAuthenticated(ctx))
}
