package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-erp-portal/internal/errors"
	"github.com/jrsteele09/go-erp-portal/session"
	"github.com/jrsteele09/go-erp-portal/token"
	"github.com/jrsteele09/go-erp-portal/tokenstore"
	"github.com/stretchr/testify/require"
)

func TestRegistry_OpenMintsID(t *testing.T) {
	r := session.NewRegistry(&fakeAPI{}, tokenstore.NewMemoryBackend())
	defer r.CloseAll()

	id, ctrl := r.Open(context.Background(), "")
	require.NotNil(t, ctrl)
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	id2, _ := r.Open(context.Background(), "../../etc/passwd")
	require.NotEqual(t, "../../etc/passwd", id2)
	require.Equal(t, 2, r.Len())
}

func TestRegistry_OpenReturnsSameController(t *testing.T) {
	r := session.NewRegistry(&fakeAPI{}, tokenstore.NewMemoryBackend())
	defer r.CloseAll()

	id, first := r.Open(context.Background(), "")
	again, second := r.Open(context.Background(), id)
	require.Equal(t, id, again)
	require.Same(t, first, second)

	got, err := r.Get(id)
	require.NoError(t, err)
	require.Same(t, first, got)
}

func TestRegistry_OpenRestoresFromBackend(t *testing.T) {
	ctx := context.Background()
	backend := tokenstore.NewMemoryBackend()
	id := uuid.NewString()
	store := tokenstore.New(backend, id, 0)
	require.NoError(t, store.SetAuthData(ctx, token.Pair{AccessToken: accessToken(t, time.Hour), RefreshToken: "r1"}, alice))

	r := session.NewRegistry(&fakeAPI{}, backend)
	defer r.CloseAll()

	_, ctrl := r.Open(ctx, id)
	require.True(t, ctrl.State().IsAuthenticated)
	require.Equal(t, "alice", ctrl.State().User.Username)
}

func TestRegistry_SessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	r := session.NewRegistry(&fakeAPI{}, tokenstore.NewMemoryBackend())
	defer r.CloseAll()

	_, a := r.Open(ctx, "")
	_, b := r.Open(ctx, "")
	require.NoError(t, a.Authenticate(ctx, token.Pair{AccessToken: accessToken(t, time.Hour)}, alice))

	require.True(t, a.State().IsAuthenticated)
	require.False(t, b.State().IsAuthenticated)
	require.False(t, b.Store().IsAuthenticated(ctx))
}

func TestRegistry_Close(t *testing.T) {
	r := session.NewRegistry(&fakeAPI{}, tokenstore.NewMemoryBackend())
	id, _ := r.Open(context.Background(), "")

	require.NoError(t, r.Close(id))
	_, err := r.Get(id)
	require.True(t, errors.Is(err, errors.ErrSessionNotFound))
	require.True(t, errors.Is(r.Close(id), errors.ErrSessionNotFound))
	require.Zero(t, r.Len())
}

func TestRegistry_EvictIdle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	session.NowTimeFunc = func() time.Time { return now }
	defer func() { session.NowTimeFunc = time.Now }()

	r := session.NewRegistry(&fakeAPI{}, tokenstore.NewMemoryBackend(), session.WithIdleTimeout(30*time.Minute))
	defer r.CloseAll()

	anonID, _ := r.Open(ctx, "")
	authID, authCtrl := r.Open(ctx, "")
	require.NoError(t, authCtrl.Authenticate(ctx, token.Pair{AccessToken: accessToken(t, time.Hour)}, alice))

	now = now.Add(10 * time.Minute)
	require.Zero(t, r.EvictIdle(ctx))

	now = now.Add(time.Hour)
	require.Equal(t, 1, r.EvictIdle(ctx))

	_, err := r.Get(anonID)
	require.Error(t, err)
	_, err = r.Get(authID)
	require.NoError(t, err)
}
