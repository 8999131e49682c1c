package devbackend_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/go-erp-portal/authapi"
	"github.com/jrsteele09/go-erp-portal/devbackend"
	"github.com/jrsteele09/go-erp-portal/internal/config"
	"github.com/jrsteele09/go-erp-portal/internal/errors"
	"github.com/jrsteele09/go-erp-portal/token"
	"github.com/jrsteele09/go-erp-portal/users"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func setup(t *testing.T) *authapi.Client {
	t.Helper()
	backend := devbackend.New(config.DevBackend{
		Secret:             secret,
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: time.Hour,
	})
	require.NoError(t, backend.Seed())
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)
	return authapi.New(srv.URL)
}

func TestLoginMeLogout(t *testing.T) {
	ctx := context.Background()
	client := setup(t)

	resp, err := client.Login(ctx, authapi.LoginRequest{Username: "instructor", Password: "Instructor123"})
	require.NoError(t, err)
	require.True(t, resp.Complete())
	require.Equal(t, users.RoleInstructor, resp.User.Role)
	require.True(t, token.IsTokenValid(resp.AccessToken))
	require.Equal(t, users.RoleInstructor, token.RoleClaim(resp.AccessToken))

	role, err := token.NewVerifier(secret).Verify(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, users.RoleInstructor, role)

	me, err := client.Me(ctx, resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "instructor", me.Username)

	require.NoError(t, client.Logout(ctx, resp.AccessToken))
	_, err = client.Me(ctx, resp.AccessToken)
	require.True(t, authapi.IsUnauthorized(err))

	_, err = client.Refresh(ctx, resp.RefreshToken)
	require.True(t, authapi.IsUnauthorized(err))
}

func TestLogin_BadPassword(t *testing.T) {
	_, err := setup(t).Login(context.Background(), authapi.LoginRequest{Username: "admin", Password: "nope"})
	require.True(t, authapi.IsUnauthorized(err))
	require.Equal(t, "Invalid username or password", authapi.UserMessage(err))
}

func TestRefresh_Rotates(t *testing.T) {
	ctx := context.Background()
	client := setup(t)

	first, err := client.Login(ctx, authapi.LoginRequest{Username: "student", Password: "Student123"})
	require.NoError(t, err)

	second, err := client.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)
	require.Equal(t, users.RoleStudent, second.User.Role)

	_, err = client.Refresh(ctx, first.RefreshToken)
	require.True(t, authapi.IsUnauthorized(err))
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	client := setup(t)
	req := authapi.RegisterRequest{
		Username: "newbie", Password: "Newbie123", Email: "newbie@uni.edu",
		FirstName: "New", LastName: "Bie", Role: users.RoleStudent, StudentID: "S-9",
	}

	require.NoError(t, client.Register(ctx, req))
	err := client.Register(ctx, req)
	require.True(t, errors.Is(err, errors.ErrUserExists))
	require.Equal(t, "Username already exists", authapi.UserMessage(err))

	resp, err := client.Login(ctx, authapi.LoginRequest{Username: "NEWBIE", Password: "Newbie123"})
	require.NoError(t, err)
	require.Equal(t, "S-9", resp.User.StudentID)

	req.Username = "weak"
	req.Password = "weak"
	err = client.Register(ctx, req)
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestMe_ForgedToken(t *testing.T) {
	forged, err := devbackend.NewHMACSigner("other", time.Minute).Issue(users.UserProfile{ID: "x", Role: users.RoleAdmin})
	require.NoError(t, err)
	_, err = setup(t).Me(context.Background(), forged)
	require.True(t, authapi.IsUnauthorized(err))
}

func TestRefreshTokens_Expiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	devbackend.NowTimeFunc = func() time.Time { return now }
	defer func() { devbackend.NowTimeFunc = time.Now }()

	rt := devbackend.NewRefreshTokens(16, time.Hour)
	tok, err := rt.Create("u1")
	require.NoError(t, err)
	require.Len(t, tok, 32)

	now = now.Add(2 * time.Hour)
	_, err = rt.Consume(tok)
	require.True(t, errors.Is(err, errors.ErrInvalidRefreshToken))
}

func TestRefreshTokens_OnePerUser(t *testing.T) {
	rt := devbackend.NewRefreshTokens(16, time.Hour)
	first, err := rt.Create("u1")
	require.NoError(t, err)
	second, err := rt.Create("u1")
	require.NoError(t, err)

	_, err = rt.Consume(first)
	require.Error(t, err)
	userID, err := rt.Consume(second)
	require.NoError(t, err)
	require.Equal(t, "u1", userID)
}
