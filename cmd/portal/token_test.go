package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jrsteele09/go-erp-portal/token"
	"github.com/jrsteele09/go-erp-portal/users"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		inspectSecret = ""
		tokenRole = "student"
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestTokenIssueAndInspect(t *testing.T) {
	out, err := execute(t, "token", "issue", "alice", "--role", "faculty", "--secret", "s3cret")
	require.NoError(t, err)
	tok := strings.TrimSpace(out)
	require.True(t, token.IsTokenValid(tok))
	require.Equal(t, users.RoleInstructor, token.RoleClaim(tok))

	out, err = execute(t, "token", "inspect", tok, "--secret", "s3cret")
	require.NoError(t, err)
	require.Contains(t, out, "valid:   true")
	require.Contains(t, out, "role:    INSTRUCTOR")
	require.Contains(t, out, "signature: valid")

	out, err = execute(t, "token", "inspect", tok, "--secret", "other")
	require.NoError(t, err)
	require.Contains(t, out, "signature: invalid")
}

func TestTokenIssue_UnknownRole(t *testing.T) {
	_, err := execute(t, "token", "issue", "bob", "--role", "janitor")
	require.Error(t, err)
}

func TestTokenInspect_NotAJWT(t *testing.T) {
	_, err := execute(t, "token", "inspect", "opaque-token")
	require.Error(t, err)
}
