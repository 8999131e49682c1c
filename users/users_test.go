package users_test

import (
	"testing"

	"github.com/jrsteele09/go-erp-portal/users"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRole(t *testing.T) {
	cases := map[string]users.Role{
		"ADMIN":           users.RoleAdmin,
		"admin":           users.RoleAdmin,
		"ROLE_ADMIN":      users.RoleAdmin,
		"role_instructor": users.RoleInstructor,
		" Faculty ":       users.RoleInstructor,
		"ROLE_FACULTY":    users.RoleInstructor,
		"student":         users.RoleStudent,
		"":                users.RoleNone,
		"ROLE_":           users.RoleNone,
		"janitor":         users.RoleNone,
		"ROLE_ROLE_ADMIN": users.RoleNone,
	}
	for in, want := range cases {
		t.Run(in, func(t *testing.T) {
			require.Equal(t, want, users.NormalizeRole(in))
		})
	}
}

func TestNormalizeRole_Idempotent(t *testing.T) {
	inputs := []string{"ADMIN", "role_admin", "FACULTY", "Role_Faculty", "x", "", "  student", "ROLE_ROLE_STUDENT", "INSTRUCTOR"}
	for _, in := range inputs {
		once := users.NormalizeRole(in)
		require.Equal(t, once, users.NormalizeRole(string(once)), "input %q", in)
	}
}

func TestNormalizeRoles(t *testing.T) {
	roles := users.NormalizeRoles([]string{"ROLE_STUDENT", "student", "bogus", "faculty"})
	require.Equal(t, []users.Role{users.RoleStudent, users.RoleInstructor}, roles)
}

func TestUserProfile_HasAnyRole(t *testing.T) {
	u := &users.UserProfile{Username: "jdoe", Role: "ROLE_FACULTY"}
	require.True(t, u.HasRole(users.RoleInstructor))
	require.True(t, u.HasAnyRole(users.RoleStudent, users.RoleInstructor))
	require.False(t, u.HasAnyRole(users.RoleAdmin))
	require.True(t, u.HasAnyRole())

	var none *users.UserProfile
	require.False(t, none.HasAnyRole())
	require.False(t, none.HasRole(users.RoleAdmin))
}

func TestRole_LandingPath(t *testing.T) {
	require.Equal(t, "/admin", users.RoleAdmin.LandingPath())
	require.Equal(t, "/instructor", users.Role("faculty").LandingPath())
	require.Equal(t, "/student", users.RoleStudent.LandingPath())
	require.Equal(t, "/profile", users.RoleNone.LandingPath())
}

func TestValidatePasswordStrength(t *testing.T) {
	require.NoError(t, users.ValidatePasswordStrength("Passw0rdOK"))
	require.ErrorContains(t, users.ValidatePasswordStrength("short"), "at least 8")
	require.ErrorContains(t, users.ValidatePasswordStrength("alllowercase1"), "uppercase")
	require.ErrorContains(t, users.ValidatePasswordStrength("ALLUPPERCASE1"), "lowercase")
	require.ErrorContains(t, users.ValidatePasswordStrength("NoNumbersHere"), "number")
}
