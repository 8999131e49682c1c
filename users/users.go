package users

import (
	"fmt"
	"strings"
	"unicode"
)

// Role is the caller's authorization class within the ERP.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleInstructor Role = "INSTRUCTOR"
	RoleStudent    Role = "STUDENT"

	// RoleNone is the result of normalising an unknown or empty role.
	RoleNone Role = ""
)

const rolePrefix = "ROLE_"

// legacyRoles maps historical role names onto the current set.
var legacyRoles = map[string]Role{
	"FACULTY": RoleInstructor,
}

// AllRoles lists every known role, most privileged first.
var AllRoles = []Role{RoleAdmin, RoleInstructor, RoleStudent}

// NormalizeRole maps any role spelling ("role_admin", " Faculty ", "STUDENT") onto a known Role.
// Unknown input yields RoleNone. NormalizeRole(NormalizeRole(x)) == NormalizeRole(x) for every x.
func NormalizeRole(raw string) Role {
	r := strings.ToUpper(strings.TrimSpace(raw))
	r = strings.TrimPrefix(r, rolePrefix)
	if legacy, ok := legacyRoles[r]; ok {
		return legacy
	}
	switch Role(r) {
	case RoleAdmin, RoleInstructor, RoleStudent:
		return Role(r)
	}
	return RoleNone
}

// NormalizeRoles normalises every entry, dropping unknown roles and duplicates.
func NormalizeRoles(raw []string) []Role {
	roles := make([]Role, 0, len(raw))
	seen := make(map[Role]struct{}, len(raw))
	for _, r := range raw {
		role := NormalizeRole(r)
		if role == RoleNone {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		roles = append(roles, role)
	}
	return roles
}

func (r Role) String() string { return string(r) }

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool { return NormalizeRole(string(r)) == r && r != RoleNone }

// UserProfile is the identity returned by the Auth API and cached alongside the tokens.
type UserProfile struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	FirstName  string `json:"firstName,omitempty"`
	LastName   string `json:"lastName,omitempty"`
	Email      string `json:"email,omitempty"`
	Role       Role   `json:"role"`
	StudentID  string `json:"studentId,omitempty"`
	EmployeeID string `json:"employeeId,omitempty"`
}

// Normalized returns a copy of the profile with its role normalised.
func (u UserProfile) Normalized() UserProfile {
	u.Role = NormalizeRole(string(u.Role))
	return u
}

// HasRole reports whether the profile's normalised role equals role.
func (u *UserProfile) HasRole(role Role) bool {
	if u == nil {
		return false
	}
	want := NormalizeRole(string(role))
	return want != RoleNone && NormalizeRole(string(u.Role)) == want
}

// HasAnyRole reports whether the profile holds one of roles. An empty set is always satisfied.
func (u *UserProfile) HasAnyRole(roles ...Role) bool {
	if len(roles) == 0 {
		return u != nil
	}
	for _, r := range roles {
		if u.HasRole(r) {
			return true
		}
	}
	return false
}

// DisplayName is the name shown in page headers.
func (u *UserProfile) DisplayName() string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// LandingPath is the dashboard a user with this role is sent to.
func (r Role) LandingPath() string {
	switch NormalizeRole(string(r)) {
	case RoleAdmin:
		return "/admin"
	case RoleInstructor:
		return "/instructor"
	case RoleStudent:
		return "/student"
	}
	return "/profile"
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}
