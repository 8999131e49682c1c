package guard

import (
	"sort"
	"strings"

	"github.com/jrsteele09/go-erp-portal/users"
)

// Default redirect targets.
const (
	DefaultLoginPath   = "/login"
	DefaultLandingPath = "/dashboard"
)

// RouteConfig is the access policy of one path and everything below it.
type RouteConfig struct {
	Path        string
	Roles       []users.Role
	RequireAuth bool
	// RedirectTo is where an authenticated caller without a required role is sent. For routes
	// without roles it is also where unauthenticated callers go.
	RedirectTo string
	// LoginPath is where unauthenticated callers of a role-restricted route are sent.
	LoginPath string
}

// DefaultRoutes is the portal's compiled-in route table.
var DefaultRoutes = []RouteConfig{
	{Path: "/", RequireAuth: false},
	{Path: "/login", RequireAuth: false},
	{Path: "/register", RequireAuth: false},
	{Path: "/dashboard", RequireAuth: true, RedirectTo: "/login"},
	{Path: "/profile", RequireAuth: true, RedirectTo: "/login"},
	{Path: "/admin", RequireAuth: true, Roles: []users.Role{users.RoleAdmin}, RedirectTo: "/dashboard"},
	{Path: "/instructor", RequireAuth: true, Roles: []users.Role{users.RoleInstructor, users.RoleAdmin}, RedirectTo: "/dashboard"},
	{Path: "/student", RequireAuth: true, Roles: []users.Role{users.RoleStudent, users.RoleAdmin}, RedirectTo: "/dashboard"},
	{Path: "/courses", RequireAuth: true, Roles: []users.Role{users.RoleStudent, users.RoleInstructor, users.RoleAdmin}, RedirectTo: "/dashboard"},
	{Path: "/registrations", RequireAuth: true, Roles: []users.Role{users.RoleStudent, users.RoleAdmin}, RedirectTo: "/dashboard"},
	{Path: "/departments", RequireAuth: true, Roles: []users.Role{users.RoleAdmin}, RedirectTo: "/dashboard"},
}

// AuthOnlyPaths are public pages an authenticated caller is bounced away from.
var AuthOnlyPaths = []string{"/login", "/register"}

// Restricted reports whether the route needs a role.
func (rc RouteConfig) Restricted() bool {
	return len(rc.Roles) > 0
}

// Allows reports whether any of roles satisfies the route.
func (rc RouteConfig) Allows(roles []users.Role) bool {
	if !rc.Restricted() {
		return true
	}
	for _, have := range roles {
		for _, want := range rc.Roles {
			if have != users.RoleNone && have == want {
				return true
			}
		}
	}
	return false
}

// UnauthenticatedRedirect is the target for a caller without a usable token.
func (rc RouteConfig) UnauthenticatedRedirect() string {
	if rc.Restricted() {
		if rc.LoginPath != "" {
			return rc.LoginPath
		}
		return DefaultLoginPath
	}
	if rc.RedirectTo != "" {
		return rc.RedirectTo
	}
	return DefaultLoginPath
}

// UnauthorizedRedirect is the target for an authenticated caller lacking the role.
func (rc RouteConfig) UnauthorizedRedirect() string {
	if rc.RedirectTo != "" {
		return rc.RedirectTo
	}
	return DefaultLandingPath
}

// Table resolves request paths to route configs.
type Table struct {
	exact    map[string]RouteConfig
	prefixes []RouteConfig
}

// NewTable indexes routes. Later entries replace earlier ones with the same path.
func NewTable(routes []RouteConfig) *Table {
	t := &Table{exact: make(map[string]RouteConfig, len(routes))}
	for _, rc := range routes {
		rc.Path = cleanPath(rc.Path)
		rc.Roles = users.NormalizeRoles(roleStrings(rc.Roles))
		t.exact[rc.Path] = rc
	}
	for _, rc := range t.exact {
		if rc.Path != "/" {
			t.prefixes = append(t.prefixes, rc)
		}
	}
	sort.Slice(t.prefixes, func(i, j int) bool {
		return len(t.prefixes[i].Path) > len(t.prefixes[j].Path)
	})
	return t
}

// Resolve returns the exact config for path, else the longest prefix config other than "/".
func (t *Table) Resolve(path string) (RouteConfig, bool) {
	path = cleanPath(path)
	if rc, ok := t.exact[path]; ok {
		return rc, true
	}
	for _, rc := range t.prefixes {
		if strings.HasPrefix(path, rc.Path+"/") {
			return rc, true
		}
	}
	return RouteConfig{}, false
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p
}

func roleStrings(roles []users.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
