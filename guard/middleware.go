// Package guard decides whether a page request may proceed: the edge middleware in front of
// every navigation, and the gate used when a page renders.
package guard

import (
	"encoding/json"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/jrsteele09/go-erp-portal/internal/metrics"
	"github.com/jrsteele09/go-erp-portal/token"
	"github.com/jrsteele09/go-erp-portal/users"
	"github.com/rs/zerolog/log"
)

// Cookie and header names the guard reads and writes.
const (
	CookieAuthToken    = "auth-token"
	CookieLegacyToken  = "token"
	CookieRefreshToken = "refresh-token"
	CookieUserData     = "user-data"

	HeaderUserRoles  = "x-user-roles"
	HeaderAuthStatus = "x-auth-status"
)

// AuthCookies are removed when a caller is sent to log in again.
var AuthCookies = []string{CookieAuthToken, CookieLegacyToken, CookieRefreshToken, CookieUserData}

var skippedPrefixes = []string{"/api/", "/auth/", "/static/"}

var skippedPaths = map[string]bool{
	"/metrics":     true,
	"/healthz":     true,
	"/favicon.ico": true,
}

// Outcome labels, also used as metric values.
const (
	OutcomeSkip          = "skip"
	OutcomeAllow         = "allow"
	OutcomeLogin         = "redirect_login"
	OutcomeForbidden     = "redirect_forbidden"
	OutcomeAlreadyAuthed = "redirect_authenticated"
)

// Result is the guard's verdict for one request.
type Result struct {
	Outcome       string
	Location      string
	ClearCookies  bool
	Authenticated bool
	Roles         []users.Role
}

// Redirect reports whether the request is answered with a redirect.
func (r Result) Redirect() bool {
	return r.Location != ""
}

// Guard is the edge route guard.
type Guard struct {
	routes   *Table
	authOnly map[string]bool
	landing  string
	verifier *token.Verifier
	metrics  *metrics.Metrics
}

// Option defines a function type to modify the Guard instance.
type Option func(*Guard)

// WithRoutes replaces DefaultRoutes.
func WithRoutes(routes []RouteConfig) Option {
	return func(g *Guard) {
		g.routes = NewTable(routes)
	}
}

// WithVerifier enables signature checks. A nil verifier leaves them off.
func WithVerifier(v *token.Verifier) Option {
	return func(g *Guard) {
		g.verifier = v
	}
}

// WithMetrics counts decisions.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) {
		g.metrics = m
	}
}

// New creates a guard over DefaultRoutes.
func New(options ...Option) *Guard {
	g := &Guard{
		routes:   NewTable(DefaultRoutes),
		authOnly: make(map[string]bool, len(AuthOnlyPaths)),
		landing:  DefaultLandingPath,
	}
	for _, p := range AuthOnlyPaths {
		g.authOnly[p] = true
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

// Routes returns the route table.
func (g *Guard) Routes() *Table {
	return g.routes
}

// Skip reports whether path bypasses the guard: API, auth endpoints, static assets and files.
// A file-like path inside a protected subtree is still guarded; see Guard.Skip.
func Skip(p string) bool {
	for _, prefix := range skippedPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	if skippedPaths[p] {
		return true
	}
	return isFile(p)
}

func isFile(p string) bool {
	return strings.Contains(path.Base(p), ".")
}

// Skip is the package Skip narrowed by the route table: a path that resolves to a route
// requiring authentication is never skipped for looking like a file.
func (g *Guard) Skip(p string) bool {
	if !Skip(p) {
		return false
	}
	if !isFile(p) {
		return true
	}
	rc, ok := g.routes.Resolve(p)
	return !ok || !rc.RequireAuth
}

// ExtractToken returns the bearer token from the primary cookie, the legacy cookie or the
// Authorization header, in that order.
func ExtractToken(r *http.Request) string {
	for _, name := range []string{CookieAuthToken, CookieLegacyToken} {
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			return c.Value
		}
	}
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

type userData struct {
	Role  string   `json:"role"`
	Roles []string `json:"roles"`
}

// ResolveRoles reads the caller's roles from the user-data cookie, falling back to the
// x-user-roles request header.
func ResolveRoles(r *http.Request) []users.Role {
	if c, err := r.Cookie(CookieUserData); err == nil && c.Value != "" {
		if roles := parseUserData(c.Value); len(roles) > 0 {
			return roles
		}
	}
	if h := r.Header.Get(HeaderUserRoles); h != "" {
		return users.NormalizeRoles(strings.Split(h, ","))
	}
	return nil
}

func parseUserData(raw string) []users.Role {
	if unescaped, err := url.QueryUnescape(raw); err == nil {
		raw = unescaped
	}
	var data userData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		log.Debug().Err(err).Msg("ignoring unreadable user-data cookie")
		return nil
	}
	return users.NormalizeRoles(append([]string{data.Role}, data.Roles...))
}

// Evaluate decides what happens to r without writing a response.
func (g *Guard) Evaluate(r *http.Request) Result {
	p := r.URL.Path
	if g.Skip(p) {
		return Result{Outcome: OutcomeSkip}
	}

	tok := ExtractToken(r)
	authenticated := tok != "" && token.IsTokenValid(tok)
	roles := ResolveRoles(r)
	if authenticated && g.verifier != nil {
		verified, err := g.verifier.Verify(tok)
		if err != nil {
			log.Debug().Err(err).Str("path", p).Msg("token signature rejected")
			authenticated = false
		} else if verified != users.RoleNone {
			roles = []users.Role{verified}
		}
	}

	res := Result{Outcome: OutcomeAllow, Authenticated: authenticated, Roles: roles}
	rc, ok := g.routes.Resolve(p)
	if !ok {
		return res
	}

	if rc.RequireAuth {
		if !authenticated {
			res.Outcome = OutcomeLogin
			res.Location = rc.UnauthenticatedRedirect()
			res.ClearCookies = true
			return res
		}
		if !rc.Allows(roles) {
			res.Outcome = OutcomeForbidden
			res.Location = rc.UnauthorizedRedirect()
			return res
		}
		return res
	}

	if authenticated && g.authOnly[rc.Path] {
		res.Outcome = OutcomeAlreadyAuthed
		res.Location = g.landing
	}
	return res
}

// Middleware applies Evaluate to every request.
func (g *Guard) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := g.Evaluate(r)
		g.metrics.GuardDecision(res.Outcome)
		if res.Outcome == OutcomeSkip {
			next(w, r)
			return
		}

		SetSecurityHeaders(w)
		if res.Redirect() {
			if res.ClearCookies {
				ClearAuthCookies(w)
			}
			log.Debug().Str("path", r.URL.Path).Str("outcome", res.Outcome).Str("to", res.Location).Msg("route guard redirect")
			http.Redirect(w, r, res.Location, http.StatusTemporaryRedirect)
			return
		}

		status := "unauthenticated"
		if res.Authenticated {
			status = "authenticated"
		}
		w.Header().Set(HeaderAuthStatus, status)
		w.Header().Set(HeaderUserRoles, joinRoles(res.Roles))
		next(w, r)
	}
}

// Handler wraps an http.Handler with Middleware.
func (g *Guard) Handler(next http.Handler) http.Handler {
	return g.Middleware(next.ServeHTTP)
}

// SetSecurityHeaders writes the fixed security headers.
func SetSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
}

// ClearAuthCookies expires every known auth cookie, current and legacy.
func ClearAuthCookies(w http.ResponseWriter) {
	for _, name := range AuthCookies {
		http.SetCookie(w, &http.Cookie{
			Name:   name,
			Value:  "",
			Path:   "/",
			MaxAge: -1,
		})
	}
}

func joinRoles(roles []users.Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}
