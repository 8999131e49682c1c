package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-erp-portal/guard"
	"github.com/jrsteele09/go-erp-portal/session"
	"github.com/jrsteele09/go-erp-portal/users"
	"github.com/rs/zerolog/log"
)

// SessionCookie carries the registry id of the caller's session.
const SessionCookie = "portal_session"

type contextKey string

const controllerKey contextKey = "sessionController"

// controllerFrom returns the session attached by SessionMiddleware, or nil.
func controllerFrom(r *http.Request) *session.Controller {
	ctrl, _ := r.Context().Value(controllerKey).(*session.Controller)
	return ctrl
}

// SessionMiddleware opens the caller's session and keeps the auth cookies in line with its store,
// so the route guard sees the tokens the session actually holds.
func (s *Server) SessionMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var current string
		if c, err := r.Cookie(SessionCookie); err == nil {
			current = c.Value
		}
		id, ctrl := s.sessions.Open(r.Context(), current)
		if id != current {
			s.setSessionCookie(w, r, id)
		}

		if err := ctrl.EnsureFresh(r.Context(), s.sessions.LeadTime()); err != nil {
			log.Info().Err(err).Str("path", r.URL.Path).Msg("session could not be refreshed and was logged out")
		}
		r = s.syncAuthCookies(w, r, ctrl)
		next(w, r.WithContext(context.WithValue(r.Context(), controllerKey, ctrl)))
	}
}

func (s *Server) syncAuthCookies(w http.ResponseWriter, r *http.Request, ctrl *session.Controller) *http.Request {
	store := ctrl.Store()
	stored := store.GetAccessToken(r.Context())
	cookie := authCookieValue(r)

	switch {
	case stored == "" && cookie != "":
		log.Debug().Str("path", r.URL.Path).Msg("session has no tokens, clearing stale auth cookies")
		guard.ClearAuthCookies(w)
		return replaceCookies(r, map[string]string{})
	case stored != "" && stored != cookie:
		user := store.GetUser(r.Context())
		values := s.setAuthCookies(w, r, stored, store.GetRefreshToken(r.Context()), user)
		return replaceCookies(r, values)
	}
	return r
}

func authCookieValue(r *http.Request) string {
	for _, name := range []string{guard.CookieAuthToken, guard.CookieLegacyToken} {
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			return c.Value
		}
	}
	return ""
}

type userDataCookie struct {
	Username string   `json:"username"`
	Role     string   `json:"role"`
	Roles    []string `json:"roles"`
}

func encodeUserData(u *users.UserProfile) string {
	if u == nil {
		return ""
	}
	role := string(users.NormalizeRole(string(u.Role)))
	data := userDataCookie{Username: u.Username, Role: role, Roles: []string{}}
	if role != "" {
		data.Roles = []string{role}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	return url.QueryEscape(string(raw))
}

// setAuthCookies writes the auth cookies and returns their values by name.
func (s *Server) setAuthCookies(w http.ResponseWriter, r *http.Request, access, refresh string, user *users.UserProfile) map[string]string {
	maxAge := int(s.config.GetMaxSessionAge().Seconds())
	secure := s.secureCookies(r)

	values := map[string]string{
		guard.CookieAuthToken: access,
		guard.CookieUserData:  encodeUserData(user),
	}
	if refresh != "" {
		values[guard.CookieRefreshToken] = refresh
	}
	for name, value := range values {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			MaxAge:   maxAge,
			HttpOnly: name != guard.CookieUserData,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	// the legacy cookie is retired once the primary one is written
	http.SetCookie(w, &http.Cookie{Name: guard.CookieLegacyToken, Path: "/", MaxAge: -1})
	return values
}

func (s *Server) setSessionCookie(w http.ResponseWriter, r *http.Request, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(s.config.GetMaxSessionAge().Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookies(r),
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) secureCookies(r *http.Request) bool {
	return s.config.GetCookieSecure() || getScheme(r) == "https"
}

// replaceCookies returns a copy of r whose auth cookies are exactly values.
func replaceCookies(r *http.Request, values map[string]string) *http.Request {
	auth := make(map[string]bool, len(guard.AuthCookies))
	for _, name := range guard.AuthCookies {
		auth[name] = true
	}

	parts := []string{}
	for _, c := range r.Cookies() {
		if auth[c.Name] {
			continue
		}
		parts = append(parts, c.Name+"="+c.Value)
	}
	for _, name := range guard.AuthCookies {
		if v, ok := values[name]; ok && v != "" {
			parts = append(parts, name+"="+v)
		}
	}

	clone := r.Clone(r.Context())
	clone.Header.Del("Cookie")
	if len(parts) > 0 {
		clone.Header.Set("Cookie", strings.Join(parts, "; "))
	}
	return clone
}
