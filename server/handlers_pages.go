package server

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/jrsteele09/go-erp-portal/guard"
	"github.com/jrsteele09/go-erp-portal/tokenstore"
	"github.com/jrsteele09/go-erp-portal/users"
	"github.com/rs/zerolog/log"
)

// IndexHandler renders the home page
func (s *Server) IndexHandler() http.HandlerFunc {
	tmpl := mustParseTemplate("index.html")
	return func(w http.ResponseWriter, r *http.Request) {
		render(w, tmpl, http.StatusOK, s.pageData(r, "Home"))
	}
}

// LoginPageHandler serves the sign-in form. A returnTo query parameter is remembered for the
// redirect after a successful login.
func (s *Server) LoginPageHandler() http.HandlerFunc {
	tmpl := mustParseTemplate("login.html")
	return func(w http.ResponseWriter, r *http.Request) {
		if returnTo := r.URL.Query().Get("returnTo"); returnTo != "" {
			if ctrl := controllerFrom(r); ctrl != nil && safeReturnTo(returnTo, "") != "" {
				if err := ctrl.Store().SetEphemeral(r.Context(), tokenstore.KeyReturnTo, returnTo); err != nil {
					log.Warn().Err(err).Msg("failed to remember returnTo")
				}
			}
		}
		data := s.pageData(r, "Sign in")
		data.Username = r.URL.Query().Get("username")
		render(w, tmpl, http.StatusOK, data)
	}
}

func (s *Server) RegisterPageHandler() http.HandlerFunc {
	tmpl := mustParseTemplate("register.html")
	return func(w http.ResponseWriter, r *http.Request) {
		data := s.pageData(r, "Register")
		data.Username = r.URL.Query().Get("username")
		render(w, tmpl, http.StatusOK, data)
	}
}

// DashboardHandler sends the caller to the landing page for their role.
func (s *Server) DashboardHandler() PageRenderer {
	tmpl := mustParseTemplate("section.html")
	return func(w http.ResponseWriter, r *http.Request, visible bool) {
		user := controllerFrom(r).State().User
		if !visible || user == nil {
			data := s.pageData(r, "Dashboard")
			data.Visible = false
			render(w, tmpl, http.StatusOK, data)
			return
		}
		http.Redirect(w, r, user.Role.LandingPath(), http.StatusFound)
	}
}

// SectionHandler renders a signed-in page.
func (s *Server) SectionHandler(sec section) PageRenderer {
	tmpl := mustParseTemplate("section.html")
	return func(w http.ResponseWriter, r *http.Request, visible bool) {
		data := s.pageData(r, sec.title)
		data.Visible = visible
		render(w, tmpl, http.StatusOK, data)
	}
}

// PageRenderer renders a gated page. visible is false while the session is still settling.
type PageRenderer func(w http.ResponseWriter, r *http.Request, visible bool)

// RequirePage applies the page gate with the given role set before rendering.
func (s *Server) RequirePage(roles []users.Role, renderPage PageRenderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := guard.GateInput{RequiredRoles: roles}
		if ctrl := controllerFrom(r); ctrl != nil {
			state := ctrl.State()
			in.Mounted = true
			in.HasLocalAuth = ctrl.Store().IsAuthenticated(r.Context())
			in.Loading = state.IsLoading
			in.User = state.User
		}

		decision := s.gate.Evaluate(in)
		if decision.Redirect != "" {
			if decision.Redirect == s.gate.Fallback {
				if ctrl := controllerFrom(r); ctrl != nil {
					if err := ctrl.Store().SetEphemeral(r.Context(), tokenstore.KeyReturnTo, r.URL.Path); err != nil {
						log.Warn().Err(err).Msg("failed to remember returnTo")
					}
				}
			}
			http.Redirect(w, r, decision.Redirect, http.StatusFound)
			return
		}
		renderPage(w, r, decision.Visible)
	}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Time   time.Time         `json:"time"`
}

// HealthHandler runs every registered dependency check.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Time: time.Now().UTC()}
		names := make([]string, 0, len(s.health))
		for name := range s.health {
			names = append(names, name)
		}
		sort.Strings(names)
		if len(names) > 0 {
			resp.Checks = make(map[string]string, len(names))
		}
		status := http.StatusOK
		for _, name := range names {
			if err := s.health[name](ctx); err != nil {
				log.Warn().Err(err).Str("check", name).Msg("health check failed")
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		writeJSON(w, status, resp)
	}
}
