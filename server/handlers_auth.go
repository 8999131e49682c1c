package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-erp-portal/authapi"
	"github.com/jrsteele09/go-erp-portal/guard"
	"github.com/jrsteele09/go-erp-portal/internal/errors"
	"github.com/jrsteele09/go-erp-portal/session"
	"github.com/jrsteele09/go-erp-portal/tokenstore"
	"github.com/jrsteele09/go-erp-portal/users"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 64 << 10

// authResult is the JSON answer to login and refresh.
type authResult struct {
	User       *users.UserProfile `json:"user"`
	RedirectTo string             `json:"redirectTo,omitempty"`
}

// LoginHandler signs the session in with username and password from a form or JSON body.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctrl := controllerFrom(r)
		var req authapi.LoginRequest
		if err := decodeInput(r, &req, func(f url.Values) {
			req.Username = strings.TrimSpace(f.Get("username"))
			req.Password = f.Get("password")
		}); err != nil {
			s.authFailure(w, r, RouteLogin, errors.Wrapf(errors.ErrInvalidRequest, "request body is not valid"), req.Username)
			return
		}

		returnTo := ctrl.Store().TakeEphemeral(r.Context(), tokenstore.KeyReturnTo)
		user, err := ctrl.Login(r.Context(), req.Username, req.Password)
		if err != nil {
			if returnTo != "" {
				if err := ctrl.Store().SetEphemeral(r.Context(), tokenstore.KeyReturnTo, returnTo); err != nil {
					log.Warn().Err(err).Msg("failed to remember returnTo")
				}
			}
			s.authFailure(w, r, RouteLogin, err, req.Username)
			return
		}

		s.writeSessionCookies(w, r, ctrl)
		target := safeReturnTo(returnTo, user.Role.LandingPath())
		if isJSONRequest(r) {
			writeJSON(w, http.StatusOK, authResult{User: &user, RedirectTo: target})
			return
		}
		redirectSuccess(w, r, target)
	}
}

// RegisterHandler creates an account. It does not sign the caller in.
func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctrl := controllerFrom(r)
		var req authapi.RegisterRequest
		if err := decodeInput(r, &req, func(f url.Values) {
			req = authapi.RegisterRequest{
				Username:   f.Get("username"),
				Password:   f.Get("password"),
				Email:      f.Get("email"),
				FirstName:  f.Get("firstName"),
				LastName:   f.Get("lastName"),
				Role:       users.Role(f.Get("role")),
				StudentID:  f.Get("studentId"),
				EmployeeID: f.Get("employeeId"),
			}
		}); err != nil {
			s.authFailure(w, r, RouteRegister, errors.Wrapf(errors.ErrInvalidRequest, "request body is not valid"), req.Username)
			return
		}

		if err := ctrl.Register(r.Context(), req); err != nil {
			s.authFailure(w, r, RouteRegister, err, req.Username)
			return
		}

		if isJSONRequest(r) {
			writeJSON(w, http.StatusCreated, map[string]string{"message": "Registration successful"})
			return
		}
		redirectSuccess(w, r, RouteLogin+"?message="+url.QueryEscape("Registration successful. Please sign in."))
	}
}

// LogoutHandler always ends the session, even when the Auth API call fails.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		controllerFrom(r).Logout(r.Context())
		guard.ClearAuthCookies(w)
		if isJSONRequest(r) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		redirectSuccess(w, r, RouteLogin)
	}
}

// RefreshHandler refreshes the session's tokens on demand.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctrl := controllerFrom(r)
		if err := ctrl.RefreshAuth(r.Context()); err != nil {
			guard.ClearAuthCookies(w)
			writeJSONError(w, http.StatusUnauthorized, authapi.UserMessage(err))
			return
		}
		s.writeSessionCookies(w, r, ctrl)
		writeJSON(w, http.StatusOK, authResult{User: ctrl.State().User})
	}
}

// MeHandler revalidates the session with the Auth API and returns its state.
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctrl := controllerFrom(r)
		ctrl.CheckAuth(r.Context())
		state := ctrl.State()
		if state.IsAuthenticated {
			s.writeSessionCookies(w, r, ctrl)
		} else {
			guard.ClearAuthCookies(w)
		}
		writeJSON(w, http.StatusOK, state)
	}
}

// writeSessionCookies mirrors the session's stored credentials into the auth cookies.
func (s *Server) writeSessionCookies(w http.ResponseWriter, r *http.Request, ctrl *session.Controller) {
	store := ctrl.Store()
	access := store.GetAccessToken(r.Context())
	if access == "" {
		guard.ClearAuthCookies(w)
		return
	}
	s.setAuthCookies(w, r, access, store.GetRefreshToken(r.Context()), store.GetUser(r.Context()))
}

func (s *Server) authFailure(w http.ResponseWriter, r *http.Request, page string, err error, username string) {
	msg := authapi.UserMessage(err)
	if isJSONRequest(r) {
		writeJSONError(w, statusFor(err), msg)
		return
	}
	target := page + "?error=" + url.QueryEscape(msg)
	if username != "" {
		target += "&username=" + url.QueryEscape(username)
	}
	redirectSuccess(w, r, target)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errors.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrUnauthorized), errors.Is(err, errors.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, errors.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, errors.ErrBackendUnavailable), errors.Is(err, errors.ErrIncompleteResponse):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// decodeInput reads a JSON body into dst, or parses a form and hands it to fromForm.
func decodeInput(r *http.Request, dst any, fromForm func(url.Values)) error {
	if isJSONRequest(r) {
		dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
		if err := dec.Decode(dst); err != nil {
			return errors.Wrapf(err, "[decodeInput] json")
		}
		return nil
	}
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return errors.Wrapf(err, "[decodeInput] form")
	}
	fromForm(r.PostForm)
	return nil
}

func isJSONRequest(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
}

// safeReturnTo accepts only local paths.
func safeReturnTo(returnTo, fallback string) string {
	if returnTo == "" || !strings.HasPrefix(returnTo, "/") || strings.HasPrefix(returnTo, "//") || strings.Contains(returnTo, "\\") {
		return fallback
	}
	if returnTo == RouteLogin || returnTo == RouteRegister {
		return fallback
	}
	return returnTo
}

// redirectSuccess helper for htmx-aware redirects
func redirectSuccess(w http.ResponseWriter, r *http.Request, path string) {
	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusNoContent) // 204 - no content, just redirect instruction
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// isHTMXRequest checks if the request was initiated by HTMX
func isHTMXRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("[writeJSON] failed to encode response")
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// redirectWithError helper for htmx-aware error redirects
func redirectWithError(w http.ResponseWriter, r *http.Request, path, errorMsg string) {
	fullPath := path + "?error=" + url.QueryEscape(errorMsg)

	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", fullPath)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, fullPath, http.StatusSeeOther)
}
