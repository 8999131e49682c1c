package server

import (
	"crypto/subtle"
	"net/http"

	"github.com/jrsteele09/go-erp-portal/authapi"
	"github.com/jrsteele09/go-erp-portal/tokenstore"
	"github.com/rs/zerolog/log"
)

// SSOLoginHandler starts an authorization code flow with the identity provider.
func (s *Server) SSOLoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctrl := controllerFrom(r)
		req, err := s.sso.Begin()
		if err != nil {
			log.Err(err).Msg("[SSOLoginHandler] failed to start sso")
			redirectWithError(w, r, RouteLogin, "Single sign-on is unavailable")
			return
		}

		store := ctrl.Store()
		for key, value := range map[string]string{
			tokenstore.KeySSOState:    req.State,
			tokenstore.KeySSONonce:    req.Nonce,
			tokenstore.KeySSOVerifier: req.CodeVerifier,
		} {
			if err := store.SetEphemeral(r.Context(), key, value); err != nil {
				log.Err(err).Msg("[SSOLoginHandler] failed to store sso request")
				redirectWithError(w, r, RouteLogin, "Single sign-on is unavailable")
				return
			}
		}
		http.Redirect(w, r, req.URL, http.StatusFound)
	}
}

// SSOCallbackHandler completes the flow and signs the session in.
func (s *Server) SSOCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctrl := controllerFrom(r)
		store := ctrl.Store()
		q := r.URL.Query()

		state := store.TakeEphemeral(r.Context(), tokenstore.KeySSOState)
		nonce := store.TakeEphemeral(r.Context(), tokenstore.KeySSONonce)
		verifier := store.TakeEphemeral(r.Context(), tokenstore.KeySSOVerifier)

		if idpErr := q.Get("error"); idpErr != "" {
			log.Info().Str("error", idpErr).Str("description", q.Get("error_description")).Msg("identity provider returned an error")
			redirectWithError(w, r, RouteLogin, "Single sign-on was cancelled or failed")
			return
		}
		if state == "" || subtle.ConstantTimeCompare([]byte(state), []byte(q.Get("state"))) != 1 {
			log.Warn().Msg("sso callback state mismatch")
			redirectWithError(w, r, RouteLogin, "Single sign-on session expired, please try again")
			return
		}

		identity, err := s.sso.Exchange(r.Context(), q.Get("code"), nonce, verifier)
		if err != nil {
			log.Err(err).Msg("[SSOCallbackHandler] exchange failed")
			redirectWithError(w, r, RouteLogin, "Single sign-on failed")
			return
		}
		if err := ctrl.Authenticate(r.Context(), identity.Pair, identity.Profile); err != nil {
			redirectWithError(w, r, RouteLogin, authapi.UserMessage(err))
			return
		}

		s.writeSessionCookies(w, r, ctrl)
		returnTo := store.TakeEphemeral(r.Context(), tokenstore.KeyReturnTo)
		http.Redirect(w, r, safeReturnTo(returnTo, identity.Profile.Normalized().Role.LandingPath()), http.StatusFound)
	}
}
