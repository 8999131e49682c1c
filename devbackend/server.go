// Package devbackend is an in-process stand-in for the ERP Auth API, used by `portal devbackend`
// and by tests. It speaks the same JSON contract as the real service.
package devbackend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-erp-portal/authapi"
	"github.com/jrsteele09/go-erp-portal/internal/config"
	"github.com/jrsteele09/go-erp-portal/internal/errors"
	"github.com/jrsteele09/go-erp-portal/users"
	"github.com/rs/zerolog/log"
)

const contentTypeJSON = "application/json"

// Backend serves the Auth API endpoints.
type Backend struct {
	mux      *http.ServeMux
	routes   []string
	accounts *Accounts
	signer   *HMACSigner
	refresh  *RefreshTokens
	revoked  *RevokedTokens
}

// New creates a backend with no accounts.
func New(cfg config.DevBackendConfig) *Backend {
	b := &Backend{
		mux:      http.NewServeMux(),
		accounts: NewAccounts(),
		signer:   NewHMACSigner(cfg.GetDevBackendSecret(), cfg.GetDefaultAccessTokenExpiry()),
		refresh:  NewRefreshTokens(cfg.GetRefreshTokenLength(), cfg.GetDefaultRefreshTokenExpiry()),
		revoked:  NewRevokedTokens(),
	}
	b.initRoutes()
	return b
}

func (b *Backend) initRoutes() {
	b.registerRouteFunc("POST "+authapi.EndpointLogin, b.LoginHandler())
	b.registerRouteFunc("POST "+authapi.EndpointRegister, b.RegisterHandler())
	b.registerRouteFunc("POST "+authapi.EndpointRefresh, b.RefreshHandler())
	b.registerRouteFunc("GET "+authapi.EndpointMe, b.MeHandler())
	b.registerRouteFunc("POST "+authapi.EndpointLogout, b.LogoutHandler())
}

func (b *Backend) registerRouteFunc(pattern string, handler http.HandlerFunc) {
	b.routes = append(b.routes, pattern)
	b.mux.HandleFunc(pattern, handler)
}

// Routes lists the registered patterns.
func (b *Backend) Routes() []string {
	return b.routes
}

// Accounts exposes the user repository, for seeding.
func (b *Backend) Accounts() *Accounts {
	return b.accounts
}

func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mux.ServeHTTP(w, r)
}

type authResponse struct {
	User         users.UserProfile `json:"user"`
	AccessToken  string            `json:"accessToken"`
	RefreshToken string            `json:"refreshToken"`
}

func (b *Backend) issue(acc *Account) (*authResponse, error) {
	access, err := b.signer.Issue(acc.UserProfile)
	if err != nil {
		return nil, err
	}
	refresh, err := b.refresh.Create(acc.ID)
	if err != nil {
		return nil, err
	}
	return &authResponse{User: acc.UserProfile, AccessToken: access, RefreshToken: refresh}, nil
}

func (b *Backend) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req authapi.LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		acc, err := b.accounts.Authenticate(req.Username, req.Password)
		if err != nil {
			writeJSONError(w, "Invalid username or password", http.StatusUnauthorized)
			return
		}
		resp, err := b.issue(acc)
		if err != nil {
			log.Err(err).Msg("devbackend: failed to issue tokens")
			writeJSONError(w, "Failed to issue tokens", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (b *Backend) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req authapi.RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		req = req.Normalize()
		if err := req.Validate(); err != nil {
			writeJSONError(w, authapi.UserMessage(err), http.StatusBadRequest)
			return
		}
		profile := users.UserProfile{
			Username:   req.Username,
			FirstName:  req.FirstName,
			LastName:   req.LastName,
			Email:      req.Email,
			Role:       req.Role,
			StudentID:  req.StudentID,
			EmployeeID: req.EmployeeID,
		}
		if _, err := b.accounts.Create(profile, req.Password); err != nil {
			if errors.Is(err, errors.ErrUserExists) {
				writeJSONError(w, "Username already exists", http.StatusConflict)
				return
			}
			log.Err(err).Msg("devbackend: failed to create account")
			writeJSONError(w, "Failed to create account", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"message": "Registration successful"})
	}
}

func (b *Backend) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
			writeJSONError(w, "Refresh token is required", http.StatusBadRequest)
			return
		}
		userID, err := b.refresh.Consume(req.RefreshToken)
		if err != nil {
			writeJSONError(w, "Invalid refresh token", http.StatusUnauthorized)
			return
		}
		acc, err := b.accounts.GetByID(userID)
		if err != nil {
			writeJSONError(w, "Invalid refresh token", http.StatusUnauthorized)
			return
		}
		resp, err := b.issue(acc)
		if err != nil {
			log.Err(err).Msg("devbackend: failed to issue tokens")
			writeJSONError(w, "Failed to issue tokens", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (b *Backend) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := b.authenticate(r)
		if err != nil {
			writeJSONError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		acc, err := b.accounts.GetByID(claims.UserID)
		if err != nil {
			writeJSONError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, acc.UserProfile)
	}
}

func (b *Backend) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := b.authenticate(r)
		if err != nil {
			writeJSONError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		b.revoked.Add(claims.JTI, claims.Expiry)
		b.refresh.Revoke(claims.UserID)
		b.revoked.Cleanup()
		w.WriteHeader(http.StatusNoContent)
	}
}

func (b *Backend) authenticate(r *http.Request) (*AccessClaims, error) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil, errors.ErrUnauthorized
	}
	claims, err := b.signer.Parse(parts[1])
	if err != nil {
		return nil, errors.Wrapf(errors.ErrUnauthorized, "[Backend authenticate] %v", err)
	}
	if claims.JTI != "" && b.revoked.IsRevoked(claims.JTI) {
		return nil, errors.Wrapf(errors.ErrUnauthorized, "[Backend authenticate] token revoked")
	}
	return claims, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"message": message})
}

// DemoAccount is a seeded login.
type DemoAccount struct {
	Profile  users.UserProfile
	Password string
}

// DemoAccounts are the logins created by Seed.
var DemoAccounts = []DemoAccount{
	{Profile: users.UserProfile{Username: "admin", FirstName: "Ada", LastName: "Admin", Email: "admin@erp.local", Role: users.RoleAdmin, EmployeeID: "E-0001"}, Password: "Admin123"},
	{Profile: users.UserProfile{Username: "instructor", FirstName: "Ian", LastName: "Instructor", Email: "instructor@erp.local", Role: users.RoleInstructor, EmployeeID: "E-0002"}, Password: "Instructor123"},
	{Profile: users.UserProfile{Username: "student", FirstName: "Sam", LastName: "Student", Email: "student@erp.local", Role: users.RoleStudent, StudentID: "S-0001"}, Password: "Student123"},
}

// Seed creates the demo accounts.
func (b *Backend) Seed() error {
	for _, demo := range DemoAccounts {
		if _, err := b.accounts.Create(demo.Profile, demo.Password); err != nil {
			return fmt.Errorf("[Backend Seed] %s: %w", demo.Profile.Username, err)
		}
	}
	return nil
}
