package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-erp-portal/guard"
	"github.com/jrsteele09/go-erp-portal/internal/config"
	"github.com/jrsteele09/go-erp-portal/internal/metrics"
	"github.com/jrsteele09/go-erp-portal/session"
	"github.com/jrsteele09/go-erp-portal/sso"
	"github.com/jrsteele09/go-erp-portal/token"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Server struct {
	env        string // Environment (e.g., "DEV", "PROD")
	mux        *http.ServeMux
	routes     []string
	fileServer http.Handler
	config     config.Config
	sessions   *session.Registry
	guard      *guard.Guard
	gate       guard.Gate
	sso        *sso.Provider
	metrics    *metrics.Metrics
	gatherer   prometheus.Gatherer
	health     map[string]HealthCheck
}

// Option defines a function type to modify the Server instance.
type Option func(*Server)

// WithSSO enables the /sso routes.
func WithSSO(p *sso.Provider) Option {
	return func(s *Server) {
		s.sso = p
	}
}

// WithMetrics records guard decisions and serves /metrics from gatherer.
func WithMetrics(m *metrics.Metrics, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = gatherer
	}
}

// WithHealthCheck adds a named dependency check to /healthz.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) {
		s.health[name] = check
	}
}

func New(config config.Config, sessions *session.Registry, options ...Option) (*Server, error) {
	if sessions == nil {
		return nil, fmt.Errorf("[Server New] a session registry is required")
	}
	s := &Server{
		mux:      http.NewServeMux(),
		config:   config,
		sessions: sessions,
		gate:     guard.DefaultGate,
		health:   make(map[string]HealthCheck),
	}
	s.env = config.GetEnv()
	s.fileServer = FileServerHandler()
	for _, opt := range options {
		opt(s)
	}

	verifier := token.NewVerifier(config.GetTokenSigningSecret())
	if verifier != nil {
		log.Info().Msg("route guard verifies token signatures")
	}
	s.guard = guard.New(guard.WithVerifier(verifier), guard.WithMetrics(s.metrics))

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// Routes lists the registered patterns.
func (s *Server) Routes() []string {
	return s.routes
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Info().Msgf("[%-19s] %s", displayMethod, path)
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
