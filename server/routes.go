package server

import (
	"net/http"

	"github.com/jrsteele09/go-erp-portal/users"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// section is a role dashboard page.
type section struct {
	path  string
	title string
	roles []users.Role
}

var sections = []section{
	{RouteProfile, "My profile", nil},
	{RouteAdmin, "Administration", []users.Role{users.RoleAdmin}},
	{RouteInstructor, "Instructor dashboard", []users.Role{users.RoleInstructor, users.RoleAdmin}},
	{RouteStudent, "Student dashboard", []users.Role{users.RoleStudent, users.RoleAdmin}},
	{RouteCourses, "Courses", []users.Role{users.RoleStudent, users.RoleInstructor, users.RoleAdmin}},
	{RouteRegistrations, "Registrations", []users.Role{users.RoleStudent, users.RoleAdmin}},
	{RouteDepartments, "Departments", []users.Role{users.RoleAdmin}},
}

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET /{$}", ChainMiddleware(s.IndexHandler(), s.HTMLMiddleWare()...))

	// LOGIN / REGISTER
	s.RegisterRouteHandler("GET "+RouteLogin, ChainMiddleware(s.LoginPageHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteRegister, ChainMiddleware(s.RegisterPageHandler(), s.HTMLMiddleWare()...))

	// Auth actions accept forms and JSON
	s.RegisterRouteHandler("POST "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthRegister, ChainMiddleware(s.RegisterHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthRefresh, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAuthMe, ChainMiddleware(s.MeHandler(), s.APIMiddleware()...))

	// Dashboards
	s.RegisterRouteHandler("GET "+RouteDashboard, ChainMiddleware(s.RequirePage(nil, s.DashboardHandler()), s.HTMLMiddleWare()...))
	for _, sec := range sections {
		page := ChainMiddleware(s.RequirePage(sec.roles, s.SectionHandler(sec)), s.HTMLMiddleWare()...)
		s.RegisterRouteHandler("GET "+sec.path, page)
		s.RegisterRouteHandler("GET "+sec.path+"/", page)
	}

	if s.sso != nil {
		s.RegisterRouteHandler("GET "+RouteSSOLogin, ChainMiddleware(s.SSOLoginHandler(), s.APIMiddleware()...))
		s.RegisterRouteHandler("GET "+RouteSSOCallback, ChainMiddleware(s.SSOCallbackHandler(), s.APIMiddleware()...))
	}

	s.RegisterRouteHandler("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), s.RecoverMiddleware))
	if s.gatherer != nil {
		s.RegisterRouteHandler("GET "+RouteMetrics, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.RegisterRouteHandler("GET "+RouteStatic, ChainMiddleware(s.serveFileHandler(), s.StaticMiddleware()...))
}

func (s *Server) serveFileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.StripPrefix("/static", s.fileServer).ServeHTTP(w, r)
	}
}
