package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	RouteIndex = "/"

	// Pages - public
	RouteLogin    = "/login"
	RouteRegister = "/register"

	// Pages - signed in
	RouteDashboard     = "/dashboard"
	RouteProfile       = "/profile"
	RouteAdmin         = "/admin"
	RouteInstructor    = "/instructor"
	RouteStudent       = "/student"
	RouteCourses       = "/courses"
	RouteRegistrations = "/registrations"
	RouteDepartments   = "/departments"

	// Auth actions
	RouteAuthLogin    = "/auth/login"
	RouteAuthRegister = "/auth/register"
	RouteAuthLogout   = "/auth/logout"
	RouteAuthRefresh  = "/auth/refresh"
	RouteAuthMe       = "/auth/me"

	// Single sign-on
	RouteSSOLogin    = "/sso/login"
	RouteSSOCallback = "/sso/callback"

	// Operations
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"

	// Static Asset Routes (patterns)
	RouteStatic = "/static/{file}"
)
