package guard

import "github.com/jrsteele09/go-erp-portal/users"

// GateInput is what a page knows about its session when it renders.
type GateInput struct {
	// Mounted is false until a session handle is available to the page.
	Mounted bool
	// HasLocalAuth is the token store's IsAuthenticated, read once mounted.
	HasLocalAuth bool
	Loading      bool
	User         *users.UserProfile
	// RequiredRoles is empty for pages open to any signed-in user.
	RequiredRoles []users.Role
}

// Decision says whether page content is shown and where to send the caller otherwise.
type Decision struct {
	Visible  bool
	Redirect string
}

// Gate is the page-level guard. It hides content until the session has settled and redirects
// callers who are not signed in or lack the role. Hidden content is a rendering choice, not a
// security boundary; the edge guard and the backend enforce access.
type Gate struct {
	Fallback string
	Landing  string
}

// DefaultGate redirects to /login and /dashboard.
var DefaultGate = Gate{Fallback: DefaultLoginPath, Landing: DefaultLandingPath}

// Evaluate applies the gate to in.
func (g Gate) Evaluate(in GateInput) Decision {
	if !in.Mounted {
		return Decision{}
	}

	authorized := in.User.HasAnyRole(in.RequiredRoles...)
	if !in.Loading || in.HasLocalAuth {
		if in.User == nil && !in.HasLocalAuth {
			return Decision{Redirect: g.fallback()}
		}
		if len(in.RequiredRoles) > 0 && !authorized && !in.HasLocalAuth {
			return Decision{Redirect: g.landing()}
		}
	}
	return Decision{Visible: in.HasLocalAuth || (!in.Loading && authorized)}
}

func (g Gate) fallback() string {
	if g.Fallback != "" {
		return g.Fallback
	}
	return DefaultLoginPath
}

func (g Gate) landing() string {
	if g.Landing != "" {
		return g.Landing
	}
	return DefaultLandingPath
}
