package config

import "time"

type AuthAPIConfig interface {
	GetAuthAPIURL() string
	GetAuthAPITimeout() time.Duration
}

type SessionConfig interface {
	GetRefreshLeadTime() time.Duration
	GetMaxSessionAge() time.Duration
	GetSessionIdleTimeout() time.Duration
	GetCookieSecure() bool
}

type AuthAPI struct {
	URL     string        `env:"AUTH_API_URL" envDefault:"http://localhost:8081" validate:"required,url"`
	Timeout time.Duration `env:"AUTH_API_TIMEOUT" envDefault:"10s" validate:"gt=0"`
}

var _ AuthAPIConfig = AuthAPI{}

func (a AuthAPI) GetAuthAPIURL() string {
	return a.URL
}

func (a AuthAPI) GetAuthAPITimeout() time.Duration {
	return a.Timeout
}

type Sessions struct {
	RefreshLeadTime time.Duration `env:"REFRESH_LEAD_TIME" envDefault:"1m" validate:"gte=0"`
	MaxAge          time.Duration `env:"SESSION_MAX_AGE" envDefault:"168h" validate:"gt=0"`
	IdleTimeout     time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"30m"`
	CookieSecure    bool          `env:"COOKIE_SECURE" envDefault:"false"`
}

var _ SessionConfig = Sessions{}

// GetRefreshLeadTime is how long before access token expiry the scheduler refreshes.
func (s Sessions) GetRefreshLeadTime() time.Duration {
	return s.RefreshLeadTime
}

// GetMaxSessionAge bounds the lifetime of persisted tokens and the portal session cookie.
func (s Sessions) GetMaxSessionAge() time.Duration {
	return s.MaxAge
}

// GetSessionIdleTimeout is how long an unauthenticated portal session is kept before eviction.
func (s Sessions) GetSessionIdleTimeout() time.Duration {
	return s.IdleTimeout
}

func (s Sessions) GetCookieSecure() bool {
	return s.CookieSecure
}
