package config

type SSOConfig interface {
	GetSSOIssuerURL() string
	GetSSOClientID() string
	GetSSOClientSecret() string
	GetSSORedirectURL() string
	GetSSORoleClaim() string
	SSOEnabled() bool
}

type SSO struct {
	IssuerURL    string `env:"ISSUER_URL" validate:"omitempty,url"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL" validate:"omitempty,url"`
	RoleClaim    string `env:"ROLE_CLAIM" envDefault:"role"`
}

var _ SSOConfig = SSO{}

func (s SSO) Enabled() bool              { return s.IssuerURL != "" }
func (s SSO) SSOEnabled() bool           { return s.Enabled() }
func (s SSO) GetSSOIssuerURL() string    { return s.IssuerURL }
func (s SSO) GetSSOClientID() string     { return s.ClientID }
func (s SSO) GetSSOClientSecret() string { return s.ClientSecret }
func (s SSO) GetSSORedirectURL() string  { return s.RedirectURL }
func (s SSO) GetSSORoleClaim() string    { return s.RoleClaim }
