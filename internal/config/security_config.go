package config

type SecurityConfig interface {
	GetTokenSigningSecret() string
}

type Security struct {
	// TokenSigningSecret enables HS256 signature checks in the route guard when set.
	TokenSigningSecret string `env:"TOKEN_SIGNING_SECRET"`
}

var _ SecurityConfig = Security{}

func (s Security) GetTokenSigningSecret() string {
	return s.TokenSigningSecret
}
