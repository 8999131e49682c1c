package config

import "time"

type DevBackendConfig interface {
	GetDevBackendPort() string
	GetDevBackendSecret() string
	GetDefaultAccessTokenExpiry() time.Duration
	GetDefaultRefreshTokenExpiry() time.Duration
	GetRefreshTokenLength() int
}

// DevBackend configures the in-process fake of the ERP Auth API.
type DevBackend struct {
	Port               string        `env:"PORT" envDefault:"8081"`
	Secret             string        `env:"SECRET" envDefault:"dev-secret-change-me"`
	AccessTokenExpiry  time.Duration `env:"ACCESS_TOKEN_EXPIRY" envDefault:"15m" validate:"gt=0"`
	RefreshTokenExpiry time.Duration `env:"REFRESH_TOKEN_EXPIRY" envDefault:"168h" validate:"gt=0"`
}

var _ DevBackendConfig = DevBackend{}

func (d DevBackend) GetDevBackendPort() string {
	if d.Port != "" && d.Port[0] != ':' {
		return ":" + d.Port
	}
	return d.Port
}

func (d DevBackend) GetDevBackendSecret() string {
	return d.Secret
}

func (d DevBackend) GetDefaultAccessTokenExpiry() time.Duration {
	return d.AccessTokenExpiry
}

func (d DevBackend) GetDefaultRefreshTokenExpiry() time.Duration {
	return d.RefreshTokenExpiry
}

func (DevBackend) GetRefreshTokenLength() int {
	return 32 // 32 bytes = 256 bits
}
