package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config interface {
	EnvConfig
	CorsConfig
	AuthAPIConfig
	SessionConfig
	SecurityConfig
	RedisConfig
	SSOConfig
	DevBackendConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetBaseURL() string
	GetLogLevel() string
	IsDev() bool
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	AuthAPI
	Sessions
	Security
	Redis      `envPrefix:"REDIS_"`
	SSO        `envPrefix:"SSO_"`
	DevBackend `envPrefix:"DEV_BACKEND_"`
}

// New loads an optional .env file and then reads the configuration from the process environment.
func New() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("[config New] failed to load .env: %w", err)
	}
	return parse(env.Options{})
}

// FromMap reads the configuration from vars instead of the process environment.
func FromMap(vars map[string]string) (Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var c mainConfig
	if err := env.ParseWithOptions(&c, opts); err != nil {
		return nil, fmt.Errorf("[config parse] %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c mainConfig) validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("[config validate] %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("[config validate] %w", err)
	}
	if c.SSO.Enabled() && (c.SSO.ClientID == "" || c.SSO.RedirectURL == "") {
		return errors.New("[config validate] SSO_CLIENT_ID and SSO_REDIRECT_URL are required when SSO_ISSUER_URL is set")
	}
	return nil
}
