package token

import (
	"fmt"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-erp-portal/users"
)

// Verifier checks HS256 signatures for deployments that share the backend's signing secret.
type Verifier struct {
	secret []byte
}

// NewVerifier returns nil when secret is empty, which callers treat as "signature checks off".
func NewVerifier(secret string) *Verifier {
	if secret == "" {
		return nil
	}
	return &Verifier{secret: []byte(secret)}
}

// Verify validates signature and expiry and returns the verified role claim.
func (v *Verifier) Verify(tok string) (users.Role, error) {
	claims := jwtlib.MapClaims{}
	parsed, err := jwtlib.ParseWithClaims(tok, claims, v.key,
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(NowTimeFunc),
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return users.RoleNone, fmt.Errorf("[Verifier Verify] %w", err)
	}
	if !parsed.Valid {
		return users.RoleNone, fmt.Errorf("[Verifier Verify] token not valid")
	}
	return roleFromClaims(claims), nil
}

func (v *Verifier) key(t *jwtlib.Token) (any, error) {
	if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return v.secret, nil
}
