// Package token inspects bearer access tokens without contacting the issuer.
//
// Everything here is a pure function of the token text and the current instant: no I/O, no
// caching. Malformed input always reads as "invalid" or "expired", never as usable.
package token

import (
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-erp-portal/internal/utils"
	"github.com/jrsteele09/go-erp-portal/users"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

const segmentCount = 3

// ValidateTokenFormat reports whether tok has exactly three non-empty, base64url-decodable
// dot-separated segments whose header and payload decode to JSON objects.
func ValidateTokenFormat(tok string) bool {
	_, ok := parseClaims(tok)
	return ok
}

// IsTokenExpired reports whether tok is unusable because its exp claim is absent, malformed or
// not after now. A malformed token is always expired.
func IsTokenExpired(tok string) bool {
	exp, ok := GetTokenExpirationTime(tok)
	if !ok {
		return true
	}
	return exp.UnixMilli() <= NowTimeFunc().UnixMilli()
}

// IsTokenValid is the combined check used by guards: well-formed and not expired.
func IsTokenValid(tok string) bool {
	return ValidateTokenFormat(tok) && !IsTokenExpired(tok)
}

// GetTokenExpirationTime returns the instant carried in the exp claim.
func GetTokenExpirationTime(tok string) (time.Time, bool) {
	claims, ok := parseClaims(tok)
	if !ok {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// ExpirationMillis returns the exp claim as epoch milliseconds, or 0 and false.
func ExpirationMillis(tok string) (int64, bool) {
	exp, ok := GetTokenExpirationTime(tok)
	if !ok {
		return 0, false
	}
	return exp.UnixMilli(), true
}

// RoleClaim returns the normalised role carried by the token, read from "role" or else the
// first recognised entry of "roles". Tokens without a recognised role yield users.RoleNone.
func RoleClaim(tok string) users.Role {
	claims, ok := parseClaims(tok)
	if !ok {
		return users.RoleNone
	}
	return roleFromClaims(claims)
}

// HasRole reports whether the token's role claim equals role after normalisation.
func HasRole(tok string, role users.Role) bool {
	want := users.NormalizeRole(string(role))
	if want == users.RoleNone {
		return false
	}
	return RoleClaim(tok) == want
}

func roleFromClaims(claims jwtlib.MapClaims) users.Role {
	if r, ok := claims["role"].(string); ok {
		if role := users.NormalizeRole(r); role != users.RoleNone {
			return role
		}
	}
	var raw []string
	switch roles := claims["roles"].(type) {
	case []any:
		raw = utils.ToStringSlice(roles)
	case string:
		raw = strings.Split(roles, ",")
	}
	if normalized := users.NormalizeRoles(raw); len(normalized) > 0 {
		return normalized[0]
	}
	return users.RoleNone
}

func parseClaims(tok string) (jwtlib.MapClaims, bool) {
	tok = strings.TrimSpace(tok)
	segments := strings.Split(tok, ".")
	if len(segments) != segmentCount {
		return nil, false
	}
	parser := jwtlib.NewParser()
	for _, seg := range segments {
		if seg == "" {
			return nil, false
		}
		if _, err := parser.DecodeSegment(seg); err != nil {
			return nil, false
		}
	}
	claims := jwtlib.MapClaims{}
	if _, _, err := parser.ParseUnverified(tok, claims); err != nil {
		return nil, false
	}
	return claims, true
}
