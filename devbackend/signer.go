package devbackend

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-erp-portal/users"
	"github.com/pkg/errors"
)

// AccessClaims are the claims read back from an access token.
type AccessClaims struct {
	UserID string
	JTI    string
	Expiry time.Time
}

// HMACSigner issues and verifies HS256 access tokens.
type HMACSigner struct {
	secret []byte
	expiry time.Duration
}

// NewHMACSigner creates a signer whose tokens live for expiry.
func NewHMACSigner(secret string, expiry time.Duration) *HMACSigner {
	return &HMACSigner{
		secret: []byte(secret),
		expiry: expiry,
	}
}

// Issue signs an access token for user carrying its role.
func (h *HMACSigner) Issue(user users.UserProfile) (string, error) {
	now := NowTimeFunc()
	claims := jwt.MapClaims{
		"sub":      user.ID,
		"username": user.Username,
		"role":     string(user.Role),
		"iat":      now.Unix(),
		"exp":      now.Add(h.expiry).Unix(),
		"jti":      uuid.New().String(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(h.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token with HMAC")
	}
	return signedToken, nil
}

// Parse verifies signature and expiry.
func (h *HMACSigner) Parse(tokenString string) (*AccessClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, h.getVerificationKey,
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(NowTimeFunc),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse access token")
	}
	sub, _ := claims.GetSubject()
	exp, _ := claims.GetExpirationTime()
	jti, _ := claims["jti"].(string)
	out := &AccessClaims{UserID: sub, JTI: jti}
	if exp != nil {
		out.Expiry = exp.Time
	}
	return out, nil
}

func (h *HMACSigner) getVerificationKey(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return h.secret, nil
}
