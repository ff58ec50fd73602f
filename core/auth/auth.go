package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"clipfm/config"
)

// Identity is the verified user behind a bearer credential.
type Identity struct {
	UserID string
	Email  string
}

// Claims is the token payload the identity provider issues.
type Claims struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

var (
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrNotAuthorized = errors.New("account is not authorized to use this app")
)

// Verifier validates bearer tokens and applies the email allow-list.
// Token issuance belongs to the external identity provider; this side
// only shares the signing secret.
type Verifier struct {
	secret    []byte
	allowlist *config.Allowlist
}

// NewVerifier creates a Verifier.
func NewVerifier(secret string, allowlist *config.Allowlist) *Verifier {
	return &Verifier{secret: []byte(secret), allowlist: allowlist}
}

// Verify parses and validates a token and checks the allow-list.
func (v *Verifier) Verify(tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	if !v.allowlist.Allowed(claims.Email) {
		return nil, ErrNotAuthorized
	}

	return &Identity{UserID: claims.UserID, Email: claims.Email}, nil
}
