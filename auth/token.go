// Package auth verifies handshake tokens. Credential verification itself
// lives with the external identity provider; the relay only checks that a
// presented token is validly signed and extracts the identity it carries.
package auth

import (
	"chat-relay/domain"
	apperrors "chat-relay/errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 tokens against a shared secret. The secret is
// configuration, never compiled in.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates the signature and expiration of a JWT
// string, returning the identity it proves.
func (v *Verifier) Verify(tokenString string) (domain.UserID, error) {
	if tokenString == "" {
		return "", apperrors.ErrMissingAuthToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("token validation: %w", err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return "", jwt.ErrSignatureInvalid
	}
	if claims.UserID == "" {
		return "", fmt.Errorf("token validation: empty user_id claim")
	}
	return domain.UserID(claims.UserID), nil
}

// GenerateToken creates a signed JWT for a specific user. Used by tests
// and tooling; production tokens come from the identity provider.
func GenerateToken(secret, userID string, roles []string, claims jwt.RegisteredClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &CustomClaims{
		UserID:           userID,
		Roles:            roles,
		RegisteredClaims: claims,
	})
	return token.SignedString([]byte(secret))
}
