package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// JWTAuthenticator validates HMAC-signed bearer tokens.
type JWTAuthenticator struct {
	issuer     string
	signingKey []byte
}

// NewJWTAuthenticator creates a JWT authenticator. Tokens must be
// signed with the given HMAC key and carry the given issuer.
func NewJWTAuthenticator(issuer, signingKey string) *JWTAuthenticator {
	return &JWTAuthenticator{issuer: issuer, signingKey: []byte(signingKey)}
}

var _ Authenticator = (*JWTAuthenticator)(nil)

// Authenticate parses and validates the token.
func (a *JWTAuthenticator) Authenticate(_ context.Context, credential string) (*UserInfo, error) {
	token, err := jwt.Parse(credential, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.signingKey, nil
	}, jwt.WithIssuer(a.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrUnauthenticated
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrUnauthenticated
	}

	info := &UserInfo{Subject: sub, Method: "jwt"}
	if email, ok := claims["email"].(string); ok {
		info.Email = email
	}
	if raw, ok := claims["roles"].([]interface{}); ok {
		for _, r := range raw {
			if s, ok := r.(string); ok {
				info.Roles = append(info.Roles, s)
			}
		}
	}
	return info, nil
}
