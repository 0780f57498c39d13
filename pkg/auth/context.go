// Package auth provides authentication for the HTTP API: static API
// keys for service-to-service calls and HMAC-signed JWTs for end users.
package auth

import "context"

type contextKey string

const (
	userContextKey  contextKey = "auth_user"
	tokenContextKey contextKey = "auth_token"
)

// UserInfo describes the authenticated caller.
type UserInfo struct {
	// Subject is the stable identifier of the caller: the account ID
	// for JWT users, or the configured key name for API key callers.
	Subject string
	Email   string
	Roles   []string
	// Method is the authentication method that admitted the caller
	// ("api_key", "jwt" or "anonymous").
	Method string
}

// HasRole reports whether the user carries the given role.
func (u *UserInfo) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// WithUser returns a context carrying the authenticated user.
func WithUser(ctx context.Context, user *UserInfo) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// GetUser returns the authenticated user from the context, or nil.
func GetUser(ctx context.Context) *UserInfo {
	user, _ := ctx.Value(userContextKey).(*UserInfo)
	return user
}

// WithToken returns a context carrying the raw bearer token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey, token)
}

// GetToken returns the raw bearer token from the context, or "".
func GetToken(ctx context.Context) string {
	token, _ := ctx.Value(tokenContextKey).(string)
	return token
}
