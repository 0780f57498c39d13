package auth

import (
	"context"
	"crypto/subtle"
	"errors"
)

// ErrUnauthenticated is returned when a credential is missing or invalid.
var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator validates a credential and resolves it to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (*UserInfo, error)
}

// APIKeyAuthenticator validates static API keys using constant-time
// comparison.
type APIKeyAuthenticator struct {
	keys []apiKey
}

type apiKey struct {
	key   string
	name  string
	roles []string
}

// KeyDef defines a single accepted API key.
type KeyDef struct {
	Key   string
	Name  string
	Roles []string
}

// NewAPIKeyAuthenticator creates an authenticator accepting the given keys.
func NewAPIKeyAuthenticator(defs []KeyDef) *APIKeyAuthenticator {
	keys := make([]apiKey, 0, len(defs))
	for _, d := range defs {
		keys = append(keys, apiKey{key: d.Key, name: d.Name, roles: d.Roles})
	}
	return &APIKeyAuthenticator{keys: keys}
}

var _ Authenticator = (*APIKeyAuthenticator)(nil)

// Authenticate checks the credential against every configured key. All
// keys are compared regardless of match to keep timing uniform.
func (a *APIKeyAuthenticator) Authenticate(_ context.Context, credential string) (*UserInfo, error) {
	var matched *apiKey
	for i := range a.keys {
		k := &a.keys[i]
		if subtle.ConstantTimeCompare([]byte(k.key), []byte(credential)) == 1 {
			matched = k
		}
	}
	if matched == nil {
		return nil, ErrUnauthenticated
	}
	return &UserInfo{
		Subject: matched.name,
		Roles:   matched.roles,
		Method:  "api_key",
	}, nil
}
