package auth

import "context"

// ChainedAuthenticator tries each authenticator in order and admits
// the caller on the first success.
type ChainedAuthenticator struct {
	authenticators []Authenticator
	allowAnonymous bool
}

// NewChainedAuthenticator creates a chain. With allowAnonymous set, a
// missing credential yields an anonymous user instead of an error.
func NewChainedAuthenticator(allowAnonymous bool, authenticators ...Authenticator) *ChainedAuthenticator {
	return &ChainedAuthenticator{
		authenticators: authenticators,
		allowAnonymous: allowAnonymous,
	}
}

var _ Authenticator = (*ChainedAuthenticator)(nil)

// Authenticate resolves the credential through the chain.
func (c *ChainedAuthenticator) Authenticate(ctx context.Context, credential string) (*UserInfo, error) {
	if credential == "" {
		if c.allowAnonymous {
			return &UserInfo{Subject: "anonymous", Method: "anonymous"}, nil
		}
		return nil, ErrUnauthenticated
	}
	for _, a := range c.authenticators {
		if user, err := a.Authenticate(ctx, credential); err == nil {
			return user, nil
		}
	}
	return nil, ErrUnauthenticated
}
