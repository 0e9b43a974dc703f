package ragstream

import "context"

// TokenProvider supplies the bearer credential attached to each request.
//
// The client queries the provider once per call, before the request is
// sent; a provider error aborts the call with a TokenError. Providers
// must be safe for concurrent use when the caller issues concurrent
// queries through the same client.
type TokenProvider interface {
	// Token returns the current credential. An empty string sends the
	// request without an Authorization header.
	Token(ctx context.Context) (string, error)
}

// StaticTokenProvider returns a fixed credential.
type StaticTokenProvider string

// Token implements TokenProvider.
func (s StaticTokenProvider) Token(context.Context) (string, error) {
	return string(s), nil
}

// TokenProviderFunc adapts a function to the TokenProvider interface.
type TokenProviderFunc func(ctx context.Context) (string, error)

// Token implements TokenProvider.
func (f TokenProviderFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}
