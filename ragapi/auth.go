package ragapi

import (
	"context"
	"crypto/subtle"
	"errors"
)

// ErrInvalidToken is returned when a bearer token fails verification.
var ErrInvalidToken = errors.New("ragapi: invalid authentication")

// TokenVerifier authenticates bearer tokens and resolves the calling
// user.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}

// VerifierFunc adapts a function to the TokenVerifier interface.
type VerifierFunc func(ctx context.Context, token string) (string, error)

func (f VerifierFunc) Verify(ctx context.Context, token string) (string, error) {
	return f(ctx, token)
}

// SharedSecretVerifier accepts a single pre-shared token. Suitable for
// single-tenant deployments behind a gateway that handles real user
// auth.
type SharedSecretVerifier struct {
	Secret string
	// UserID is reported for all callers. Defaults to "local".
	UserID string
}

func (v SharedSecretVerifier) Verify(_ context.Context, token string) (string, error) {
	if v.Secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(v.Secret)) != 1 {
		return "", ErrInvalidToken
	}
	if v.UserID == "" {
		return "local", nil
	}
	return v.UserID, nil
}
