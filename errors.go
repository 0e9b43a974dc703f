package ragstream

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for common failure modes.
// These can be checked with errors.Is().
var (
	// ErrStreamUnsupported indicates the response carried no streamable body.
	ErrStreamUnsupported = errors.New("ragstream: streaming not supported by response")

	// ErrUnauthorized indicates the credential was missing, malformed, or rejected.
	ErrUnauthorized = errors.New("ragstream: invalid or rejected credential")

	// ErrRateLimited indicates the server's rate limit has been exceeded.
	ErrRateLimited = errors.New("ragstream: rate limit exceeded")

	// ErrServerUnavailable indicates the server is down or unreachable.
	ErrServerUnavailable = errors.New("ragstream: server unavailable")
)

// StatusError represents a non-success HTTP response. It is terminal: the
// stream is never read when the status is not 200.
type StatusError struct {
	StatusCode int    // HTTP status code
	Body       string // Truncated response body, for diagnostics
	Err        error  // Wrapped sentinel (ErrUnauthorized, ErrRateLimited, ErrServerUnavailable)
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("ragstream: server returned status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("ragstream: server returned status %d", e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// sentinelForStatus maps an HTTP status code to a wrapped sentinel error.
func sentinelForStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrUnauthorized
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code >= 500:
		return ErrServerUnavailable
	default:
		return nil
	}
}

// TokenError represents a failure to obtain a credential from the token
// provider. It is terminal for the call; the request is never sent.
type TokenError struct {
	Err error // The underlying provider error
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("ragstream: token acquisition failed: %v", e.Err)
}

func (e *TokenError) Unwrap() error {
	return e.Err
}

// IsAuthError checks if an error is related to authentication.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrUnauthorized) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusUnauthorized ||
			statusErr.StatusCode == http.StatusForbidden
	}

	return false
}

// IsRetryable checks if an error is potentially retryable by the caller.
// The client itself never retries; this classification exists so callers
// that want retry can make the decision cheaply.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrRateLimited) {
		return true
	}

	if errors.Is(err, ErrServerUnavailable) {
		return true
	}

	return false
}
