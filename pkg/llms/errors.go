package llms

import (
	"context"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/cockroachdb/errors"
)

// Backend error categories. Adapters mark every Send error with one of them
// using github.com/cockroachdb/errors marks: callers test with the
// cockroachdb errors.Is, the standard library errors.Is does not see marks.
var (
	// ErrTransientBackend is a retriable condition: rate limit, 5xx, timeout.
	ErrTransientBackend = errors.New("transient backend error")
	// ErrFatalBackend is a non-retriable condition: malformed request,
	// content-policy rejection, retries exhausted.
	ErrFatalBackend = errors.New("fatal backend error")
	// ErrAuth is a missing or rejected credential. It is also fatal.
	ErrAuth = errors.New("backend authentication failed")
	// ErrMissingToken is returned when no credential is configured.
	ErrMissingToken = errors.New("missing the API token")
	// ErrMalformedResponse is returned when a response cannot be decoded.
	ErrMalformedResponse = errors.New("malformed backend response")
)

// IsTransient returns true if err is retriable.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientBackend)
}

// IsFatal returns true if err must be surfaced without retry.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatalBackend) || errors.Is(err, ErrAuth)
}

// AuthError marks err as an authentication failure.
func AuthError(err error) error {
	return errors.Mark(errors.Mark(err, ErrAuth), ErrFatalBackend)
}

// FatalError marks err as a non-retriable backend failure.
func FatalError(err error) error {
	return errors.Mark(err, ErrFatalBackend)
}

// TransientError marks err as retriable.
func TransientError(err error) error {
	return errors.Mark(err, ErrTransientBackend)
}

// MissingTokenError returns ErrMissingToken marked as an auth failure.
func MissingTokenError(provider ProviderType) error {
	return AuthError(errors.Wrapf(ErrMissingToken, "%s", provider))
}

// ClassifyStatus marks err according to the HTTP status code returned
// by the backend.
func ClassifyStatus(provider ProviderType, status int, err error) error {
	if err == nil {
		err = errors.Newf("%s: status %d", provider, status)
	} else {
		err = errors.Wrapf(err, "%s: status %d", provider, status)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return AuthError(err)
	case status == http.StatusRequestTimeout,
		status == http.StatusConflict,
		status == http.StatusTooManyRequests,
		status >= 500:
		// includes 529 overloaded
		return TransientError(err)
	default:
		return FatalError(err)
	}
}

// ClassifyTransportError marks an error returned before any HTTP status
// was received. The caller context state decides between cancellation and
// a request timeout.
func ClassifyTransportError(ctx context.Context, provider ProviderType, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransientBackend) || errors.Is(err, ErrFatalBackend) || errors.Is(err, ErrAuth) {
		return err
	}
	if ctx.Err() != nil {
		// the caller cancelled or the turn deadline passed: not retriable
		return errors.Wrapf(err, "%s", provider)
	}

	wrapped := errors.Wrapf(err, "%s: request failed", provider)

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.As(err, &netErr):
		return TransientError(wrapped)
	}
	return FatalError(wrapped)
}
