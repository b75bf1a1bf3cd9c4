package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// TransientError marks a fetch failure as safe to retry, optionally carrying
// the HTTP status that caused it.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err as retryable.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// fetchFailureHints are substrings of wrapped HTTP-client errors that point
// at flaky connectivity rather than a broken site.
var fetchFailureHints = []string{
	"connection reset by peer",
	"broken pipe",
	"no such host",
	"temporary failure in name resolution",
	"tls handshake timeout",
	"i/o timeout",
}

// IsTransient reports whether an error is worth retrying: an explicit
// TransientError anywhere in the chain, a network timeout, a refused or
// reset connection, or a wrapped client error matching a known flaky-network
// message.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, hint := range fetchFailureHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// IsTransientHTTPStatus reports whether a status code is a server-side
// hiccup worth retrying. Client errors other than timeout and throttling are
// not: a 404 from a shop search will stay a 404.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
