package httpx

import (
	"fmt"
)

// ErrorKind classifies a single failed HTTP attempt. The kind decides whether
// the client retries.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindTimeout
	KindConnection
	KindRateLimited
	KindClient // 4xx other than 429
	KindServer // 5xx
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnection:
		return "connection"
	case KindRateLimited:
		return "rate_limited"
	case KindClient:
		return "client_error"
	case KindServer:
		return "server_error"
	default:
		return "unknown"
	}
}

// RequestError is one classified attempt failure.
type RequestError struct {
	Kind       ErrorKind
	StatusCode int
	// RetryAfter is the provider-requested delay for rate-limited responses,
	// zero when the header was absent.
	RetryAfter int // seconds
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (http %d)", e.Kind, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *RequestError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt may succeed.
func (e *RequestError) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindConnection, KindRateLimited:
		return true
	default:
		return false
	}
}

// RequestFailedError is raised once the retry budget is exhausted.
type RequestFailedError struct {
	Attempts int
	Last     error
}

func (e *RequestFailedError) Error() string {
	return fmt.Sprintf("request failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RequestFailedError) Unwrap() error { return e.Last }
