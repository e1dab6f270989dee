package crawler

import (
	"errors"
	"fmt"
)

// Sentinel errors for categorization.
var (
	ErrChallengeDetected    = errors.New("anti-automation challenge detected")
	ErrTransientNetwork     = errors.New("transient network failure")
	ErrRateLimited          = errors.New("rate limited by target")
	ErrServerFailure        = errors.New("target server failure")
	ErrExtractionEmpty      = errors.New("no candidates extracted")
	ErrPoolExhausted        = errors.New("identity pool exhausted")
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// FailureClass is the retry classification of a failed fetch attempt.
type FailureClass string

// Failure classes consumed by the retry controller.
const (
	FailureNone       FailureClass = ""
	FailureChallenge  FailureClass = "CHALLENGE"
	FailureTimeout    FailureClass = "TIMEOUT"
	FailureRateLimit  FailureClass = "RATE_LIMITED"
	FailureServer     FailureClass = "SERVER_ERROR"
	FailureConnection FailureClass = "CONNECTION_ERROR"
	FailureUnknown    FailureClass = "UNKNOWN"
)

// Sentinel returns the taxonomy error matching the class.
func (c FailureClass) Sentinel() error {
	switch c {
	case FailureChallenge:
		return ErrChallengeDetected
	case FailureRateLimit:
		return ErrRateLimited
	case FailureServer:
		return ErrServerFailure
	case FailureNone:
		return nil
	default:
		return ErrTransientNetwork
	}
}

// NetworkErrorKind narrows a transport failure.
type NetworkErrorKind string

// Transport failure kinds.
const (
	NetworkTimeout      NetworkErrorKind = "timeout"
	NetworkConnection   NetworkErrorKind = "connection"
	NetworkHTTPStatus   NetworkErrorKind = "http-status"
	NetworkRedirectLoop NetworkErrorKind = "redirect-loop"
	NetworkOther        NetworkErrorKind = "other"
)

// NetworkError is returned by Fetcher implementations when no usable page was received.
type NetworkError struct {
	Kind   NetworkErrorKind
	URL    string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: %s (status %d): %v", e.URL, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ConfigError wraps a validation message with ErrInvalidConfiguration.
func ConfigError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}
