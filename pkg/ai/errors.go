// Package ai holds the error taxonomy shared by the STT, TTS, and LLM
// collaborator contracts. The call engine never inspects vendor error
// types; providers classify their failures as recoverable or fatal and
// the engine decides whether to retry, skip a sentence, or end the call.
package ai

import "errors"

var (
	// ErrRecoverable marks a temporary collaborator failure that may
	// succeed if retried: network timeout, rate limiting, transient 5xx.
	ErrRecoverable = errors.New("recoverable provider error")

	// ErrFatal marks a permanent collaborator failure: bad credentials,
	// unsupported audio format, malformed request. Never retried.
	ErrFatal = errors.New("fatal provider error")
)

// IsRecoverable reports whether err should be retried.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrRecoverable)
}

// IsFatal reports whether err is permanent.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// ProviderError wraps a vendor error with its retry classification so
// errors.Is(err, ErrRecoverable/ErrFatal) works across package
// boundaries.
type ProviderError struct {
	Underlying error
	Retryable  bool
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Underlying.Error()
}

func (e *ProviderError) Unwrap() error {
	if e.Retryable {
		return ErrRecoverable
	}
	return ErrFatal
}

// Recoverable wraps err as a retryable provider error.
func Recoverable(err error, msg string) error {
	return &ProviderError{Underlying: err, Retryable: true, Message: msg}
}

// Fatal wraps err as a permanent provider error.
func Fatal(err error, msg string) error {
	return &ProviderError{Underlying: err, Retryable: false, Message: msg}
}
