package payments

import (
	"errors"
	"fmt"

	"paygate/internal/domain/paymentsrepo"
)

var (
	ErrUnknownProvider = errors.New("unknown payment provider")
	// ErrDuplicateTransaction is returned when pay() is called with a
	// transaction code that already has a record.
	ErrDuplicateTransaction = errors.New("transaction code already used")
	ErrSignatureMismatch    = errors.New("signature mismatch")
	// ErrSessionNotFound means the bridge cache entry written by pay() is
	// missing, expired or was already consumed.
	ErrSessionNotFound = errors.New("checkout session not found")
	ErrNotSupported    = errors.New("operation not supported by provider")
)

// ValidationError names the first field that failed its rule.
type ValidationError struct {
	Field string
	Rule  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Rule)
}

// TransportError is a network failure or a non-2xx reply from a provider.
// StatusCode is zero for network failures.
type TransportError struct {
	Provider   Provider
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s transport: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s transport: http=%d body=%s", e.Provider, e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DeclinedError is a recognized failure outcome reported by the provider.
type DeclinedError struct {
	Provider Provider
	Code     string
	Reason   string
}

func (e *DeclinedError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s declined: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("%s declined (%s): %s", e.Provider, e.Code, e.Reason)
}

// ConfigError reports a provider that cannot be built from its configuration.
type ConfigError struct {
	Provider Provider
	Err      error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("%s config: %v", e.Provider, e.Err) }

func (e *ConfigError) Unwrap() error { return e.Err }

// MessageFor maps an error onto the human message placed in a failure envelope.
func MessageFor(err error) string {
	var (
		verr *ValidationError
		terr *TransportError
		derr *DeclinedError
	)
	switch {
	case err == nil:
		return MessagePaid
	case errors.As(err, &verr):
		return fmt.Sprintf("The %s field is invalid (%s)", verr.Field, verr.Rule)
	case errors.Is(err, ErrDuplicateTransaction):
		return "The transaction code has already been taken"
	case errors.Is(err, ErrSignatureMismatch):
		return MessageFailed
	case errors.As(err, &derr):
		if derr.Reason == "" {
			return MessageFailed
		}
		return MessageFailedWithCode + derr.Reason
	case errors.Is(err, ErrSessionNotFound):
		return "The payment session has expired or was already verified"
	case errors.Is(err, paymentsrepo.ErrNotFound):
		return "Payment not found"
	case errors.Is(err, ErrUnknownProvider):
		return "Unsupported payment provider"
	case errors.As(err, &terr):
		return "The payment provider could not be reached, please try again"
	default:
		return MessageUnknown
	}
}
