package webhook

import (
	"errors"
	"fmt"
)

/* Delivery failures are tagged with a kind instead of relying on exception-style
 * control flow, so callers can branch on the class of failure
 */

// ErrorKind classifies a delivery failure.
type ErrorKind int

const (
	// ConfigError is fatal: unknown or inactive webhook, never retried
	ConfigError ErrorKind = iota + 1
	// TransportError is retryable: timeout, DNS failure, connection refused
	TransportError
	// ApplicationError is retryable: the endpoint answered outside [200,300)
	ApplicationError
)

// String returns the string representation of the error kind
func (k ErrorKind) String() string {
	switch k {
	case ConfigError:
		return "config"
	case TransportError:
		return "transport"
	case ApplicationError:
		return "application"
	default:
		return "unknown"
	}
}

// Sentinel errors for configuration failures.
var (
	ErrWebhookNotFound = errors.New("webhook not found")
	ErrWebhookInactive = errors.New("webhook is inactive")

	// ErrDuplicateJob is returned by a Queue when an idempotency key is already taken.
	ErrDuplicateJob = errors.New("duplicate job")

	// ErrJobNotFound is returned by a Queue for an unknown job id.
	ErrJobNotFound = errors.New("job not found")
)

// DeliveryError is a classified delivery failure with a stable message.
type DeliveryError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface
func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the underlying cause for errors.Is/As matching
func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure may be retried.
func (e *DeliveryError) Retryable() bool {
	return e.Kind != ConfigError
}

// NewConfigError wraps a configuration failure (non-retryable).
func NewConfigError(msg string, cause error) *DeliveryError {
	return &DeliveryError{Kind: ConfigError, Message: msg, Err: cause}
}

// NewTransportError wraps a transport-level failure (retryable).
func NewTransportError(msg string, cause error) *DeliveryError {
	return &DeliveryError{Kind: TransportError, Message: msg, Err: cause}
}

// NewApplicationError wraps a non-2xx response (retryable).
func NewApplicationError(status int) *DeliveryError {
	return &DeliveryError{Kind: ApplicationError, Message: fmt.Sprintf("HTTP %d", status)}
}
