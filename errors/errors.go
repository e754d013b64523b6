// Package errors provides standardized error handling for devstream components.
// It includes error classification, standard error variables, and helper functions
// for consistent error wrapping across the collector.
package errors

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorConfig represents errors in the declarative schema or configuration
	// (unknown predicate, unknown comparator, invalid structure)
	ErrorConfig
	// ErrorAuth represents authentication failures against the device;
	// an auth failure aborts the whole collection cycle
	ErrorAuth
	// ErrorNetwork represents a fetch failure for a single endpoint;
	// scoped to that endpoint's cache entry, never global to the loader
	ErrorNetwork
	// ErrorListener represents bind/close failures on a TCP listener;
	// caught at the component boundary, logged, never process-fatal
	ErrorListener
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorConfig:
		return "config"
	case ErrorAuth:
		return "auth"
	case ErrorNetwork:
		return "network"
	case ErrorListener:
		return "listener"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Component lifecycle errors
	ErrAlreadyStarted = errors.New("component already started")
	ErrNotStarted     = errors.New("component not started")
	ErrShuttingDown   = errors.New("component is shutting down")

	// Configuration errors
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrMissingConfig     = errors.New("missing required configuration")
	ErrUnknownPredicate  = errors.New("unknown predicate")
	ErrUnknownComparator = errors.New("unknown comparator")

	// Device access errors
	ErrMissingCredentials = errors.New("username and passphrase required for remote device")
	ErrLoginFailed        = errors.New("device login failed")
	ErrEndpointNotFound   = errors.New("endpoint not declared")

	// Listener errors
	ErrBindFailed = errors.New("listener bind failed")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// classOf returns the class of a classified error, or ErrorTransient
// with ok=false when the error carries no classification.
func classOf(err error) (ErrorClass, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class, true
	}
	return ErrorTransient, false
}

// IsConfig checks if an error is a schema/configuration error
func IsConfig(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := classOf(err); ok {
		return class == ErrorConfig
	}
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig) ||
		errors.Is(err, ErrUnknownPredicate) ||
		errors.Is(err, ErrUnknownComparator)
}

// IsAuth checks if an error is an authentication failure
func IsAuth(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := classOf(err); ok {
		return class == ErrorAuth
	}
	return errors.Is(err, ErrMissingCredentials) || errors.Is(err, ErrLoginFailed)
}

// IsNetwork checks if an error is an endpoint-scoped fetch failure
func IsNetwork(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := classOf(err); ok {
		return class == ErrorNetwork
	}
	return false
}

// IsListener checks if an error is a listener transport failure
func IsListener(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := classOf(err); ok {
		return class == ErrorListener
	}
	return errors.Is(err, ErrBindFailed)
}

// IsTransient checks if an error is transient and may be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := classOf(err); ok {
		return class == ErrorTransient
	}
	return false
}

// IsFatal checks if an error should abort the current operation entirely.
// Auth failures are fatal to a collection cycle: no stats for that cycle.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := classOf(err); ok {
		return class == ErrorFatal || class == ErrorAuth
	}
	return false
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if class, ok := classOf(err); ok {
		return class
	}
	switch {
	case IsConfig(err):
		return ErrorConfig
	case IsAuth(err):
		return ErrorAuth
	case IsListener(err):
		return ErrorListener
	default:
		return ErrorTransient
	}
}

// newClassified creates a new classified error.
// Internal helper - use the Wrap* functions instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// wrapClass wraps an error with context and the given classification
func wrapClass(class ErrorClass, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, method, action)
	return newClassified(class, wrapped, component, method, wrapped.Error())
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	return wrapClass(ErrorTransient, err, component, method, action)
}

// WrapConfig wraps an error as a schema/configuration error with context
func WrapConfig(err error, component, method, action string) error {
	return wrapClass(ErrorConfig, err, component, method, action)
}

// WrapAuth wraps an error as an authentication failure with context
func WrapAuth(err error, component, method, action string) error {
	return wrapClass(ErrorAuth, err, component, method, action)
}

// WrapNetwork wraps an error as an endpoint fetch failure with context
func WrapNetwork(err error, component, method, action string) error {
	return wrapClass(ErrorNetwork, err, component, method, action)
}

// WrapListener wraps an error as a listener transport failure with context
func WrapListener(err error, component, method, action string) error {
	return wrapClass(ErrorListener, err, component, method, action)
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	return wrapClass(ErrorFatal, err, component, method, action)
}
