package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when no status is recorded for a job id
	ErrJobNotFound = errors.New("job not found")

	// ErrUnknownExportType is returned when no report family handles an export type
	ErrUnknownExportType = errors.New("unknown export type")
)

// DecodeError reports a payload that is not well-formed JSON
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "decode export message: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ValidationError reports a well-formed message that is semantically incomplete
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid export message: %s %s", e.Field, e.Reason)
}

// PublishError reports a broker failure on the publish path. The publisher
// does not retry, the caller decides.
type PublishError struct {
	Queue string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to queue %q: %v", e.Queue, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// Retryable is always true: broker outages are transient from the caller's view
func (e *PublishError) Retryable() bool {
	return true
}

// ProcessingError wraps a failure inside the consumer for one message
type ProcessingError struct {
	Stage      string // fetch, project, render, persist
	ExportType string
	Err        error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("process %s export (%s): %v", e.ExportType, e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// ConnectionError is fatal for the worker: it must not keep running disconnected
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return "broker connection: " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err carries a RetryableError anywhere in its chain
func IsRetryable(err error) bool {
	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}
