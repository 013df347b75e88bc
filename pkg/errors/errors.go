package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrConflictingRunFlags indicates that SkipFailed and IncludeFailed were both set
	ErrConflictingRunFlags = errors.New("cannot use both skip failed and include failed")

	// ErrParamsCountMismatch indicates that the number of parameter overlays does not
	// match the number of batch inputs
	ErrParamsCountMismatch = errors.New("parameter overlay count does not match input count")

	// ErrNilGenerator indicates that a pipeline was constructed without a generator
	ErrNilGenerator = errors.New("generator cannot be nil")

	// ErrEmptyBatch indicates that a batch run was invoked with no inputs
	ErrEmptyBatch = errors.New("batch inputs cannot be empty")

	// ErrNoMatches indicates that structured extraction found no matching records
	ErrNoMatches = errors.New("no matching records found")
)

// Error codes used across the SDK
const (
	CodeConfiguration = "CONFIGURATION_ERROR"
	CodeExhausted     = "MAX_ROUNDS_EXHAUSTED"
	CodeGeneration    = "GENERATION_ERROR"
	CodeParsing       = "PARSING_ERROR"
)

// Error represents a structured SDK error
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new SDK error
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ExhaustedError indicates that a request reached its retry ceiling while a
// validator still demanded another round. It carries the last generated text so
// callers can inspect the best-effort output at exhaustion.
type ExhaustedError struct {
	// Rounds is the shared round ceiling that was reached
	Rounds int

	// Text is the input text of the exhausted request
	Text string

	// LastGenerated is the last chunk seen before giving up
	LastGenerated string
}

// Error implements the error interface
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("[%s] exhausted max rounds (%d)", CodeExhausted, e.Rounds)
}

// IsExhausted checks if an error is a validation exhaustion error
func IsExhausted(err error) bool {
	var exhausted *ExhaustedError
	return errors.As(err, &exhausted)
}

// IsConfiguration checks if an error is a configuration error raised before
// any backend call
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConflictingRunFlags) ||
		errors.Is(err, ErrParamsCountMismatch) ||
		errors.Is(err, ErrNilGenerator) ||
		errors.Is(err, ErrEmptyBatch)
}
