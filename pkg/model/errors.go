package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorCode represents a structured error code.
type ErrorCode string

// Domain error codes shared by the builder, the step executors and the policy plugins.
const (
	ErrInvalidArgument      ErrorCode = "INVALID_ARGUMENT"
	ErrMissingInputFile     ErrorCode = "MISSING_INPUT_FILE"
	ErrMissingDetectorModel ErrorCode = "MISSING_DETECTOR_MODEL"
	ErrUnderspecifiedStep   ErrorCode = "UNDERSPECIFIED_STEP"
	ErrUnresolvedLink       ErrorCode = "UNRESOLVED_LINK"
	ErrMalformedOutputSpec  ErrorCode = "MALFORMED_OUTPUT_SPEC"
	ErrNoConfigPath         ErrorCode = "NO_CONFIG_PATH"
	ErrNoPlatformSelected   ErrorCode = "NO_PLATFORM_SELECTED"
	ErrApplicationFailed    ErrorCode = "APPLICATION_FAILED"
	ErrCatalogConstraint    ErrorCode = "CATALOG_CONSTRAINT"
	ErrMissingSoftware      ErrorCode = "MISSING_SOFTWARE"
)

// API error codes.
const (
	ErrValidation   ErrorCode = "VALIDATION_ERROR"
	ErrNotFound     ErrorCode = "NOT_FOUND"
	ErrUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
)

// JobError is the structured failure result of a job-definition or
// step-execution call. Args holds the full argument set of the failing call.
type JobError struct {
	Code    ErrorCode      `json:"code" yaml:"code"`
	Op      string         `json:"op,omitempty" yaml:"op,omitempty"`
	Message string         `json:"message" yaml:"message"`
	Args    map[string]any `json:"args,omitempty" yaml:"args,omitempty"`
}

func (e *JobError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Args) > 0 {
		keys := make([]string, 0, len(e.Args))
		for k := range e.Args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Args[k])
		}
		b.WriteString(")")
	}
	return b.String()
}

// NewJobError creates a JobError.
func NewJobError(code ErrorCode, op, msg string, args map[string]any) *JobError {
	return &JobError{Code: code, Op: op, Message: msg, Args: args}
}

// CodeOf returns the ErrorCode of the first JobError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var je *JobError
	if errors.As(err, &je) {
		return je.Code
	}
	return ""
}

// IsCode reports whether err carries a JobError with the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// APIError is a structured error returned by the reporting API.
type APIError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// NewValidationError creates an APIError with validation details.
func NewValidationError(msg string, details ...FieldError) *APIError {
	return &APIError{Code: ErrValidation, Message: msg, Details: details}
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

// InvalidTransitionError is returned when a step state transition is invalid.
type InvalidTransitionError struct {
	Step string
	From StepState
	To   StepState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid step state transition: %s → %s (step %s)", e.From, e.To, e.Step)
}
