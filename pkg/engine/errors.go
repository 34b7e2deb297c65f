package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine failures. Every kind is an ordinary outcome that is
// reported to the caller; none of them is fatal.
type ErrorKind string

const (
	// ErrorKindNotFound indicates an unknown item or container id.
	ErrorKindNotFound ErrorKind = "not_found"

	// ErrorKindIneligible indicates that no container satisfies the placement constraints.
	ErrorKindIneligible ErrorKind = "ineligible"

	// ErrorKindAlreadyUnassigned indicates a retrieval with nothing to retrieve.
	ErrorKindAlreadyUnassigned ErrorKind = "already_unassigned"

	// ErrorKindMalformedExpiry indicates an expiry value that is not a date.
	// It is only ever reported as a diagnostic.
	ErrorKindMalformedExpiry ErrorKind = "malformed_expiry"

	// ErrorKindInvalid indicates a rejected import record.
	ErrorKindInvalid ErrorKind = "invalid"

	// ErrorKindPolicyDenied indicates an import rejected by the admission policy.
	ErrorKindPolicyDenied ErrorKind = "policy_denied"
)

// EngineError represents a classified engine error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// ItemID is the item involved, if any.
	ItemID string `json:"item_id,omitempty"`

	// ContainerID is the container involved, if any.
	ContainerID string `json:"container_id,omitempty"`

	// Operation is the engine operation that failed.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.ItemID != "" {
		msg += fmt.Sprintf(" (item=%s)", e.ItemID)
	}
	if e.ContainerID != "" {
		msg += fmt.Sprintf(" (container=%s)", e.ContainerID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// Reason returns the message reported to transport callers.
func (e *EngineError) Reason() string {
	return e.Message
}

func newError(kind ErrorKind, code, message string, err error) *EngineError {
	return &EngineError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewNotFoundError creates a not-found error.
func NewNotFoundError(message string) *EngineError {
	return newError(ErrorKindNotFound, ErrCodeNotFound, message, nil)
}

// NewIneligibleError creates an error for a placement without a suitable container.
func NewIneligibleError(message string) *EngineError {
	return newError(ErrorKindIneligible, ErrCodeNoSuitableContainer, message, nil)
}

// NewAlreadyUnassignedError creates an error for a retrieval with nothing to retrieve.
func NewAlreadyUnassignedError(message string) *EngineError {
	return newError(ErrorKindAlreadyUnassigned, ErrCodeNotInContainer, message, nil)
}

// NewMalformedExpiryError creates a diagnostic for an unparsable expiry value.
func NewMalformedExpiryError(value string, err error) *EngineError {
	return newError(ErrorKindMalformedExpiry, ErrCodeMalformedExpiry,
		fmt.Sprintf("expiry date %q is not a %s date", value, "YYYY-MM-DD"), err).
		WithDetail("value", value)
}

// NewInvalidError creates an error for a rejected import record.
func NewInvalidError(message string, err error) *EngineError {
	return newError(ErrorKindInvalid, ErrCodeValidation, message, err)
}

// NewPolicyDeniedError creates an error for an import denied by policy.
func NewPolicyDeniedError(message string) *EngineError {
	return newError(ErrorKindPolicyDenied, ErrCodePolicyDenied, message, nil)
}

// WithItem adds item context to an error.
func (e *EngineError) WithItem(itemID string) *EngineError {
	e.ItemID = itemID
	return e
}

// WithContainer adds container context to an error.
func (e *EngineError) WithContainer(containerID string) *EngineError {
	e.ContainerID = containerID
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode overrides the error code.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// KindOf returns the kind of an engine error, or "" for other errors.
func KindOf(err error) ErrorKind {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsNotFound returns true if the error is classified as not found.
func IsNotFound(err error) bool {
	return KindOf(err) == ErrorKindNotFound
}

// IsIneligible returns true if no container could take the item.
func IsIneligible(err error) bool {
	return KindOf(err) == ErrorKindIneligible
}

// IsAlreadyUnassigned returns true if the item was not in any container.
func IsAlreadyUnassigned(err error) bool {
	return KindOf(err) == ErrorKindAlreadyUnassigned
}

// IsMalformedExpiry returns true if the error is an expiry diagnostic.
func IsMalformedExpiry(err error) bool {
	return KindOf(err) == ErrorKindMalformedExpiry
}

// IsInvalid returns true if an import record was rejected.
func IsInvalid(err error) bool {
	return KindOf(err) == ErrorKindInvalid
}

// IsPolicyDenied returns true if an import was denied by policy.
func IsPolicyDenied(err error) bool {
	return KindOf(err) == ErrorKindPolicyDenied
}

// Common error codes.
const (
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeNoSuitableContainer = "NO_SUITABLE_CONTAINER"
	ErrCodeNotInContainer      = "NOT_IN_CONTAINER"
	ErrCodeMalformedExpiry     = "MALFORMED_EXPIRY"
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodePolicyDenied        = "POLICY_DENIED"
)
