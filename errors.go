package durable

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	ErrCodeUnsupportedVariant     = "UNSUPPORTED_VARIANT"
	ErrCodeCapabilityNotSupported = "CAPABILITY_NOT_SUPPORTED"
	ErrCodeUnableToBind           = "UNABLE_TO_BIND"
	ErrCodeInvalidRequest         = "INVALID_REQUEST"
	ErrCodeTaskHubNotFound        = "TASK_HUB_NOT_FOUND"
	ErrCodeFunctionNotFound       = "FUNCTION_NOT_FOUND"
	ErrCodeProtocolViolation      = "PROTOCOL_VIOLATION"
	ErrCodeEngineFailure          = "ENGINE_FAILURE"
	ErrCodeRegistryFrozen         = "REGISTRY_FROZEN"
	ErrCodeDuplicateFunction      = "DUPLICATE_FUNCTION"
	ErrCodeInstanceNotFound       = "INSTANCE_NOT_FOUND"
	ErrCodeMissingProperty        = "MISSING_DISPATCH_PROPERTY"
)

var (
	ErrUnsupportedVariant = errors.New("unsupported variant", errors.CategoryInternal).
				WithTextCode(ErrCodeUnsupportedVariant)
	ErrCapabilityNotSupported = errors.New("capability not supported", errors.CategoryOperation).
					WithTextCode(ErrCodeCapabilityNotSupported)
	ErrUnableToBind = errors.New("unable to bind endpoint", errors.CategoryInternal).
			WithTextCode(ErrCodeUnableToBind)
	ErrInvalidRequest = errors.New("invalid request", errors.CategoryBadInput).
				WithTextCode(ErrCodeInvalidRequest)
	ErrTaskHubNotFound = errors.New("task hub not found", errors.CategoryNotFound).
				WithTextCode(ErrCodeTaskHubNotFound)
	ErrFunctionNotFound = errors.New("function not found", errors.CategoryNotFound).
				WithTextCode(ErrCodeFunctionNotFound)
	ErrProtocolViolation = errors.New("protocol violation", errors.CategoryInternal).
				WithTextCode(ErrCodeProtocolViolation)
	ErrEngineFailure = errors.New("engine failure", errors.CategoryExternal).
				WithTextCode(ErrCodeEngineFailure)
	ErrRegistryFrozen = errors.New("registry is frozen", errors.CategoryConflict).
				WithTextCode(ErrCodeRegistryFrozen)
	ErrDuplicateFunction = errors.New("function already registered", errors.CategoryConflict).
				WithTextCode(ErrCodeDuplicateFunction)
	ErrInstanceNotFound = errors.New("instance not found", errors.CategoryNotFound).
				WithTextCode(ErrCodeInstanceNotFound)
	ErrMissingProperty = errors.New("dispatch context property missing", errors.CategoryInternal).
				WithTextCode(ErrCodeMissingProperty)
)

// NewError clones base for one occurrence, overriding the message and
// attaching the source error and metadata when given.
func NewError(base *errors.Error, message string, source error, metadata map[string]any) *errors.Error {
	if base == nil {
		base = ErrInvalidRequest
	}
	err := base.Clone()
	if text := strings.TrimSpace(message); text != "" {
		err.Message = text
	}
	if source != nil {
		err.Source = source
	}
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// ErrorCode returns the text code of the first go-errors error in err's chain.
func ErrorCode(err error) string {
	var ge *errors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

// HasErrorCode reports whether err carries the given text code.
func HasErrorCode(err error, code string) bool {
	return code != "" && ErrorCode(err) == code
}

// UnsupportedVariant reports a sum type value with no wire mapping.
func UnsupportedVariant(kind string, value any) *errors.Error {
	return NewError(ErrUnsupportedVariant,
		fmt.Sprintf("no wire mapping for %s %v", kind, value), nil,
		map[string]any{"kind": kind, "variant": fmt.Sprint(value)})
}

// CapabilityNotSupported names the concrete collaborator type lacking an
// optional capability.
func CapabilityNotSupported(capability string, backend any) *errors.Error {
	backendType := fmt.Sprintf("%T", backend)
	return NewError(ErrCapabilityNotSupported,
		fmt.Sprintf("%s is not supported by %s", capability, backendType), nil,
		map[string]any{"capability": capability, "backend": backendType})
}

// AbortError means the work item must be redelivered later. It is never
// recorded in history.
type AbortError struct {
	Reason string
	Cause  error
}

func (e *AbortError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("dispatch aborted: %s: %v", e.Reason, e.Cause)
	}
	return "dispatch aborted: " + e.Reason
}

func (e *AbortError) Unwrap() error {
	return e.Cause
}

// IsAbort reports whether err is or wraps an *AbortError.
func IsAbort(err error) bool {
	var abort *AbortError
	return stderrors.As(err, &abort)
}

// FailureError carries a failure that is recorded as a failed completion.
type FailureError struct {
	Details *FailureDetails
}

func (e *FailureError) Error() string {
	if e.Details == nil {
		return "work item failed"
	}
	return "work item failed: " + e.Details.String()
}

// IsFailure reports whether err is or wraps a *FailureError.
func IsFailure(err error) bool {
	var failure *FailureError
	return stderrors.As(err, &failure)
}

// InvocationError is returned by an Executor when the worker ran and reported
// an application error as a plain string.
type InvocationError struct {
	Message string
}

func (e *InvocationError) Error() string {
	return e.Message
}
