package persistence

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes runtime errors.
type ErrorCode string

const (
	// ErrCodeSchema indicates a statement failed during schema bootstrap.
	ErrCodeSchema ErrorCode = "SCHEMA"

	// ErrCodeSerialization indicates a codec refused to produce or parse bytes.
	ErrCodeSerialization ErrorCode = "SERIALIZATION"

	// ErrCodeStorage indicates the underlying database reported an error.
	ErrCodeStorage ErrorCode = "STORAGE"

	// ErrCodeBehaviourResolution indicates no Behaviour exists for a class.
	ErrCodeBehaviourResolution ErrorCode = "BEHAVIOUR_RESOLUTION"

	// ErrCodeConfiguration indicates an unset required field, or a
	// behaviour consulting the current-Entities slot outside an apply.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION"

	// ErrCodeUnsupported indicates an operation the public entrypoint
	// does not support (publishing a delayed signal directly).
	ErrCodeUnsupported ErrorCode = "UNSUPPORTED"
)

// Error is a structured runtime error. Op names the failing operation,
// Err carries the underlying cause (may be nil).
type Error struct {
	Code ErrorCode
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

func schemaError(op string, err error) *Error {
	return newError(ErrCodeSchema, op, err)
}

func serializationError(op string, err error) *Error {
	return newError(ErrCodeSerialization, op, err)
}

func storageError(op string, err error) *Error {
	return newError(ErrCodeStorage, op, err)
}

func codeOf(err error) (ErrorCode, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	return "", false
}

// IsStorage reports whether err is a storage error. Uses errors.As to
// handle wrapped errors.
func IsStorage(err error) bool {
	code, ok := codeOf(err)
	return ok && code == ErrCodeStorage
}

// IsSerialization reports whether err is a serialization error.
func IsSerialization(err error) bool {
	code, ok := codeOf(err)
	return ok && code == ErrCodeSerialization
}

// IsSchema reports whether err is a schema bootstrap error.
func IsSchema(err error) bool {
	code, ok := codeOf(err)
	return ok && code == ErrCodeSchema
}

// IsBehaviourResolution reports whether err is a behaviour resolution error.
func IsBehaviourResolution(err error) bool {
	code, ok := codeOf(err)
	return ok && code == ErrCodeBehaviourResolution
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool {
	code, ok := codeOf(err)
	return ok && code == ErrCodeConfiguration
}

// IsUnsupported reports whether err is an unsupported-operation error.
func IsUnsupported(err error) bool {
	code, ok := codeOf(err)
	return ok && code == ErrCodeUnsupported
}
