// Package errors defines the failure taxonomy of a harvest cycle.
// Only HARD_FAILURE aborts a cycle; every other type is recorded and skipped.
package errors

import (
	stderrors "errors"
	"fmt"

	goerrors "github.com/go-errors/errors"
)

type ErrorType string

const (
	// ErrTypeAuth: login or registration exhausted every credential.
	ErrTypeAuth ErrorType = "AUTH_FAILURE"
	// ErrTypeRender: navigation timed out or the renderer errored.
	ErrTypeRender ErrorType = "RENDER_FAILURE"
	// ErrTypeExtraction: a page had no title, company or description.
	ErrTypeExtraction ErrorType = "EXTRACTION_INCOMPLETE"
	// ErrTypeValidation: a posting was rejected by the content validator.
	ErrTypeValidation ErrorType = "VALIDATION_REJECTION"
	// ErrTypeHard: the renderer cannot be launched or the store is unreachable.
	ErrTypeHard     ErrorType = "HARD_FAILURE"
	ErrTypeInternal ErrorType = "INTERNAL"
)

type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Stack   []byte
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func (e *DomainError) StackTrace() []byte {
	return e.Stack
}

func New(errType ErrorType, message string, err error) *DomainError {
	var stack []byte
	if err != nil {
		var stackErr *goerrors.Error
		if stderrors.As(err, &stackErr) {
			stack = stackErr.Stack()
		} else {
			stack = goerrors.Wrap(err, 2).Stack()
		}
	} else {
		stack = goerrors.New(message).Stack()
	}

	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Stack:   stack,
	}
}

func AuthFailure(message string, err error) *DomainError {
	return New(ErrTypeAuth, message, err)
}

func RenderFailure(message string, err error) *DomainError {
	return New(ErrTypeRender, message, err)
}

func ExtractionIncomplete(message string, err error) *DomainError {
	return New(ErrTypeExtraction, message, err)
}

func ValidationRejection(message string, err error) *DomainError {
	return New(ErrTypeValidation, message, err)
}

func HardFailure(message string, err error) *DomainError {
	return New(ErrTypeHard, message, err)
}

func Internal(message string, err error) *DomainError {
	return New(ErrTypeInternal, message, err)
}

// IsType reports whether any error in err's chain is a DomainError of errType.
func IsType(err error, errType ErrorType) bool {
	var de *DomainError
	if !stderrors.As(err, &de) {
		return false
	}
	if de.Type == errType {
		return true
	}
	return IsType(de.Err, errType)
}

// Is delegates to the standard library so callers need only one errors import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As delegates to the standard library.
func As(err error, target any) bool { return stderrors.As(err, target) }
