package feedback

import (
	"errors"
	"fmt"
)

// Kind classifies a failed submission.
type Kind string

const (
	KindUnauthenticated    Kind = "unauthenticated"
	KindInvalidToken       Kind = "invalid_token"
	KindInvalidDocument    Kind = "invalid_document"
	KindInvalidRecord      Kind = "invalid_record"
	KindForbidden          Kind = "forbidden"
	KindPersistenceFailure Kind = "persistence_failure"
	KindInvalidRequest     Kind = "invalid_request"
	KindAlreadyAnswered    Kind = "already_answered"
	KindThrottled          Kind = "throttled"
)

// ErrNotFound is returned by stores when the addressed row does not exist.
var ErrNotFound = errors.New("not found")

// Error is a recoverable submission failure with a respondent-facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError makes an *Error. cause may be nil.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// KindOf returns the Kind carried by err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// ErrorResult converts err into the error Result shape.
func ErrorResult(err error) Result {
	var fe *Error
	if errors.As(err, &fe) {
		return Result{Status: StatusError, Message: fe.Message, Kind: fe.Kind}
	}
	return Result{Status: StatusError, Message: err.Error(), Kind: KindPersistenceFailure}
}
