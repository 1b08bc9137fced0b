package app

import (
	"fmt"
	"net/http"

	"docfeedback/internal/feedback"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// statusFor maps a failure kind to the HTTP status of the response.
func statusFor(kind feedback.Kind) int {
	switch kind {
	case "":
		return http.StatusOK
	case feedback.KindUnauthenticated:
		return http.StatusUnauthorized
	case feedback.KindInvalidToken, feedback.KindForbidden:
		return http.StatusForbidden
	case feedback.KindInvalidDocument, feedback.KindInvalidRecord:
		return http.StatusNotFound
	case feedback.KindAlreadyAnswered:
		return http.StatusConflict
	case feedback.KindThrottled:
		return http.StatusTooManyRequests
	case feedback.KindInvalidRequest:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
