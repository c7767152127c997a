package document

import (
	"errors"
	"fmt"
)

// DomainError distinguishes caller-facing failures. Status follows HTTP
// conventions so an API layer built on top can map 4xx (caller problem)
// versus 5xx (deployment defect) without inspecting codes.
type DomainError struct {
	Status  int
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func accessDenied(message string) *DomainError {
	return &DomainError{Status: 403, Code: "access_denied", Message: message}
}

func notFound(message string) *DomainError {
	return &DomainError{Status: 404, Code: "not_found", Message: message}
}

func configError(message string) *DomainError {
	return &DomainError{Status: 500, Code: "configuration_error", Message: message}
}

// IsAccessDenied reports whether err is an access-denied domain error.
func IsAccessDenied(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == "access_denied"
}

// IsNotFound reports whether err is a not-found domain error.
func IsNotFound(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == "not_found"
}
