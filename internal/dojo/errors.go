package dojo

import (
	"fmt"
	"strings"
)

// maxErrorBody bounds how much of a response body is kept in error values.
const maxErrorBody = 2048

// EntityKind names one level of the product-type/product/engagement hierarchy.
type EntityKind string

const (
	KindProductType EntityKind = "product type"
	KindProduct     EntityKind = "product"
	KindEngagement  EntityKind = "engagement"
)

// AuthError is returned when the login exchange is rejected or cannot complete.
type AuthError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %v", e.Err)
	}
	return fmt.Sprintf("authentication failed: status %d: %s", e.StatusCode, e.Body)
}

func (e *AuthError) Unwrap() error { return e.Err }

// StatusError reports an unexpected HTTP status from the service.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// ResolutionError means an entity could neither be found nor created.
type ResolutionError struct {
	Kind EntityKind
	Name string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve %s '%s': %v", e.Kind, e.Name, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
