// Package apierror defines the error taxonomy shared by all HTTP handlers:
// validation failures, conflicts, missing resources, external API failures,
// and a single mapping point from error values to HTTP responses.
package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ValidationError reports one or more structural or required-field failures.
// It always maps to HTTP 400 and implies no write was performed.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages, "; ")
}

// NewValidation creates a ValidationError from a list of messages.
func NewValidation(messages ...string) *ValidationError {
	return &ValidationError{Messages: messages}
}

// ConflictError reports a state conflict: duplicate name, already-linked
// pair, mismatched organizational flag, last-framework removal.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// NewConflict creates a ConflictError with a formatted message.
func NewConflict(format string, args ...any) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing framework, project, link, or record.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// NewNotFound creates a NotFoundError for the given resource and id.
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ExternalAPIError carries the HTTP status and response body text of a
// non-2xx answer from an external REST API. It aborts the enclosing sync
// and maps to HTTP 502.
type ExternalAPIError struct {
	StatusCode int
	Body       string
}

func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("external API returned %d: %s", e.StatusCode, e.Body)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

// WriteHTTP writes err as a JSON error response, mapping each taxonomy
// member to its status code. Unclassified errors become a 500 carrying the
// underlying message, matching the rollback-then-surface transaction rule.
func WriteHTTP(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	var ve *ValidationError
	if errors.As(err, &ve) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":    "validation_failed",
			"messages": ve.Messages,
		})
		return
	}

	var ce *ConflictError
	if errors.As(err, &ce) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":   "conflict",
			"message": ce.Message,
		})
		return
	}

	var ne *NotFoundError
	if errors.As(err, &ne) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":   "not_found",
			"message": ne.Error(),
		})
		return
	}

	var ee *ExternalAPIError
	if errors.As(err, &ee) {
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":          "external_api_error",
			"upstreamStatus": ee.StatusCode,
			"message":        ee.Body,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "internal",
		"message": err.Error(),
	})
}
