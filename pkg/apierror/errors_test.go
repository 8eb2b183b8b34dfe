package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteHTTPValidation(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHTTP(rec, NewValidation("name is required", "structure is empty"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "validation_failed", body["error"])
	assert.Len(t, body["messages"], 2)
}

func TestWriteHTTPConflict(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHTTP(rec, NewConflict("framework %q already exists", "ISO 27001"))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "ISO 27001")
}

func TestWriteHTTPNotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHTTP(rec, NewNotFound("framework", "fw-1"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `framework \"fw-1\" not found`)
}

func TestWriteHTTPExternalAPI(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHTTP(rec, &ExternalAPIError{StatusCode: 401, Body: "Unauthorized"})

	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(401), body["upstreamStatus"])
}

func TestWriteHTTPUnclassified(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHTTP(rec, errors.New("disk on fire"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "disk on fire")
}

func TestPredicatesSeeWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("attach: %w", NewConflict("already linked"))
	assert.True(t, IsConflict(wrapped))
	assert.False(t, IsNotFound(wrapped))
	assert.True(t, IsNotFound(fmt.Errorf("x: %w", NewNotFound("project", "p1"))))
	assert.True(t, IsValidation(fmt.Errorf("x: %w", NewValidation("m"))))
}
