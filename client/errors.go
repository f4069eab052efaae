package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrUnauthorized matches any 401 from the backend: bad credentials at
	// login or a credential the backend no longer accepts.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden matches any 403, e.g. an unverified account or a
	// non-admin calling an admin endpoint.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidValue is wrapped by the Parse functions.
	ErrInvalidValue = errors.New("invalid value")
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Detail)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	}
	return false
}

// readAPIError builds an APIError from resp. The backend reports failures
// as {"detail": ...}; detail is usually a string but validation failures
// carry a list, which is kept as raw JSON.
func readAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(body) == 0 {
		return apiErr
	}
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		apiErr.Detail = strings.TrimSpace(string(body))
		return apiErr
	}
	var s string
	if err := json.Unmarshal(payload.Detail, &s); err == nil {
		apiErr.Detail = s
		return apiErr
	}
	apiErr.Detail = string(payload.Detail)
	return apiErr
}

// Detail returns the backend's detail message carried by err, or fallback
// when err carries none.
func Detail(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return fallback
}
