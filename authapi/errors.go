package authapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-erp-portal/internal/errors"
)

// APIError is a non-2xx answer from the Auth API.
type APIError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("auth api %s: %d %s", e.Endpoint, e.Status, e.Message)
	}
	return fmt.Sprintf("auth api %s: %d", e.Endpoint, e.Status)
}

// Unwrap classifies the status so callers can test with errors.Is.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized:
		return errors.ErrUnauthorized
	case e.Status == http.StatusConflict:
		return errors.ErrUserExists
	case e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity:
		return errors.ErrInvalidRequest
	case e.Status >= http.StatusInternalServerError:
		return errors.ErrBackendUnavailable
	}
	return nil
}

// IsUnauthorized reports whether err means the presented credentials are no longer accepted.
func IsUnauthorized(err error) bool {
	return errors.Is(err, errors.ErrUnauthorized)
}

// UserMessage turns an action error into the text shown next to a form.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == http.StatusUnauthorized:
			return "Invalid username or password"
		case apiErr.Status >= http.StatusInternalServerError:
			return "The authentication service is unavailable. Please try again later."
		case apiErr.Message != "":
			return apiErr.Message
		}
	}
	switch {
	case errors.Is(err, errors.ErrInvalidRequest):
		msg := err.Error()
		if i := strings.LastIndex(msg, ": "+errors.ErrInvalidRequest.Error()); i > 0 {
			msg = msg[:i]
		}
		return capitalise(msg)
	case errors.Is(err, errors.ErrIncompleteResponse):
		return "Login failed: the server returned an incomplete response"
	case errors.Is(err, errors.ErrBackendUnavailable):
		return "The authentication service is unavailable. Please try again later."
	}
	return "Something went wrong. Please try again."
}

func capitalise(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
