package openapi

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrorResponse is the default response model of an HTTPError.
type ErrorResponse struct {
	Message string `json:"message,omitempty"`
}

// HTTPError is an error returned by a handler with a fixed status code.
// Declared in Docs.Errors, it documents one error response: keyed by
// Status, with MimeType as content type and Model as schema. Name is
// matched against the "Raises:" section of the handler docstring.
type HTTPError struct {
	Name     string
	Status   int
	MimeType string
	Model    any
	Message  string
}

var (
	ErrBadRequest     = NewHTTPError("BadRequestError", http.StatusBadRequest, nil).WithMessage("Bad request")
	ErrNotFound       = NewHTTPError("NotFoundError", http.StatusNotFound, nil).WithMessage("Not found")
	ErrInternalServer = NewHTTPError("InternalServerError", http.StatusInternalServerError, nil).WithMessage("Internal server error")
)

// NewHTTPError declares an error kind. A nil model defaults to ErrorResponse.
func NewHTTPError(name string, status int, model any) *HTTPError {
	if model == nil {
		model = ErrorResponse{}
	}
	return &HTTPError{
		Name:     name,
		Status:   status,
		MimeType: "application/json",
		Model:    model,
	}
}

// WithMessage returns a copy of e carrying message.
func (e *HTTPError) WithMessage(message string) *HTTPError {
	c := *e
	c.Message = message
	return &c
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if text := http.StatusText(e.Status); text != "" {
		return text
	}
	return e.Name
}

// Is matches errors of the same kind regardless of their message.
func (e *HTTPError) Is(target error) bool {
	var t *HTTPError
	if !errors.As(target, &t) {
		return false
	}
	return e.Name == t.Name && e.Status == t.Status
}

func (e *HTTPError) contentType() string {
	if e.MimeType == "" {
		return "application/json"
	}
	return e.MimeType
}

// WriteError renders err as a JSON error response of the form
// {"detail": ...}. HTTPErrors use their own status, malformed JSON input
// is reported as 422 and anything else as 500.
func WriteError(w http.ResponseWriter, err error) {
	var (
		status = http.StatusInternalServerError
		detail any
	)

	var httpErr *HTTPError
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError

	switch {
	case errors.As(err, &httpErr):
		status = httpErr.Status
		detail = ErrorResponse{Message: httpErr.Error()}
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		status = http.StatusUnprocessableEntity
		detail = ErrorResponse{Message: err.Error()}
	default:
		detail = ErrorResponse{Message: http.StatusText(status)}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"detail": detail})
}
