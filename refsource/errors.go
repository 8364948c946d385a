package refsource

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceNotFound is returned when no source with the requested name
	// is registered.
	ErrSourceNotFound = errors.New("refsource: source not found")

	// ErrSourceUnavailable is returned when a source has never been
	// fetched successfully.
	ErrSourceUnavailable = errors.New("refsource: source unavailable")

	// ErrSchemaNotFound is returned when a source does not publish the
	// requested component schema.
	ErrSchemaNotFound = errors.New("refsource: schema not found")
)

// ErrorCode categorizes source errors.
type ErrorCode string

const (
	// ConfigError marks problems found when a source is set up: missing
	// name or location, unsupported location scheme, duplicate names.
	ConfigError ErrorCode = "ConfigError"
	// NetworkError marks failures reading the source location.
	NetworkError ErrorCode = "NetworkError"
	// ParseError marks documents that cannot be decoded.
	ParseError ErrorCode = "ParseError"
)

// SourceError is a structured error tied to one source.
type SourceError struct {
	Code     ErrorCode
	Source   string
	Location string
	Message  string
	Cause    error
}

func (e *SourceError) Error() string {
	msg := fmt.Sprintf("refsource %s: %s", e.Source, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *SourceError) Unwrap() error { return e.Cause }

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	var se *SourceError
	return errors.As(err, &se) && se.Code == ConfigError
}
