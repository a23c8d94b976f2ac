package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedRequest is returned when a batch payload fails validation.
	ErrMalformedRequest = errors.New("malformed request")

	// ErrCorpusNotFound is returned when no corpus file matches a configured pattern.
	ErrCorpusNotFound = errors.New("corpus file not found")

	// ErrAmbiguousCorpus is returned when the entity pattern matches more than one file.
	ErrAmbiguousCorpus = errors.New("entity corpus pattern matches more than one file")

	// ErrRecordTooLarge is returned when a corpus line exceeds the configured read limit.
	ErrRecordTooLarge = errors.New("record exceeds max_record_bytes")

	// ErrNotLoaded is returned by stores used before a successful load.
	ErrNotLoaded = errors.New("store not loaded")
)

// StartupError reports a corpus or index that could not be loaded.
// The service must not begin serving after one of these.
//
// The underlying error can be accessed via errors.Unwrap.
type StartupError struct {
	Component string
	Path      string
	cause     error
}

// NewStartupError wraps cause as a StartupError for component.
func NewStartupError(component, path string, cause error) *StartupError {
	return &StartupError{Component: component, Path: path, cause: cause}
}

func (e *StartupError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: startup failed: %v", e.Component, e.cause)
	}
	return fmt.Sprintf("%s: startup failed for %s: %v", e.Component, e.Path, e.cause)
}

func (e *StartupError) Unwrap() error { return e.cause }
