// Package errs holds the error taxonomy shared by the loader, the worker,
// the process supervisor and the document controller.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification with errors.Is.
var (
	// ErrResource indicates that an engine, goroutine or buffer could not be
	// set up. The run is aborted and the execution state reset.
	ErrResource = errors.New("resource error")

	// ErrScript indicates that the script engine reported a failure.
	ErrScript = errors.New("script error")

	// ErrCancelled is the stop sentinel raised inside the engine when the
	// user asks a running script to stop. It is not a fault.
	ErrCancelled = errors.New("script stopped by user")

	// ErrProcessSpawn indicates that an external tool failed to launch.
	ErrProcessSpawn = errors.New("process spawn failed")

	// ErrEncoding indicates an unrecognized byte stream. Loading continues.
	ErrEncoding = errors.New("unrecognized encoding")

	// ErrSizeLimit indicates that a document, line or script exceeds a hard cap.
	ErrSizeLimit = errors.New("size limit exceeded")

	// ErrBusy is returned when a run or tool is requested while one is in flight.
	ErrBusy = errors.New("document is busy")
)

// ScriptError is a failure reported by the script engine, with the 1-based
// line it occurred on. Line is zero when unknown.
type ScriptError struct {
	Message string
	Line    int
	Err     error
}

// Error returns the message, including the line if available.
func (e *ScriptError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s (line %d)", e.Message, e.Line)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *ScriptError) Unwrap() error {
	return e.Err
}

// Is lets ScriptError match ErrScript.
func (e *ScriptError) Is(target error) bool {
	return target == ErrScript
}

// SizeLimitError reports which cap was hit.
type SizeLimitError struct {
	What  string // "file", "line", "script"
	Size  int64
	Limit int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("%s size %d B exceeds limit of %d B", e.What, e.Size, e.Limit)
}

// Is lets SizeLimitError match ErrSizeLimit.
func (e *SizeLimitError) Is(target error) bool {
	return target == ErrSizeLimit
}

// Resource wraps err as a resource error.
func Resource(what string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", what, ErrResource)
	}
	return fmt.Errorf("%s: %w: %w", what, ErrResource, err)
}

// IsCancelled reports whether err is (or wraps) the stop sentinel.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
