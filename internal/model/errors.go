package model

import (
	"errors"
	"fmt"
)

// Error taxonomy. Capture, detection, and persist errors are recoverable
// (the current cycle is skipped); invalid input is fatal to the cycle only;
// config errors are fatal to the run.
var (
	ErrSourceFailed        = errors.New("camera source failed")
	ErrAllSourcesExhausted = errors.New("all camera sources exhausted")
	ErrDetectorUnavailable = errors.New("detector unavailable")
	ErrDetectorTimeout     = errors.New("detector timeout")
	ErrInvalidInput        = errors.New("invalid input")
	ErrPersistFailed       = errors.New("persist failed")
)

// CaptureError wraps a capture failure with the sources that were tried.
type CaptureError struct {
	SourceIDs []int
	Err       error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture failed on sources %v: %v", e.SourceIDs, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// DetectionError wraps a detection failure for one frame.
type DetectionError struct {
	SourceID int
	Err      error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("detection failed for source %d: %v", e.SourceID, e.Err)
}

func (e *DetectionError) Unwrap() error { return e.Err }

// ConfigError marks a structural misconfiguration. It terminates the run
// rather than skipping a cycle.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config: %v", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsRecoverable reports whether err should skip the current cycle instead of
// terminating the run.
func IsRecoverable(err error) bool {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return false
	}
	return errors.Is(err, ErrSourceFailed) ||
		errors.Is(err, ErrAllSourcesExhausted) ||
		errors.Is(err, ErrDetectorUnavailable) ||
		errors.Is(err, ErrDetectorTimeout) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrPersistFailed)
}
