// Package domain defines domain-specific errors.
// These errors represent engine failures and are independent of infrastructure.
package domain

import (
	"errors"
	"fmt"
)

// Common errors that the session and channels can return.
var (
	// ErrSessionNotActive is returned when a channel command arrives before InitAudioSession.
	ErrSessionNotActive = errors.New("must call initAudioSession prior to any other usage")

	// ErrDuplicateChannelID is returned when a channel ID is already registered.
	ErrDuplicateChannelID = errors.New("audioId already in use")

	// ErrChannelNotFound is returned when a channel ID is not in the addressed registry.
	ErrChannelNotFound = errors.New("audioId not found")

	// ErrMissingRequiredField is returned when a request lacks a mandatory field.
	ErrMissingRequiredField = errors.New("missing required field")

	// ErrInvalidVolume is returned for negative volume values.
	ErrInvalidVolume = errors.New("volume cannot be less than zero")

	// ErrInvalidEqBand is returned for a band other than bass, mid or treble.
	ErrInvalidEqBand = errors.New("invalid eq band")

	// ErrInvalidParameter is returned for NaN or infinite EQ values.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrUnknownInputType is returned when inputType is neither "file" nor "mic".
	ErrUnknownInputType = errors.New("unknown input type")

	// ErrSourceUnavailable is returned when a file or device cannot be opened.
	ErrSourceUnavailable = errors.New("audio source unavailable")

	// ErrAlreadyInitialized is returned when Setup runs twice on a channel.
	ErrAlreadyInitialized = errors.New("channel already initialized")

	// ErrAlreadyDestroyed is returned when Destroy runs twice on a channel.
	ErrAlreadyDestroyed = errors.New("channel already destroyed")

	// ErrNotApplicable is returned when an operation does not apply to the channel kind.
	ErrNotApplicable = errors.New("operation not applicable to this channel")

	// ErrNotInitialized is returned when a channel is used before Setup.
	ErrNotInitialized = errors.New("channel not initialized")

	// ErrChannelFaulted is returned by transport operations on a faulted channel.
	ErrChannelFaulted = errors.New("channel is faulted")

	// ErrReleased is returned by platform primitives used after Release.
	ErrReleased = errors.New("platform resource already released")
)

// ChannelNotFoundError reports which registry was searched.
type ChannelNotFoundError struct {
	ID   string
	Kind InputType
}

// Error implements the error interface.
func (e *ChannelNotFoundError) Error() string {
	registry := "audioFileList"
	if e.Kind == InputMic {
		registry = "micInputList"
	}
	return fmt.Sprintf("audioId %q not found in %s", e.ID, registry)
}

// Is makes errors.Is(err, ErrChannelNotFound) succeed.
func (e *ChannelNotFoundError) Is(target error) bool {
	return target == ErrChannelNotFound
}

// NewChannelNotFoundError creates a new ChannelNotFoundError.
func NewChannelNotFoundError(id string, kind InputType) *ChannelNotFoundError {
	return &ChannelNotFoundError{ID: id, Kind: kind}
}

// SourceUnavailableError wraps the platform failure that prevented a channel from opening its source.
type SourceUnavailableError struct {
	Source string // file path or device name
	Err    error  // underlying platform error
}

// Error implements the error interface.
func (e *SourceUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("audio source unavailable: %s", e.Source)
	}
	return fmt.Sprintf("audio source unavailable: %s: %v", e.Source, e.Err)
}

// Unwrap returns the underlying error.
func (e *SourceUnavailableError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrSourceUnavailable) succeed.
func (e *SourceUnavailableError) Is(target error) bool {
	return target == ErrSourceUnavailable
}

// NewSourceUnavailableError creates a new SourceUnavailableError.
func NewSourceUnavailableError(source string, err error) *SourceUnavailableError {
	return &SourceUnavailableError{Source: source, Err: err}
}

// AudioEngineError represents an error from a platform audio primitive.
// This wraps low-level library errors with additional context.
type AudioEngineError struct {
	Op      string // Operation that failed (e.g., "open", "start", "read")
	Path    string // File path or device name (if applicable)
	Message string // Error message
	Err     error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *AudioEngineError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("audio engine %s failed for '%s': %s", e.Op, e.Path, e.Message)
	}
	return fmt.Sprintf("audio engine %s failed: %s", e.Op, e.Message)
}

// Unwrap returns the underlying error.
func (e *AudioEngineError) Unwrap() error {
	return e.Err
}

// NewAudioEngineError creates a new AudioEngineError.
func NewAudioEngineError(op, path, message string, err error) *AudioEngineError {
	return &AudioEngineError{
		Op:      op,
		Path:    path,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error for a single field.
type ValidationError struct {
	Field   string // Field that failed validation
	Value   any    // Value that failed validation
	Message string // Error message
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (value: %v)", e.Field, e.Message, e.Value)
}

// Is makes errors.Is(err, ErrInvalidParameter) succeed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidParameter
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// MissingFieldError names the request field that was absent or empty.
func MissingFieldError(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingRequiredField, field)
}
