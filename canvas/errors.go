package canvas

import (
	"errors"
	"fmt"

	"tactics-board/core"
)

var (
	ErrClosed         = errors.New("canvas host is torn down")
	ErrNotMounted     = errors.New("canvas host has no live surface")
	ErrQueueFull      = errors.New("pending object queue is full")
	ErrDuplicateID    = errors.New("object uuid already on board")
	ErrObjectNotFound = errors.New("object not found")
	ErrLocked         = errors.New("object is locked")
)

// InitializationError means the rendering surface could not be created. It is
// fatal to the host instance; the caller may retry Init.
type InitializationError struct {
	Container string
	Err       error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("initialize surface for container %q: %v", e.Container, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// ValidationError reports a malformed board document.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid document: %s: %s", e.Field, e.Reason)
}

// PermissionError reports a mutation or render attempted without the required level.
type PermissionError struct {
	Op    string
	Level core.AccessLevel
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s not permitted with access level %q", e.Op, e.Level)
}

// ResourceError reports a background image that failed to load. The board still renders.
type ResourceError struct {
	Ref string
	Err error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("load background %q: %v", e.Ref, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// IsPermission reports whether err is a PermissionError.
func IsPermission(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
