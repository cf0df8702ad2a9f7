package timeline

import "errors"

var (
	ErrValidation         = errors.New("validation failed")
	ErrSegmentNotFound    = errors.New("segment not found")
	ErrClipNotFound       = errors.New("media clip not found")
	ErrAudioTrackNotFound = errors.New("audio track not found")
	ErrNothingToUndo      = errors.New("nothing to undo")
	ErrNothingToRedo      = errors.New("nothing to redo")
)

// ValidationError is a user-facing rejection. The state it was raised
// against is left unchanged.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
