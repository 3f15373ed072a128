package notify

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidPriority = errors.New("invalid priority")
	ErrInvalidChannel  = errors.New("invalid channel")
	ErrMissingUser     = errors.New("user id is required")
	ErrMissingType     = errors.New("event type is required")
)

// DispatchError is the error carried on a failed Result.
// Err may join several step failures (for example the in-app write and the
// email enqueue failing independently).
type DispatchError struct {
	Op     string
	UserID string
	Err    error
}

func (e *DispatchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("notify %s user=%s: %v", e.Op, e.UserID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
