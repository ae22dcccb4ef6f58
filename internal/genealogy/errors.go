package genealogy

import (
	"errors"
	"fmt"
)

var (
	// ErrSlotsFull is returned when both parent slots are already taken.
	ErrSlotsFull = errors.New("both parent slots are filled")
	// ErrDuplicateParent is returned when the id already occupies a parent slot.
	ErrDuplicateParent = errors.New("member is already a parent")
)

// ValidationError reports input that is rejected before any write happens.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// CycleError reports a member that is its own ancestor.
type CycleError struct {
	MemberID string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("member %s is its own ancestor", e.MemberID)
}
