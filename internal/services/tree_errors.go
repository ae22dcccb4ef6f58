package services

import (
	"errors"
	"fmt"
)

var (
	ErrMemberNotFound = errors.New("member not found")
	ErrFamilyNotFound = errors.New("family not found")
	ErrReadOnly       = errors.New("only the family owner can change this tree")
	ErrNotEditable    = errors.New("field cannot be edited")
)

// PersistenceError wraps a failed write or read against the database.
// The local member store is left unchanged when one is returned.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// UploadError reports a photo that could not be stored. The member is still
// saved with its previous photo.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("photo upload failed: %v", e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }
