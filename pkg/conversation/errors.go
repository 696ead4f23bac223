package conversation

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for unknown conversations and for conversations
	// owned by another user; callers cannot tell the two apart.
	ErrNotFound    = errors.New("conversation not found")
	ErrInvalidMode = errors.New("invalid conversation mode")
	ErrInvalidRole = errors.New("invalid message role")
)

// StorageError wraps a failure of the underlying database.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("conversation storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// txErr passes domain errors raised inside a transaction through unchanged
// and wraps everything else (begin, commit) as a storage error.
func txErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.Is(err, ErrNotFound) || errors.As(err, &se) {
		return err
	}
	return storageErr(op, err)
}
