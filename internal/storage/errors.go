package storage

import (
	"errors"
	"fmt"
)

// Sentinel errors for artifact storage operations. Backends wrap these in
// a *StorageError so callers can match with errors.Is regardless of the
// provider in use.
var (
	// ErrNotFound means no object exists at the key.
	ErrNotFound = errors.New("artifact object not found")

	// ErrKeyExists means a Put without Overwrite hit an occupied key.
	ErrKeyExists = errors.New("artifact object already exists")

	// ErrInvalidKey means the key is empty or attempts path traversal.
	ErrInvalidKey = errors.New("invalid artifact key")

	// ErrTooLarge means the upload exceeded PutOptions.MaxSize.
	ErrTooLarge = errors.New("artifact exceeds maximum size")

	// ErrAccessDenied means the backend refused the operation.
	ErrAccessDenied = errors.New("artifact access denied")
)

// StorageError carries the failed operation and key alongside the cause.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err means the object does not exist. The
// artifact service maps this to a domain not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
