package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when no cost has the requested ID.
var ErrNotFound = errors.New("cost not found")

// StorageError reports a failure of the underlying database. The engine's
// error is kept verbatim and reachable through errors.Unwrap.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether err carries a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
