package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a unique constraint rejected the write or a
	// concurrent writer won a guarded transition.
	ErrConflict = errors.New("repository: conflict")
)
