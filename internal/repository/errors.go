package repository

import "errors"

var (
	// ErrNotFound is returned when a referenced document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrSessionExists is returned by Create when an ACTIVE session for the
	// same learner and module already exists. Callers wanting get-or-create
	// semantics should call GetActive first.
	ErrSessionExists = errors.New("active session already exists")
)
