package domain

import "errors"

// ErrInvalidConfig indicates that the refinement configuration is invalid.
var ErrInvalidConfig = errors.New("invalid refinement configuration")

// ErrInvalidEntry indicates that a dataset record could not be decoded into an Entry.
var ErrInvalidEntry = errors.New("invalid dataset entry")

// ErrInvalidRecord indicates that a persisted record is missing its identifier.
var ErrInvalidRecord = errors.New("invalid result record")
