package repository

import "errors"

// Sentinel kinds for batch history errors.
var (
	ErrNotFound     = errors.New("batch not found")
	ErrInvalidLimit = errors.New("invalid history limit")
	ErrMissingID    = errors.New("outcome has no batch id")
)
