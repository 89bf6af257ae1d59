package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrBatchCancelled = errors.New("batch cancelled before the task started")
)
