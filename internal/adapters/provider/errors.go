package provider

import "errors"

// Sentinel kinds for provider errors.
var (
	ErrBadEndpoint      = errors.New("bad endpoint")
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrBodyTooLarge     = errors.New("response body too large")
)
