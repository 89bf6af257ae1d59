package apr

import "errors"

// Sentinel error kinds returned by ComputeAPR. Callers match them with errors.Is.
var (
	ErrInvalidUser   = errors.New("invalid user id")
	ErrBadEndpoint   = errors.New("bad provider endpoint")
	ErrDecodeFailure = errors.New("score decoding failed")
)

// Kind maps an error from ComputeAPR to a short label for metrics and API codes.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidUser):
		return "invalid_user"
	case errors.Is(err, ErrBadEndpoint):
		return "bad_endpoint"
	case errors.Is(err, ErrDecodeFailure):
		return "decode_failure"
	default:
		return "other"
	}
}
