package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/apr/internal/domain/apr"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest    = errors.New("bad request")
	ErrBatchTooLarge = errors.New("batch too large")
)

// wrapKind tags err with the operation and kind.
func wrapKind(op string, kind, err error) error {
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// statusFor maps a ComputeAPR error to a status code and error code.
func statusFor(err error) (int, string) {
	switch kind := apr.Kind(err); kind {
	case "invalid_user":
		return http.StatusUnprocessableEntity, kind
	case "bad_endpoint", "decode_failure":
		return http.StatusBadGateway, kind
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
