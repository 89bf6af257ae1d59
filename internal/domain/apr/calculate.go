package apr

import (
	"fmt"

	"github.com/okian/apr/internal/domain/model"
)

// percentDivisor scales an averaged score into the rate.
const percentDivisor = 100.0

// ValidateUser applies the id policy: even ids are rejected.
func ValidateUser(id model.UserID) error {
	if id%2 == 0 {
		return fmt.Errorf("%w: %d", ErrInvalidUser, id)
	}
	return nil
}

// Calculate averages the first score of each response and divides by 100.
// The division is done in floating point, so 555 and 556 give 5.555.
func Calculate(responses ...model.ScoreResponse) (model.APR, error) {
	if len(responses) == 0 {
		return 0, fmt.Errorf("%w: no score responses", ErrDecodeFailure)
	}
	var sum float64
	for _, r := range responses {
		first, err := r.First()
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrDecodeFailure, err)
		}
		sum += float64(first)
	}
	return model.APR(sum / float64(len(responses)) / percentDivisor), nil
}
