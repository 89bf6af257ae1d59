// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"strings"
)

// UserID identifies a user. Any integer is representable; validity is a
// policy decided by the APR fetcher.
type UserID int

// ScoreResponse is the payload a scoring provider returns: a JSON array of
// integers of which only the first element is used.
type ScoreResponse []int

// ErrEmptyScores is returned by First when a provider sent an empty array.
var ErrEmptyScores = errors.New("score response is empty")

// First returns the leading score.
func (s ScoreResponse) First() (int, error) {
	if len(s) == 0 {
		return 0, ErrEmptyScores
	}
	return s[0], nil
}

// APR is the placeholder annual percentage rate derived from two scores.
type APR float64

// Mode selects how a batch is executed.
type Mode string

// Supported batch modes.
const (
	ModeSequential Mode = "sequential"
	ModeConcurrent Mode = "concurrent"
)

// ErrUnknownMode is returned by ParseMode.
var ErrUnknownMode = errors.New("unknown batch mode")

// ParseMode parses a mode name case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSequential:
		return ModeSequential, nil
	case ModeConcurrent:
		return ModeConcurrent, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Job is one user's APR computation inside a batch.
type Job struct {
	BatchID string
	UserID  UserID
}
