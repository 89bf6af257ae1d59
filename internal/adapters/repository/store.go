// Package repository keeps the outcomes of recent batches so they can be
// looked up by id after the request that ran them has returned.
package repository

import (
	"context"

	"github.com/okian/apr/internal/domain/model"
)

// Store provides read/write access to batch history.
type Store interface {
	// Save records an outcome, evicting the oldest one when full.
	Save(ctx context.Context, out model.Outcome) error

	// Get returns the outcome for a batch id.
	// Returns ErrNotFound if the batch is unknown or was evicted.
	Get(ctx context.Context, batchID string) (model.Outcome, error)

	// Recent returns up to n outcomes, newest first.
	Recent(ctx context.Context, n int) ([]model.Outcome, error)

	// Count returns the number of outcomes held.
	Count(ctx context.Context) int
}
