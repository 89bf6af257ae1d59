package model

import (
	"slices"
	"time"
)

// Outcome is the result of one batch. Every distinct input user appears in
// exactly one of APRs and Failed.
type Outcome struct {
	BatchID   string
	Mode      Mode
	APRs      map[UserID]APR
	Failed    []UserID
	StartedAt time.Time
	Duration  time.Duration
}

// Succeeded returns the number of users with an APR.
func (o Outcome) Succeeded() int { return len(o.APRs) }

// Total returns the number of users the batch covered.
func (o Outcome) Total() int { return len(o.APRs) + len(o.Failed) }

// FailedSorted returns a sorted copy of Failed. Concurrent batches record
// failures in completion order.
func (o Outcome) FailedSorted() []UserID {
	out := slices.Clone(o.Failed)
	slices.Sort(out)
	return out
}

// UniqueUserIDs drops repeated ids, keeping the first occurrence.
func UniqueUserIDs(ids []UserID) []UserID {
	seen := make(map[UserID]struct{}, len(ids))
	out := make([]UserID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
