package service

import (
	"context"
	"slices"
	"sync"

	"github.com/okian/apr/internal/domain/model"
)

// FailureCollector accumulates failed user ids from concurrent tasks. Add is
// safe for concurrent use; ids are kept in arrival order.
type FailureCollector struct {
	mu  sync.Mutex
	ids []model.UserID
}

// Add records a failed id.
func (c *FailureCollector) Add(id model.UserID) {
	c.mu.Lock()
	c.ids = append(c.ids, id)
	c.mu.Unlock()
}

// IDs returns a copy of the failed ids.
func (c *FailureCollector) IDs() []model.UserID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.ids)
}

// Len returns the number of failed ids.
func (c *FailureCollector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids)
}

type success struct {
	id   model.UserID
	rate model.APR
}

// batchRecorder routes terminal task states: successes to the aggregator
// goroutine over a channel, failures to the collector. It satisfies
// worker.Recorder.
type batchRecorder struct {
	results  chan<- success
	failures *FailureCollector
	reporter Reporter
}

func (r *batchRecorder) RecordSuccess(ctx context.Context, id model.UserID, rate model.APR) {
	r.results <- success{id: id, rate: rate}
	r.reporter.Report(ctx, id, rate, nil)
}

func (r *batchRecorder) RecordFailure(ctx context.Context, id model.UserID, err error) {
	r.failures.Add(id)
	r.reporter.Report(ctx, id, 0, err)
}

// aggregate owns the success map. It returns once results is closed.
func aggregate(results <-chan success, capacity int) <-chan map[model.UserID]model.APR {
	out := make(chan map[model.UserID]model.APR, 1)
	go func() {
		aprs := make(map[model.UserID]model.APR, capacity)
		for s := range results {
			aprs[s.id] = s.rate
		}
		out <- aprs
	}()
	return out
}
