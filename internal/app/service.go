// Package service runs APR computations over batches of users, either one at
// a time or concurrently with per-user failure isolation.
package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	eventqueue "github.com/okian/apr/internal/adapters/mq/queue"
	workerpool "github.com/okian/apr/internal/adapters/mq/worker"
	"github.com/okian/apr/internal/adapters/repository"
	"github.com/okian/apr/internal/domain/model"
	"github.com/okian/apr/pkg/logger"
	"github.com/okian/apr/pkg/metrics"
)

// Computer computes a single user's APR.
type Computer interface {
	ComputeAPR(ctx context.Context, id model.UserID) (model.APR, error)
}

// Service runs batches against a Computer.
type Service struct {
	computer Computer

	// Configuration
	maxConcurrency int

	// Totals across batches
	batches   atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64

	reporter Reporter
	history  repository.Store
	logger   logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithMaxConcurrency bounds concurrent batches to n workers. Zero keeps one
// goroutine per user.
func WithMaxConcurrency(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxConcurrency = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithReporter sets who is told about each finished task. Defaults to a
// logging reporter.
func WithReporter(r Reporter) Option {
	return func(s *Service) {
		if r != nil {
			s.reporter = r
		}
	}
}

// WithHistory sets where finished batches are kept. Defaults to a bounded
// in-memory store.
func WithHistory(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.history = store
		}
	}
}

// New constructs a Service.
func New(computer Computer, opts ...Option) *Service {
	s := &Service{
		computer: computer,
		logger:   logger.Get().Named("batch"),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.reporter == nil {
		s.reporter = logReporter{logger: s.logger}
	}
	if s.history == nil {
		s.history = repository.NewMemoryStore()
	}

	return s
}

// ComputeAPR computes a single user's APR.
func (s *Service) ComputeAPR(ctx context.Context, id model.UserID) (model.APR, error) {
	return s.computer.ComputeAPR(ctx, id)
}

// Run executes a batch in the given mode.
func (s *Service) Run(ctx context.Context, mode model.Mode, ids []model.UserID) (model.Outcome, error) {
	switch mode {
	case model.ModeSequential:
		return s.RunSequential(ctx, ids), nil
	case model.ModeConcurrent:
		return s.RunConcurrent(ctx, ids), nil
	default:
		return model.Outcome{}, fmt.Errorf("%w: %q", model.ErrUnknownMode, mode)
	}
}

// RunSequential computes each user in order, waiting for one before starting
// the next. A failure is reported and the batch moves on.
func (s *Service) RunSequential(ctx context.Context, ids []model.UserID) model.Outcome {
	out, log := s.begin(ctx, model.ModeSequential, ids)
	ids = model.UniqueUserIDs(ids)
	failures := &FailureCollector{}

	for _, id := range ids {
		rate, err := s.runTask(ctx, id)
		if err != nil {
			failures.Add(id)
			s.reporter.Report(ctx, id, 0, err)
			continue
		}
		out.APRs[id] = rate
		s.reporter.Report(ctx, id, rate, nil)
	}

	out.Failed = failures.IDs()
	return s.finish(ctx, log, out)
}

// RunConcurrent starts every user's task without waiting for the others.
// Completion order is arbitrary, so Failed is in arrival order.
func (s *Service) RunConcurrent(ctx context.Context, ids []model.UserID) model.Outcome {
	out, log := s.begin(ctx, model.ModeConcurrent, ids)
	ids = model.UniqueUserIDs(ids)

	results := make(chan success)
	aprs := aggregate(results, len(ids))
	rec := &batchRecorder{
		results:  results,
		failures: &FailureCollector{},
		reporter: s.reporter,
	}

	if s.maxConcurrency > 0 {
		s.runPooled(ctx, out.BatchID, ids, rec)
	} else {
		s.runUnbounded(ctx, ids, rec)
	}

	close(results)
	out.APRs = <-aprs
	out.Failed = rec.failures.IDs()
	return s.finish(ctx, log, out)
}

// runUnbounded spawns one goroutine per user.
func (s *Service) runUnbounded(ctx context.Context, ids []model.UserID, rec *batchRecorder) {
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rate, err := s.runTask(ctx, id)
			if err != nil {
				rec.RecordFailure(ctx, id, err)
				return
			}
			rec.RecordSuccess(ctx, id, rate)
		}()
	}
	wg.Wait()
}

// runPooled feeds every user through a bounded queue to maxConcurrency
// workers. Jobs left in the queue after a cancellation are failed.
func (s *Service) runPooled(ctx context.Context, batchID string, ids []model.UserID, rec *batchRecorder) {
	q := eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(max(len(ids), 1)))
	for _, id := range ids {
		if !q.Enqueue(ctx, model.Job{BatchID: batchID, UserID: id}) {
			rec.RecordFailure(ctx, id, s.cancelled(ctx))
		}
	}
	_ = q.Close()

	pool := workerpool.NewPool(s.maxConcurrency, q, s.computer, rec)
	pool.Start(ctx)
	pool.Wait()

	for job := range q.Dequeue(ctx) {
		rec.RecordFailure(ctx, job.UserID, s.cancelled(ctx))
	}
}

// runTask computes one user unless the batch was already cancelled.
func (s *Service) runTask(ctx context.Context, id model.UserID) (model.APR, error) {
	if ctx.Err() != nil {
		return 0, s.cancelled(ctx)
	}
	metrics.IncTasksInFlight()
	defer metrics.DecTasksInFlight()
	return s.computer.ComputeAPR(ctx, id)
}

func (s *Service) cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrBatchCancelled, context.Cause(ctx))
}

func (s *Service) begin(ctx context.Context, mode model.Mode, ids []model.UserID) (model.Outcome, logger.Logger) {
	out := model.Outcome{
		BatchID:   uuid.NewString(),
		Mode:      mode,
		APRs:      make(map[model.UserID]model.APR, len(ids)),
		StartedAt: time.Now(),
	}
	log := s.logger.With(logger.String("batch_id", out.BatchID), logger.String("mode", string(mode)))
	log.Info(ctx, "batch started", logger.Int("users", len(ids)), logger.Int("max_concurrency", s.maxConcurrency))
	return out, log
}

func (s *Service) finish(ctx context.Context, log logger.Logger, out model.Outcome) model.Outcome {
	out.Duration = time.Since(out.StartedAt)

	s.batches.Add(1)
	s.succeeded.Add(int64(out.Succeeded()))
	s.failed.Add(int64(len(out.Failed)))
	metrics.RecordBatch(string(out.Mode), out.Succeeded(), len(out.Failed), float64(out.Duration.Milliseconds()))

	if err := s.history.Save(ctx, out); err != nil {
		log.Warn(ctx, "failed to store batch outcome", logger.Error(err))
	}

	log.Info(ctx, "batch finished",
		logger.Int("succeeded", out.Succeeded()),
		logger.Int("failed", len(out.Failed)),
		logger.Duration("duration", out.Duration),
	)
	return out
}

// Batch returns a finished batch by id.
func (s *Service) Batch(ctx context.Context, batchID string) (model.Outcome, error) {
	return s.history.Get(ctx, batchID)
}

// RecentBatches returns up to n finished batches, newest first.
func (s *Service) RecentBatches(ctx context.Context, n int) ([]model.Outcome, error) {
	return s.history.Recent(ctx, n)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"batches":        s.batches.Load(),
		"usersSucceeded": s.succeeded.Load(),
		"usersFailed":    s.failed.Load(),
		"maxConcurrency": s.maxConcurrency,
		"batchesStored":  s.history.Count(context.Background()),
	}
}
