package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/apr/internal/adapters/repository"
	service "github.com/okian/apr/internal/app"
	"github.com/okian/apr/internal/domain/apr"
	"github.com/okian/apr/internal/domain/model"
	"github.com/okian/apr/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	goleak.VerifyTestMain(m)
}

// stubComputer mimics the fetcher: even ids are invalid, ids listed in broken
// fail decoding, everything else gets rate.
type stubComputer struct {
	rate   model.APR
	broken map[model.UserID]bool
	delay  time.Duration

	calls  atomic.Int64
	active atomic.Int64
	peak   atomic.Int64
}

func (c *stubComputer) ComputeAPR(ctx context.Context, id model.UserID) (model.APR, error) {
	c.calls.Add(1)
	n := c.active.Add(1)
	defer c.active.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if err := apr.ValidateUser(id); err != nil {
		return 0, err
	}
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return 0, fmt.Errorf("%w: %w", apr.ErrDecodeFailure, ctx.Err())
		}
	}
	if c.broken[id] {
		return 0, fmt.Errorf("%w: user %d", apr.ErrDecodeFailure, id)
	}
	return c.rate, nil
}

// recordingReporter keeps every report it receives.
type recordingReporter struct {
	mu      sync.Mutex
	reports map[model.UserID]error
	order   []model.UserID
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{reports: make(map[model.UserID]error)}
}

func (r *recordingReporter) Report(_ context.Context, id model.UserID, _ model.APR, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports[id] = err
	r.order = append(r.order, id)
}

func (r *recordingReporter) snapshot() (map[model.UserID]error, []model.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[model.UserID]error, len(r.reports))
	for k, v := range r.reports {
		out[k] = v
	}
	return out, append([]model.UserID(nil), r.order...)
}

func ids(n int) []model.UserID {
	out := make([]model.UserID, n)
	for i := range out {
		out[i] = model.UserID(i + 1)
	}
	return out
}

// assertPartition checks every distinct input id lands in exactly one of
// APRs and Failed.
func assertPartition(out model.Outcome, input []model.UserID) {
	distinct := model.UniqueUserIDs(input)
	So(out.Total(), ShouldEqual, len(distinct))
	for _, id := range distinct {
		_, ok := out.APRs[id]
		failed := 0
		for _, f := range out.Failed {
			if f == id {
				failed++
			}
		}
		So(ok != (failed == 1), ShouldBeTrue)
		So(failed, ShouldBeLessThanOrEqualTo, 1)
	}
}

func TestService_RunSequential(t *testing.T) {
	Convey("Given a service whose providers always answer 500", t, func() {
		computer := &stubComputer{rate: 5.0}
		reporter := newRecordingReporter()
		svc := service.New(computer, service.WithReporter(reporter))
		ctx := context.Background()

		Convey("When running users 1 through 4 sequentially", func() {
			out := svc.RunSequential(ctx, []model.UserID{1, 2, 3, 4})

			Convey("Then odd users succeed and even users fail", func() {
				So(out.Mode, ShouldEqual, model.ModeSequential)
				So(out.APRs, ShouldResemble, map[model.UserID]model.APR{1: 5.0, 3: 5.0})
				So(out.Failed, ShouldResemble, []model.UserID{2, 4})
				So(out.BatchID, ShouldNotBeEmpty)
				assertPartition(out, []model.UserID{1, 2, 3, 4})
			})

			Convey("Then reports arrive in input order with the failure kinds", func() {
				reports, order := reporter.snapshot()
				So(order, ShouldResemble, []model.UserID{1, 2, 3, 4})
				So(reports[1], ShouldBeNil)
				So(errors.Is(reports[2], apr.ErrInvalidUser), ShouldBeTrue)
				So(errors.Is(reports[4], apr.ErrInvalidUser), ShouldBeTrue)
			})
		})

		Convey("When one provider is malformed for user 5", func() {
			computer.broken = map[model.UserID]bool{5: true}
			out := svc.RunSequential(ctx, []model.UserID{1, 5, 7})

			Convey("Then only user 5 fails and the rest still succeed", func() {
				So(out.APRs, ShouldResemble, map[model.UserID]model.APR{1: 5.0, 7: 5.0})
				So(out.Failed, ShouldResemble, []model.UserID{5})
				reports, _ := reporter.snapshot()
				So(errors.Is(reports[5], apr.ErrDecodeFailure), ShouldBeTrue)
			})
		})

		Convey("When the input is empty", func() {
			out := svc.RunSequential(ctx, nil)

			Convey("Then the outcome is empty and no task runs", func() {
				So(out.APRs, ShouldBeEmpty)
				So(out.Failed, ShouldBeEmpty)
				So(computer.calls.Load(), ShouldEqual, 0)
			})
		})

		Convey("When the input repeats ids", func() {
			input := []model.UserID{3, 3, 2, 3, 2}
			out := svc.RunSequential(ctx, input)

			Convey("Then each distinct id is computed once", func() {
				So(computer.calls.Load(), ShouldEqual, 2)
				So(out.Failed, ShouldResemble, []model.UserID{2})
				assertPartition(out, input)
			})
		})

		Convey("When the batch is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			out := svc.RunSequential(cctx, []model.UserID{1, 3})

			Convey("Then every user fails as cancelled without computing", func() {
				So(out.Failed, ShouldResemble, []model.UserID{1, 3})
				So(computer.calls.Load(), ShouldEqual, 0)
				reports, _ := reporter.snapshot()
				So(errors.Is(reports[1], service.ErrBatchCancelled), ShouldBeTrue)
			})
		})

		Convey("When tasks are slow", func() {
			computer.delay = 20 * time.Millisecond
			svc.RunSequential(ctx, []model.UserID{1, 3, 5})

			Convey("Then they never overlap", func() {
				So(computer.peak.Load(), ShouldEqual, 1)
			})
		})
	})
}

func TestService_RunConcurrent(t *testing.T) {
	Convey("Given services with and without a concurrency limit", t, func() {
		ctx := context.Background()

		for _, limit := range []int{0, 3} {
			computer := &stubComputer{rate: 5.0, broken: map[model.UserID]bool{5: true}}
			reporter := newRecordingReporter()
			svc := service.New(computer,
				service.WithReporter(reporter),
				service.WithMaxConcurrency(limit),
			)

			Convey(fmt.Sprintf("When running concurrently with limit %d", limit), func() {
				out := svc.RunConcurrent(ctx, []model.UserID{1, 2, 3, 4})

				Convey("Then the partition matches the sequential example", func() {
					So(out.Mode, ShouldEqual, model.ModeConcurrent)
					So(out.APRs, ShouldResemble, map[model.UserID]model.APR{1: 5.0, 3: 5.0})
					So(out.FailedSorted(), ShouldResemble, []model.UserID{2, 4})
				})

				Convey("Then every user was reported exactly once", func() {
					_, order := reporter.snapshot()
					So(order, ShouldHaveLength, 4)
				})
			})

			Convey(fmt.Sprintf("When a larger batch runs with limit %d", limit), func() {
				input := ids(40)
				concurrent := svc.RunConcurrent(ctx, input)
				sequential := service.New(&stubComputer{rate: 5.0, broken: map[model.UserID]bool{5: true}}).
					RunSequential(ctx, input)

				Convey("Then it yields the same partition as sequential mode", func() {
					So(concurrent.APRs, ShouldResemble, sequential.APRs)
					So(concurrent.FailedSorted(), ShouldResemble, sequential.FailedSorted())
					assertPartition(concurrent, input)
				})
			})
		}

		Convey("When slow tasks run without a limit", func() {
			computer := &stubComputer{rate: 5.0, delay: 50 * time.Millisecond}
			svc := service.New(computer)

			start := time.Now()
			out := svc.RunConcurrent(ctx, []model.UserID{1, 3, 5, 7, 9})
			elapsed := time.Since(start)

			Convey("Then they overlap instead of queuing", func() {
				So(out.Succeeded(), ShouldEqual, 5)
				So(computer.peak.Load(), ShouldEqual, 5)
				So(elapsed, ShouldBeLessThan, 200*time.Millisecond)
			})
		})

		Convey("When slow tasks run with a limit of 2", func() {
			computer := &stubComputer{rate: 5.0, delay: 20 * time.Millisecond}
			svc := service.New(computer, service.WithMaxConcurrency(2))

			out := svc.RunConcurrent(ctx, []model.UserID{1, 3, 5, 7, 9, 11})

			Convey("Then no more than 2 run at once", func() {
				So(out.Succeeded(), ShouldEqual, 6)
				So(computer.peak.Load(), ShouldBeLessThanOrEqualTo, 2)
			})
		})

		Convey("When duplicates are submitted concurrently", func() {
			computer := &stubComputer{rate: 5.0}
			svc := service.New(computer)
			input := []model.UserID{1, 1, 1, 2, 2}
			out := svc.RunConcurrent(ctx, input)

			Convey("Then each id is computed and recorded once", func() {
				So(computer.calls.Load(), ShouldEqual, 2)
				assertPartition(out, input)
			})
		})

		Convey("When the batch is cancelled mid-flight", func() {
			for _, limit := range []int{0, 1} {
				computer := &stubComputer{rate: 5.0, delay: 200 * time.Millisecond}
				svc := service.New(computer, service.WithMaxConcurrency(limit))
				cctx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
				input := []model.UserID{1, 3, 5, 7}

				out := svc.RunConcurrent(cctx, input)
				cancel()

				So(out.Succeeded(), ShouldEqual, 0)
				So(out.FailedSorted(), ShouldResemble, input)
			}
		})

		Convey("When the input is empty", func() {
			for _, limit := range []int{0, 4} {
				out := service.New(&stubComputer{}, service.WithMaxConcurrency(limit)).RunConcurrent(ctx, nil)
				So(out.Total(), ShouldEqual, 0)
			}
		})
	})
}

func TestService_Run(t *testing.T) {
	Convey("Given a service", t, func() {
		svc := service.New(&stubComputer{rate: 5.0})
		ctx := context.Background()

		Convey("When the mode is unknown", func() {
			_, err := svc.Run(ctx, model.Mode("parallel"), []model.UserID{1})

			Convey("Then it is rejected", func() {
				So(errors.Is(err, model.ErrUnknownMode), ShouldBeTrue)
			})
		})

		Convey("When both modes run", func() {
			seq, err := svc.Run(ctx, model.ModeSequential, []model.UserID{1, 2})
			So(err, ShouldBeNil)
			con, err := svc.Run(ctx, model.ModeConcurrent, []model.UserID{1, 2})
			So(err, ShouldBeNil)

			Convey("Then the stats accumulate across batches", func() {
				So(seq.APRs, ShouldResemble, con.APRs)
				stats := svc.GetStats()
				So(stats["batches"], ShouldEqual, int64(2))
				So(stats["usersSucceeded"], ShouldEqual, int64(2))
				So(stats["usersFailed"], ShouldEqual, int64(2))
				So(stats["maxConcurrency"], ShouldEqual, 0)
			})
		})

		Convey("When computing a single user", func() {
			rate, err := svc.ComputeAPR(ctx, 3)
			So(err, ShouldBeNil)
			So(rate, ShouldEqual, model.APR(5.0))
		})
	})
}

func TestService_History(t *testing.T) {
	Convey("Given a service that keeps two batches", t, func() {
		svc := service.New(&stubComputer{rate: 5.0},
			service.WithHistory(repository.NewMemoryStore(repository.WithMaxSize(2))),
		)
		ctx := context.Background()

		first := svc.RunSequential(ctx, []model.UserID{1, 2})
		second := svc.RunConcurrent(ctx, []model.UserID{3})
		third := svc.RunConcurrent(ctx, []model.UserID{4})

		Convey("When looking up a kept batch", func() {
			got, err := svc.Batch(ctx, second.BatchID)

			Convey("Then its outcome is returned", func() {
				So(err, ShouldBeNil)
				So(got.APRs, ShouldResemble, map[model.UserID]model.APR{3: 5.0})
				So(got.Mode, ShouldEqual, model.ModeConcurrent)
			})
		})

		Convey("When looking up an evicted batch", func() {
			_, err := svc.Batch(ctx, first.BatchID)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When listing recent batches", func() {
			recent, err := svc.RecentBatches(ctx, 5)
			So(err, ShouldBeNil)
			So(recent, ShouldHaveLength, 2)
			So(recent[0].BatchID, ShouldEqual, third.BatchID)
			So(svc.GetStats()["batchesStored"], ShouldEqual, 2)
		})

		Convey("Then batch ids are distinct", func() {
			So(first.BatchID, ShouldNotEqual, second.BatchID)
			So(second.BatchID, ShouldNotEqual, third.BatchID)
		})
	})
}

func TestFailureCollector(t *testing.T) {
	Convey("Given a failure collector shared by many goroutines", t, func() {
		var c service.FailureCollector
		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.Add(model.UserID(i))
			}()
		}
		wg.Wait()

		Convey("Then no addition is lost", func() {
			So(c.Len(), ShouldEqual, 100)
			So(c.IDs(), ShouldHaveLength, 100)
		})
	})
}
