// Package batchrun runs one APR batch from the command line and prints the
// results.
package batchrun

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/okian/apr/internal/adapters/provider"
	service "github.com/okian/apr/internal/app"
	"github.com/okian/apr/internal/domain/apr"
	"github.com/okian/apr/internal/domain/model"
	"github.com/okian/apr/pkg/logger"
)

// Provider names used in logs and metrics.
const (
	EquifaxName  = "equifax"
	ExperianName = "experian"
)

// Run executes one batch and prints its results to config.Out.
func Run(ctx context.Context, config *Config) (model.Outcome, error) {
	out := config.Out
	if out == nil {
		out = os.Stdout
	}

	logger.Get().Info(ctx, "starting apr batch",
		logger.Int("users", len(config.UserIDs)),
		logger.String("mode", string(config.Mode)),
		logger.Int("maxConcurrency", config.MaxConcurrency),
		logger.Duration("timeout", config.Timeout),
	)

	client := provider.NewHTTPClient(provider.WithTimeout(config.Timeout))
	fetcher := apr.NewFetcher(client,
		provider.NewTemplate(EquifaxName, config.EquifaxURL),
		provider.NewTemplate(ExperianName, config.ExperianURL),
	)
	svc := service.New(fetcher,
		service.WithMaxConcurrency(config.MaxConcurrency),
		service.WithReporter(&consoleReporter{w: out, mode: config.Mode}),
	)

	outcome, err := svc.Run(ctx, config.Mode, config.UserIDs)
	if err != nil {
		return model.Outcome{}, fmt.Errorf("batch failed: %w", err)
	}

	if config.Mode == model.ModeConcurrent {
		fmt.Fprintf(out, "User APRs: %v\n", outcome.APRs)
		fmt.Fprintf(out, "Failed user ids: %v\n", outcome.FailedSorted())
	}
	return outcome, nil
}

// consoleReporter prints per-user lines. Concurrent batches call it from many
// goroutines, so writes are serialized.
type consoleReporter struct {
	mu   sync.Mutex
	w    io.Writer
	mode model.Mode
}

func (r *consoleReporter) Report(_ context.Context, id model.UserID, rate model.APR, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		fmt.Fprintf(r.w, "user %d: error %v\n", id, err)
		return
	}
	if r.mode == model.ModeSequential {
		fmt.Fprintf(r.w, "user %d: APR %.2f\n", id, float64(rate))
	}
}
