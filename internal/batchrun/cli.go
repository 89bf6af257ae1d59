package batchrun

import (
	"io"
	"log/slog"
	"os"

	"github.com/okian/apr/pkg/logger"
)

// SetupLogging sends structured logs to stderr so stdout carries only
// results. Verbose enables debug output.
func SetupLogging(verbose, jsonFormat bool) error {
	if err := logger.Init(logger.WithWriter(os.Stderr), logger.WithJSON(jsonFormat)); err != nil {
		return err
	}
	if verbose {
		logger.SetLevel(slog.LevelDebug)
	} else {
		logger.SetLevel(slog.LevelWarn)
	}
	return nil
}

// ShowHelp prints usage information for the batch tool.
func ShowHelp(w io.Writer) {
	_, _ = io.WriteString(w, `APR Batch Tool
==============

Fetches two provider scores per user and prints each user's APR.

Usage:
  go run ./cmd/apr-batch [options]

Options:
  -ids string
        Comma-separated user ids (default from APR_USER_IDS or 1..10)
  -mode string
        sequential or concurrent (default "concurrent")
  -concurrency int
        Maximum tasks in flight in concurrent mode, 0 for one per user
  -timeout duration
        Provider request timeout (default 10s)
  -equifax string
        First provider URL; {user_id} is replaced with the id
  -experian string
        Second provider URL; {user_id} is replaced with the id
  -verbose
        Enable debug logging
  -help
        Show this help message

Environment:
  APR_CONFIG names a YAML file; APR_* variables override it.

Examples:
  # Default batch, all users at once
  go run ./cmd/apr-batch

  # One user at a time
  go run ./cmd/apr-batch -mode sequential -ids 1,2,3,4

  # At most 4 users in flight
  go run ./cmd/apr-batch -ids 1,3,5,7,9,11 -concurrency 4
`)
}
