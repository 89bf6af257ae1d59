package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/okian/apr/internal/batchrun"
	"github.com/okian/apr/internal/config"
	"github.com/okian/apr/internal/domain/model"
)

// Default configuration constants.
const (
	defaultRunTimeout = 5 * time.Minute
)

func main() {
	// Flags default to the loaded config so APR_* env and APR_CONFIG apply.
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	var (
		ids         = flag.String("ids", joinInts(cfg.UserIDs), "Comma-separated user ids")
		mode        = flag.String("mode", cfg.Mode, "Batch mode: sequential or concurrent")
		concurrency = flag.Int("concurrency", cfg.MaxConcurrency, "Maximum users in flight in concurrent mode, 0 for unbounded")
		timeout     = flag.Duration("timeout", cfg.RequestTimeout(), "Provider request timeout")
		equifax     = flag.String("equifax", cfg.EquifaxURL, "First provider URL template")
		experian    = flag.String("experian", cfg.ExperianURL, "Second provider URL template")
		verbose     = flag.Bool("verbose", false, "Enable verbose logging")
		help        = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		batchrun.ShowHelp(os.Stdout)
		return
	}

	if err := batchrun.SetupLogging(*verbose, strings.EqualFold(cfg.LogFormat, "json")); err != nil {
		os.Stderr.WriteString("failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	userIDs, err := batchrun.ParseUserIDs(*ids)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}
	batchMode, err := model.ParseMode(*mode)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	runConfig := &batchrun.Config{
		UserIDs:        userIDs,
		Mode:           batchMode,
		MaxConcurrency: *concurrency,
		Timeout:        *timeout,
		EquifaxURL:     *equifax,
		ExperianURL:    *experian,
		Verbose:        *verbose,
		Out:            os.Stdout,
	}

	if _, err := batchrun.Run(ctx, runConfig); err != nil {
		os.Stderr.WriteString("batch failed: " + err.Error() + "\n")
		return
	}
}

func joinInts(in []int) string {
	parts := make([]string, len(in))
	for i, n := range in {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
