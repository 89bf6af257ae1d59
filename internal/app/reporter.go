package service

import (
	"context"

	"github.com/okian/apr/internal/domain/apr"
	"github.com/okian/apr/internal/domain/model"
	"github.com/okian/apr/pkg/logger"
)

// Reporter is told about every finished task. In concurrent batches it is
// called from many goroutines at once.
type Reporter interface {
	Report(ctx context.Context, id model.UserID, rate model.APR, err error)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, id model.UserID, rate model.APR, err error)

// Report calls f.
func (f ReporterFunc) Report(ctx context.Context, id model.UserID, rate model.APR, err error) {
	f(ctx, id, rate, err)
}

// logReporter is the default Reporter.
type logReporter struct {
	logger logger.Logger
}

func (r logReporter) Report(ctx context.Context, id model.UserID, rate model.APR, err error) {
	if err != nil {
		r.logger.Warn(ctx, "error fetching APR for user",
			logger.Int("user_id", int(id)),
			logger.String("kind", apr.Kind(err)),
			logger.Error(err),
		)
		return
	}
	r.logger.Info(ctx, "APR fetched", logger.Int("user_id", int(id)), logger.Float64("apr", float64(rate)))
}
