// Package apr computes the placeholder APR for a user from two scoring
// providers fetched concurrently.
package apr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/apr/internal/domain/model"
	"github.com/okian/apr/pkg/logger"
	"github.com/okian/apr/pkg/metrics"
)

// Provider builds the endpoint a scoring provider serves a user's scores on.
type Provider interface {
	Name() string
	Endpoint(id model.UserID) (*url.URL, error)
}

// Getter performs the network fetch and returns the raw payload.
type Getter interface {
	Get(ctx context.Context, u *url.URL) ([]byte, error)
}

// Fetcher computes APRs from two providers.
type Fetcher struct {
	getter    Getter
	providers [2]Provider
	logger    logger.Logger
}

// NewFetcher creates a fetcher over two providers sharing one getter.
func NewFetcher(getter Getter, first, second Provider, opts ...Option) *Fetcher {
	f := &Fetcher{
		getter:    getter,
		providers: [2]Provider{first, second},
		logger:    logger.Get().Named("apr"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ComputeAPR validates the user, fetches both providers concurrently and
// combines their first scores. Errors wrap ErrInvalidUser, ErrBadEndpoint or
// ErrDecodeFailure.
func (f *Fetcher) ComputeAPR(ctx context.Context, id model.UserID) (model.APR, error) {
	start := time.Now()
	rate, err := f.compute(ctx, id)
	metrics.RecordAPRLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordAPRFailure(Kind(err))
		return 0, err
	}
	metrics.RecordAPRComputed()
	return rate, nil
}

func (f *Fetcher) compute(ctx context.Context, id model.UserID) (model.APR, error) {
	if err := ValidateUser(id); err != nil {
		return 0, err
	}

	var endpoints [2]*url.URL
	for i, p := range f.providers {
		u, err := p.Endpoint(id)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %w", ErrBadEndpoint, p.Name(), err)
		}
		endpoints[i] = u
	}

	// Both fetches always run to completion; a failure on one does not
	// cancel the other.
	var (
		g         errgroup.Group
		responses [2]model.ScoreResponse
	)
	for i := range f.providers {
		g.Go(func() error {
			scores, err := f.fetch(ctx, f.providers[i], endpoints[i])
			if err != nil {
				f.logger.Warn(ctx, "provider response absent",
					logger.String("provider", f.providers[i].Name()),
					logger.Int("user_id", int(id)),
					logger.Error(err),
				)
				return fmt.Errorf("%s: %w", f.providers[i].Name(), err)
			}
			responses[i] = scores
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("%w: user %d: %w", ErrDecodeFailure, id, err)
	}

	rate, err := Calculate(responses[0], responses[1])
	if err != nil {
		return 0, err
	}
	f.logger.Debug(ctx, "apr computed", logger.Int("user_id", int(id)), logger.Float64("apr", float64(rate)))
	return rate, nil
}

// fetch downloads and decodes one provider response. Transport errors and
// malformed or empty payloads all mean the response is absent.
func (f *Fetcher) fetch(ctx context.Context, p Provider, u *url.URL) (model.ScoreResponse, error) {
	start := time.Now()
	result := "ok"
	defer func() {
		metrics.RecordProviderFetch(p.Name(), result, float64(time.Since(start).Milliseconds()))
	}()

	body, err := f.getter.Get(ctx, u)
	if err != nil {
		result = "fetch_error"
		return nil, err
	}

	var scores model.ScoreResponse
	if err := json.Unmarshal(body, &scores); err != nil {
		result = "decode_error"
		return nil, fmt.Errorf("decode %s: %w", p.Name(), err)
	}
	if _, err := scores.First(); err != nil {
		result = "empty"
		return nil, err
	}
	return scores, nil
}
