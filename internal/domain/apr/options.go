package apr

import "github.com/okian/apr/pkg/logger"

// Option applies a configuration option to the Fetcher.
type Option func(*Fetcher)

// WithLogger sets a custom logger for the fetcher.
func WithLogger(l logger.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}
