package repository

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithMaxSize sets how many outcomes are kept. Values <= 0 are ignored.
func WithMaxSize(maxSize int) Option {
	return func(s *MemoryStore) {
		if maxSize > 0 {
			s.maxSize = maxSize
		}
	}
}
