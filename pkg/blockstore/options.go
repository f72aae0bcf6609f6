package blockstore

import (
	"github.com/docker/go-units"
	"github.com/oneconcern/cfs/pkg/hashing"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// DefaultCacheSize sets the default target size of the LRU block cache in bytes.
//
// This defines the number of blocks kept in the cache (rounded down)
const DefaultCacheSize = 8 * units.MiB

// Option to configure the block store
type Option func(*Store)

// Fs sets the filesystem holding the storage root.
//
// The filesystem is expected to be rooted at the storage root, e.g. afero.NewBasePathFs or afero.NewMemMapFs.
func Fs(fs afero.Fs) Option {
	return func(s *Store) {
		s.fs = fs
	}
}

// Logger sets a logger for this store
func Logger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.l = l
		}
	}
}

// Scheme sets the deduplication scheme used to compute block digests
func Scheme(scheme hashing.Scheme) Option {
	return func(s *Store) {
		s.scheme = scheme
	}
}

// CacheSize sets the target size of the LRU block cache in bytes.
//
// A negative size disables the cache.
func CacheSize(size int) Option {
	return func(s *Store) {
		if size == 0 {
			size = DefaultCacheSize
		}
		s.cacheSize = size
	}
}

// WithMetrics enables opencensus measures on this store
func WithMetrics(enabled bool) Option {
	return func(s *Store) {
		s.metricsEnabled = enabled
	}
}
