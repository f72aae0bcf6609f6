package fileindex

import (
	"go.uber.org/zap"
)

// DefaultReleaseConcurrency is the default number of block references released in parallel on Delete
const DefaultReleaseConcurrency = 8

// Option for a file index
type Option func(*Index)

// PositionCache enables an in-memory map of positions, built when opening the index.
//
// Lookups by position then no longer scan the entry log.
func PositionCache(enabled bool) Option {
	return func(x *Index) {
		x.cachePositions = enabled
	}
}

// Logger sets a logger for this index
func Logger(l *zap.Logger) Option {
	return func(x *Index) {
		if l != nil {
			x.l = l
		}
	}
}

// ReleaseConcurrency sets the maximum number of block references released in parallel on Delete
func ReleaseConcurrency(n int) Option {
	return func(x *Index) {
		if n > 0 {
			x.releaseConcurrency = n
		}
	}
}
