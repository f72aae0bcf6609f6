package cfs

import (
	"github.com/oneconcern/cfs/pkg/blockstore"
	"github.com/oneconcern/cfs/pkg/hashing"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Option for a storage context
type Option func(*Context)

// Logger sets the logger for the storage context and all its components
func Logger(l *zap.Logger) Option {
	return func(c *Context) {
		if l != nil {
			c.l = l
		}
	}
}

// Fs sets the filesystem holding the storage root.
//
// By default, the storage root is a directory of the OS filesystem.
func Fs(fs afero.Fs) Option {
	return func(c *Context) {
		c.fs = fs
	}
}

// Scheme sets the deduplication scheme
func Scheme(scheme hashing.Scheme) Option {
	return func(c *Context) {
		c.storeOpts = append(c.storeOpts, blockstore.Scheme(scheme))
	}
}

// CacheSize sets the size in bytes of the block cache. A negative size disables the cache.
func CacheSize(size int) Option {
	return func(c *Context) {
		c.storeOpts = append(c.storeOpts, blockstore.CacheSize(size))
	}
}

// WithMetrics enables opencensus measures on the block store
func WithMetrics(enabled bool) Option {
	return func(c *Context) {
		c.storeOpts = append(c.storeOpts, blockstore.WithMetrics(enabled))
	}
}

// PositionCache enables the in-memory position map on open files
func PositionCache(enabled bool) Option {
	return func(c *Context) {
		c.positionCache = enabled
	}
}

// TableCapacity sets the initial capacity of the table of open files
func TableCapacity(capacity int) Option {
	return func(c *Context) {
		c.tableCapacity = capacity
	}
}
