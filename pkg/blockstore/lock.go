package blockstore

import (
	"sync"

	"github.com/oneconcern/cfs/pkg/model"
	"github.com/spf13/afero"
)

type lockKind int

const (
	sharedLock lockKind = iota
	exclusiveLock
)

// wholeFile as a lock length extends the lock to the end of the file, however large it grows
const wholeFile = 0

// digestLocks serializes access to blocks within this process.
//
// OS advisory locks protect block files against other processes. On some platforms they are
// owned by the process rather than by the open file, so they don't exclude goroutines of the same process.
type digestLocks struct {
	shards [256]sync.RWMutex
}

func (l *digestLocks) shard(d model.Digest) *sync.RWMutex {
	return &l.shards[d[0]]
}

func (l *digestLocks) lock(d model.Digest) func() {
	mx := l.shard(d)
	mx.Lock()
	return mx.Unlock
}

func (l *digestLocks) rlock(d model.Digest) func() {
	mx := l.shard(d)
	mx.RLock()
	return mx.RUnlock
}

// fileDescriptor resolves the OS file descriptor behind an afero file, if any
func fileDescriptor(f afero.File) (uintptr, bool) {
	for {
		switch ff := f.(type) {
		case *afero.BasePathFile:
			f = ff.File
		case interface{ Fd() uintptr }:
			return ff.Fd(), true
		default:
			return 0, false
		}
	}
}

// lockRange acquires an advisory lock on the byte range [start, start+length) of a block file,
// waiting for as long as it takes. A length of zero locks the whole file.
//
// Files which are not backed by an OS file (e.g. in-memory filesystems) are not shared with
// other processes and are not locked: the returned release function is then a no-op.
func lockRange(f afero.File, kind lockKind, start, length int64) (func() error, error) {
	fd, ok := fileDescriptor(f)
	if !ok {
		return func() error { return nil }, nil
	}

	if err := setLock(fd, kind, start, length); err != nil {
		return nil, err
	}

	return func() error {
		return unlock(fd, start, length)
	}, nil
}

// isLinked tells if a locked block file is still reachable from the blocks directory.
//
// A process waiting for the reference count lock may be granted the lock after another one
// dropped the count to zero and removed the file.
func isLinked(f afero.File) (bool, error) {
	fd, ok := fileDescriptor(f)
	if !ok {
		return true, nil
	}
	return linked(fd)
}
