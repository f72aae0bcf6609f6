// Copyright © 2018 One Concern

// Package status declares the error kinds returned by the block storage
// engine: the block store, the file index, the file table and the context.
//
// NOTE: such constants are located in a separate package to avoid
// creating undue cyclical dependencies between pkg/cfs and the
// components it assembles.
package status

import "github.com/oneconcern/cfs/pkg/errors"

var (
	// ErrNotFound indicates that a block (digest) or a file index does not exist
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an exclusive create on a path which already holds a file index
	ErrAlreadyExists = errors.New("already exists")

	// ErrCorruptFormat indicates a bad magic tag, a truncated header or a malformed entry log
	ErrCorruptFormat = errors.New("corrupt format")

	// ErrIO indicates a system-level read, write, seek or lock failure
	ErrIO = errors.New("i/o error")

	// ErrLockContention is reserved for bounded-wait lock acquisition.
	// The default locking mode blocks until the lock is available and never returns it.
	ErrLockContention = errors.New("lock contention")

	// ErrInvalidPath indicates a path which cannot be used to hold a file index
	ErrInvalidPath = errors.New("invalid path")

	// ErrBlockTooLarge indicates a payload exceeding the fixed block size
	ErrBlockTooLarge = errors.New("block too large")

	// ErrInvalidPosition indicates a negative logical block position
	ErrInvalidPosition = errors.New("invalid block position")

	// ErrBadHandle indicates an unknown or already released file handle
	ErrBadHandle = errors.New("bad file handle")

	// ErrClosed indicates an operation on a closed storage context or file index
	ErrClosed = errors.New("closed")

	// ErrBadDigest indicates a malformed content digest
	ErrBadDigest = errors.New("invalid digest")
)
