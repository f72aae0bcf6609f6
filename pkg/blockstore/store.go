// Copyright © 2018 One Concern

package blockstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/oneconcern/cfs/pkg/cfs/status"
	"github.com/oneconcern/cfs/pkg/dlogger"
	"github.com/oneconcern/cfs/pkg/hashing"
	"github.com/oneconcern/cfs/pkg/model"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const blockFileMode = 0600

// PutRes holds the result from a Put operation
type PutRes struct {
	Digest  model.Digest // the digest of the stored payload
	Written int          // payload bytes written: 0 when the block already existed
	Found   bool         // the block was already existing (deduplicated)
}

// Store is the content-addressed pool of blocks under some storage root.
//
// A Store is safe for concurrent use, and several processes may share the same root directory.
type Store struct {
	fs         afero.Fs
	rootPath   string
	blocksPath string

	hasher hashing.Hasher
	scheme hashing.Scheme
	locks  *digestLocks

	cache     *lru.Cache // immutable payloads by digest
	cacheSize int

	metricsEnabled bool
	l              *zap.Logger
}

func defaultsForStore(root string) *Store {
	return &Store{
		rootPath:  root,
		scheme:    hashing.DefaultScheme,
		cacheSize: DefaultCacheSize,
		locks:     &digestLocks{},
		l:         dlogger.MustGetLogger(dlogger.LogLevelNone),
	}
}

// New creates a block store rooted at some directory.
//
// Unless a filesystem is provided with the Fs option, blocks are stored on the OS filesystem
// under root. The blocks directory is created if it does not exist yet.
func New(root string, opts ...Option) (*Store, error) {
	s := defaultsForStore(root)
	for _, apply := range opts {
		apply(s)
	}

	if s.fs == nil {
		if root == "" {
			return nil, status.ErrInvalidPath.Wrapf("a block store requires a root directory")
		}
		s.fs = afero.NewBasePathFs(afero.NewOsFs(), root)
	}
	s.blocksPath = filepath.Join(root, model.BlocksDir)

	hasher, err := hashing.New(s.scheme)
	if err != nil {
		return nil, err
	}
	s.hasher = hasher

	if err := s.fs.MkdirAll(model.BlocksDir, 0700); err != nil {
		return nil, status.ErrIO.Wrap(fmt.Errorf("ensuring blocks directory %q: %w", s.blocksPath, err))
	}

	if s.cacheSize > 0 {
		if entries := s.cacheSize / model.BlockSize; entries > 0 {
			s.cache, err = lru.New(entries)
			if err != nil {
				return nil, err
			}
		}
	}

	s.l = dlogger.Component(s.l, "blockstore").With(zap.String("root", root))
	return s, nil
}

// String describes this store
func (s *Store) String() string {
	return "blockstore@" + s.blocksPath
}

// RootPath yields the storage root
func (s *Store) RootPath() string {
	return s.rootPath
}

// BlocksPath yields the directory holding block files
func (s *Store) BlocksPath() string {
	return s.blocksPath
}

// Scheme yields the deduplication scheme used by this store
func (s *Store) Scheme() hashing.Scheme {
	return s.scheme
}

// Digest computes the digest of some payload, as this store would
func (s *Store) Digest(data []byte) model.Digest {
	return s.hasher(data)
}

// Put stores a payload under its digest.
//
// If a block with the same digest exists already, nothing is written and the result is flagged as Found.
// A newly created block starts with a reference count of 1, which accounts for the reference held by
// the caller. The caller of a Put which found an existing block must account for its new reference with IncRef.
func (s *Store) Put(ctx context.Context, data []byte) (res PutRes, err error) {
	if len(data) > model.BlockSize {
		return PutRes{}, status.ErrBlockTooLarge.Wrapf(fmt.Sprintf("payload of %d bytes exceeds the block size of %d bytes", len(data), model.BlockSize))
	}

	digest := s.hasher(data)
	pth := model.BlockPath(digest)
	lg := s.l.With(zap.Stringer("digest", digest))

	defer func(t0 time.Time) {
		if s.metricsEnabled {
			recordPut(ctx, t0, res, err)
		}
	}(time.Now())

	unlock := s.locks.lock(digest)
	defer unlock()

	f, err := s.fs.OpenFile(pth, os.O_RDWR|os.O_CREATE|os.O_EXCL, blockFileMode)
	if err != nil {
		if os.IsExist(err) {
			lg.Debug("block deduplicated", zap.Int("size", len(data)))
			return PutRes{Digest: digest, Found: true}, nil
		}
		return PutRes{}, status.ErrIO.Wrap(fmt.Errorf("creating block %s: %w", digest, err))
	}

	if err = s.writeNewBlock(f, data); err != nil {
		_ = f.Close()
		// don't leave a partial block behind: the next Put will retry
		if rerr := s.fs.Remove(pth); rerr != nil && !os.IsNotExist(rerr) {
			lg.Error("could not remove partially written block", zap.Error(rerr))
		}
		return PutRes{}, err
	}

	if err = f.Close(); err != nil {
		return PutRes{}, status.ErrIO.Wrap(fmt.Errorf("closing block %s: %w", digest, err))
	}

	lg.Debug("block stored", zap.Int("size", len(data)))
	return PutRes{Digest: digest, Written: len(data)}, nil
}

func (s *Store) writeNewBlock(f afero.File, data []byte) error {
	release, err := lockRange(f, exclusiveLock, 0, wholeFile)
	if err != nil {
		return status.ErrIO.Wrap(fmt.Errorf("locking new block: %w", err))
	}

	buf := make([]byte, model.RefCountSize+len(data))
	model.ByteOrder.PutUint64(buf, 1)
	copy(buf[model.RefCountSize:], data)

	werr := writeFullAt(f, buf, 0)
	if uerr := release(); uerr != nil && werr == nil {
		werr = uerr
	}
	if werr != nil {
		return status.ErrIO.Wrap(fmt.Errorf("writing new block: %w", werr))
	}
	return nil
}

// Get loads the payload of a block.
//
// It fails with status.ErrNotFound if no such block exists.
func (s *Store) Get(ctx context.Context, digest model.Digest) ([]byte, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(digest); ok {
			// the block may have been released by another process since it was cached
			if exists, err := afero.Exists(s.fs, model.BlockPath(digest)); err == nil && exists {
				return clone(v.([]byte)), nil
			}
			s.cache.Remove(digest)
		}
	}

	unlock := s.locks.rlock(digest)
	defer unlock()

	f, err := s.open(digest, os.O_RDONLY)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	release, err := lockRange(f, sharedLock, 0, wholeFile)
	if err != nil {
		return nil, status.ErrIO.Wrap(fmt.Errorf("locking block %s: %w", digest, err))
	}
	defer s.release(release, digest)

	fi, err := f.Stat()
	if err != nil {
		return nil, status.ErrIO.Wrap(fmt.Errorf("stat block %s: %w", digest, err))
	}
	size, err := payloadSize(digest, fi.Size())
	if err != nil {
		return nil, err
	}

	data := make([]byte, size)
	if err = readFullAt(f, data, model.RefCountSize); err != nil {
		return nil, status.ErrIO.Wrap(fmt.Errorf("reading block %s: %w", digest, err))
	}

	if s.cache != nil {
		s.cache.Add(digest, clone(data))
	}
	return data, nil
}

// Has tells if a block exists
func (s *Store) Has(_ context.Context, digest model.Digest) (bool, error) {
	exists, err := afero.Exists(s.fs, model.BlockPath(digest))
	if err != nil {
		return false, status.ErrIO.Wrap(err)
	}
	return exists, nil
}

// Size yields the payload size of a block.
//
// It fails with status.ErrNotFound if no such block exists.
func (s *Store) Size(_ context.Context, digest model.Digest) (int64, error) {
	unlock := s.locks.rlock(digest)
	defer unlock()

	fi, err := s.fs.Stat(model.BlockPath(digest))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, status.ErrNotFound.Wrapf("block " + digest.String())
		}
		return 0, status.ErrIO.Wrap(fmt.Errorf("stat block %s: %w", digest, err))
	}
	return payloadSize(digest, fi.Size())
}

// Refs yields the current reference count of a block
func (s *Store) Refs(_ context.Context, digest model.Digest) (uint64, error) {
	unlock := s.locks.rlock(digest)
	defer unlock()

	f, err := s.open(digest, os.O_RDONLY)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	release, err := lockRange(f, sharedLock, 0, model.RefCountSize)
	if err != nil {
		return 0, status.ErrIO.Wrap(fmt.Errorf("locking refs of block %s: %w", digest, err))
	}
	defer s.release(release, digest)

	return readRefs(f, digest)
}

// IncRef increments the reference count of a block and returns the new count.
//
// It fails with status.ErrNotFound if no such block exists.
func (s *Store) IncRef(ctx context.Context, digest model.Digest) (uint64, error) {
	return s.updateRefs(ctx, digest, true)
}

// DecRef decrements the reference count of a block and returns the new count.
//
// When the count reaches zero, the block file is removed.
// It fails with status.ErrNotFound if no such block exists.
func (s *Store) DecRef(ctx context.Context, digest model.Digest) (uint64, error) {
	return s.updateRefs(ctx, digest, false)
}

func (s *Store) updateRefs(ctx context.Context, digest model.Digest, increment bool) (uint64, error) {
	unlock := s.locks.lock(digest)
	defer unlock()

	f, err := s.open(digest, os.O_RDWR)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	// the lock is scoped to the reference count: payload readers are not blocked
	release, err := lockRange(f, exclusiveLock, 0, model.RefCountSize)
	if err != nil {
		return 0, status.ErrIO.Wrap(fmt.Errorf("locking refs of block %s: %w", digest, err))
	}
	defer s.release(release, digest)

	reachable, err := isLinked(f)
	if err != nil {
		return 0, status.ErrIO.Wrap(fmt.Errorf("stat block %s: %w", digest, err))
	}
	if !reachable {
		return 0, status.ErrNotFound.Wrapf("block " + digest.String() + " was removed concurrently")
	}

	refs, err := readRefs(f, digest)
	if err != nil {
		return 0, err
	}

	if increment {
		refs++
	} else {
		if refs == 0 {
			return 0, status.ErrCorruptFormat.Wrapf("block " + digest.String() + " has a zero reference count")
		}
		refs--
	}

	if refs == 0 {
		if err = s.fs.Remove(model.BlockPath(digest)); err != nil {
			return 0, status.ErrIO.Wrap(fmt.Errorf("removing block %s: %w", digest, err))
		}
		if s.cache != nil {
			s.cache.Remove(digest)
		}
		if s.metricsEnabled {
			recordRemove(ctx)
		}
		s.l.Debug("block removed", zap.Stringer("digest", digest))
		return 0, nil
	}

	buf := make([]byte, model.RefCountSize)
	model.ByteOrder.PutUint64(buf, refs)
	if err = writeFullAt(f, buf, 0); err != nil {
		return 0, status.ErrIO.Wrap(fmt.Errorf("writing refs of block %s: %w", digest, err))
	}

	return refs, nil
}

// Keys lists the digests of all stored blocks.
//
// Files in the blocks directory which are not named after a digest are ignored.
func (s *Store) Keys(_ context.Context) ([]model.Digest, error) {
	infos, err := afero.ReadDir(s.fs, model.BlocksDir)
	if err != nil {
		return nil, status.ErrIO.Wrap(err)
	}

	keys := make([]model.Digest, 0, len(infos))
	for _, fi := range infos {
		if fi.IsDir() {
			continue
		}
		d, err := model.ParseDigest(fi.Name())
		if err != nil {
			s.l.Warn("ignoring unexpected file in blocks directory", zap.String("name", fi.Name()))
			continue
		}
		keys = append(keys, d)
	}
	return keys, nil
}

func (s *Store) open(digest model.Digest, flag int) (afero.File, error) {
	f, err := s.fs.OpenFile(model.BlockPath(digest), flag, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, status.ErrNotFound.Wrapf("block " + digest.String())
		}
		return nil, status.ErrIO.Wrap(fmt.Errorf("opening block %s: %w", digest, err))
	}
	return f, nil
}

func (s *Store) release(release func() error, digest model.Digest) {
	if err := release(); err != nil {
		s.l.Error("could not release block lock", zap.Stringer("digest", digest), zap.Error(err))
	}
}

func readRefs(f afero.File, digest model.Digest) (uint64, error) {
	buf := make([]byte, model.RefCountSize)
	if err := readFullAt(f, buf, 0); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return 0, status.ErrCorruptFormat.Wrapf("block " + digest.String() + " has a truncated reference count")
		}
		return 0, status.ErrIO.Wrap(fmt.Errorf("reading refs of block %s: %w", digest, err))
	}
	return model.ByteOrder.Uint64(buf), nil
}

func payloadSize(digest model.Digest, fileSize int64) (int64, error) {
	size := fileSize - model.RefCountSize
	if size < 0 || size > model.BlockSize {
		return 0, status.ErrCorruptFormat.Wrapf(fmt.Sprintf("block %s has an invalid file size of %d bytes", digest, fileSize))
	}
	return size, nil
}

func readFullAt(r io.ReaderAt, buf []byte, off int64) error {
	_, err := io.ReadFull(io.NewSectionReader(r, off, int64(len(buf))), buf)
	return err
}

func writeFullAt(w io.WriterAt, buf []byte, off int64) error {
	n, err := w.WriteAt(buf, off)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return io.ErrShortWrite
	}
	return nil
}

func clone(b []byte) []byte {
	return append(make([]byte, 0, len(b)), b...)
}
