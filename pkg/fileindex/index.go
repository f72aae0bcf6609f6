// Copyright © 2018 One Concern

package fileindex

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/oneconcern/cfs/pkg/blockstore"
	"github.com/oneconcern/cfs/pkg/cfs/status"
	"github.com/oneconcern/cfs/pkg/dlogger"
	"github.com/oneconcern/cfs/pkg/errors"
	"github.com/oneconcern/cfs/pkg/model"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	indexFileMode = 0600
	scanBuffer    = 256 * model.EntrySize
)

// Blocks is the block store consumed by a file index
type Blocks interface {
	Digest([]byte) model.Digest
	Put(context.Context, []byte) (blockstore.PutRes, error)
	Get(context.Context, model.Digest) ([]byte, error)
	Size(context.Context, model.Digest) (int64, error)
	IncRef(context.Context, model.Digest) (uint64, error)
	DecRef(context.Context, model.Digest) (uint64, error)
}

var _ Blocks = &blockstore.Store{}

// Index is an open file index
type Index struct {
	fs     afero.Fs
	path   model.Path
	file   afero.File
	blocks Blocks
	header model.Header

	cachePositions     bool
	positions          *positions
	releaseConcurrency int
	closed             bool

	l *zap.Logger
}

// Create a new, empty file index. Missing parent directories are created.
//
// It fails with status.ErrAlreadyExists if the path already holds a file.
func Create(fs afero.Fs, p model.Path) error {
	if p.IsZero() {
		return status.ErrInvalidPath.Wrapf("empty path")
	}
	if dir := p.Dir(); dir != "." {
		if err := fs.MkdirAll(dir, 0700); err != nil {
			return status.ErrIO.Wrap(fmt.Errorf("creating parent directory of %q: %w", p, err))
		}
	}

	f, err := fs.OpenFile(p.Local(), os.O_RDWR|os.O_CREATE|os.O_EXCL, indexFileMode)
	if err != nil {
		if os.IsExist(err) {
			return status.ErrAlreadyExists.Wrapf(p.String())
		}
		return status.ErrIO.Wrap(fmt.Errorf("creating %q: %w", p, err))
	}

	buf, _ := model.Header{}.MarshalBinary()
	if _, err = f.Write(buf); err != nil {
		_ = f.Close()
		_ = fs.Remove(p.Local())
		return status.ErrIO.Wrap(fmt.Errorf("writing header of %q: %w", p, err))
	}

	if err = f.Close(); err != nil {
		return status.ErrIO.Wrap(fmt.Errorf("closing %q: %w", p, err))
	}
	return nil
}

// Stat reads the header of a file index
func Stat(fs afero.Fs, p model.Path) (model.Header, error) {
	f, err := openFile(fs, p, os.O_RDONLY)
	if err != nil {
		return model.Header{}, err
	}
	defer f.Close()

	return readHeader(f, p)
}

// Open a file index for reading and writing blocks
func Open(fs afero.Fs, blocks Blocks, p model.Path, opts ...Option) (*Index, error) {
	x := &Index{
		fs:                 fs,
		path:               p,
		blocks:             blocks,
		releaseConcurrency: DefaultReleaseConcurrency,
		l:                  dlogger.MustGetLogger(dlogger.LogLevelNone),
	}
	for _, apply := range opts {
		apply(x)
	}
	x.l = dlogger.Component(x.l, "fileindex").With(zap.Stringer("path", p))

	f, err := openFile(fs, p, os.O_RDWR)
	if err != nil {
		return nil, err
	}
	x.file = f

	if err = x.load(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return x, nil
}

func (x *Index) load() error {
	header, err := readHeader(x.file, x.path)
	if err != nil {
		return err
	}

	fi, err := x.file.Stat()
	if err != nil {
		return status.ErrIO.Wrap(fmt.Errorf("stat %q: %w", x.path, err))
	}
	if fi.Size() < model.EntryOffset(header.TotalBlocks) {
		return status.ErrCorruptFormat.Wrapf(
			fmt.Sprintf("%q: the entry log is shorter than the %d entries in the header: rebuild the header", x.path, header.TotalBlocks))
	}
	x.header = header

	if !x.cachePositions {
		return nil
	}

	x.positions = newPositions()
	var i int64
	return x.scan(func(e model.Entry) bool {
		x.positions.track(e.Position, model.DigestOffset(i))
		i++
		return true
	})
}

// Path of this file index, relative to the storage root
func (x *Index) Path() model.Path {
	return x.path
}

// Header yields the in-memory copy of the header
func (x *Index) Header() model.Header {
	return x.header
}

// FindPosition locates the entry of a block position.
//
// When found, it returns the offset of the digest field of the entry, so the caller may read or overwrite it.
func (x *Index) FindPosition(pos int64) (int64, bool, error) {
	if err := x.check(); err != nil {
		return 0, false, err
	}
	if pos < 0 {
		return 0, false, status.ErrInvalidPosition.Wrapf(fmt.Sprintf("%d", pos))
	}
	if x.header.TotalBlocks == 0 {
		return 0, false, nil
	}

	if x.positions != nil {
		off, ok := x.positions.get(pos)
		return off, ok, nil
	}

	var (
		i      int64
		offset int64
		found  bool
	)
	err := x.scan(func(e model.Entry) bool {
		if e.Position == pos {
			offset = model.DigestOffset(i)
			found = true
			return false
		}
		i++
		return true
	})
	return offset, found, err
}

// scan the entry log in write order, until fn returns false
func (x *Index) scan(fn func(model.Entry) bool) error {
	total := x.header.TotalBlocks
	rdr := bufio.NewReaderSize(io.NewSectionReader(x.file, model.HeaderSize, total*model.EntrySize), scanBuffer)
	buf := make([]byte, model.EntrySize)

	for i := int64(0); i < total; i++ {
		if _, err := io.ReadFull(rdr, buf); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return status.ErrCorruptFormat.Wrapf(fmt.Sprintf("%q: truncated entry log at entry %d", x.path, i))
			}
			return status.ErrIO.Wrap(fmt.Errorf("reading entry log of %q: %w", x.path, err))
		}

		var e model.Entry
		_ = e.UnmarshalBinary(buf)
		if !fn(e) {
			return nil
		}
	}
	return nil
}

// RegisterBlock stores a block payload at some position of the file.
//
// The block is stored in the block store, then the entry for this position is either overwritten in place
// or appended to the log. The header is updated to account for the new logical size and number of blocks.
func (x *Index) RegisterBlock(ctx context.Context, pos int64, payload []byte) error {
	if err := x.check(); err != nil {
		return err
	}
	if len(payload) > model.BlockSize {
		return status.ErrBlockTooLarge.Wrapf(fmt.Sprintf("payload of %d bytes at position %d", len(payload), pos))
	}

	offset, found, err := x.FindPosition(pos)
	if err != nil {
		return err
	}

	if !found {
		return x.appendBlock(ctx, pos, payload)
	}

	return x.replaceBlock(ctx, pos, offset, payload)
}

func (x *Index) appendBlock(ctx context.Context, pos int64, payload []byte) error {
	digest, err := x.acquire(ctx, payload)
	if err != nil {
		return err
	}

	i := x.header.TotalBlocks
	buf, _ := model.Entry{Position: pos, Digest: digest}.MarshalBinary()
	if err = writeFullAt(x.file, buf, model.EntryOffset(i)); err != nil {
		x.release(ctx, digest)
		return status.ErrIO.Wrap(fmt.Errorf("appending entry to %q: %w", x.path, err))
	}
	if x.positions != nil {
		x.positions.track(pos, model.DigestOffset(i))
	}

	x.header.TotalBlocks++
	x.header.Size += int64(len(payload))

	x.l.Debug("block appended", zap.Int64("position", pos), zap.Stringer("digest", digest), zap.Int("size", len(payload)))
	return x.writeHeader()
}

func (x *Index) replaceBlock(ctx context.Context, pos, offset int64, payload []byte) error {
	previous, err := x.readDigest(offset)
	if err != nil {
		return err
	}

	digest := x.blocks.Digest(payload)
	if digest == previous {
		// same content: the entry already holds its reference. Restore the block if it went missing.
		res, err := x.blocks.Put(ctx, payload)
		if err != nil {
			return err
		}
		if !res.Found {
			x.l.Warn("restored missing block", zap.Int64("position", pos), zap.Stringer("digest", digest))
		}
		return nil
	}

	previousSize, err := x.blocks.Size(ctx, previous)
	if err != nil {
		if !errors.Is(err, status.ErrNotFound) {
			return err
		}
		x.l.Warn("previous block is missing, the size of the file may be off: rebuild the header",
			zap.Int64("position", pos), zap.Stringer("previous", previous))
		previousSize = 0
	}

	digest, err = x.acquire(ctx, payload)
	if err != nil {
		return err
	}

	if err = writeFullAt(x.file, digest[:], offset); err != nil {
		x.release(ctx, digest)
		return status.ErrIO.Wrap(fmt.Errorf("overwriting entry in %q: %w", x.path, err))
	}

	// from now on the entry points at the new block: the previous one is released whatever happens to the header
	x.header.Size += int64(len(payload)) - previousSize
	headerErr := x.writeHeader()
	x.release(ctx, previous)
	if headerErr != nil {
		return headerErr
	}

	x.l.Debug("block replaced", zap.Int64("position", pos), zap.Stringer("digest", digest), zap.Stringer("previous", previous), zap.Int("size", len(payload)))
	return nil
}

// acquire stores a payload and holds one reference to its block
func (x *Index) acquire(ctx context.Context, payload []byte) (model.Digest, error) {
	for {
		res, err := x.blocks.Put(ctx, payload)
		if err != nil {
			return model.Digest{}, err
		}
		if !res.Found {
			// a new block starts with the reference we need
			return res.Digest, nil
		}

		_, err = x.blocks.IncRef(ctx, res.Digest)
		if err == nil {
			return res.Digest, nil
		}
		if !errors.Is(err, status.ErrNotFound) {
			return model.Digest{}, err
		}
		// the block has been removed since Put found it: store it again
		x.l.Debug("block removed concurrently, retrying", zap.Stringer("digest", res.Digest))
	}
}

func (x *Index) release(ctx context.Context, digest model.Digest) {
	if _, err := x.blocks.DecRef(ctx, digest); err != nil {
		if errors.Is(err, status.ErrNotFound) {
			x.l.Warn("block already removed", zap.Stringer("digest", digest))
			return
		}
		x.l.Error("could not release block reference", zap.Stringer("digest", digest), zap.Error(err))
	}
}

// ReadBlock loads the payload stored at some position.
//
// A position without any registered block is not an error: ReadBlock then returns false.
func (x *Index) ReadBlock(ctx context.Context, pos int64) ([]byte, bool, error) {
	offset, found, err := x.FindPosition(pos)
	if err != nil || !found {
		return nil, false, err
	}

	digest, err := x.readDigest(offset)
	if err != nil {
		return nil, false, err
	}

	data, err := x.blocks.Get(ctx, digest)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Entries yields the entry log, in write order
func (x *Index) Entries() ([]model.Entry, error) {
	if err := x.check(); err != nil {
		return nil, err
	}

	entries := make([]model.Entry, 0, x.header.TotalBlocks)
	err := x.scan(func(e model.Entry) bool {
		entries = append(entries, e)
		return true
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Positions yields all registered block positions, in ascending order
func (x *Index) Positions() ([]int64, error) {
	if err := x.check(); err != nil {
		return nil, err
	}

	if x.positions != nil {
		list := make([]int64, 0, x.positions.len())
		x.positions.walk(func(pos, _ int64) bool {
			list = append(list, pos)
			return true
		})
		return list, nil
	}

	entries, err := x.Entries()
	if err != nil {
		return nil, err
	}
	list := make([]int64, 0, len(entries))
	for _, e := range entries {
		list = append(list, e.Position)
	}
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	return list, nil
}

// Delete releases the references held by all entries, then removes the file index.
//
// When some references cannot be released, the entry log is rewritten to keep only these entries
// and the file index is left in place: a later Delete then releases the remaining references only.
//
// The index is closed after Delete, even when it fails.
func (x *Index) Delete(ctx context.Context) error {
	entries, err := x.Entries()
	if err != nil {
		return err
	}

	var (
		g       errgroup.Group
		mx      sync.Mutex
		release error
	)
	failed := make([]bool, len(entries))
	g.SetLimit(x.releaseConcurrency)
	for i, e := range entries {
		rank, digest := i, e.Digest
		g.Go(func() error {
			_, err := x.blocks.DecRef(ctx, digest)
			if err == nil {
				return nil
			}
			if errors.Is(err, status.ErrNotFound) {
				x.l.Warn("block already removed", zap.Stringer("digest", digest))
				return nil
			}

			failed[rank] = true
			mx.Lock()
			release = multierr.Append(release, err)
			mx.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if release != nil {
		kept := make([]model.Entry, 0, len(entries))
		for i, e := range entries {
			if failed[i] {
				kept = append(kept, e)
			}
		}
		x.l.Error("could not release all block references, keeping the file index with the remaining entries",
			zap.Int("entries", len(entries)), zap.Int("remaining", len(kept)), zap.Error(release))

		if err = x.retain(ctx, kept); err != nil {
			release = multierr.Append(release, err)
		}
		return multierr.Append(release, x.Close())
	}

	if err = x.Close(); err != nil {
		return err
	}
	if err = x.fs.Remove(x.path.Local()); err != nil {
		return status.ErrIO.Wrap(fmt.Errorf("removing %q: %w", x.path, err))
	}

	x.l.Debug("file index deleted", zap.Int("entries", len(entries)))
	return nil
}

// retain rewrites the entry log with only some of its entries and updates the header accordingly
func (x *Index) retain(ctx context.Context, kept []model.Entry) error {
	header := model.Header{TotalBlocks: int64(len(kept))}
	buf := make([]byte, 0, len(kept)*model.EntrySize)
	for _, e := range kept {
		b, _ := e.MarshalBinary()
		buf = append(buf, b...)

		// a missing block no longer accounts for any size
		if size, err := x.blocks.Size(ctx, e.Digest); err == nil {
			header.Size += size
		}
	}

	if err := writeFullAt(x.file, buf, model.HeaderSize); err != nil {
		return status.ErrIO.Wrap(fmt.Errorf("rewriting entry log of %q: %w", x.path, err))
	}
	x.header = header
	if err := x.writeHeader(); err != nil {
		return err
	}
	if err := x.file.Truncate(model.EntryOffset(header.TotalBlocks)); err != nil {
		return status.ErrIO.Wrap(fmt.Errorf("truncating %q: %w", x.path, err))
	}
	return nil
}

// Close the underlying file. Closing twice is a no-op.
func (x *Index) Close() error {
	if x.closed {
		return nil
	}
	x.closed = true
	x.positions = nil

	if err := x.file.Close(); err != nil {
		return status.ErrIO.Wrap(fmt.Errorf("closing %q: %w", x.path, err))
	}
	return nil
}

func (x *Index) check() error {
	if x.closed {
		return status.ErrClosed.Wrapf(x.path.String())
	}
	return nil
}

func (x *Index) readDigest(offset int64) (model.Digest, error) {
	var digest model.Digest
	if err := readFullAt(x.file, digest[:], offset); err != nil {
		return digest, status.ErrIO.Wrap(fmt.Errorf("reading digest in %q: %w", x.path, err))
	}
	return digest, nil
}

func (x *Index) writeHeader() error {
	buf, err := x.header.MarshalBinary()
	if err != nil {
		return status.ErrCorruptFormat.Wrap(err)
	}
	if err = writeFullAt(x.file, buf, 0); err != nil {
		return status.ErrIO.Wrap(fmt.Errorf("writing header of %q: %w", x.path, err))
	}
	return nil
}

func openFile(fs afero.Fs, p model.Path, flag int) (afero.File, error) {
	if p.IsZero() {
		return nil, status.ErrInvalidPath.Wrapf("empty path")
	}
	f, err := fs.OpenFile(p.Local(), flag, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, status.ErrNotFound.Wrapf(p.String())
		}
		return nil, status.ErrIO.Wrap(fmt.Errorf("opening %q: %w", p, err))
	}
	return f, nil
}

func readHeader(f io.ReaderAt, p model.Path) (model.Header, error) {
	buf := make([]byte, model.HeaderSize)
	if err := readFullAt(f, buf, 0); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return model.Header{}, status.ErrCorruptFormat.Wrapf(fmt.Sprintf("%q: truncated header", p))
		}
		return model.Header{}, status.ErrIO.Wrap(fmt.Errorf("reading header of %q: %w", p, err))
	}

	var h model.Header
	if err := h.UnmarshalBinary(buf); err != nil {
		return model.Header{}, err
	}
	return h, nil
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
