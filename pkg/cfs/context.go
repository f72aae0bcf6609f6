// Copyright © 2018 One Concern

// Package cfs assembles the block storage engine: a block store, a table of open files
// and the coordination lock which serializes all file index operations.
//
// A Context is created once for a storage root and shared by all callers, e.g. the adapter
// of a virtual filesystem. All methods are safe for concurrent use.
package cfs

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/oneconcern/cfs/pkg/blockstore"
	"github.com/oneconcern/cfs/pkg/cfs/status"
	"github.com/oneconcern/cfs/pkg/dlogger"
	"github.com/oneconcern/cfs/pkg/fileindex"
	"github.com/oneconcern/cfs/pkg/filetable"
	"github.com/oneconcern/cfs/pkg/model"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Handle identifies an open file
type Handle = filetable.Handle

// Context is the storage context for some root directory
type Context struct {
	mu sync.Mutex // guards the table, all open indices and closed

	root   string
	fs     afero.Fs
	store  *blockstore.Store
	table  *filetable.Table
	last   Handle
	closed bool

	storeOpts     []blockstore.Option
	positionCache bool
	tableCapacity int

	l *zap.Logger
}

func defaultContext(root string) *Context {
	return &Context{
		root:          root,
		tableCapacity: filetable.DefaultCapacity,
		l:             dlogger.MustGetLogger(dlogger.LogLevelNone),
	}
}

// New storage context.
//
// The root directory must exist. The blocks directory is created if needed.
func New(root string, opts ...Option) (*Context, error) {
	c := defaultContext(root)
	for _, apply := range opts {
		apply(c)
	}

	if c.fs == nil {
		if root == "" {
			return nil, status.ErrInvalidPath.Wrapf("a storage context requires a root directory")
		}
		isDir, err := afero.IsDir(afero.NewOsFs(), root)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, status.ErrNotFound.Wrapf("storage root " + root)
			}
			return nil, status.ErrIO.Wrap(err)
		}
		if !isDir {
			return nil, status.ErrInvalidPath.Wrapf("storage root is not a directory: " + root)
		}
		c.fs = afero.NewBasePathFs(afero.NewOsFs(), root)
	}

	store, err := blockstore.New(root, append(c.storeOpts, blockstore.Fs(c.fs), blockstore.Logger(c.l))...)
	if err != nil {
		return nil, err
	}
	c.store = store
	c.table = filetable.New(c.tableCapacity)
	c.l = dlogger.Component(c.l, "cfs").With(zap.String("root", root))

	c.l.Info("storage context ready", zap.Stringer("store", store), zap.String("scheme", string(store.Scheme())))
	return c, nil
}

// Root directory of this storage context
func (c *Context) Root() string {
	return c.root
}

// Store yields the block store
func (c *Context) Store() *blockstore.Store {
	return c.store
}

// Fs yields the filesystem holding the storage root
func (c *Context) Fs() afero.Fs {
	return c.fs
}

// Create a new file and open it. It fails with status.ErrAlreadyExists if the file exists.
func (c *Context) Create(name string) (Handle, error) {
	p, err := model.NewPath(name)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err = c.check(); err != nil {
		return 0, err
	}
	if err = fileindex.Create(c.fs, p); err != nil {
		return 0, err
	}
	return c.open(p)
}

// Open an existing file
func (c *Context) Open(name string) (Handle, error) {
	p, err := model.NewPath(name)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err = c.check(); err != nil {
		return 0, err
	}
	return c.open(p)
}

func (c *Context) open(p model.Path) (Handle, error) {
	x, err := fileindex.Open(c.fs, c.store, p, fileindex.Logger(c.l), fileindex.PositionCache(c.positionCache))
	if err != nil {
		return 0, err
	}

	h := c.last + 1
	if _, err = c.table.Register(h, x); err != nil {
		_ = x.Close()
		return 0, err
	}
	c.last = h

	c.l.Debug("file opened", zap.Stringer("path", p), zap.Uint64("handle", uint64(h)))
	return h, nil
}

// Stat reads the header of a file, whether it is open or not
func (c *Context) Stat(name string) (model.Header, error) {
	p, err := model.NewPath(name)
	if err != nil {
		return model.Header{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err = c.check(); err != nil {
		return model.Header{}, err
	}
	return fileindex.Stat(c.fs, p)
}

// Lookup the state of an open file
func (c *Context) Lookup(h Handle) (filetable.Slot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check(); err != nil {
		return filetable.Slot{}, err
	}
	s, ok := c.table.Lookup(h)
	if !ok {
		return filetable.Slot{}, status.ErrBadHandle.Wrapf(fmt.Sprintf("handle %d", h))
	}
	return s, nil
}

// Seek moves the cursor of an open file
func (c *Context) Seek(h Handle, offset int64) (filetable.Slot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check(); err != nil {
		return filetable.Slot{}, err
	}
	return c.table.Seek(h, offset)
}

// RegisterBlock writes the payload of the block at some position of an open file
func (c *Context) RegisterBlock(ctx context.Context, h Handle, pos int64, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	x, err := c.index(h)
	if err != nil {
		return err
	}
	return x.RegisterBlock(ctx, pos, payload)
}

// ReadBlock reads the payload of the block at some position of an open file.
//
// A position without any block is not an error: the returned flag is then false.
func (c *Context) ReadBlock(ctx context.Context, h Handle, pos int64) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	x, err := c.index(h)
	if err != nil {
		return nil, false, err
	}
	return x.ReadBlock(ctx, pos)
}

// Entries yields the entry log of an open file, in write order
func (c *Context) Entries(h Handle) ([]model.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	x, err := c.index(h)
	if err != nil {
		return nil, err
	}
	return x.Entries()
}

// Positions yields the block positions of an open file, in ascending order
func (c *Context) Positions(h Handle) ([]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	x, err := c.index(h)
	if err != nil {
		return nil, err
	}
	return x.Positions()
}

// Release closes an open file
func (c *Context) Release(h Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check(); err != nil {
		return err
	}
	x, err := c.table.Release(h)
	if err != nil {
		return err
	}

	c.l.Debug("file released", zap.Stringer("path", x.Path()), zap.Uint64("handle", uint64(h)))
	return x.Close()
}

// Delete an open file: the references held on its blocks are released, then the file is removed.
//
// The handle is released, even when Delete fails.
func (c *Context) Delete(ctx context.Context, h Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	x, err := c.index(h)
	if err != nil {
		return err
	}
	_, _ = c.table.Release(h)

	if err = x.Delete(ctx); err != nil {
		return err
	}

	c.l.Debug("file deleted", zap.Stringer("path", x.Path()), zap.Uint64("handle", uint64(h)))
	return nil
}

// Rebuild recomputes the header of a file from its entry log. The file must not be open.
func (c *Context) Rebuild(ctx context.Context, name string) (fileindex.RebuildRes, error) {
	p, err := model.NewPath(name)
	if err != nil {
		return fileindex.RebuildRes{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err = c.check(); err != nil {
		return fileindex.RebuildRes{}, err
	}
	for _, h := range c.table.Handles() {
		if s, _ := c.table.Lookup(h); s.Path == p {
			return fileindex.RebuildRes{}, status.ErrBadHandle.Wrapf(fmt.Sprintf("%q is open with handle %d", p, h))
		}
	}

	res, err := fileindex.Rebuild(ctx, c.fs, c.store, p)
	if err != nil {
		return fileindex.RebuildRes{}, err
	}
	if len(res.MissingBlocks) > 0 {
		c.l.Warn("file references missing blocks", zap.Stringer("path", p), zap.Int("missing", len(res.MissingBlocks)))
	}
	return res, nil
}

// Close releases all open files. The context may not be used afterwards.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var err error
	for _, h := range c.table.Handles() {
		x, rerr := c.table.Release(h)
		if rerr != nil {
			err = multierr.Append(err, rerr)
			continue
		}
		err = multierr.Append(err, x.Close())
	}

	c.l.Info("storage context closed")
	_ = c.l.Sync()
	return err
}

func (c *Context) index(h Handle) (*fileindex.Index, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	return c.table.Index(h)
}

func (c *Context) check() error {
	if c.closed {
		return status.ErrClosed.Wrapf("storage context " + c.root)
	}
	return nil
}
