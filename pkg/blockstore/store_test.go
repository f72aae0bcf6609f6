package blockstore

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/oneconcern/cfs/internal/rand"
	"github.com/oneconcern/cfs/pkg/cfs/status"
	"github.com/oneconcern/cfs/pkg/hashing"
	"github.com/oneconcern/cfs/pkg/model"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memStore(t testing.TB, opts ...Option) (*Store, afero.Fs) {
	fs := afero.NewMemMapFs()
	s, err := New("/mem", append([]Option{Fs(fs)}, opts...)...)
	require.NoError(t, err)
	return s, fs
}

func TestStore_New(t *testing.T) {
	s, fs := memStore(t)

	isDir, err := afero.IsDir(fs, model.BlocksDir)
	require.NoError(t, err)
	assert.True(t, isDir)
	assert.Equal(t, "/mem", s.RootPath())
	assert.Equal(t, "/mem/.BLOCKS", s.BlocksPath())
	assert.Equal(t, hashing.SHA1, s.Scheme())

	_, err = New("")
	require.Error(t, err)
	assert.ErrorIs(t, err, status.ErrInvalidPath)

	_, err = New("/mem", Fs(fs), Scheme("md5"))
	require.Error(t, err)
}

func TestStore_PutGet(t *testing.T) {
	ctx := context.Background()
	s, fs := memStore(t)

	res, err := s.Put(ctx, []byte("hello"))
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Equal(t, 5, res.Written)
	assert.Equal(t, "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d", res.Digest.String())

	// on-disk layout: refcount, then payload
	raw, err := afero.ReadFile(fs, model.BlockPath(res.Digest))
	require.NoError(t, err)
	require.Len(t, raw, model.RefCountSize+5)
	assert.Equal(t, uint64(1), model.ByteOrder.Uint64(raw[:model.RefCountSize]))
	assert.Equal(t, "hello", string(raw[model.RefCountSize:]))

	data, err := s.Get(ctx, res.Digest)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	// served from the cache, as a copy
	data[0] = 'j'
	again, err := s.Get(ctx, res.Digest)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(again))

	size, err := s.Size(ctx, res.Digest)
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	has, err := s.Has(ctx, res.Digest)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestStore_PutIdempotent(t *testing.T) {
	ctx := context.Background()
	s, _ := memStore(t)
	payload := rand.Bytes(model.BlockSize)

	first, err := s.Put(ctx, payload)
	require.NoError(t, err)
	require.False(t, first.Found)

	second, err := s.Put(ctx, payload)
	require.NoError(t, err)
	assert.True(t, second.Found)
	assert.Zero(t, second.Written)
	assert.Equal(t, first.Digest, second.Digest)

	// a duplicate Put leaves the reference count alone
	refs, err := s.Refs(ctx, first.Digest)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), refs)

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestStore_EmptyPayload(t *testing.T) {
	ctx := context.Background()
	s, _ := memStore(t, CacheSize(-1))

	res, err := s.Put(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "da39a3ee5e6b4b0d3255bfef95601890afd80709", res.Digest.String())

	data, err := s.Get(ctx, res.Digest)
	require.NoError(t, err)
	assert.Empty(t, data)

	size, err := s.Size(ctx, res.Digest)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestStore_TooLarge(t *testing.T) {
	s, _ := memStore(t)

	_, err := s.Put(context.Background(), make([]byte, model.BlockSize+1))
	require.Error(t, err)
	assert.ErrorIs(t, err, status.ErrBlockTooLarge)
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s, _ := memStore(t)
	missing := hashing.Sum([]byte("missing"))

	_, err := s.Get(ctx, missing)
	assert.ErrorIs(t, err, status.ErrNotFound)

	_, err = s.Size(ctx, missing)
	assert.ErrorIs(t, err, status.ErrNotFound)

	_, err = s.IncRef(ctx, missing)
	assert.ErrorIs(t, err, status.ErrNotFound)

	_, err = s.DecRef(ctx, missing)
	assert.ErrorIs(t, err, status.ErrNotFound)

	has, err := s.Has(ctx, missing)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestStore_CachedBlockReleasedElsewhere(t *testing.T) {
	ctx := context.Background()
	s, fs := memStore(t)
	other, err := New("/mem", Fs(fs))
	require.NoError(t, err)

	payload := []byte("cached")
	res, err := s.Put(ctx, payload)
	require.NoError(t, err)

	data, err := s.Get(ctx, res.Digest)
	require.NoError(t, err)
	require.Equal(t, payload, data)

	// the last reference goes away through another store sharing the same blocks
	n, err := other.DecRef(ctx, res.Digest)
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = s.Get(ctx, res.Digest)
	assert.ErrorIs(t, err, status.ErrNotFound)

	// a block stored again is served fresh
	_, err = other.Put(ctx, payload)
	require.NoError(t, err)
	data, err = s.Get(ctx, res.Digest)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestStore_RefCounting(t *testing.T) {
	ctx := context.Background()
	s, fs := memStore(t)

	res, err := s.Put(ctx, []byte("world!"))
	require.NoError(t, err)

	refs, err := s.IncRef(ctx, res.Digest)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), refs)

	refs, err = s.IncRef(ctx, res.Digest)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), refs)

	for expected := uint64(2); expected > 0; expected-- {
		refs, err = s.DecRef(ctx, res.Digest)
		require.NoError(t, err)
		assert.Equal(t, expected, refs)
	}

	// warm up the cache before removal
	_, err = s.Get(ctx, res.Digest)
	require.NoError(t, err)

	refs, err = s.DecRef(ctx, res.Digest)
	require.NoError(t, err)
	assert.Zero(t, refs)

	exists, err := afero.Exists(fs, model.BlockPath(res.Digest))
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = s.Get(ctx, res.Digest)
	assert.ErrorIs(t, err, status.ErrNotFound, "a removed block must not be served from the cache")

	// storing again starts over
	res, err = s.Put(ctx, []byte("world!"))
	require.NoError(t, err)
	assert.False(t, res.Found)

	refs, err = s.Refs(ctx, res.Digest)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), refs)
}

func TestStore_CorruptBlocks(t *testing.T) {
	ctx := context.Background()
	s, fs := memStore(t, CacheSize(-1))

	truncated := hashing.Sum([]byte("truncated"))
	require.NoError(t, afero.WriteFile(fs, model.BlockPath(truncated), []byte{1, 0, 0}, 0600))

	_, err := s.IncRef(ctx, truncated)
	assert.ErrorIs(t, err, status.ErrCorruptFormat)

	_, err = s.Get(ctx, truncated)
	assert.ErrorIs(t, err, status.ErrCorruptFormat)

	zero := hashing.Sum([]byte("zero"))
	require.NoError(t, afero.WriteFile(fs, model.BlockPath(zero), make([]byte, model.RefCountSize), 0600))

	_, err = s.DecRef(ctx, zero)
	assert.ErrorIs(t, err, status.ErrCorruptFormat)
}

func TestStore_Keys(t *testing.T) {
	ctx := context.Background()
	s, fs := memStore(t)

	blocks := rand.Blocks(10, 100)
	expected := make([]model.Digest, 0, len(blocks))
	for _, b := range blocks {
		res, err := s.Put(ctx, b)
		require.NoError(t, err)
		expected = append(expected, res.Digest)
	}

	// stray files are ignored
	require.NoError(t, afero.WriteFile(fs, model.BlocksDir+"/README", []byte("not a block"), 0600))

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, expected, keys)
}

func TestStore_Blake2b(t *testing.T) {
	ctx := context.Background()
	s, _ := memStore(t, Scheme(hashing.Blake2b))

	res, err := s.Put(ctx, []byte("hello"))
	require.NoError(t, err)
	assert.NotEqual(t, hashing.Sum([]byte("hello")), res.Digest)
	assert.Equal(t, s.Digest([]byte("hello")), res.Digest)
	assert.Len(t, hex.EncodeToString(res.Digest[:]), model.DigestSizeHex)

	data, err := s.Get(ctx, res.Digest)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}
