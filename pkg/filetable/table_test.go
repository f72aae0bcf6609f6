package filetable

import (
	"context"
	"fmt"
	"testing"

	"github.com/oneconcern/cfs/pkg/blockstore"
	"github.com/oneconcern/cfs/pkg/cfs/status"
	"github.com/oneconcern/cfs/pkg/fileindex"
	"github.com/oneconcern/cfs/pkg/model"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openIndices(t testing.TB, n int) []*fileindex.Index {
	fs := afero.NewMemMapFs()
	store, err := blockstore.New("/mem", blockstore.Fs(fs))
	require.NoError(t, err)

	indices := make([]*fileindex.Index, 0, n)
	for i := 0; i < n; i++ {
		p := model.MustNewPath(fmt.Sprintf("file-%d", i))
		require.NoError(t, fileindex.Create(fs, p))
		x, err := fileindex.Open(fs, store, p)
		require.NoError(t, err)
		indices = append(indices, x)
	}
	return indices
}

func TestTable_Growth(t *testing.T) {
	const initial = 4
	tbl := New(initial)
	indices := openIndices(t, 9)

	// handle ids are not slot numbers
	handleOf := func(i int) Handle { return Handle(1000 + 7*i) }

	expectedCapacity := []int{4, 4, 8, 8, 16, 16, 16, 16, 32}
	for i, x := range indices {
		s, err := tbl.Register(handleOf(i), x)
		require.NoError(t, err)
		assert.Equal(t, handleOf(i), s.Handle)
		assert.Equal(t, expectedCapacity[i], tbl.Capacity(), "after %d registrations", i+1)
		assert.LessOrEqual(t, 2*tbl.Len(), tbl.Capacity())
	}
	assert.Equal(t, len(indices), tbl.Len())

	for i, x := range indices {
		s, ok := tbl.Lookup(handleOf(i))
		require.True(t, ok)
		assert.Equal(t, handleOf(i), s.Handle)
		assert.Equal(t, x.Path(), s.Path)

		resolved, err := tbl.Index(handleOf(i))
		require.NoError(t, err)
		assert.Same(t, x, resolved)
	}
}

func TestTable_Release(t *testing.T) {
	tbl := New(0)
	assert.Equal(t, DefaultCapacity, tbl.Capacity())
	indices := openIndices(t, 3)

	first, err := tbl.Register(1, indices[0])
	require.NoError(t, err)
	_, err = tbl.Register(2, indices[1])
	require.NoError(t, err)

	_, err = tbl.Register(2, indices[1])
	assert.ErrorIs(t, err, status.ErrBadHandle)

	x, err := tbl.Release(1)
	require.NoError(t, err)
	assert.Same(t, indices[0], x)
	assert.Equal(t, 1, tbl.Len())
	assert.Equal(t, 1, tbl.free.len())
	assert.False(t, tbl.Current(first))

	_, ok := tbl.Lookup(1)
	assert.False(t, ok)
	_, err = tbl.Release(1)
	assert.ErrorIs(t, err, status.ErrBadHandle)
	_, err = tbl.Index(1)
	assert.ErrorIs(t, err, status.ErrBadHandle)

	// the released slot is re-used under a new generation
	third, err := tbl.Register(3, indices[2])
	require.NoError(t, err)
	assert.Zero(t, tbl.free.len())
	assert.Greater(t, third.Generation, first.Generation)
	assert.True(t, tbl.Current(third))

	assert.Equal(t, []Handle{2, 3}, tbl.Handles())

	_, err = tbl.Register(4, nil)
	assert.Error(t, err)
}

func TestTable_SlotIsACopy(t *testing.T) {
	ctx := context.Background()
	tbl := New(2)
	indices := openIndices(t, 1)

	s, err := tbl.Register(42, indices[0])
	require.NoError(t, err)
	assert.Zero(t, s.Size)

	require.NoError(t, indices[0].RegisterBlock(ctx, 0, []byte("payload")))

	// the previous copy is unchanged, a new lookup reflects the header
	assert.Zero(t, s.Size)
	s, ok := tbl.Lookup(42)
	require.True(t, ok)
	assert.Equal(t, int64(len("payload")), s.Size)
	assert.Equal(t, int64(1), s.TotalBlocks)

	s, err = tbl.Seek(42, 4096)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), s.Offset)

	_, err = tbl.Seek(42, -1)
	assert.ErrorIs(t, err, status.ErrInvalidPosition)
	_, err = tbl.Seek(43, 0)
	assert.ErrorIs(t, err, status.ErrBadHandle)
}
