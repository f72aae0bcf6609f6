package blockstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opencensus.io/stats/view"
)

func TestStore_Metrics(t *testing.T) {
	views := Views()
	require.NoError(t, view.Register(views...))
	defer view.Unregister(views...)

	ctx := context.Background()
	s, _ := memStore(t, WithMetrics(true))

	res, err := s.Put(ctx, []byte("metered"))
	require.NoError(t, err)
	_, err = s.Put(ctx, []byte("metered"))
	require.NoError(t, err)
	_, err = s.DecRef(ctx, res.Digest)
	require.NoError(t, err)

	rows, err := view.RetrieveData(MeasureBlocks.Name())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].Data.(*view.CountData).Value)

	rows, err = view.RetrieveData(MeasureDuplicates.Name())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, float64(1), rows[0].Data.(*view.SumData).Value)

	rows, err = view.RetrieveData(MeasureBytes.Name())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, float64(len("metered")), rows[0].Data.(*view.SumData).Value)

	rows, err = view.RetrieveData(MeasureRemoved.Name())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, float64(1), rows[0].Data.(*view.SumData).Value)
}
