package blockstore

import (
	"context"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

// Measures describing block store activity
var (
	MeasureBlocks     = stats.Int64("cfs/blockstore/blocks", "number of blocks stored, including duplicates", stats.UnitDimensionless)
	MeasureDuplicates = stats.Int64("cfs/blockstore/duplicateBlocks", "number of deduplicated blocks", stats.UnitDimensionless)
	MeasureBytes      = stats.Int64("cfs/blockstore/blocksSize", "payload bytes actually written", stats.UnitBytes)
	MeasureRemoved    = stats.Int64("cfs/blockstore/removedBlocks", "number of blocks removed when their reference count dropped to zero", stats.UnitDimensionless)
	MeasureFailures   = stats.Int64("cfs/blockstore/failures", "number of failed block operations", stats.UnitDimensionless)
	MeasureTiming     = stats.Float64("cfs/blockstore/timing", "response time in milliseconds", stats.UnitMilliseconds)

	// KeyOperation tags a measurement with the block store operation
	KeyOperation = tag.MustNewKey("operation")
)

const (
	opPut    = "put"
	opRemove = "remove"
)

// Views yields opencensus views over the block store measures, ready to be registered with view.Register
func Views() []*view.View {
	tags := []tag.Key{KeyOperation}
	return []*view.View{
		{Name: MeasureBlocks.Name(), Measure: MeasureBlocks, Description: MeasureBlocks.Description(), TagKeys: tags, Aggregation: view.Count()},
		{Name: MeasureDuplicates.Name(), Measure: MeasureDuplicates, Description: MeasureDuplicates.Description(), TagKeys: tags, Aggregation: view.Sum()},
		{Name: MeasureBytes.Name(), Measure: MeasureBytes, Description: MeasureBytes.Description(), TagKeys: tags, Aggregation: view.Sum()},
		{Name: MeasureRemoved.Name(), Measure: MeasureRemoved, Description: MeasureRemoved.Description(), TagKeys: tags, Aggregation: view.Sum()},
		{Name: MeasureFailures.Name(), Measure: MeasureFailures, Description: MeasureFailures.Description(), TagKeys: tags, Aggregation: view.Sum()},
		{
			Name: MeasureTiming.Name(), Measure: MeasureTiming, Description: MeasureTiming.Description(), TagKeys: tags,
			Aggregation: view.Distribution(0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000),
		},
	}
}

func recordPut(ctx context.Context, start time.Time, res PutRes, err error) {
	mutator := tag.Upsert(KeyOperation, opPut)
	ms := float64(time.Since(start).Nanoseconds()) / 1e6

	if err != nil {
		_ = stats.RecordWithTags(ctx, []tag.Mutator{mutator}, MeasureFailures.M(1), MeasureTiming.M(ms))
		return
	}

	measurements := []stats.Measurement{MeasureBlocks.M(1), MeasureTiming.M(ms)}
	if res.Found {
		measurements = append(measurements, MeasureDuplicates.M(1))
	} else {
		measurements = append(measurements, MeasureBytes.M(int64(res.Written)))
	}
	_ = stats.RecordWithTags(ctx, []tag.Mutator{mutator}, measurements...)
}

func recordRemove(ctx context.Context) {
	_ = stats.RecordWithTags(ctx, []tag.Mutator{tag.Upsert(KeyOperation, opRemove)}, MeasureRemoved.M(1))
}
