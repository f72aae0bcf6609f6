package fileindex

import (
	"context"
	"fmt"
	"os"

	"github.com/oneconcern/cfs/pkg/cfs/status"
	"github.com/oneconcern/cfs/pkg/errors"
	"github.com/oneconcern/cfs/pkg/model"
	"github.com/spf13/afero"
)

// RebuildRes describes the outcome of a header recovery
type RebuildRes struct {
	Previous      model.Header // header found on disk
	Header        model.Header // recomputed header
	Truncated     int64        // bytes of trailing partial entry removed from the log
	MissingBlocks []model.Digest
}

// Rebuild recomputes the header of a file index from its entry log.
//
// The number of blocks is derived from the length of the log, and the logical size from the sizes of
// the blocks it references. A trailing partial entry, left over by an interrupted append, is truncated.
// Blocks missing from the store are reported and account for no size.
//
// The file index must not be open while it is rebuilt.
func Rebuild(ctx context.Context, fs afero.Fs, blocks Blocks, p model.Path) (RebuildRes, error) {
	f, err := openFile(fs, p, os.O_RDWR)
	if err != nil {
		return RebuildRes{}, err
	}
	defer f.Close()

	var res RebuildRes
	res.Previous, err = readHeader(f, p)
	if err != nil {
		return RebuildRes{}, err
	}

	fi, err := f.Stat()
	if err != nil {
		return RebuildRes{}, status.ErrIO.Wrap(fmt.Errorf("stat %q: %w", p, err))
	}

	logSize := fi.Size() - model.HeaderSize
	total := logSize / model.EntrySize
	if partial := logSize % model.EntrySize; partial != 0 {
		if err = f.Truncate(model.EntryOffset(total)); err != nil {
			return RebuildRes{}, status.ErrIO.Wrap(fmt.Errorf("truncating %q: %w", p, err))
		}
		res.Truncated = partial
	}

	// reuse the index scanner over the whole log, without any block store mutation
	x := &Index{path: p, file: f, header: model.Header{TotalBlocks: total}}
	var (
		size    int64
		sizeErr error
	)
	err = x.scan(func(e model.Entry) bool {
		blockSize, err := blocks.Size(ctx, e.Digest)
		switch {
		case err == nil:
			size += blockSize
		case errors.Is(err, status.ErrNotFound):
			res.MissingBlocks = append(res.MissingBlocks, e.Digest)
		default:
			sizeErr = err
			return false
		}
		return true
	})
	if err != nil {
		return RebuildRes{}, err
	}
	if sizeErr != nil {
		return RebuildRes{}, sizeErr
	}

	x.header.Size = size
	if err = x.writeHeader(); err != nil {
		return RebuildRes{}, err
	}

	res.Header = x.header
	return res, nil
}
