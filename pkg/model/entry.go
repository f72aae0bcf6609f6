package model

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/docker/go-units"
	"github.com/oneconcern/cfs/pkg/cfs/status"
)

const (
	// BlockSize is the maximum logical payload of a block
	BlockSize = 4 * units.KiB

	// RefCountSize is the size of the reference count field at the start of a block file
	RefCountSize = 8

	// Magic tags a file index. The tag carries the format version.
	Magic = "CFS0.1"

	// MagicSize is the length of the magic tag. Offsets derived from it stay untyped constants.
	MagicSize = 6

	// HeaderSize is the size of a file index header: magic tag, logical size and total blocks
	HeaderSize = MagicSize + 8 + 8

	// PositionSize is the size of the position field of an entry
	PositionSize = 8

	// EntrySize is the size of one (position, digest) pair in the entry log
	EntrySize = PositionSize + DigestSize

	// SizeOffset is the offset of the logical size field in the header
	SizeOffset = MagicSize

	// TotalBlocksOffset is the offset of the total blocks field in the header
	TotalBlocksOffset = SizeOffset + 8
)

// ByteOrder is the encoding used for all integers persisted by the engine
var ByteOrder = binary.LittleEndian

// Header describes the aggregate metadata of a file index
type Header struct {
	Size        int64 `json:"size" yaml:"size"`               // logical size in bytes
	TotalBlocks int64 `json:"totalBlocks" yaml:"totalBlocks"` // number of entries in the log
}

// MarshalBinary yields the on-disk representation of the header, including the magic tag
func (h Header) MarshalBinary() ([]byte, error) {
	if h.Size < 0 || h.TotalBlocks < 0 {
		return nil, fmt.Errorf("invalid header: size=%d, total blocks=%d", h.Size, h.TotalBlocks)
	}
	buf := make([]byte, HeaderSize)
	copy(buf, Magic)
	ByteOrder.PutUint64(buf[SizeOffset:], uint64(h.Size))
	ByteOrder.PutUint64(buf[TotalBlocksOffset:], uint64(h.TotalBlocks))
	return buf, nil
}

// UnmarshalBinary decodes a header, validating the magic tag
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return status.ErrCorruptFormat.Wrapf(fmt.Sprintf("truncated header: %d bytes", len(data)))
	}
	if !bytes.Equal(data[:MagicSize], []byte(Magic)) {
		return status.ErrCorruptFormat.Wrapf(fmt.Sprintf("bad magic tag %q", data[:MagicSize]))
	}
	size := int64(ByteOrder.Uint64(data[SizeOffset:]))
	total := int64(ByteOrder.Uint64(data[TotalBlocksOffset:]))
	if size < 0 || total < 0 {
		return status.ErrCorruptFormat.Wrapf(fmt.Sprintf("invalid header: size=%d, total blocks=%d", size, total))
	}
	h.Size = size
	h.TotalBlocks = total
	return nil
}

// Entry maps a logical block position to the digest of the block stored there
type Entry struct {
	Position int64
	Digest   Digest
}

// MarshalBinary yields the on-disk representation of the entry
func (e Entry) MarshalBinary() ([]byte, error) {
	buf := make([]byte, EntrySize)
	ByteOrder.PutUint64(buf, uint64(e.Position))
	copy(buf[PositionSize:], e.Digest[:])
	return buf, nil
}

// UnmarshalBinary decodes an entry
func (e *Entry) UnmarshalBinary(data []byte) error {
	if len(data) < EntrySize {
		return status.ErrCorruptFormat.Wrapf(fmt.Sprintf("truncated entry: %d bytes", len(data)))
	}
	e.Position = int64(ByteOrder.Uint64(data))
	copy(e.Digest[:], data[PositionSize:EntrySize])
	return nil
}

// EntryOffset yields the offset of the i-th entry in a file index
func EntryOffset(i int64) int64 {
	return HeaderSize + i*EntrySize
}

// DigestOffset yields the offset of the digest field of the i-th entry in a file index
func DigestOffset(i int64) int64 {
	return EntryOffset(i) + PositionSize
}
