// Package filetable keeps track of open file indices, by handle.
//
// The table is an array of slots which doubles in size whenever more than half of the slots are in use.
// Callers never get a reference into the table: lookups return copies, and every access is resolved
// by handle again. Each registration is tagged with a new generation, so a copy kept around after
// the handle has been released and its slot re-used is detected as stale.
//
// A Table is not safe for concurrent use.
package filetable

import (
	"fmt"
	"sort"

	"github.com/oneconcern/cfs/pkg/cfs/status"
	"github.com/oneconcern/cfs/pkg/fileindex"
	"github.com/oneconcern/cfs/pkg/model"
)

// DefaultCapacity is the initial number of slots of a table
const DefaultCapacity = 16

// Handle identifies an open file
type Handle uint64

// Slot describes an open file. It is a copy of the table state at the time of the lookup.
type Slot struct {
	Handle      Handle     `json:"handle" yaml:"handle"`
	Path        model.Path `json:"-" yaml:"-"`
	Size        int64      `json:"size" yaml:"size"`
	TotalBlocks int64      `json:"totalBlocks" yaml:"totalBlocks"`
	Offset      int64      `json:"offset" yaml:"offset"`
	Generation  uint64     `json:"generation" yaml:"generation"`
}

type slot struct {
	used       bool
	handle     Handle
	generation uint64
	offset     int64
	index      *fileindex.Index
}

// Table maps open handles to their file index
type Table struct {
	slots      []slot
	byHandle   map[Handle]int
	free       *freelist
	next       int // first never used slot
	generation uint64
}

// New table with some initial capacity. A capacity lower than 2 yields the default capacity.
func New(capacity int) *Table {
	if capacity < 2 {
		capacity = DefaultCapacity
	}
	return &Table{
		slots:    make([]slot, capacity),
		byHandle: make(map[Handle]int, capacity),
		free:     newFreelist(capacity),
	}
}

// Capacity of the table, in slots
func (t *Table) Capacity() int {
	return len(t.slots)
}

// Len is the number of open handles
func (t *Table) Len() int {
	return len(t.byHandle)
}

// Register an open file index under some handle.
//
// The table doubles its capacity first if registering would bring occupancy over half of the capacity.
func (t *Table) Register(h Handle, x *fileindex.Index) (Slot, error) {
	if x == nil {
		return Slot{}, fmt.Errorf("cannot register a nil file index for handle %d", h)
	}
	if _, exists := t.byHandle[h]; exists {
		return Slot{}, status.ErrBadHandle.Wrapf(fmt.Sprintf("handle %d is already registered", h))
	}

	if 2*(t.Len()+1) > t.Capacity() {
		t.grow()
	}

	pos, ok := t.free.get()
	if !ok {
		pos = t.next
		t.next++
	}

	t.generation++
	t.slots[pos] = slot{
		used:       true,
		handle:     h,
		generation: t.generation,
		index:      x,
	}
	t.byHandle[h] = pos

	return t.slots[pos].copy(), nil
}

func (t *Table) grow() {
	grown := make([]slot, 2*len(t.slots))
	copy(grown, t.slots)
	t.slots = grown
}

// Release a handle. The file index is returned to the caller, who is responsible for closing it.
func (t *Table) Release(h Handle) (*fileindex.Index, error) {
	pos, ok := t.byHandle[h]
	if !ok {
		return nil, status.ErrBadHandle.Wrapf(fmt.Sprintf("handle %d", h))
	}

	x := t.slots[pos].index
	t.slots[pos] = slot{}
	delete(t.byHandle, h)
	t.free.put(pos)

	return x, nil
}

// Lookup the state of an open file
func (t *Table) Lookup(h Handle) (Slot, bool) {
	pos, ok := t.byHandle[h]
	if !ok {
		return Slot{}, false
	}
	return t.slots[pos].copy(), true
}

// Current tells if a slot copy still describes an open file, i.e. its handle has not been released since
func (t *Table) Current(s Slot) bool {
	pos, ok := t.byHandle[s.Handle]
	return ok && t.slots[pos].generation == s.Generation
}

// Index resolves the file index of an open handle.
//
// The returned index must not be retained beyond the current operation.
func (t *Table) Index(h Handle) (*fileindex.Index, error) {
	pos, ok := t.byHandle[h]
	if !ok {
		return nil, status.ErrBadHandle.Wrapf(fmt.Sprintf("handle %d", h))
	}
	return t.slots[pos].index, nil
}

// Seek moves the cursor of an open file to some byte offset
func (t *Table) Seek(h Handle, offset int64) (Slot, error) {
	if offset < 0 {
		return Slot{}, status.ErrInvalidPosition.Wrapf(fmt.Sprintf("negative offset %d", offset))
	}
	pos, ok := t.byHandle[h]
	if !ok {
		return Slot{}, status.ErrBadHandle.Wrapf(fmt.Sprintf("handle %d", h))
	}
	t.slots[pos].offset = offset
	return t.slots[pos].copy(), nil
}

// Handles lists all open handles, in ascending order
func (t *Table) Handles() []Handle {
	handles := make([]Handle, 0, len(t.byHandle))
	for h := range t.byHandle {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	return handles
}

func (s slot) copy() Slot {
	header := s.index.Header()
	return Slot{
		Handle:      s.handle,
		Path:        s.index.Path(),
		Size:        header.Size,
		TotalBlocks: header.TotalBlocks,
		Offset:      s.offset,
		Generation:  s.generation,
	}
}
