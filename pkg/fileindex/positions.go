package fileindex

import (
	"encoding/binary"
	"unsafe"

	iradix "github.com/hashicorp/go-immutable-radix"
)

// positions tracks the location of the digest field of each entry, by block position.
//
// Keys are big-endian encoded, so walking the tree visits positions in ascending order.
type positions struct {
	tracker *iradix.Tree
}

func newPositions() *positions {
	return &positions{tracker: iradix.New()}
}

func getKey(pos int64) []byte {
	k := make([]byte, unsafe.Sizeof(int64(0)))
	binary.BigEndian.PutUint64(k, uint64(pos))
	return k
}

func getPosition(k []byte) int64 {
	return int64(binary.BigEndian.Uint64(k))
}

func (p *positions) get(pos int64) (int64, bool) {
	v, ok := p.tracker.Get(getKey(pos))
	if !ok {
		return 0, false
	}
	return v.(int64), true
}

// track the digest offset of a position. The first known location wins, like a scan of the log would.
func (p *positions) track(pos, digestOffset int64) {
	k := getKey(pos)
	if _, ok := p.tracker.Get(k); ok {
		return
	}
	p.tracker, _, _ = p.tracker.Insert(k, digestOffset)
}

func (p *positions) len() int {
	return p.tracker.Len()
}

// walk positions in ascending order, until fn returns false
func (p *positions) walk(fn func(pos, digestOffset int64) bool) {
	const terminate = true
	p.tracker.Root().Walk(func(k []byte, v interface{}) bool {
		if !fn(getPosition(k), v.(int64)) {
			return terminate
		}
		return !terminate
	})
}
