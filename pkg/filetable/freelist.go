package filetable

/* the free list keeps track of released slots, so they are re-used
 * before the table scans for never used ones.
 *
 * this is a stack: the most recently released slot is handed out first.
 */
type freelist struct {
	list []int
}

func newFreelist(capacity int) *freelist {
	return &freelist{
		list: make([]int, 0, capacity),
	}
}

/* pick a free slot, if any */
func (l *freelist) get() (int, bool) {
	ll := len(l.list)
	if ll == 0 {
		return 0, false
	}
	x := l.list[ll-1]
	l.list = l.list[:ll-1]
	return x, true
}

/* return a slot to the list */
func (l *freelist) put(slot int) {
	l.list = append(l.list, slot)
}

func (l *freelist) len() int {
	return len(l.list)
}
