package heap

// freeLists is the segregated free-list index: one intrusive doubly-linked
// list head per size class. Links are header offsets stored inside the free
// blocks themselves (see layout.go); 0 is the empty link.
//
// A block belongs to exactly one class list while free and to none while
// allocated. Callers must remove a block the moment it stops being free: on
// placement and on participation in a coalesce.
type freeLists struct {
	heads [NumClasses]uint32
	order Ordering
}

func (fl *freeLists) reset() {
	fl.heads = [NumClasses]uint32{}
}

// insert links the free block at hdr into the class matching its size.
func (fl *freeLists) insert(data []byte, hdr uint32) {
	class := ClassOf(blockSize(data, hdr))
	if fl.order == OrderLIFO {
		fl.insertLIFO(data, hdr, class)
		return
	}
	fl.insertOrdered(data, hdr, class)
}

func (fl *freeLists) insertLIFO(data []byte, hdr uint32, class int) {
	head := fl.heads[class]
	setPrevLink(data, hdr, 0)
	setNextLink(data, hdr, head)
	if head != 0 {
		setPrevLink(data, head, hdr)
	}
	fl.heads[class] = hdr
}

func (fl *freeLists) insertOrdered(data []byte, hdr uint32, class int) {
	head := fl.heads[class]
	switch {
	case head == 0:
		setPrevLink(data, hdr, 0)
		setNextLink(data, hdr, 0)
		fl.heads[class] = hdr
	case hdr < head:
		setPrevLink(data, hdr, 0)
		setNextLink(data, hdr, head)
		setPrevLink(data, head, hdr)
		fl.heads[class] = hdr
	default:
		// walk until the successor's address exceeds ours
		cur := head
		for nextLink(data, cur) != 0 && nextLink(data, cur) < hdr {
			cur = nextLink(data, cur)
		}
		next := nextLink(data, cur)
		setNextLink(data, hdr, next)
		setPrevLink(data, hdr, cur)
		setNextLink(data, cur, hdr)
		if next != 0 {
			setPrevLink(data, next, hdr)
		}
	}
}

// remove unlinks the block at hdr from its class list in O(1) using the
// block's own links. The block must currently be free and linked.
func (fl *freeLists) remove(data []byte, hdr uint32) {
	class := ClassOf(blockSize(data, hdr))
	prev := prevLink(data, hdr)
	next := nextLink(data, hdr)
	if prev == 0 {
		fl.heads[class] = next
	} else {
		setNextLink(data, prev, next)
	}
	if next != 0 {
		setPrevLink(data, next, prev)
	}
}

// findFit returns the header offset of the first free block of size >= asize,
// scanning class by class starting at classStart: first-fit within a class,
// increasing-size search across classes.
func (fl *freeLists) findFit(data []byte, classStart int, asize uint32) (uint32, bool) {
	for class := classStart; class < NumClasses; class++ {
		for hdr := fl.heads[class]; hdr != 0; hdr = nextLink(data, hdr) {
			if blockSize(data, hdr) >= asize {
				return hdr, true
			}
		}
	}
	return 0, false
}

// classBlocks returns the header offsets linked into one class list, in list
// order. Diagnostic use only.
func (fl *freeLists) classBlocks(data []byte, class int) []uint32 {
	var blocks []uint32
	for hdr := fl.heads[class]; hdr != 0; hdr = nextLink(data, hdr) {
		blocks = append(blocks, hdr)
	}
	return blocks
}
