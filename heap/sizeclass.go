package heap

// NumClasses is the number of segregated size classes. Class i holds free
// blocks whose size falls in [2^(i+4), 2^(i+5)); the last class is open-ended.
const NumClasses = 28

// classBoundaries holds the lower bound of each size class: 16, 32, ... 2^31.
var classBoundaries [NumClasses]uint32

func init() {
	for i := range classBoundaries {
		classBoundaries[i] = 1 << (i + 4)
	}
}

// ClassOf returns the size class index for a block size: the greatest index
// whose boundary does not exceed size. Sizes are at least Alignment, so the
// result is always in [0, NumClasses).
func ClassOf(size uint32) int {
	lo, hi := 0, NumClasses
	for lo < hi {
		mid := (lo + hi) >> 1
		if size < classBoundaries[mid] {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo - 1
}
