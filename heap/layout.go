package heap

import "encoding/binary"

// Block layout constants. All block metadata is little-endian uint32 words.
//
// Header word layout:
//
//	Bit     Meaning
//	[31:4]  Block size in bytes (always a multiple of 16, header included)
//	[2]     Reserved, always zero
//	[1]     Previous block allocated
//	[0]     This block allocated
//
// An allocated block is [header | payload | padding] with no footer: its
// allocated state is carried by the next block's prev-alloc bit. A free block
// is [header | prev link | next link | filler | footer], the footer mirroring
// the header so a successor can locate the block by scanning backward.
const (
	// WordSize is the size of a header, footer, or free-list link word.
	WordSize = 4

	// Alignment is the block granularity. It is also the minimum block size:
	// a free block must hold header, two link words, and a footer.
	Alignment = 16

	// ChunkSize is the granularity of region extension requests.
	ChunkSize = 1 << 12

	allocBit     = 1 << 0
	prevAllocBit = 1 << 1
	sizeMask     = ^uint32(7)

	// maxBlockSize is the largest encodable block size: the header word
	// stores size in its high bits, and the top size class is open-ended up
	// to 2^32. Larger aligned requests are rejected, never truncated.
	maxBlockSize = 1<<32 - Alignment
)

// Free-list link words live at fixed offsets inside a free block's payload.
const (
	prevLinkOff = WordSize
	nextLinkOff = 2 * WordSize
)

// align16 rounds n up to the next block granularity boundary.
func align16(n uint64) uint64 {
	return (n + Alignment - 1) &^ (Alignment - 1)
}

func readWord(data []byte, off uint32) uint32 {
	return binary.LittleEndian.Uint32(data[off : off+WordSize])
}

func putWord(data []byte, off uint32, v uint32) {
	binary.LittleEndian.PutUint32(data[off:off+WordSize], v)
}

// pack encodes a header word from size and flag bits.
func pack(size uint32, flags uint32) uint32 {
	return size | flags
}

func blockSize(data []byte, hdr uint32) uint32 {
	return readWord(data, hdr) & sizeMask
}

func blockAlloc(data []byte, hdr uint32) bool {
	return readWord(data, hdr)&allocBit != 0
}

func blockPrevAlloc(data []byte, hdr uint32) bool {
	return readWord(data, hdr)&prevAllocBit != 0
}

func footerOff(hdr, size uint32) uint32 {
	return hdr + size - WordSize
}

// writeFooter mirrors the header word into the block's footer.
// Only meaningful for free blocks; allocated blocks carry no footer.
func writeFooter(data []byte, hdr uint32) {
	putWord(data, footerOff(hdr, blockSize(data, hdr)), readWord(data, hdr))
}

// setAlloc sets or clears the allocated bit without touching size or prev-alloc.
func setAlloc(data []byte, hdr uint32, on bool) {
	w := readWord(data, hdr)
	if on {
		w |= allocBit
	} else {
		w &^= allocBit
	}
	putWord(data, hdr, w)
}

// setPrevAlloc sets or clears the prev-alloc bit without touching size or
// alloc. When the block is free, the footer is rewritten to keep it a mirror
// of the header, so backward scans observe the same state.
func setPrevAlloc(data []byte, hdr uint32, on bool) {
	w := readWord(data, hdr)
	if on {
		w |= prevAllocBit
	} else {
		w &^= prevAllocBit
	}
	putWord(data, hdr, w)
	if w&allocBit == 0 && w&sizeMask != 0 {
		putWord(data, footerOff(hdr, w&sizeMask), w)
	}
}

// prevLink and nextLink are the intrusive free-list links, stored as header
// offsets into the region. Offset 0 means "no link": the word at offset 0 is
// the prologue sentinel, never a block header.
func prevLink(data []byte, hdr uint32) uint32 {
	return readWord(data, hdr+prevLinkOff)
}

func nextLink(data []byte, hdr uint32) uint32 {
	return readWord(data, hdr+nextLinkOff)
}

func setPrevLink(data []byte, hdr, target uint32) {
	putWord(data, hdr+prevLinkOff, target)
}

func setNextLink(data []byte, hdr, target uint32) {
	putWord(data, hdr+nextLinkOff, target)
}

// payloadOf converts a header offset to the payload offset callers hold.
func payloadOf(hdr uint32) uint32 {
	return hdr + WordSize
}

// headerOf converts a payload reference back to its header offset.
func headerOf(ref Ref) uint32 {
	return uint32(ref) - WordSize
}
