package heap

import (
	"fmt"
	"math"
)

// Provider supplies the backing memory for a Region: a contiguous arena that
// only grows. Extend appends n bytes and returns the whole (grown) arena.
// Extension either succeeds immediately or fails immediately; there is no
// partial outcome. A failed extension must leave the arena untouched.
type Provider interface {
	Extend(n int) ([]byte, error)
}

// Region is the contiguous, only-grows memory region the allocator carves
// blocks from. Blocks are addressed by uint32 offsets into the arena, so a
// region never exceeds 4GB.
type Region struct {
	prov  Provider
	data  []byte
	chunk uint32
}

func newRegion(prov Provider, chunk uint32) *Region {
	return &Region{prov: prov, chunk: chunk}
}

// Bytes returns the arena. The slice is invalidated by Extend.
func (r *Region) Bytes() []byte { return r.data }

// Len returns the current region size in bytes.
func (r *Region) Len() uint32 { return uint32(len(r.data)) }

// Extend grows the region by n bytes rounded up to the chunk granularity and
// returns the offset of the first appended byte. Provider failure is the one
// recoverable error in the engine and propagates as an error here.
func (r *Region) Extend(n uint32) (uint32, error) {
	chunk := uint64(r.chunk)
	an := (uint64(n) + chunk - 1) / chunk * chunk
	return r.extendRaw(an)
}

// extendRaw grows by exactly n bytes, below the chunk contract. Used once
// during engine bootstrap to place the sentinel words.
func (r *Region) extendRaw(n uint64) (uint32, error) {
	if uint64(len(r.data))+n > math.MaxUint32 {
		return 0, fmt.Errorf("%w: offset space exhausted", ErrGrowFail)
	}
	data, err := r.prov.Extend(int(n))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrGrowFail, err)
	}
	base := uint32(len(r.data))
	r.data = data
	return base, nil
}

// MemProvider is a byte-slice arena with an optional size limit, used to
// simulate memory pressure during tests and trace replay.
type MemProvider struct {
	buf   []byte
	limit int
}

// NewMemProvider returns an in-memory provider. limit caps the arena size in
// bytes; 0 means unlimited.
func NewMemProvider(limit int) *MemProvider {
	return &MemProvider{limit: limit}
}

// Extend appends n zero bytes to the arena.
func (p *MemProvider) Extend(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("heap: negative extension (%d)", n)
	}
	if p.limit > 0 && len(p.buf)+n > p.limit {
		return nil, fmt.Errorf("%w (%d + %d > %d)", ErrMemLimit, len(p.buf), n, p.limit)
	}
	p.buf = append(p.buf, make([]byte, n)...)
	return p.buf, nil
}

// Size returns the current arena size in bytes.
func (p *MemProvider) Size() int { return len(p.buf) }
