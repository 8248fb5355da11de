package vm

import "github.com/pkg/errors"

const (
	// every block starts with [next free block, payload size]
	headerSize = 2

	allocTag Word = -2
	noBlock  Word = -1
)

// AddressSpace is the view of memory the allocator works through. Every
// access may translate and fault; a failed access is reported as an error.
type AddressSpace interface {
	Load(addr uint32) (Word, error)
	Store(addr uint32, value Word) error
}

// Block is one entry of the allocator's tiling of its managed range.
type Block struct {
	Addr uint32 // header address
	Size uint32 // payload words, header excluded
	Free bool
}

// End returns the first address after the block.
func (b Block) End() uint32 {
	return b.Addr + headerSize + b.Size
}

// Allocator is a next-fit allocator over a circular, address-ordered free
// list kept inside the managed words themselves.
type Allocator struct {
	space       AddressSpace
	base, limit uint32
	cursor      Word
}

func NewAllocator(space AddressSpace, base, limit uint32) (*Allocator, error) {
	if limit <= base || limit-base <= headerSize {
		return nil, errors.Errorf("allocator range [0x%04x, 0x%04x) is too small", base, limit)
	}
	a := &Allocator{space: space, base: base, limit: limit, cursor: Word(base)}
	h := a.heap()
	h.set(base, Word(base))
	h.set(base+1, Word(limit-base-headerSize))
	if h.err != nil {
		return nil, errors.Wrap(h.err, "initialise free list")
	}
	return a, nil
}

// Allocate reserves at least units words and returns the address of the
// first one. ErrNoFit is returned once the scan wraps without success.
func (a *Allocator) Allocate(units uint32) (uint32, error) {
	if units == 0 || a.cursor == noBlock {
		return 0, ErrNoFit
	}
	h := a.heap()
	prev := uint32(a.cursor)
	cur := h.addr(h.get(prev))
	for h.err == nil {
		size := uint32(h.get(cur + 1))
		if h.err != nil {
			break
		}
		if size >= units {
			next := h.get(cur)
			if size-units > headerSize {
				tail := cur + headerSize + units
				h.set(tail+1, Word(size-units-headerSize))
				if prev == cur {
					h.set(tail, Word(tail))
					a.cursor = Word(tail)
				} else {
					h.set(tail, next)
					h.set(prev, Word(tail))
					a.cursor = Word(prev)
				}
				h.set(cur+1, Word(units))
			} else if prev == cur {
				a.cursor = noBlock
			} else {
				h.set(prev, next)
				a.cursor = Word(prev)
			}
			h.set(cur, allocTag)
			if h.err != nil {
				break
			}
			return cur + headerSize, nil
		}
		if cur == uint32(a.cursor) {
			return 0, ErrNoFit
		}
		prev, cur = cur, h.addr(h.get(cur))
	}
	return 0, h.err
}

// Free returns a block obtained from Allocate, coalescing it with any free
// neighbour that is physically adjacent.
func (a *Allocator) Free(addr uint32) error {
	if addr < a.base+headerSize || addr >= a.limit {
		return errors.Wrapf(ErrBadFree, "free 0x%04x", addr)
	}
	h := a.heap()
	blk := addr - headerSize
	tag, size := h.get(blk), h.get(blk+1)
	if h.err != nil {
		return h.err
	}
	if tag != allocTag || size <= 0 || uint64(blk)+headerSize+uint64(size) > uint64(a.limit) {
		return errors.Wrapf(ErrBadFree, "free 0x%04x", addr)
	}

	if a.cursor == noBlock {
		h.set(blk, Word(blk))
		a.cursor = Word(blk)
		return h.err
	}

	// find p with p < blk < next(p), or the wrap point of the list
	p := uint32(a.cursor)
	for steps := uint32(0); ; steps++ {
		n := h.addr(h.get(p))
		if h.err != nil {
			return h.err
		}
		if p < blk && blk < n {
			break
		}
		if p >= n && (blk > p || blk < n) {
			break
		}
		if steps > (a.limit-a.base)/headerSize {
			return errors.Errorf("free list corrupt while freeing 0x%04x", addr)
		}
		p = n
	}

	n := h.addr(h.get(p))
	psize := uint32(h.get(p + 1))
	bsize := uint32(size)

	if p == n {
		switch {
		case blk+headerSize+bsize == p:
			h.set(blk+1, Word(bsize+headerSize+psize))
			h.set(blk, Word(blk))
			a.cursor = Word(blk)
		case p+headerSize+psize == blk:
			h.set(p+1, Word(psize+headerSize+bsize))
			h.set(blk, Word(p)) // absorbed header must not stay tagged
			a.cursor = Word(p)
		default:
			h.set(blk, Word(p))
			h.set(p, Word(blk))
			a.cursor = Word(p)
		}
		return h.err
	}

	if blk+headerSize+bsize == n {
		bsize += headerSize + uint32(h.get(n+1))
		h.set(blk+1, Word(bsize))
		h.set(blk, h.get(n))
	} else {
		h.set(blk, Word(n))
	}
	if p+headerSize+psize == blk {
		h.set(p+1, Word(psize+headerSize+bsize))
		h.set(p, h.get(blk))
	} else {
		h.set(p, Word(blk))
	}
	a.cursor = Word(p)
	return h.err
}

// Blocks walks the managed range in address order.
func (a *Allocator) Blocks() ([]Block, error) {
	h := a.heap()
	var blocks []Block
	for addr := a.base; addr < a.limit; {
		tag, size := h.get(addr), h.get(addr+1)
		if h.err != nil {
			return nil, h.err
		}
		if size < 0 || uint64(addr)+headerSize+uint64(size) > uint64(a.limit) {
			return nil, errors.Errorf("block at 0x%04x has bad size %d", addr, size)
		}
		b := Block{Addr: addr, Size: uint32(size), Free: tag != allocTag}
		blocks = append(blocks, b)
		addr = b.End()
	}
	return blocks, nil
}

// Range returns the managed address range [base, limit).
func (a *Allocator) Range() (base, limit uint32) {
	return a.base, a.limit
}

func (a *Allocator) heap() *heapIO {
	return &heapIO{a: a}
}

// heapIO keeps the first access error so the list surgery above reads as a
// straight sequence of loads and stores.
type heapIO struct {
	a   *Allocator
	err error
}

func (h *heapIO) get(addr uint32) Word {
	if h.err != nil {
		return 0
	}
	if !h.check(addr) {
		return 0
	}
	w, err := h.a.space.Load(addr)
	if err != nil {
		h.err = err
	}
	return w
}

func (h *heapIO) set(addr uint32, value Word) {
	if h.err != nil || !h.check(addr) {
		return
	}
	if err := h.a.space.Store(addr, value); err != nil {
		h.err = err
	}
}

// addr validates a link read from the heap.
func (h *heapIO) addr(w Word) uint32 {
	if h.err == nil && (w < Word(h.a.base) || uint32(w) >= h.a.limit) {
		h.err = errors.Wrapf(ErrOutOfRange, "free list link 0x%04x", int32(w))
		return 0
	}
	return uint32(w)
}

func (h *heapIO) check(addr uint32) bool {
	if addr < h.a.base || addr >= h.a.limit {
		h.err = errors.Wrapf(ErrOutOfRange, "heap access 0x%04x", addr)
		return false
	}
	return true
}
