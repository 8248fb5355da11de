package vm

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

const (
	DefaultMemorySize = 1 << 16
	DefaultPageSize   = 1 << 8
)

// Word is a single RAM cell. Its meaning (opcode, operand, data or allocator
// metadata) is decided only at the access site.
type Word int32

// Frame is the physical base address of a page-sized block of RAM.
type Frame int32

// InvalidFrame marks an unmapped page table entry and is returned by
// AcquireFrame when the pool is exhausted.
const InvalidFrame Frame = -1

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// PageTable maps a page index to the frame backing it.
type PageTable []Frame

// Mapped reports how many pages of the table are backed by a frame.
func (pt PageTable) Mapped() int {
	n := 0
	for _, f := range pt {
		if f.Valid() {
			n++
		}
	}
	return n
}

type Memory struct {
	Ram      []Word
	pageSize uint32

	freeFrames []Frame
	inPool     []bool

	pageTable PageTable
}

func NewMemory(size, pageSize int) (*Memory, error) {
	if size <= 0 || pageSize <= 0 || size%pageSize != 0 {
		return nil, errors.Errorf("page size %d does not divide memory size %d", pageSize, size)
	}
	frames := size / pageSize
	mem := &Memory{
		Ram:        make([]Word, size),
		pageSize:   uint32(pageSize),
		freeFrames: make([]Frame, 0, frames),
		inPool:     make([]bool, frames),
	}
	for i := 0; i < frames; i++ {
		mem.freeFrames = append(mem.freeFrames, Frame(i*pageSize))
		mem.inPool[i] = true
	}
	return mem, nil
}

func (mem *Memory) PageSize() uint32 {
	return mem.pageSize
}

func (mem *Memory) FrameCount() int {
	return len(mem.inPool)
}

func (mem *Memory) FreeFrames() int {
	return len(mem.freeFrames)
}

func (mem *Memory) CreateEmptyPageTable() PageTable {
	pt := make(PageTable, mem.FrameCount())
	for i := range pt {
		pt[i] = InvalidFrame
	}
	return pt
}

// TranslateAddress splits a virtual address into its page index and offset.
// The page index is not checked against any table.
func (mem *Memory) TranslateAddress(addr uint32) (page, offset uint32) {
	return addr / mem.pageSize, addr % mem.pageSize
}

// Lookup resolves addr through pt. ok is false when the page is outside the
// table or unmapped; page is returned either way so the caller can fault on it.
func (mem *Memory) Lookup(pt PageTable, addr uint32) (phys uint32, page uint32, ok bool) {
	page, offset := mem.TranslateAddress(addr)
	if uint64(page) >= uint64(len(pt)) || !pt[page].Valid() {
		return 0, page, false
	}
	return uint32(pt[page]) + offset, page, true
}

// AcquireFrame pops the most recently released frame, or InvalidFrame when
// none is left.
func (mem *Memory) AcquireFrame() Frame {
	n := len(mem.freeFrames)
	if n == 0 {
		return InvalidFrame
	}
	frame := mem.freeFrames[n-1]
	mem.freeFrames = mem.freeFrames[:n-1]
	mem.inPool[mem.frameIndex(frame)] = false
	return frame
}

// ClaimFrame removes a specific frame from the pool. It only touches pool
// bookkeeping, never RAM, so it is safe to call while servicing a fault.
func (mem *Memory) ClaimFrame(frame Frame) bool {
	if !mem.isFrame(frame) || !mem.inPool[mem.frameIndex(frame)] {
		return false
	}
	i := slices.Index(mem.freeFrames, frame)
	mem.freeFrames = slices.Delete(mem.freeFrames, i, i+1)
	mem.inPool[mem.frameIndex(frame)] = false
	return true
}

func (mem *Memory) ReleaseFrame(frame Frame) error {
	if !mem.isFrame(frame) {
		return errors.Wrapf(ErrBadFrame, "release of 0x%04x", int32(frame))
	}
	if mem.inPool[mem.frameIndex(frame)] {
		return errors.Wrapf(ErrFrameNotOwned, "release of 0x%04x", int32(frame))
	}
	mem.inPool[mem.frameIndex(frame)] = true
	mem.freeFrames = append(mem.freeFrames, frame)
	return nil
}

// IsFree reports whether frame is currently in the pool.
func (mem *Memory) IsFree(frame Frame) bool {
	return mem.isFrame(frame) && mem.inPool[mem.frameIndex(frame)]
}

// ZeroFrame clears the page-sized block starting at frame.
func (mem *Memory) ZeroFrame(frame Frame) {
	start := uint32(frame)
	block := mem.Ram[start : start+mem.pageSize]
	for i := range block {
		block[i] = 0
	}
}

// Install makes pt the live page table.
func (mem *Memory) Install(pt PageTable) {
	mem.pageTable = pt
}

func (mem *Memory) PageTable() PageTable {
	return mem.pageTable
}

func (mem *Memory) read(addr uint32) Word {
	return mem.Ram[addr]
}

func (mem *Memory) write(addr uint32, value Word) {
	mem.Ram[addr] = value
}

func (mem *Memory) inRange(addr uint32) bool {
	return uint64(addr) < uint64(len(mem.Ram))
}

func (mem *Memory) isFrame(frame Frame) bool {
	return frame >= 0 && int(frame) < len(mem.Ram) && uint32(frame)%mem.pageSize == 0
}

func (mem *Memory) frameIndex(frame Frame) int {
	return int(uint32(frame) / mem.pageSize)
}
