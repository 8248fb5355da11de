package vm

import (
	"log"
	"math"

	"github.com/pkg/errors"
)

// Owner values reported by FrameOwners besides process ids.
const (
	OwnerFree    int64 = -1
	OwnerKernel  int64 = -2
	OwnerUnknown int64 = -3
)

// Kernel owns the board and the processes running on it. The scheduling
// policy it was built with is reached only through the interrupt vectors.
type Kernel struct {
	cfg    Config
	board  *Board
	table  ProcessTable
	space  *kernelSpace
	heap   *Allocator
	policy SchedulingPolicy

	current int
	nextPID PID
	fatal   error

	log *log.Logger
}

// NewKernel builds the machine and creates one process per image path, in
// order. An image that cannot be read or placed is logged and skipped.
func NewKernel(cfg Config, paths []string, logger *log.Logger) (*Kernel, error) {
	k, err := newKernel(cfg, logger)
	if err != nil {
		return nil, err
	}
	for _, path := range paths {
		if k.fatal != nil {
			break
		}
		words, err := LoadImage(path)
		if err != nil {
			k.log.Printf("Kernel: failed to load the program file: %v", err)
			continue
		}
		k.createProcess(words)
	}
	k.boot()
	return k, nil
}

// NewKernelFromImages is NewKernel for images already in memory.
func NewKernelFromImages(cfg Config, images [][]Word, logger *log.Logger) (*Kernel, error) {
	k, err := newKernel(cfg, logger)
	if err != nil {
		return nil, err
	}
	for _, words := range images {
		if k.fatal != nil {
			break
		}
		k.createProcess(words)
	}
	k.boot()
	return k, nil
}

func newKernel(cfg Config, logger *log.Logger) (*Kernel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	logger = orDiscard(logger)
	board, err := NewBoard(cfg.MemorySize, cfg.PageSize, cfg.ISA, logger)
	if err != nil {
		return nil, err
	}
	k := &Kernel{
		cfg:   cfg,
		board: board,
		log:   logger,
	}
	k.space = &kernelSpace{mem: board.Memory, table: board.Memory.CreateEmptyPageTable()}
	k.heap, err = NewAllocator(k.space, 0, uint32(cfg.HeapSize))
	if err != nil {
		return nil, err
	}
	k.policy = newPolicy(cfg.Scheduler, k)
	return k, nil
}

func (k *Kernel) createProcess(words []Word) (*Process, error) {
	if k.nextPID == math.MaxUint32 {
		k.fatal = ErrPIDExhausted
		k.log.Printf("Kernel: failed to create a new process. The maximum number of processes has been reached.")
		k.halt()
		return nil, ErrPIDExhausted
	}
	if len(words) == 0 {
		k.log.Printf("Kernel: refusing to create a process from an empty image")
		return nil, ErrImageEmpty
	}
	start, err := k.heap.Allocate(uint32(len(words)))
	if err != nil {
		k.log.Printf("Kernel: failed to allocate memory for %d words: %v", len(words), err)
		return nil, err
	}
	for i, w := range words {
		if err := k.space.Store(start+uint32(i), w); err != nil {
			k.log.Printf("Kernel: failed to copy the image: %v", err)
			if ferr := k.heap.Free(start); ferr != nil {
				k.log.Printf("Kernel: %v", ferr)
			}
			return nil, err
		}
	}
	p := &Process{
		ID:          k.nextPID,
		MemoryStart: start,
		MemoryEnd:   start + uint32(len(words)),
		Registers:   Registers{IP: start},
		PageTable:   k.board.Memory.CreateEmptyPageTable(),
		State:       New,
		Estimate:    uint64((len(words) + instructionWidth - 1) / instructionWidth),
	}
	k.nextPID++
	k.policy.Admit(p)
	p.State = Ready
	k.log.Printf("Kernel: created process %d at 0x%04x-0x%04x", p.ID, p.MemoryStart, p.MemoryEnd)
	return p, nil
}

func (k *Kernel) boot() {
	k.board.PIC.Install(Vectors{
		Timer:     k.policy.OnTimer,
		Software:  k.policy.OnSoftwareInterrupt,
		PageFault: k.handlePageFault,
	})
	if k.fatal != nil {
		return
	}
	if k.table.Empty() {
		k.log.Printf("Kernel: no processes to run")
		return
	}
	k.board.Start()
	k.policy.Start()
}

func (k *Kernel) handlePageFault() {
	a := k.board.CPU.Registers.A
	pt := k.board.Memory.PageTable()
	k.log.Printf("Kernel: page fault on page %d", a)

	if a < 0 || int64(a) >= int64(len(pt)) {
		k.log.Printf("Kernel: page %d is outside of the address space. Stopping the board.", a)
		k.halt()
		return
	}
	if pt[a].Valid() {
		return
	}
	frame := k.board.Memory.AcquireFrame()
	if !frame.Valid() {
		k.log.Printf("Kernel: out of physical frames. Stopping the board.")
		k.halt()
		return
	}
	k.board.Memory.ZeroFrame(frame)
	pt[a] = frame
}

// dispatch makes p the running process.
func (k *Kernel) dispatch(p *Process) {
	k.log.Printf("Kernel: set process %d for execution", p.ID)
	k.board.Install(p.Registers, p.PageTable)
	p.State = Running
}

// suspend saves the live registers into p, which must be the running process.
func (k *Kernel) suspend(p *Process) {
	p.Registers = k.board.CPU.Registers
	p.State = Ready
}

// retireAt removes the process at i from the table and gives its memory back.
func (k *Kernel) retireAt(i int) *Process {
	p := k.table.RemoveAt(i)
	k.log.Printf("Kernel: unloading process %d", p.ID)
	if err := k.heap.Free(p.MemoryStart); err != nil {
		k.log.Printf("Kernel: %v", err)
	}
	for page, frame := range p.PageTable {
		if !frame.Valid() {
			continue
		}
		if err := k.board.Memory.ReleaseFrame(frame); err != nil {
			k.log.Printf("Kernel: %v", err)
		}
		p.PageTable[page] = InvalidFrame
	}
	p.State = Terminated
	return p
}

func (k *Kernel) halt() {
	k.board.Stop()
}

func (k *Kernel) Board() *Board {
	return k.board
}

func (k *Kernel) Config() Config {
	return k.cfg
}

func (k *Kernel) Heap() *Allocator {
	return k.heap
}

// Running reports whether the machine still has work to do.
func (k *Kernel) Running() bool {
	return k.board.Running()
}

// Err returns the fatal condition that stopped the kernel, if any.
func (k *Kernel) Err() error {
	return k.fatal
}

// Processes returns the live processes in scheduling order.
func (k *Kernel) Processes() []*Process {
	return k.table.Snapshot()
}

// Current returns the running process, or nil once the machine has halted.
func (k *Kernel) Current() *Process {
	if !k.board.Running() || k.current >= k.table.Len() {
		return nil
	}
	return k.table.At(k.current)
}

// Step runs one cycle.
func (k *Kernel) Step() error {
	return k.board.Step()
}

// Tick delivers one timer interrupt.
func (k *Kernel) Tick() {
	if k.board.Running() {
		k.board.PIC.RaiseTimer()
	}
}

// Interrupt delivers one software interrupt.
func (k *Kernel) Interrupt() {
	if k.board.Running() {
		k.board.PIC.RaiseSoftware()
	}
}

// FrameOwners reports, per frame number, the process id mapping it,
// OwnerKernel, OwnerFree, or OwnerUnknown.
func (k *Kernel) FrameOwners() []int64 {
	mem := k.board.Memory
	owners := make([]int64, mem.FrameCount())
	for i := range owners {
		if mem.IsFree(Frame(uint32(i) * mem.PageSize())) {
			owners[i] = OwnerFree
		} else {
			owners[i] = OwnerUnknown
		}
	}
	mark := func(pt PageTable, owner int64) {
		for _, f := range pt {
			if f.Valid() {
				owners[mem.frameIndex(f)] = owner
			}
		}
	}
	mark(k.space.table, OwnerKernel)
	for _, p := range k.table.procs {
		mark(p.PageTable, int64(p.ID))
	}
	return owners
}

// kernelSpace is the kernel's own address space. Pages are identity mapped:
// a fault on page n claims exactly frame n from the pool, so kernel virtual
// addresses are physical addresses and servicing the fault never allocates.
type kernelSpace struct {
	mem   *Memory
	table PageTable
}

func (ks *kernelSpace) Load(addr uint32) (Word, error) {
	phys, err := ks.resolve(addr)
	if err != nil {
		return 0, err
	}
	return ks.mem.read(phys), nil
}

func (ks *kernelSpace) Store(addr uint32, value Word) error {
	phys, err := ks.resolve(addr)
	if err != nil {
		return err
	}
	ks.mem.write(phys, value)
	return nil
}

func (ks *kernelSpace) resolve(addr uint32) (uint32, error) {
	if !ks.mem.inRange(addr) {
		return 0, errors.Wrapf(ErrOutOfRange, "kernel access 0x%04x", addr)
	}
	phys, page, ok := ks.mem.Lookup(ks.table, addr)
	if ok {
		return phys, nil
	}
	frame := Frame(page * ks.mem.PageSize())
	if !ks.mem.ClaimFrame(frame) {
		return 0, errors.Wrapf(ErrFrameTaken, "kernel page %d", page)
	}
	ks.mem.ZeroFrame(frame)
	ks.table[page] = frame
	return addr, nil
}
