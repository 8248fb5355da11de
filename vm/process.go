package vm

import (
	"fmt"

	"golang.org/x/exp/slices"
)

type PID uint32

type ProcessState int

const (
	New ProcessState = iota
	Ready
	Running
	Waiting // reserved, no policy blocks a process
	Terminated
)

func (s ProcessState) String() string {
	switch s {
	case New:
		return "New"
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Waiting:
		return "Waiting"
	case Terminated:
		return "Terminated"
	}
	return fmt.Sprintf("ProcessState(%d)", int(s))
}

// Process is a saved execution context.
type Process struct {
	ID PID

	// physical extent of the loaded image, [MemoryStart, MemoryEnd)
	MemoryStart uint32
	MemoryEnd   uint32

	Registers Registers
	PageTable PageTable

	State    ProcessState
	Priority int

	// Cycles counts timer ticks received while Running.
	Cycles uint64
	// Estimate is the expected amount of work, in instructions.
	Estimate uint64
}

func (p *Process) String() string {
	return fmt.Sprintf("process %d [%s prio=%d ip=0x%04x]", p.ID, p.State, p.Priority, p.Registers.IP)
}

// RemainingWork is the estimate minus the work already done, floored at zero.
func (p *Process) RemainingWork() uint64 {
	if p.Cycles >= p.Estimate {
		return 0
	}
	return p.Estimate - p.Cycles
}

// Outranks is the total order of the priority policy: higher priority
// first, lower id on ties.
func (p *Process) Outranks(q *Process) bool {
	if p.Priority != q.Priority {
		return p.Priority > q.Priority
	}
	return p.ID < q.ID
}

// ProcessTable is the ordered set of live processes.
type ProcessTable struct {
	procs []*Process
}

func (t *ProcessTable) Len() int {
	return len(t.procs)
}

func (t *ProcessTable) Empty() bool {
	return len(t.procs) == 0
}

func (t *ProcessTable) At(i int) *Process {
	return t.procs[i]
}

func (t *ProcessTable) Append(p *Process) {
	t.procs = append(t.procs, p)
}

// InsertOrdered places p before the first process it outranks.
func (t *ProcessTable) InsertOrdered(p *Process) int {
	i := slices.IndexFunc(t.procs, func(q *Process) bool { return p.Outranks(q) })
	if i < 0 {
		i = len(t.procs)
	}
	t.procs = slices.Insert(t.procs, i, p)
	return i
}

func (t *ProcessTable) Index(id PID) int {
	return slices.IndexFunc(t.procs, func(p *Process) bool { return p.ID == id })
}

func (t *ProcessTable) RemoveAt(i int) *Process {
	p := t.procs[i]
	t.procs = slices.Delete(t.procs, i, i+1)
	return p
}

// Snapshot returns a copy of the table order.
func (t *ProcessTable) Snapshot() []*Process {
	return slices.Clone(t.procs)
}
