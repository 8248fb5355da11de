package vm

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

type Scheduler int

const (
	FirstComeFirstServed Scheduler = iota
	ShortestJob
	RoundRobin
	Priority
)

func (s Scheduler) String() string {
	switch s {
	case FirstComeFirstServed:
		return "fcfs"
	case ShortestJob:
		return "sjf"
	case RoundRobin:
		return "rr"
	case Priority:
		return "priority"
	}
	return fmt.Sprintf("Scheduler(%d)", int(s))
}

func ParseScheduler(s string) (Scheduler, error) {
	switch strings.ToLower(s) {
	case "fcfs", "firstcomefirstserved", "fifo":
		return FirstComeFirstServed, nil
	case "sjf", "shortestjob":
		return ShortestJob, nil
	case "rr", "roundrobin":
		return RoundRobin, nil
	case "priority", "prio":
		return Priority, nil
	}
	return 0, errors.Errorf("unknown scheduler %q", s)
}

func (s Scheduler) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Scheduler) UnmarshalText(text []byte) error {
	v, err := ParseScheduler(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// SchedulingPolicy decides which process runs. OnTimer and
// OnSoftwareInterrupt are installed as interrupt vectors; each must leave the
// live registers and page table consistent before returning.
type SchedulingPolicy interface {
	// Admit adds a newly created process to the kernel's table.
	Admit(p *Process)
	// Start dispatches the first process.
	Start()
	OnTimer()
	OnSoftwareInterrupt()
}

func newPolicy(s Scheduler, k *Kernel) SchedulingPolicy {
	switch s {
	case ShortestJob:
		return &shortestJob{fcfs{k}}
	case RoundRobin:
		return &roundRobin{k: k}
	case Priority:
		return &priority{k: k}
	default:
		return &fcfs{k}
	}
}

// fcfs runs processes to completion in load order.
type fcfs struct {
	k *Kernel
}

func (s *fcfs) Admit(p *Process) {
	s.k.table.Append(p)
}

func (s *fcfs) Start() {
	s.k.current = 0
	s.k.dispatch(s.k.table.At(0))
}

func (s *fcfs) OnTimer() {}

func (s *fcfs) OnSoftwareInterrupt() {
	k := s.k
	if k.table.Empty() {
		return
	}
	k.log.Printf("Kernel: number of processes left = %d", k.table.Len())
	k.retireAt(0)
	if k.table.Empty() {
		k.log.Printf("Kernel: no more processes. Stopping the board.")
		k.halt()
		return
	}
	k.current = 0
	k.dispatch(k.table.At(0))
}

// shortestJob is non-preemptive: on every exit the process with the least
// remaining work runs next. Start is inherited, so the first loaded process
// always runs first.
type shortestJob struct {
	fcfs
}

func (s *shortestJob) OnTimer() {
	if p := s.k.Current(); p != nil {
		p.Cycles++
	}
}

func (s *shortestJob) OnSoftwareInterrupt() {
	k := s.k
	if k.table.Empty() {
		return
	}
	k.log.Printf("Kernel: number of processes left = %d", k.table.Len())
	k.retireAt(k.current)
	if k.table.Empty() {
		k.current = 0
		k.log.Printf("Kernel: no more processes. Stopping the board.")
		k.halt()
		return
	}
	k.current = shortest(&k.table)
	k.dispatch(k.table.At(k.current))
}

func shortest(t *ProcessTable) int {
	best := 0
	for i := 1; i < t.Len(); i++ {
		p, b := t.At(i), t.At(best)
		if p.RemainingWork() < b.RemainingWork() ||
			(p.RemainingWork() == b.RemainingWork() && p.ID < b.ID) {
			best = i
		}
	}
	return best
}

// roundRobin preempts the running process every quantum timer ticks.
type roundRobin struct {
	k      *Kernel
	cycles int
}

func (s *roundRobin) Admit(p *Process) {
	s.k.table.Append(p)
}

func (s *roundRobin) Start() {
	s.k.current = 0
	s.cycles = 0
	s.k.dispatch(s.k.table.At(0))
}

func (s *roundRobin) OnTimer() {
	k := s.k
	if k.table.Empty() {
		return
	}
	cur := k.table.At(k.current)
	cur.Cycles++
	s.cycles++
	if s.cycles < k.cfg.Quantum {
		k.log.Printf("Kernel: allowing the current process %d to run, cycle %d", cur.ID, s.cycles)
		return
	}
	s.cycles = 0
	if k.table.Len() < 2 {
		return
	}
	k.suspend(cur)
	k.current = (k.current + 1) % k.table.Len()
	next := k.table.At(k.current)
	k.log.Printf("Kernel: switching the context from process %d to process %d", cur.ID, next.ID)
	k.dispatch(next)
}

func (s *roundRobin) OnSoftwareInterrupt() {
	k := s.k
	if k.table.Empty() {
		return
	}
	k.retireAt(k.current)
	s.cycles = 0
	if k.table.Empty() {
		k.current = 0
		k.log.Printf("Kernel: no more processes. Stopping the board.")
		k.halt()
		return
	}
	k.current %= k.table.Len()
	k.log.Printf("Kernel: switching the context to process %d", k.table.At(k.current).ID)
	k.dispatch(k.table.At(k.current))
}

// Software interrupt codes understood by the priority policy, read from
// register A.
const (
	SYS_EXIT         Word = 1
	SYS_SET_PRIORITY Word = 2
)

// priority keeps the table ordered by Outranks and always runs its head.
// Every quantum the head loses one point and the new head gains one.
type priority struct {
	k      *Kernel
	cycles int
}

func (s *priority) Admit(p *Process) {
	s.k.table.InsertOrdered(p)
}

func (s *priority) Start() {
	s.k.current = 0
	s.cycles = 0
	s.k.dispatch(s.k.table.At(0))
}

func (s *priority) OnTimer() {
	k := s.k
	if k.table.Empty() {
		return
	}
	k.table.At(0).Cycles++
	s.cycles++
	if s.cycles < k.cfg.Quantum {
		return
	}
	s.cycles = 0

	old := k.table.RemoveAt(0)
	k.suspend(old)
	old.Priority--
	k.table.InsertOrdered(old)

	top := k.table.At(0)
	top.Priority++
	if top != old {
		k.log.Printf("Kernel: switching the context from process %d to process %d", old.ID, top.ID)
	}
	k.dispatch(top)
}

func (s *priority) OnSoftwareInterrupt() {
	k := s.k
	if k.table.Empty() {
		return
	}
	regs := k.board.CPU.Registers
	switch regs.A {
	case SYS_EXIT:
		k.log.Printf("Kernel: number of processes left = %d", k.table.Len())
		k.retireAt(0)
		s.cycles = 0
		if k.table.Empty() {
			k.log.Printf("Kernel: no more processes. Stopping the board.")
			k.halt()
			return
		}
		k.dispatch(k.table.At(0))

	case SYS_SET_PRIORITY:
		top := k.table.RemoveAt(0)
		top.Priority = int(regs.B)
		top.Cycles = 0
		s.cycles = 0
		k.table.InsertOrdered(top)
		if k.table.At(0) != top {
			k.suspend(top)
			k.log.Printf("Kernel: process %d yields to process %d", top.ID, k.table.At(0).ID)
			k.dispatch(k.table.At(0))
		}

	default:
		k.log.Printf("Kernel: unknown system call %d", regs.A)
	}
}
