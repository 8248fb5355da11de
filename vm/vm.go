package vm

import (
	"io"
	"log"
)

// Board is the machine: RAM with its MMU, the CPU and the interrupt
// controller. One call to Step is one simulated cycle.
type Board struct {
	Memory *Memory
	CPU    *CPU
	PIC    *InterruptController

	running bool
	cycles  uint64
	log     *log.Logger
}

func NewBoard(memorySize, pageSize int, isa ISA, logger *log.Logger) (*Board, error) {
	logger = orDiscard(logger)
	mem, err := NewMemory(memorySize, pageSize)
	if err != nil {
		return nil, err
	}
	pic := NewInterruptController(logger)
	return &Board{
		Memory: mem,
		CPU:    NewCPU(mem, pic, isa, logger),
		PIC:    pic,
		log:    logger,
	}, nil
}

func (b *Board) Start() {
	b.running = true
}

func (b *Board) Stop() {
	if b.running {
		b.log.Printf("Board: stopping after %d cycles", b.cycles)
	}
	b.running = false
}

func (b *Board) Running() bool {
	return b.running
}

func (b *Board) Cycles() uint64 {
	return b.cycles
}

// Step runs one CPU cycle. A fetch outside of RAM stops the board.
func (b *Board) Step() error {
	if !b.running {
		return nil
	}
	b.cycles++
	if err := b.CPU.Step(); err != nil {
		b.log.Printf("Board: %v", err)
		b.Stop()
		return err
	}
	return nil
}

// Install swaps the live registers and page table together.
func (b *Board) Install(regs Registers, pt PageTable) {
	b.CPU.Registers = regs
	b.Memory.Install(pt)
}

func orDiscard(logger *log.Logger) *log.Logger {
	if logger == nil {
		return log.New(io.Discard, "", 0)
	}
	return logger
}
