package vm

import "github.com/pkg/errors"

const (
	DefaultQuantum  = 5
	DefaultHeapSize = DefaultMemorySize / 2
)

// Config describes the machine the kernel builds.
type Config struct {
	MemorySize int       `json:"memory_size"`
	PageSize   int       `json:"page_size"`
	HeapSize   int       `json:"heap_size"` // words from address 0 managed by the kernel allocator
	Scheduler  Scheduler `json:"scheduler"`
	Quantum    int       `json:"quantum"`
	ISA        ISA       `json:"isa"`
}

func DefaultConfig() Config {
	return Config{
		MemorySize: DefaultMemorySize,
		PageSize:   DefaultPageSize,
		HeapSize:   DefaultHeapSize,
		Scheduler:  FirstComeFirstServed,
		Quantum:    DefaultQuantum,
		ISA:        ISADisjoint,
	}
}

func (c Config) Validate() error {
	switch {
	case c.MemorySize <= 0:
		return errors.Errorf("memory_size must be positive, got %d", c.MemorySize)
	case c.PageSize <= 0 || c.MemorySize%c.PageSize != 0:
		return errors.Errorf("page_size %d must divide memory_size %d", c.PageSize, c.MemorySize)
	case c.HeapSize <= headerSize || c.HeapSize > c.MemorySize:
		return errors.Errorf("heap_size %d must be in (%d, %d]", c.HeapSize, headerSize, c.MemorySize)
	case c.Quantum <= 0:
		return errors.Errorf("quantum must be positive, got %d", c.Quantum)
	case c.Scheduler < FirstComeFirstServed || c.Scheduler > Priority:
		return errors.Errorf("unknown scheduler %d", int(c.Scheduler))
	case c.ISA != ISADisjoint && c.ISA != ISALegacy:
		return errors.Errorf("unknown isa %d", int(c.ISA))
	}
	return nil
}
