package vm

import (
	"log"

	"github.com/pkg/errors"
)

// Registers is the complete architectural state of the CPU. It is copied
// wholesale on every context switch.
type Registers struct {
	A, B, C Word
	Flags   Word // reserved
	IP      uint32
	SP      uint32 // unused by the current instruction set
}

// instruction width in words: opcode followed by one operand
const instructionWidth = 2

type CPU struct {
	Registers Registers

	memory *Memory
	pic    *InterruptController
	isa    ISA
	log    *log.Logger
}

func NewCPU(memory *Memory, pic *InterruptController, isa ISA, logger *log.Logger) *CPU {
	return &CPU{memory: memory, pic: pic, isa: isa, log: orDiscard(logger)}
}

func (cpu *CPU) ISA() ISA {
	return cpu.isa
}

// Step executes the instruction at ip. Instruction fetch is physical; loads
// and stores go through the live page table.
func (cpu *CPU) Step() error {
	ip := cpu.Registers.IP
	if !cpu.memory.inRange(ip) || !cpu.memory.inRange(ip+1) {
		return errors.Wrapf(ErrFetchOutOfRange, "ip=0x%04x", ip)
	}
	instruction := cpu.memory.read(ip)
	data := cpu.memory.read(ip + 1)

	op := cpu.isa.Decode(instruction)
	switch op {
	case OpMOVA, OpMOVB, OpMOVC:
		cpu.log.Printf("0x%04x %s: imm=0x%x", ip, op, data)
		*cpu.register(op) = data
		cpu.Registers.IP += instructionWidth

	case OpJMP:
		cpu.log.Printf("0x%04x JMP: rel=%d", ip, data)
		cpu.Registers.IP = uint32(int64(ip) + int64(data))

	case OpINT:
		cpu.log.Printf("0x%04x INT: 0x%02x", ip, data)
		switch data {
		case INT_SYSCALL:
			// ip handling follows the ISA: disjoint resumes after the INT,
			// legacy re-executes it unless the handler moves ip
			if cpu.isa != ISALegacy {
				cpu.Registers.IP += instructionWidth
			}
			cpu.pic.RaiseSoftware()
		default:
			cpu.log.Printf("0x%04x INT: undefined interrupt code 0x%02x, skipping", ip, data)
			cpu.Registers.IP += instructionWidth
		}

	case OpLDA, OpLDB, OpLDC:
		cpu.log.Printf("0x%04x %s: addr=0x%04x", ip, op, data)
		if phys, ok := cpu.translate(uint32(data)); ok {
			*cpu.register(op) = cpu.memory.read(phys)
			cpu.Registers.IP += instructionWidth
		}

	case OpSTA, OpSTB, OpSTC:
		cpu.log.Printf("0x%04x %s: addr=0x%04x", ip, op, data)
		if phys, ok := cpu.translate(uint32(data)); ok {
			cpu.memory.write(phys, *cpu.register(op))
			cpu.Registers.IP += instructionWidth
		}

	default:
		cpu.log.Printf("0x%04x CPU: invalid opcode 0x%02x, skipping", ip, instruction)
		cpu.Registers.IP += instructionWidth
	}
	return nil
}

// translate resolves a data address through the live page table. On a miss
// the faulting page index is handed to the page-fault routine in register A,
// A is restored afterwards and ip is left alone so the access is retried.
func (cpu *CPU) translate(addr uint32) (uint32, bool) {
	phys, page, ok := cpu.memory.Lookup(cpu.memory.PageTable(), addr)
	if ok && cpu.memory.inRange(phys) {
		return phys, true
	}
	saved := cpu.Registers.A
	cpu.Registers.A = Word(page)
	cpu.pic.RaisePageFault()
	cpu.Registers.A = saved
	return 0, false
}

func (cpu *CPU) register(op Op) *Word {
	switch op {
	case OpMOVA, OpLDA, OpSTA:
		return &cpu.Registers.A
	case OpMOVB, OpLDB, OpSTB:
		return &cpu.Registers.B
	default:
		return &cpu.Registers.C
	}
}
