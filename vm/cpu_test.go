package vm

import (
	"reflect"
	"testing"

	"github.com/pkg/errors"
)

func newTestBoard(t *testing.T, isa ISA) *Board {
	t.Helper()
	b, err := NewBoard(256, 16, isa, nil)
	if err != nil {
		t.Fatalf("NewBoard: %v", err)
	}
	b.Install(Registers{}, b.Memory.CreateEmptyPageTable())
	b.Start()
	return b
}

// loadProgram copies words into RAM starting at address 0.
func loadProgram(b *Board, words ...Word) {
	copy(b.Memory.Ram, words)
}

func step(t *testing.T, b *Board) {
	t.Helper()
	if err := b.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
}

func TestMOV(t *testing.T) {
	b := newTestBoard(t, ISADisjoint)
	loadProgram(b, MOVA_OPCODE, 0x2A, MOVB_OPCODE, -7, MOVC_OPCODE, 3)
	step(t, b)
	step(t, b)
	step(t, b)
	regs := b.CPU.Registers
	if regs.A != 0x2A || regs.B != -7 || regs.C != 3 {
		t.Errorf("expected a=0x2A b=-7 c=3, got %+v", regs)
	}
	if regs.IP != 6 {
		t.Errorf("expected ip=6, got %d", regs.IP)
	}
}

func TestJMPIsRelative(t *testing.T) {
	b := newTestBoard(t, ISADisjoint)
	loadProgram(b, JMP_OPCODE, 6, 0, 0, 0, 0, JMP_OPCODE, -6)
	step(t, b)
	if b.CPU.Registers.IP != 6 {
		t.Fatalf("JMP 6: expected ip=6, got %d", b.CPU.Registers.IP)
	}
	step(t, b)
	if b.CPU.Registers.IP != 0 {
		t.Errorf("JMP -6: expected ip=0, got %d", b.CPU.Registers.IP)
	}
}

func TestInvalidOpcodeIsSkipped(t *testing.T) {
	b := newTestBoard(t, ISADisjoint)
	loadProgram(b, 0x7F, 1, MOVA_OPCODE, 9)
	step(t, b)
	if b.CPU.Registers.IP != 2 {
		t.Fatalf("expected ip=2 after an invalid opcode, got %d", b.CPU.Registers.IP)
	}
	step(t, b)
	if b.CPU.Registers.A != 9 {
		t.Errorf("execution did not continue after the invalid opcode")
	}
}

func TestINT(t *testing.T) {
	tests := []struct {
		isa     ISA
		code    Word
		raised  int
		afterIP uint32
	}{
		{ISADisjoint, INT_SYSCALL, 1, 2},
		{ISALegacy, INT_SYSCALL, 1, 0},
		{ISADisjoint, 7, 0, 2},
		{ISALegacy, 7, 0, 2},
	}
	for _, tt := range tests {
		b := newTestBoard(t, tt.isa)
		raised := 0
		b.PIC.Install(Vectors{Software: func() { raised++ }})
		loadProgram(b, INT_OPCODE, tt.code)
		step(t, b)
		if raised != tt.raised {
			t.Errorf("%s INT %d: expected %d software interrupts, got %d", tt.isa, tt.code, tt.raised, raised)
		}
		if b.CPU.Registers.IP != tt.afterIP {
			t.Errorf("%s INT %d: expected ip=%d, got %d", tt.isa, tt.code, tt.afterIP, b.CPU.Registers.IP)
		}
	}
}

func TestLoadStoreThroughPageTable(t *testing.T) {
	b := newTestBoard(t, ISADisjoint)
	b.Memory.PageTable()[3] = 0x80
	loadProgram(b,
		MOVA_OPCODE, 1234,
		STA_OPCODE, 0x35,
		LDB_OPCODE, 0x35,
		STB_OPCODE, 0x36,
		LDC_OPCODE, 0x36,
	)
	for i := 0; i < 5; i++ {
		step(t, b)
	}
	if b.Memory.Ram[0x85] != 1234 || b.Memory.Ram[0x86] != 1234 {
		t.Errorf("stores did not land in frame 0x80: ram[0x85]=%d ram[0x86]=%d", b.Memory.Ram[0x85], b.Memory.Ram[0x86])
	}
	if b.CPU.Registers.B != 1234 || b.CPU.Registers.C != 1234 {
		t.Errorf("expected b=c=1234, got %+v", b.CPU.Registers)
	}
	if b.CPU.Registers.IP != 10 {
		t.Errorf("expected ip=10, got %d", b.CPU.Registers.IP)
	}
}

func TestPageFaultRetry(t *testing.T) {
	for _, op := range []Word{LDA_OPCODE, LDB_OPCODE, LDC_OPCODE, STA_OPCODE, STB_OPCODE, STC_OPCODE} {
		b := newTestBoard(t, ISADisjoint)
		b.CPU.Registers.A = 77
		b.Memory.Ram[0x95] = 55
		faults := 0
		var faultPage Word
		b.PIC.Install(Vectors{PageFault: func() {
			faults++
			faultPage = b.CPU.Registers.A
			b.Memory.PageTable()[faultPage] = 0x90
		}})
		loadProgram(b, op, 0x35)

		step(t, b)
		if b.CPU.Registers.IP != 0 {
			t.Errorf("0x%02x: faulting access advanced ip to %d", op, b.CPU.Registers.IP)
		}
		if faults != 1 || faultPage != 3 {
			t.Errorf("0x%02x: expected one fault on page 3, got %d faults on page %d", op, faults, faultPage)
		}
		if b.CPU.Registers.A != 77 {
			t.Errorf("0x%02x: register a not restored after the fault, got %d", op, b.CPU.Registers.A)
		}

		step(t, b)
		if b.CPU.Registers.IP != 2 {
			t.Errorf("0x%02x: retried access should advance ip to 2, got %d", op, b.CPU.Registers.IP)
		}
		if faults != 1 {
			t.Errorf("0x%02x: retry faulted again", op)
		}
	}
}

func TestLoadAfterFaultReadsMappedFrame(t *testing.T) {
	b := newTestBoard(t, ISADisjoint)
	b.Memory.Ram[0x95] = 55
	b.PIC.Install(Vectors{PageFault: func() {
		b.Memory.PageTable()[b.CPU.Registers.A] = 0x90
	}})
	loadProgram(b, LDC_OPCODE, 0x35)
	step(t, b)
	step(t, b)
	if b.CPU.Registers.C != 55 {
		t.Errorf("expected c=55, got %d", b.CPU.Registers.C)
	}
}

func TestUnservicedFaultRetriesForever(t *testing.T) {
	b := newTestBoard(t, ISADisjoint)
	loadProgram(b, LDA_OPCODE, 0x10)
	for i := 0; i < 3; i++ {
		step(t, b)
		if b.CPU.Registers.IP != 0 {
			t.Fatalf("ip moved to %d without a mapping", b.CPU.Registers.IP)
		}
	}
}

func TestStepIsPure(t *testing.T) {
	program := []Word{
		MOVA_OPCODE, 5,
		STA_OPCODE, 0x12,
		LDB_OPCODE, 0x12,
		0x66, 0,
		JMP_OPCODE, -8,
	}
	run := func() *Board {
		b := newTestBoard(t, ISADisjoint)
		b.Memory.PageTable()[1] = 0xA0
		b.CPU.Registers = Registers{C: 9, Flags: 1, SP: 4}
		loadProgram(b, program...)
		for i := 0; i < 12; i++ {
			step(t, b)
		}
		return b
	}
	first, second := run(), run()
	if first.CPU.Registers != second.CPU.Registers {
		t.Errorf("registers diverged: %+v vs %+v", first.CPU.Registers, second.CPU.Registers)
	}
	if !reflect.DeepEqual(first.Memory.Ram, second.Memory.Ram) {
		t.Errorf("RAM diverged")
	}
}

func TestFetchOutOfRangeStopsTheBoard(t *testing.T) {
	b := newTestBoard(t, ISADisjoint)
	b.CPU.Registers.IP = 255
	err := b.Step()
	if !errors.Is(err, ErrFetchOutOfRange) {
		t.Errorf("expected ErrFetchOutOfRange, got %v", err)
	}
	if b.Running() {
		t.Errorf("board still running after a bad fetch")
	}
}

func TestStoppedBoardDoesNotStep(t *testing.T) {
	b := newTestBoard(t, ISADisjoint)
	loadProgram(b, MOVA_OPCODE, 1)
	b.Stop()
	step(t, b)
	if b.CPU.Registers.A != 0 || b.Cycles() != 0 {
		t.Errorf("stopped board executed an instruction")
	}
}

func TestLegacyOpcodeCollisions(t *testing.T) {
	// 0x20 and 0x30 keep their first meaning; LDA and STA are shadowed
	if op := ISALegacy.Decode(0x20); op != OpJMP {
		t.Errorf("legacy 0x20: expected JMP, got %s", op)
	}
	if op := ISALegacy.Decode(0x30); op != OpINT {
		t.Errorf("legacy 0x30: expected INT, got %s", op)
	}
	if op := ISALegacy.Decode(0x21); op != OpLDB {
		t.Errorf("legacy 0x21: expected LDB, got %s", op)
	}
	if _, ok := ISALegacy.Encode(OpLDA); ok {
		t.Errorf("legacy LDA should not be encodable")
	}
	if _, ok := ISALegacy.Encode(OpSTA); ok {
		t.Errorf("legacy STA should not be encodable")
	}

	for _, op := range []Op{OpMOVA, OpMOVB, OpMOVC, OpJMP, OpINT, OpLDA, OpLDB, OpLDC, OpSTA, OpSTB, OpSTC} {
		code, ok := ISADisjoint.Encode(op)
		if !ok || ISADisjoint.Decode(code) != op {
			t.Errorf("disjoint %s does not survive encode/decode", op)
		}
	}
}

func TestLegacyLoadGroupStillFaults(t *testing.T) {
	b := newTestBoard(t, ISALegacy)
	faults := 0
	b.PIC.Install(Vectors{PageFault: func() { faults++ }})
	loadProgram(b, LEGACY_LDB_BASE_OPCODE, 0x40)
	step(t, b)
	if faults != 1 {
		t.Errorf("legacy LDB: expected one page fault, got %d", faults)
	}
}

func TestParseISA(t *testing.T) {
	for _, s := range []string{"disjoint", "legacy"} {
		isa, err := ParseISA(s)
		if err != nil || isa.String() != s {
			t.Errorf("ParseISA(%q) = %v, %v", s, isa, err)
		}
	}
	if _, err := ParseISA("x86"); err == nil {
		t.Errorf("ParseISA(x86): expected an error")
	}
}
