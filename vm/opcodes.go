package vm

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Op is a decoded instruction, independent of the numbering of any ISA.
type Op int

const (
	OpInvalid Op = iota
	OpMOVA
	OpMOVB
	OpMOVC
	OpJMP
	OpINT
	OpLDA
	OpLDB
	OpLDC
	OpSTA
	OpSTB
	OpSTC
)

var opNames = [...]string{"???", "MOVA", "MOVB", "MOVC", "JMP", "INT", "LDA", "LDB", "LDC", "STA", "STB", "STC"}

func (op Op) String() string {
	if op < 0 || int(op) >= len(opNames) {
		return opNames[OpInvalid]
	}
	return opNames[op]
}

// ISA selects the opcode numbering the CPU decodes.
type ISA int

const (
	// ISADisjoint gives every instruction its own code.
	ISADisjoint ISA = iota
	// ISALegacy keeps the original numbering, where JMP/LDA share 0x20 and
	// INT/STA share 0x30. Decoding follows the original precedence, so LDA
	// and STA can never execute, and INT does not advance ip.
	ISALegacy
)

// disjoint encoding
const (
	MOVA_OPCODE Word = 0x10
	MOVB_OPCODE Word = 0x11
	MOVC_OPCODE Word = 0x12
	JMP_OPCODE  Word = 0x20
	INT_OPCODE  Word = 0x30
	LDA_OPCODE  Word = 0x40
	LDB_OPCODE  Word = 0x41
	LDC_OPCODE  Word = 0x42
	STA_OPCODE  Word = 0x50
	STB_OPCODE  Word = 0x51
	STC_OPCODE  Word = 0x52
)

// legacy encoding
const (
	LEGACY_LDA_BASE_OPCODE Word = 0x20
	LEGACY_LDB_BASE_OPCODE Word = 0x21
	LEGACY_LDC_BASE_OPCODE Word = 0x22
	LEGACY_STA_BASE_OPCODE Word = 0x30
	LEGACY_STB_BASE_OPCODE Word = 0x31
	LEGACY_STC_BASE_OPCODE Word = 0x32
)

// INT codes
const (
	INT_SYSCALL Word = 1 /* software interrupt, served by the kernel */
)

type opcodeEntry struct {
	code Word
	op   Op
}

// tables are scanned in order; the first matching code wins
var opcodeTables = map[ISA][]opcodeEntry{
	ISADisjoint: {
		{MOVA_OPCODE, OpMOVA}, {MOVB_OPCODE, OpMOVB}, {MOVC_OPCODE, OpMOVC},
		{JMP_OPCODE, OpJMP}, {INT_OPCODE, OpINT},
		{LDA_OPCODE, OpLDA}, {LDB_OPCODE, OpLDB}, {LDC_OPCODE, OpLDC},
		{STA_OPCODE, OpSTA}, {STB_OPCODE, OpSTB}, {STC_OPCODE, OpSTC},
	},
	ISALegacy: {
		{MOVA_OPCODE, OpMOVA}, {MOVB_OPCODE, OpMOVB}, {MOVC_OPCODE, OpMOVC},
		{JMP_OPCODE, OpJMP}, {INT_OPCODE, OpINT},
		{LEGACY_LDA_BASE_OPCODE, OpLDA}, {LEGACY_LDB_BASE_OPCODE, OpLDB}, {LEGACY_LDC_BASE_OPCODE, OpLDC},
		{LEGACY_STA_BASE_OPCODE, OpSTA}, {LEGACY_STB_BASE_OPCODE, OpSTB}, {LEGACY_STC_BASE_OPCODE, OpSTC},
	},
}

// Decode maps an instruction word to its operation under isa.
func (isa ISA) Decode(instruction Word) Op {
	for _, e := range opcodeTables[isa] {
		if e.code == instruction {
			return e.op
		}
	}
	return OpInvalid
}

// Encode returns the instruction word for op, or false when isa cannot
// express it unambiguously.
func (isa ISA) Encode(op Op) (Word, bool) {
	for _, e := range opcodeTables[isa] {
		if e.op == op {
			if isa.Decode(e.code) != op {
				return e.code, false
			}
			return e.code, true
		}
	}
	return 0, false
}

func (isa ISA) String() string {
	switch isa {
	case ISADisjoint:
		return "disjoint"
	case ISALegacy:
		return "legacy"
	}
	return fmt.Sprintf("ISA(%d)", int(isa))
}

func ParseISA(s string) (ISA, error) {
	switch strings.ToLower(s) {
	case "", "disjoint":
		return ISADisjoint, nil
	case "legacy":
		return ISALegacy, nil
	}
	return 0, errors.Errorf("unknown isa %q", s)
}

// MarshalText and UnmarshalText let ISA be used directly in JSON config.
func (isa ISA) MarshalText() ([]byte, error) {
	return []byte(isa.String()), nil
}

func (isa *ISA) UnmarshalText(text []byte) error {
	v, err := ParseISA(string(text))
	if err != nil {
		return err
	}
	*isa = v
	return nil
}
