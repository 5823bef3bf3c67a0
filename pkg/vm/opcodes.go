// Package vm implements the YAVM register machine.
//
// Instruction encoding (32-bit words, little fields first):
//
//	bits  0-7   opcode
//	bits  8-15  register A
//	bits 16-23  register B   | bits 16-31 imm16
//	bits 24-31  register C   |
//	bits  8-31  imm24 (jumps)
//
// Signed immediates are stored with a bias: simm16 = imm16 - 0x8000,
// simm24 = imm24 - 0x800000.
package vm

import "strings"

// Opcode selects the operation encoded in the low byte of a word.
type Opcode byte

// Integer arithmetic (A = B op C)
const (
	OpAdd  Opcode = 0x00
	OpSub  Opcode = 0x01
	OpMul  Opcode = 0x02
	OpDiv  Opcode = 0x03
	OpMod  Opcode = 0x04
	OpSqrt Opcode = 0x05 // A = trunc(sqrt(B))
	OpExp  Opcode = 0x06 // A = trunc(pow(B, C))
)

// Integer-immediate arithmetic (A op= imm16)
const (
	OpAddImm  Opcode = 0x07
	OpSubImm  Opcode = 0x08
	OpMulImm  Opcode = 0x09
	OpDivImm  Opcode = 0x0A
	OpModImm  Opcode = 0x0B
	OpSqrtImm Opcode = 0x0C // A = trunc(sqrt(imm16))
	OpExpImm  Opcode = 0x0D // A = trunc(pow(A, imm16))
)

// Float arithmetic on the float32 view of the same registers
const (
	OpFAdd  Opcode = 0x0E
	OpFSub  Opcode = 0x0F
	OpFMul  Opcode = 0x10
	OpFDiv  Opcode = 0x11
	OpFMod  Opcode = 0x12
	OpFSqrt Opcode = 0x13
	OpFExp  Opcode = 0x14
)

// Stack, register and global moves
const (
	OpPush     Opcode = 0x15 // sp++, stack[sp] = A
	OpPop      Opcode = 0x16 // A = stack[sp], sp--
	OpMov      Opcode = 0x17 // A = B
	OpLoadG    Opcode = 0x18 // A = globals[imm16]
	OpSetG     Opcode = 0x19 // globals[imm16] = A
	OpMovImm16 Opcode = 0x1A // A = imm16
)

// Comparisons skip the next instruction when true
const (
	OpCmp Opcode = 0x1B // A == B
	OpGt  Opcode = 0x1C // A > B
	OpGte Opcode = 0x1D // A >= B
)

// Control flow
const (
	OpJe      Opcode = 0x1E // if A != 0: pc += simm16
	OpJmp     Opcode = 0x1F // pc += simm24
	OpCall    Opcode = 0x20 // call method imm16
	OpRet     Opcode = 0x21 // ret = A, restore caller
	OpLoadRet Opcode = 0x22 // A = ret
	OpPrint   Opcode = 0x23 // print A
	OpEnd     Opcode = 0x24 // stop
)

// OpNone marks a fault raised before any instruction was fetched. It has no
// entry in the table, so it prints as "?".
const OpNone Opcode = 0xFF

// Format is the operand shape of an opcode.
type Format byte

const (
	FormatNone Format = iota // no operands
	FormatABC                // up to three registers
	FormatAU16               // register + unsigned imm16
	FormatAS16               // register + signed imm16
	FormatU24                // unsigned imm24
	FormatS24                // signed imm24
)

type opInfo struct {
	name   string
	format Format
	regs   int // registers used by FormatABC/FormatA* opcodes
}

var opTable = map[Opcode]opInfo{
	OpAdd:  {"add", FormatABC, 3},
	OpSub:  {"sub", FormatABC, 3},
	OpMul:  {"mul", FormatABC, 3},
	OpDiv:  {"div", FormatABC, 3},
	OpMod:  {"mod", FormatABC, 3},
	OpSqrt: {"sqrt", FormatABC, 2},
	OpExp:  {"exp", FormatABC, 3},

	OpAddImm:  {"addimm", FormatAU16, 1},
	OpSubImm:  {"subimm", FormatAU16, 1},
	OpMulImm:  {"mulimm", FormatAU16, 1},
	OpDivImm:  {"divimm", FormatAU16, 1},
	OpModImm:  {"modimm", FormatAU16, 1},
	OpSqrtImm: {"sqrtimm", FormatAU16, 1},
	OpExpImm:  {"expimm", FormatAU16, 1},

	OpFAdd:  {"fadd", FormatABC, 3},
	OpFSub:  {"fsub", FormatABC, 3},
	OpFMul:  {"fmul", FormatABC, 3},
	OpFDiv:  {"fdiv", FormatABC, 3},
	OpFMod:  {"fmod", FormatABC, 3},
	OpFSqrt: {"fsqrt", FormatABC, 2},
	OpFExp:  {"fexp", FormatABC, 3},

	OpPush:     {"push", FormatABC, 1},
	OpPop:      {"pop", FormatABC, 1},
	OpMov:      {"mov", FormatABC, 2},
	OpLoadG:    {"loadg", FormatAU16, 1},
	OpSetG:     {"setg", FormatAU16, 1},
	OpMovImm16: {"movimm16", FormatAU16, 1},

	OpCmp: {"cmp", FormatABC, 2},
	OpGt:  {"gt", FormatABC, 2},
	OpGte: {"gte", FormatABC, 2},

	OpJe:      {"je", FormatAS16, 1},
	OpJmp:     {"jmp", FormatS24, 0},
	OpCall:    {"call", FormatAU16, 0},
	OpRet:     {"ret", FormatABC, 1},
	OpLoadRet: {"loadret", FormatABC, 1},
	OpPrint:   {"print", FormatABC, 1},
	OpEnd:     {"end", FormatNone, 0},
}

var byName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opTable))
	for op, info := range opTable {
		m[info.name] = op
	}
	return m
}()

// Valid reports whether op has defined semantics.
func (op Opcode) Valid() bool {
	_, ok := opTable[op]
	return ok
}

// Format returns the operand shape of op. Unknown opcodes decode as FormatABC.
func (op Opcode) Format() Format {
	if info, ok := opTable[op]; ok {
		return info.format
	}
	return FormatABC
}

// Registers returns how many register operands op reads or writes.
func (op Opcode) Registers() int {
	return opTable[op].regs
}

func (op Opcode) String() string { return OpName(op) }

// OpName returns the mnemonic of an opcode for debugging
func OpName(op Opcode) string {
	if info, ok := opTable[op]; ok {
		return info.name
	}
	return "?"
}

// Lookup finds an opcode by mnemonic (case-insensitive).
func Lookup(name string) (Opcode, bool) {
	op, ok := byName[strings.ToLower(name)]
	return op, ok
}
