package vm

import (
	"fmt"
	"strings"

	"github.com/yavmLang/yavm/pkg/types"
)

const (
	sign16 = 0x8000
	sign24 = 0x800000

	MaxU16 = 0xFFFF
	MinS16 = -sign16
	MaxS16 = sign16 - 1
	MaxU24 = 0xFFFFFF
	MinS24 = -sign24
	MaxS24 = sign24 - 1
)

// Instruction is a decoded word. Format says which fields are meaningful:
//
//	FormatABC   A, B, C
//	FormatAU16  A, Imm (0..65535)
//	FormatAS16  A, Imm (-32768..32767)
//	FormatU24   Imm (0..16777215)
//	FormatS24   Imm (-8388608..8388607)
type Instruction struct {
	Op     Opcode
	Format Format
	A      uint8
	B      uint8
	C      uint8
	Imm    int32
}

// Decode splits a word into its fields. It never fails: any word decodes to
// some opcode, and the dispatch loop rejects the ones without semantics.
func Decode(w types.Word) Instruction {
	in := Instruction{
		Op:     Opcode(w & 0xFF),
		Format: Opcode(w & 0xFF).Format(),
	}
	switch in.Format {
	case FormatABC:
		in.A = uint8(w >> 8)
		in.B = uint8(w >> 16)
		in.C = uint8(w >> 24)
	case FormatAU16:
		in.A = uint8(w >> 8)
		in.Imm = int32(w >> 16)
	case FormatAS16:
		in.A = uint8(w >> 8)
		in.Imm = int32(w>>16) - sign16
	case FormatU24:
		in.Imm = int32(w >> 8)
	case FormatS24:
		in.Imm = int32(w>>8) - sign24
	}
	return in
}

// EncodeABC builds a register-form word.
func EncodeABC(op Opcode, a, b, c uint8) types.Word {
	return types.Word(uint32(op) | uint32(a)<<8 | uint32(b)<<16 | uint32(c)<<24)
}

// EncodeAU16 builds a register + unsigned 16-bit immediate word.
func EncodeAU16(op Opcode, a uint8, imm uint16) types.Word {
	return types.Word(uint32(op) | uint32(a)<<8 | uint32(imm)<<16)
}

// EncodeAS16 builds a register + signed 16-bit immediate word.
func EncodeAS16(op Opcode, a uint8, imm int16) types.Word {
	return EncodeAU16(op, a, uint16(int32(imm)+sign16))
}

// EncodeU24 builds an unsigned 24-bit immediate word. Bits above 24 are dropped.
func EncodeU24(op Opcode, imm uint32) types.Word {
	return types.Word(uint32(op) | (imm&MaxU24)<<8)
}

// EncodeS24 builds a signed 24-bit immediate word. imm must lie in
// [MinS24, MaxS24].
func EncodeS24(op Opcode, imm int32) types.Word {
	return EncodeU24(op, uint32(imm+sign24))
}

// Encode rebuilds the word for a decoded instruction.
func (in Instruction) Encode() types.Word {
	switch in.Format {
	case FormatAU16:
		return EncodeAU16(in.Op, in.A, uint16(in.Imm))
	case FormatAS16:
		return EncodeAS16(in.Op, in.A, int16(in.Imm))
	case FormatU24:
		return EncodeU24(in.Op, uint32(in.Imm))
	case FormatS24:
		return EncodeS24(in.Op, in.Imm)
	case FormatNone:
		return types.Word(in.Op)
	}
	return EncodeABC(in.Op, in.A, in.B, in.C)
}

// String renders the instruction in assembler syntax.
func (in Instruction) String() string {
	if !in.Op.Valid() {
		return fmt.Sprintf("?%02X", byte(in.Op))
	}
	name := OpName(in.Op)
	switch in.Format {
	case FormatNone:
		return name
	case FormatABC:
		regs := []uint8{in.A, in.B, in.C}[:in.Op.Registers()]
		parts := make([]string, len(regs))
		for i, r := range regs {
			parts[i] = fmt.Sprintf("r%d", r)
		}
		return name + " " + strings.Join(parts, ", ")
	case FormatAU16:
		if in.Op == OpCall {
			return fmt.Sprintf("%s %d", name, in.Imm)
		}
		return fmt.Sprintf("%s r%d, %d", name, in.A, in.Imm)
	case FormatAS16:
		return fmt.Sprintf("%s r%d, %+d", name, in.A, in.Imm)
	case FormatS24:
		return fmt.Sprintf("%s %+d", name, in.Imm)
	}
	return fmt.Sprintf("%s %d", name, in.Imm)
}
