// Package asm assembles YAVM assembly into program images and lists code
// words back as text.
package asm

import (
	"fmt"
	"math"

	"github.com/alecthomas/participle/v2/lexer"

	"github.com/yavmLang/yavm/pkg/image"
	"github.com/yavmLang/yavm/pkg/parser"
	"github.com/yavmLang/yavm/pkg/types"
	"github.com/yavmLang/yavm/pkg/vm"
)

// Error is an assembly error tied to a source position.
type Error struct {
	Pos lexer.Position
	Msg string
}

func (e *Error) Error() string {
	if e.Pos.Filename != "" {
		return fmt.Sprintf("%s:%d: %s", e.Pos.Filename, e.Pos.Line, e.Msg)
	}
	return fmt.Sprintf("line %d: %s", e.Pos.Line, e.Msg)
}

func errorf(pos lexer.Position, format string, args ...any) error {
	return &Error{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// Assembler converts assembly text to program images
type Assembler struct {
	// Filename is reported in error positions.
	Filename string

	labels  map[string]int
	methods map[string]image.Method
	entry   *parser.Operand
	img     *image.Image
}

// NewAssembler creates a new assembler
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Assemble is a convenience wrapper around Assembler.Assemble.
func Assemble(source string) (*image.Image, error) {
	return NewAssembler().Assemble(source)
}

// Assemble converts assembly text to an image. The first pass assigns
// addresses to labels and methods, the second encodes instructions.
func (a *Assembler) Assemble(source string) (*image.Image, error) {
	prog, err := parser.ParseNamed(a.Filename, source)
	if err != nil {
		return nil, err
	}

	a.labels = make(map[string]int)
	a.methods = make(map[string]image.Method)
	a.entry = nil
	a.img = image.New()

	if err := a.layout(prog); err != nil {
		return nil, err
	}
	if err := a.encode(prog); err != nil {
		return nil, err
	}
	if err := a.resolveEntry(); err != nil {
		return nil, err
	}
	return a.img, nil
}

// layout is the first pass: addresses, method table and data directives.
func (a *Assembler) layout(prog *parser.Program) error {
	addr := 0
	nextMethod := 0
	used := make(map[int]string)

	for _, line := range prog.Lines {
		if name := line.LabelName(); name != "" {
			if _, dup := a.labels[name]; dup {
				return errorf(line.Pos, "duplicate label %q", name)
			}
			a.labels[name] = addr
		}

		if d := line.Directive; d != nil {
			switch d.Name {
			case ".entry":
				if len(d.Operands) != 1 {
					return errorf(d.Pos, ".entry takes one operand")
				}
				a.entry = d.Operands[0]

			case ".method":
				m, err := a.method(d, addr, nextMethod)
				if err != nil {
					return err
				}
				if prev, taken := used[m.Index]; taken {
					return errorf(d.Pos, "method index %d already used by %q", m.Index, prev)
				}
				used[m.Index] = m.Name
				a.img.Methods = append(a.img.Methods, m)
				a.methods[m.Name] = m
				nextMethod = m.Index + 1

			case ".global":
				idx, v, err := a.data(d)
				if err != nil {
					return err
				}
				a.img.Globals = append(a.img.Globals, image.Global{Index: idx, Value: v.AsInt()})

			case ".stack":
				idx, v, err := a.data(d)
				if err != nil {
					return err
				}
				a.img.Stack = append(a.img.Stack, image.StackSeed{Index: idx, Value: v})

			default:
				return errorf(d.Pos, "unknown directive %s", d.Name)
			}
		}

		if line.Instruction != nil {
			addr++
		}
	}
	return nil
}

// method handles ".method name, args, locals [, index]".
func (a *Assembler) method(d *parser.Directive, addr, next int) (image.Method, error) {
	if len(d.Operands) != 3 && len(d.Operands) != 4 {
		return image.Method{}, errorf(d.Pos, ".method takes name, args, locals and an optional index")
	}
	name := d.Operands[0].Symbol
	if name == nil {
		return image.Method{}, errorf(d.Pos, "method name expected, got %s", d.Operands[0])
	}
	if _, dup := a.methods[*name]; dup {
		return image.Method{}, errorf(d.Pos, "duplicate method %q", *name)
	}

	m := image.Method{Name: *name, Index: next, Entry: addr}
	var err error
	if m.Args, err = a.count(d.Operands[1], vm.MaxU16); err != nil {
		return m, err
	}
	if m.Locals, err = a.count(d.Operands[2], vm.MaxU16); err != nil {
		return m, err
	}
	if len(d.Operands) == 4 {
		if m.Index, err = a.count(d.Operands[3], vm.MaxU16); err != nil {
			return m, err
		}
	}
	return m, nil
}

// data handles ".global idx, value" and ".stack idx, value".
func (a *Assembler) data(d *parser.Directive) (int, types.Slot, error) {
	if len(d.Operands) != 2 {
		return 0, 0, errorf(d.Pos, "%s takes an index and a value", d.Name)
	}
	idx, err := a.count(d.Operands[0], math.MaxInt32)
	if err != nil {
		return 0, 0, err
	}

	op := d.Operands[1]
	if op.Float != nil {
		f, err := op.FloatValue()
		if err != nil {
			return 0, 0, errorf(op.Pos, "%v", err)
		}
		return idx, types.FloatSlot(float32(f)), nil
	}
	n, err := a.integer(op, math.MinInt32, math.MaxUint32)
	if err != nil {
		return 0, 0, err
	}
	return idx, types.Slot(uint32(n)), nil
}

// encode is the second pass.
func (a *Assembler) encode(prog *parser.Program) error {
	for _, line := range prog.Lines {
		in := line.Instruction
		if in == nil {
			continue
		}
		w, err := a.instruction(in, len(a.img.Code))
		if err != nil {
			return err
		}
		a.img.Code = append(a.img.Code, w)
	}
	return nil
}

func (a *Assembler) instruction(in *parser.Instruction, addr int) (types.Word, error) {
	op, ok := vm.Lookup(in.Mnemonic)
	if !ok {
		return 0, errorf(in.Pos, "unknown instruction %q", in.Mnemonic)
	}

	ops := in.Operands
	want := op.Registers()
	switch op.Format() {
	case vm.FormatAU16, vm.FormatAS16, vm.FormatU24, vm.FormatS24:
		want++
	}
	if len(ops) != want {
		return 0, errorf(in.Pos, "%s takes %d operand(s), got %d", op, want, len(ops))
	}

	var regs [3]uint8
	for i := 0; i < op.Registers(); i++ {
		r, err := ops[i].RegisterIndex()
		if err != nil {
			return 0, errorf(ops[i].Pos, "%v", err)
		}
		regs[i] = uint8(r)
	}

	switch op.Format() {
	case vm.FormatNone:
		return types.Word(op), nil

	case vm.FormatABC:
		return vm.EncodeABC(op, regs[0], regs[1], regs[2]), nil

	case vm.FormatAU16:
		imm := ops[len(ops)-1]
		var n int
		var err error
		if op == vm.OpCall && imm.Symbol != nil {
			m, ok := a.methods[*imm.Symbol]
			if !ok {
				return 0, errorf(imm.Pos, "unknown method %q", *imm.Symbol)
			}
			n = m.Index
		} else if n, err = a.count(imm, vm.MaxU16); err != nil {
			return 0, err
		}
		return vm.EncodeAU16(op, regs[0], uint16(n)), nil

	case vm.FormatAS16:
		n, err := a.offset(ops[len(ops)-1], addr, vm.MinS16, vm.MaxS16)
		if err != nil {
			return 0, err
		}
		return vm.EncodeAS16(op, regs[0], int16(n)), nil

	case vm.FormatU24:
		n, err := a.count(ops[0], vm.MaxU24)
		if err != nil {
			return 0, err
		}
		return vm.EncodeU24(op, uint32(n)), nil

	case vm.FormatS24:
		n, err := a.offset(ops[0], addr, vm.MinS24, vm.MaxS24)
		if err != nil {
			return 0, err
		}
		return vm.EncodeS24(op, int32(n)), nil
	}
	return 0, errorf(in.Pos, "unsupported format for %s", op)
}

// offset resolves a jump operand. Labels become target - (addr+1), numbers
// are taken as relative offsets already.
func (a *Assembler) offset(o *parser.Operand, addr int, lo, hi int64) (int64, error) {
	if o.Symbol != nil {
		target, ok := a.labels[*o.Symbol]
		if !ok {
			return 0, errorf(o.Pos, "undefined label %q", *o.Symbol)
		}
		n := int64(target - (addr + 1))
		if n < lo || n > hi {
			return 0, errorf(o.Pos, "label %q is out of jump range (%d)", *o.Symbol, n)
		}
		return n, nil
	}
	return a.integer(o, lo, hi)
}

func (a *Assembler) count(o *parser.Operand, hi int64) (int, error) {
	n, err := a.integer(o, 0, hi)
	return int(n), err
}

func (a *Assembler) integer(o *parser.Operand, lo, hi int64) (int64, error) {
	n, err := o.IntValue()
	if err != nil {
		return 0, errorf(o.Pos, "%v", err)
	}
	if n < lo || n > hi {
		return 0, errorf(o.Pos, "value %d out of range [%d, %d]", n, lo, hi)
	}
	return n, nil
}

// resolveEntry applies .entry, defaulting to a "main" label or address 0.
func (a *Assembler) resolveEntry() error {
	if a.entry == nil {
		a.img.Entry = a.labels["main"]
		return nil
	}
	if sym := a.entry.Symbol; sym != nil {
		addr, ok := a.labels[*sym]
		if !ok {
			if m, isMethod := a.methods[*sym]; isMethod {
				addr, ok = m.Entry, true
			}
		}
		if !ok {
			return errorf(a.entry.Pos, "undefined entry %q", *sym)
		}
		a.img.Entry = addr
		return nil
	}
	n, err := a.count(a.entry, math.MaxInt32)
	if err != nil {
		return err
	}
	a.img.Entry = n
	return nil
}
