package vm

import (
	"fmt"
	"math"

	"github.com/yavmLang/yavm/pkg/types"
)

// reg resolves register r of the current frame to a stack index.
func (vm *VM) reg(r uint8) (int, error) {
	i := vm.frame.BP + int(r)
	if i < 0 || i >= vm.frame.Limit || i >= len(vm.stack) {
		return 0, fmt.Errorf("%w: register r%d (bp=%d, window ends at %d)", types.ErrOutOfRange, r, vm.frame.BP, vm.frame.Limit)
	}
	return i, nil
}

// regs resolves up to three registers at once.
func (vm *VM) regs(rs ...uint8) ([3]int, error) {
	var out [3]int
	for n, r := range rs {
		i, err := vm.reg(r)
		if err != nil {
			return out, err
		}
		out[n] = i
	}
	return out, nil
}

func (vm *VM) global(imm int32) (int, error) {
	if imm < 0 || int(imm) >= len(vm.globals) {
		return 0, fmt.Errorf("%w: global %d (capacity %d)", types.ErrOutOfRange, imm, len(vm.globals))
	}
	return int(imm), nil
}

// truncate converts toward zero, mapping NaN to 0 and saturating at the
// int32 limits.
func truncate(f float64) int32 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	}
	return int32(f)
}

func intOp(op Opcode, a, b int32) (int32, error) {
	switch op {
	case OpAdd, OpAddImm:
		return a + b, nil
	case OpSub, OpSubImm:
		return a - b, nil
	case OpMul, OpMulImm:
		return a * b, nil
	case OpDiv, OpDivImm:
		if b == 0 {
			return 0, types.ErrDivisionByZero
		}
		return a / b, nil
	case OpMod, OpModImm:
		if b == 0 {
			return 0, types.ErrDivisionByZero
		}
		return a % b, nil
	case OpExp, OpExpImm:
		return truncate(math.Pow(float64(float32(a)), float64(b))), nil
	}
	return 0, fmt.Errorf("%w: 0x%02X", types.ErrUnknownOpcode, byte(op))
}

func floatOp(op Opcode, a, b float32) float32 {
	switch op {
	case OpFAdd:
		return a + b
	case OpFSub:
		return a - b
	case OpFMul:
		return a * b
	case OpFDiv:
		return a / b
	case OpFMod:
		return float32(math.Mod(float64(a), float64(b)))
	case OpFSqrt:
		return float32(math.Sqrt(float64(a)))
	}
	return float32(math.Pow(float64(a), float64(b)))
}

// exec applies one decoded instruction. The pc has already been advanced
// past it, so skips and jumps are relative to the following instruction.
func (vm *VM) exec(in Instruction) error {
	s := vm.stack

	switch in.Op {
	// === Integer arithmetic ===
	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpExp:
		r, err := vm.regs(in.A, in.B, in.C)
		if err != nil {
			return err
		}
		v, err := intOp(in.Op, s[r[1]].AsInt(), s[r[2]].AsInt())
		if err != nil {
			return err
		}
		s[r[0]] = types.IntSlot(v)

	case OpSqrt:
		r, err := vm.regs(in.A, in.B)
		if err != nil {
			return err
		}
		s[r[0]] = types.IntSlot(truncate(math.Sqrt(float64(float32(s[r[1]].AsInt())))))

	// === Immediate arithmetic ===
	case OpAddImm, OpSubImm, OpMulImm, OpDivImm, OpModImm, OpExpImm:
		a, err := vm.reg(in.A)
		if err != nil {
			return err
		}
		v, err := intOp(in.Op, s[a].AsInt(), in.Imm)
		if err != nil {
			return err
		}
		s[a] = types.IntSlot(v)

	case OpSqrtImm:
		a, err := vm.reg(in.A)
		if err != nil {
			return err
		}
		s[a] = types.IntSlot(truncate(math.Sqrt(float64(in.Imm))))

	// === Float arithmetic ===
	case OpFAdd, OpFSub, OpFMul, OpFDiv, OpFMod, OpFExp:
		r, err := vm.regs(in.A, in.B, in.C)
		if err != nil {
			return err
		}
		s[r[0]] = types.FloatSlot(floatOp(in.Op, s[r[1]].AsFloat(), s[r[2]].AsFloat()))

	case OpFSqrt:
		r, err := vm.regs(in.A, in.B)
		if err != nil {
			return err
		}
		s[r[0]] = types.FloatSlot(floatOp(in.Op, s[r[1]].AsFloat(), 0))

	// === Stack ===
	case OpPush:
		a, err := vm.reg(in.A)
		if err != nil {
			return err
		}
		top := vm.frame.SP + 1
		if top < 0 || top >= len(s) {
			return fmt.Errorf("%w: push to slot %d (capacity %d)", types.ErrOutOfRange, top, len(s))
		}
		s[top] = s[a]
		vm.frame.SP = top

	case OpPop:
		a, err := vm.reg(in.A)
		if err != nil {
			return err
		}
		top := vm.frame.SP
		if top < 0 || top >= len(s) {
			return fmt.Errorf("%w: pop from slot %d", types.ErrOutOfRange, top)
		}
		s[a] = s[top]
		vm.frame.SP = top - 1

	// === Moves ===
	case OpMov:
		r, err := vm.regs(in.A, in.B)
		if err != nil {
			return err
		}
		s[r[0]] = s[r[1]]

	case OpLoadG, OpSetG:
		a, err := vm.reg(in.A)
		if err != nil {
			return err
		}
		g, err := vm.global(in.Imm)
		if err != nil {
			return err
		}
		if in.Op == OpLoadG {
			s[a] = types.IntSlot(vm.globals[g])
		} else {
			vm.globals[g] = s[a].AsInt()
		}

	case OpMovImm16:
		a, err := vm.reg(in.A)
		if err != nil {
			return err
		}
		s[a] = types.IntSlot(in.Imm)

	// === Comparisons (skip next on true) ===
	case OpCmp, OpGt, OpGte:
		r, err := vm.regs(in.A, in.B)
		if err != nil {
			return err
		}
		a, b := s[r[0]].AsInt(), s[r[1]].AsInt()
		var skip bool
		switch in.Op {
		case OpCmp:
			skip = a == b
		case OpGt:
			skip = a > b
		default:
			skip = a >= b
		}
		if skip {
			vm.frame.PC++
		}

	// === Control flow ===
	case OpJe:
		a, err := vm.reg(in.A)
		if err != nil {
			return err
		}
		if s[a].AsInt() != 0 {
			vm.frame.PC += int(in.Imm)
		}

	case OpJmp:
		vm.frame.PC += int(in.Imm)

	case OpCall:
		idx := int(in.Imm)
		m, ok := vm.Method(idx)
		if !ok {
			return fmt.Errorf("%w: %d", types.ErrUnknownMethod, idx)
		}
		return vm.enter(m)

	case OpRet:
		a, err := vm.reg(in.A)
		if err != nil {
			return err
		}
		v := s[a].AsInt()
		if err := vm.leave(); err != nil {
			return err
		}
		vm.ret = v

	case OpLoadRet:
		a, err := vm.reg(in.A)
		if err != nil {
			return err
		}
		s[a] = types.IntSlot(vm.ret)

	case OpPrint:
		a, err := vm.reg(in.A)
		if err != nil {
			return err
		}
		if vm.Output == nil {
			break
		}
		if _, err := fmt.Fprintf(vm.Output, "%d\n", s[a].AsInt()); err != nil {
			return fmt.Errorf("print: %w", err)
		}

	case OpEnd:
		vm.halted = true

	default:
		return fmt.Errorf("%w: 0x%02X", types.ErrUnknownOpcode, byte(in.Op))
	}

	return nil
}
