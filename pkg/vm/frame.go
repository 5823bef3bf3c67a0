package vm

import (
	"fmt"

	"github.com/yavmLang/yavm/pkg/types"
)

// Frame is the execution state of one call.
type Frame struct {
	BP    int // stack index of register 0
	SP    int // stack index of the topmost pushed value
	PC    int // index of the next instruction
	Limit int // registers must stay below this stack index
}

func (f Frame) String() string {
	return fmt.Sprintf("bp=%d sp=%d pc=%d", f.BP, f.SP, f.PC)
}

// callStack holds the suspended caller frames, most recent last.
type callStack struct {
	frames []Frame
}

func newCallStack(depth int) callStack {
	return callStack{frames: make([]Frame, 0, depth)}
}

func (cs *callStack) depth() int { return len(cs.frames) }

func (cs *callStack) push(f Frame) error {
	if len(cs.frames) == cap(cs.frames) {
		return fmt.Errorf("%w: depth %d", types.ErrCallStackOverflow, cap(cs.frames))
	}
	cs.frames = append(cs.frames, f)
	return nil
}

func (cs *callStack) pop() (Frame, error) {
	n := len(cs.frames)
	if n == 0 {
		return Frame{}, types.ErrCallStackUnderflow
	}
	f := cs.frames[n-1]
	cs.frames = cs.frames[:n-1]
	return f, nil
}

func (cs *callStack) reset() { cs.frames = cs.frames[:0] }

// enter builds the callee frame for m. The top m.Args pushed values become
// registers 0..Args-1, and m.Locals slots above them are reserved and zeroed.
func (vm *VM) enter(m types.Method) error {
	caller := vm.frame
	bp := caller.SP - m.Args + 1
	if bp < 0 {
		return fmt.Errorf("%w: %d arguments but only %d stack values", types.ErrOutOfRange, m.Args, caller.SP+1)
	}
	sp := caller.SP + m.Locals
	if sp >= len(vm.stack) {
		return fmt.Errorf("%w: frame of %d locals overflows stack at %d", types.ErrOutOfRange, m.Locals, caller.SP)
	}
	if err := vm.calls.push(caller); err != nil {
		return err
	}
	for i := caller.SP + 1; i <= sp; i++ {
		vm.stack[i] = 0
	}
	vm.frame = Frame{BP: bp, SP: sp, PC: m.Entry, Limit: sp + 1}
	return nil
}

// leave restores the most recent caller frame.
func (vm *VM) leave() error {
	f, err := vm.calls.pop()
	if err != nil {
		return err
	}
	vm.frame = f
	return nil
}
