package vm

import "fmt"

// Fault is a run-time error raised while executing an instruction.
// Err wraps one of the types.Err* sentinels, so errors.Is works on a Fault.
type Fault struct {
	Op  Opcode
	PC  int // address of the faulting instruction
	Err error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("fault at %04d (%s): %v", f.PC, OpName(f.Op), f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }
