package vm

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/yavmLang/yavm/pkg/types"
)

var log = commonlog.GetLogger("yavm.vm")

// Config sets the fixed capacities of a VM.
type Config struct {
	StackSize int // execution stack slots
	CallDepth int // saved frames
	Methods   int // method table entries
	Globals   int // global store entries
	EntrySP   int // stack pointer of the entry frame
	MaxSteps  int // instruction budget per run (0 = unlimited)
}

// DefaultConfig returns the reference capacities.
func DefaultConfig() Config {
	return Config{
		StackSize: 1024,
		CallDepth: 1024,
		Methods:   64,
		Globals:   1024,
	}
}

// Validate checks that every capacity is usable.
func (c Config) Validate() error {
	switch {
	case c.StackSize <= 0:
		return fmt.Errorf("stack size must be positive, got %d", c.StackSize)
	case c.CallDepth <= 0:
		return fmt.Errorf("call depth must be positive, got %d", c.CallDepth)
	case c.Methods <= 0 || c.Methods > MaxU16+1:
		return fmt.Errorf("method table size must be in 1..%d, got %d", MaxU16+1, c.Methods)
	case c.Globals <= 0 || c.Globals > MaxU16+1:
		return fmt.Errorf("global store size must be in 1..%d, got %d", MaxU16+1, c.Globals)
	case c.EntrySP < -1 || c.EntrySP >= c.StackSize:
		return fmt.Errorf("entry stack pointer %d outside stack of %d slots", c.EntrySP, c.StackSize)
	case c.MaxSteps < 0:
		return fmt.Errorf("instruction budget must not be negative, got %d", c.MaxSteps)
	}
	return nil
}

// VM is a YAVM instance. All state is owned by the value; separate VMs share
// nothing. A VM must not be used from more than one goroutine at a time.
type VM struct {
	// Output receives PRINT lines
	Output io.Writer

	// Debug logs every executed instruction
	Debug bool

	// MaxSteps caps the instructions of one run (0 = unlimited)
	MaxSteps int

	cfg     Config
	stack   []types.Slot
	globals []int32
	methods []types.Method
	defined []bool

	frame Frame
	calls callStack
	ret   int32

	code   []types.Word
	steps  int
	halted bool
	closed bool
}

// New creates a VM with the default capacities.
func New() *VM {
	vm, _ := NewWithConfig(DefaultConfig())
	return vm
}

// NewWithConfig creates a VM with the given capacities.
func NewWithConfig(cfg Config) (*VM, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	vm := &VM{
		Output:   os.Stdout,
		MaxSteps: cfg.MaxSteps,
		cfg:      cfg,
		stack:    make([]types.Slot, cfg.StackSize),
		globals:  make([]int32, cfg.Globals),
		methods:  make([]types.Method, cfg.Methods),
		defined:  make([]bool, cfg.Methods),
		calls:    newCallStack(cfg.CallDepth),
	}
	vm.frame = vm.entryFrame(0)
	return vm, nil
}

// Config returns the capacities the VM was built with.
func (vm *VM) Config() Config { return vm.cfg }

func (vm *VM) entryFrame(pc int) Frame {
	return Frame{BP: 0, SP: vm.cfg.EntrySP, PC: pc, Limit: len(vm.stack)}
}

// Reset clears the stack, globals, frames and return register.
// Registered methods are kept.
func (vm *VM) Reset() {
	if vm.closed {
		return
	}
	clear(vm.stack)
	clear(vm.globals)
	vm.calls.reset()
	vm.frame = vm.entryFrame(0)
	vm.ret = 0
	vm.code = nil
	vm.steps = 0
	vm.halted = false
}

// Close releases the fixed regions. Any later call reports types.ErrClosed.
func (vm *VM) Close() error {
	vm.closed = true
	vm.stack = nil
	vm.globals = nil
	vm.methods = nil
	vm.defined = nil
	vm.calls = callStack{}
	vm.code = nil
	return nil
}

// === Configuration-time setters ===

// SetMethod registers m at index. An index outside the table leaves it unchanged.
func (vm *VM) SetMethod(m types.Method, index int) error {
	if vm.closed {
		return types.ErrClosed
	}
	if index < 0 || index >= len(vm.methods) {
		return fmt.Errorf("%w: method %d (capacity %d)", types.ErrIndexOutOfRange, index, len(vm.methods))
	}
	if m.Entry < 0 || m.Args < 0 || m.Locals < 0 {
		return fmt.Errorf("%w: invalid method descriptor %v", types.ErrIndexOutOfRange, m)
	}
	vm.methods[index] = m
	vm.defined[index] = true
	return nil
}

// Method returns the descriptor registered at index.
func (vm *VM) Method(index int) (types.Method, bool) {
	if index < 0 || index >= len(vm.methods) || !vm.defined[index] {
		return types.Method{}, false
	}
	return vm.methods[index], true
}

// SetStack stores an integer into a stack slot.
func (vm *VM) SetStack(index int, value int32) error {
	return vm.SetStackSlot(index, types.IntSlot(value))
}

// SetStackSlot stores raw slot bits (for example a float) into a stack slot.
func (vm *VM) SetStackSlot(index int, s types.Slot) error {
	if vm.closed {
		return types.ErrClosed
	}
	if index < 0 || index >= len(vm.stack) {
		return fmt.Errorf("%w: stack slot %d (capacity %d)", types.ErrIndexOutOfRange, index, len(vm.stack))
	}
	vm.stack[index] = s
	return nil
}

// Slot returns the stack slot at an absolute index.
func (vm *VM) Slot(index int) (types.Slot, error) {
	if index < 0 || index >= len(vm.stack) {
		return 0, fmt.Errorf("%w: stack slot %d (capacity %d)", types.ErrIndexOutOfRange, index, len(vm.stack))
	}
	return vm.stack[index], nil
}

// SetGlobal writes a global.
func (vm *VM) SetGlobal(index int, value int32) error {
	if vm.closed {
		return types.ErrClosed
	}
	if index < 0 || index >= len(vm.globals) {
		return fmt.Errorf("%w: global %d (capacity %d)", types.ErrIndexOutOfRange, index, len(vm.globals))
	}
	vm.globals[index] = value
	return nil
}

// Global reads a global.
func (vm *VM) Global(index int) (int32, error) {
	if index < 0 || index >= len(vm.globals) {
		return 0, fmt.Errorf("%w: global %d (capacity %d)", types.ErrIndexOutOfRange, index, len(vm.globals))
	}
	return vm.globals[index], nil
}

// === Inspection ===

// Frame returns the current frame.
func (vm *VM) Frame() Frame { return vm.frame }

// Depth returns the number of suspended caller frames.
func (vm *VM) Depth() int { return vm.calls.depth() }

// ReturnValue returns the return-value register.
func (vm *VM) ReturnValue() int32 { return vm.ret }

// Steps returns the instructions executed by the current or last run.
func (vm *VM) Steps() int { return vm.steps }

// Halted reports whether the last run reached END.
func (vm *VM) Halted() bool { return vm.halted }

// Register reads register r of the current frame as an integer.
func (vm *VM) Register(r uint8) (int32, error) {
	i, err := vm.reg(r)
	if err != nil {
		return 0, err
	}
	return vm.stack[i].AsInt(), nil
}

// === Execution ===

// Load installs a program and prepares the entry frame at pc entry.
// Stack contents, globals and methods are left as they are.
func (vm *VM) Load(program []types.Word, entry int) {
	vm.code = program
	vm.calls.reset()
	vm.frame = vm.entryFrame(entry)
	vm.steps = 0
	vm.halted = false
}

// Step executes one instruction. It returns true once END has run.
func (vm *VM) Step() (bool, error) {
	if vm.closed {
		return false, types.ErrClosed
	}
	if vm.halted {
		return true, nil
	}

	pc := vm.frame.PC
	if vm.MaxSteps > 0 && vm.steps >= vm.MaxSteps {
		return false, &Fault{PC: pc, Op: vm.opAt(pc), Err: fmt.Errorf("%w after %d instructions", types.ErrBudgetExhausted, vm.steps)}
	}
	if pc < 0 || pc >= len(vm.code) {
		return false, &Fault{PC: pc, Op: OpNone, Err: fmt.Errorf("%w: pc %d outside program of %d words", types.ErrOutOfRange, pc, len(vm.code))}
	}

	in := Decode(vm.code[pc])
	vm.steps++
	vm.frame.PC++

	if vm.Debug {
		log.Debugf("%04d  %-22s %s depth=%d", pc, in, vm.frame, vm.calls.depth())
	}

	if err := vm.exec(in); err != nil {
		return false, &Fault{PC: pc, Op: in.Op, Err: err}
	}
	return vm.halted, nil
}

func (vm *VM) opAt(pc int) Opcode {
	if pc < 0 || pc >= len(vm.code) {
		return OpNone
	}
	return Decode(vm.code[pc]).Op
}

// Run executes program from entry until END or a fault and returns the
// number of instructions executed. A fault is returned as a *Fault together
// with the count so far; the VM must be Reset before it is trusted again.
func (vm *VM) Run(program []types.Word, entry int) (int, error) {
	if vm.closed {
		return 0, types.ErrClosed
	}
	if len(program) == 0 {
		return 0, types.ErrNoProgram
	}

	vm.Load(program, entry)
	return vm.loop()
}

// Continue is Run without resetting the stack pointer: values pushed by the
// previous program stay on top of the stack. The entry frame is otherwise
// rebuilt, so any suspended callers are dropped.
func (vm *VM) Continue(program []types.Word, entry int) (int, error) {
	if vm.closed {
		return 0, types.ErrClosed
	}
	if len(program) == 0 {
		return 0, types.ErrNoProgram
	}

	sp := vm.frame.SP
	vm.Load(program, entry)
	if sp >= -1 && sp < len(vm.stack) {
		vm.frame.SP = sp
	}
	return vm.loop()
}

func (vm *VM) loop() (int, error) {
	for {
		done, err := vm.Step()
		if err != nil {
			if vm.Debug {
				log.Errorf("run aborted: %v", err)
			}
			return vm.steps, err
		}
		if done {
			return vm.steps, nil
		}
	}
}

// StackDump returns the slots from the bottom of the stack to the stack pointer.
func (vm *VM) StackDump() string {
	top := vm.frame.SP
	if top >= len(vm.stack) {
		top = len(vm.stack) - 1
	}
	if top < 0 {
		return "[]"
	}
	var sb strings.Builder
	sb.WriteString("[ ")
	for _, s := range vm.stack[:top+1] {
		fmt.Fprintf(&sb, "%d ", s.AsInt())
	}
	sb.WriteString("]")
	return sb.String()
}
