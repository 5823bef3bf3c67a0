// Package types defines the core value types for YAVM.
// Registers and stack entries are untagged 32-bit slots; the opcode decides
// whether a slot is read as an integer or a float.
package types

import (
	"errors"
	"fmt"
	"math"
)

// Word is a single encoded 32-bit instruction.
type Word uint32

// Slot is one execution-stack entry holding a raw 32-bit pattern.
// There is no type tag: AsInt and AsFloat reinterpret the same bits.
type Slot uint32

// IntSlot stores a signed integer.
func IntSlot(v int32) Slot { return Slot(uint32(v)) }

// FloatSlot stores the IEEE-754 bits of a float.
func FloatSlot(f float32) Slot { return Slot(math.Float32bits(f)) }

// AsInt reads the slot as a two's complement integer.
func (s Slot) AsInt() int32 { return int32(s) }

// AsFloat reads the slot as a float32.
func (s Slot) AsFloat() float32 { return math.Float32frombits(uint32(s)) }

func (s Slot) String() string {
	return fmt.Sprintf("%d (0x%08X)", s.AsInt(), uint32(s))
}

// Method describes a callable unit of bytecode.
type Method struct {
	Entry  int // index into the program
	Args   int // argument-window size
	Locals int // locals-window size
}

// Window returns the number of registers a call to m may address.
func (m Method) Window() int { return m.Args + m.Locals }

func (m Method) String() string {
	return fmt.Sprintf("<method @%d args=%d locals=%d>", m.Entry, m.Args, m.Locals)
}

// Errors reported by the VM. Configuration errors are recoverable;
// the rest abort a run.
var (
	ErrIndexOutOfRange    = errors.New("index out of range")
	ErrNoProgram          = errors.New("no program")
	ErrUnknownOpcode      = errors.New("unknown opcode")
	ErrOutOfRange         = errors.New("out of range access")
	ErrCallStackOverflow  = errors.New("call stack overflow")
	ErrCallStackUnderflow = errors.New("call stack underflow")
	ErrDivisionByZero     = errors.New("division by zero")
	ErrUnknownMethod      = errors.New("unknown method")
	ErrBudgetExhausted    = errors.New("instruction budget exhausted")
	ErrClosed             = errors.New("vm is closed")
)

// Error codes (used as process exit status by the command line tools)
const (
	ErrNone               = 0
	ErrCodeConfiguration  = 1
	ErrCodeNoProgram      = 2
	ErrCodeUnknownOpcode  = 3
	ErrCodeOutOfRange     = 4
	ErrCodeCallOverflow   = 5
	ErrCodeCallUnderflow  = 6
	ErrCodeDivisionByZero = 7
	ErrCodeUnknownMethod  = 8
	ErrCodeBudget         = 9
	ErrCodeClosed         = 10
	ErrCodeOther          = 99
)

var codes = []struct {
	err  error
	code int
}{
	{ErrIndexOutOfRange, ErrCodeConfiguration},
	{ErrNoProgram, ErrCodeNoProgram},
	{ErrUnknownOpcode, ErrCodeUnknownOpcode},
	{ErrOutOfRange, ErrCodeOutOfRange},
	{ErrCallStackOverflow, ErrCodeCallOverflow},
	{ErrCallStackUnderflow, ErrCodeCallUnderflow},
	{ErrDivisionByZero, ErrCodeDivisionByZero},
	{ErrUnknownMethod, ErrCodeUnknownMethod},
	{ErrBudgetExhausted, ErrCodeBudget},
	{ErrClosed, ErrCodeClosed},
}

// Code maps an error (possibly wrapped) to its error code.
func Code(err error) int {
	if err == nil {
		return ErrNone
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ErrCodeOther
}

// ErrorMessage returns a human-readable error message for an error code
func ErrorMessage(code int) string {
	if code == ErrNone {
		return "no error"
	}
	for _, c := range codes {
		if c.code == code {
			return c.err.Error()
		}
	}
	return fmt.Sprintf("unknown error %d", code)
}
