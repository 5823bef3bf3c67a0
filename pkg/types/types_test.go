package types

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestSlotReinterpret(t *testing.T) {
	s := FloatSlot(1.5)
	if s.AsFloat() != 1.5 {
		t.Errorf("Expected 1.5, got %v", s.AsFloat())
	}
	if uint32(s) != math.Float32bits(1.5) {
		t.Errorf("Expected raw bits %08X, got %08X", math.Float32bits(1.5), uint32(s))
	}
	// same bits, integer view
	if s.AsInt() != int32(math.Float32bits(1.5)) {
		t.Errorf("Integer view does not match float bits: %d", s.AsInt())
	}

	n := IntSlot(-7)
	if n.AsInt() != -7 {
		t.Errorf("Expected -7, got %d", n.AsInt())
	}
	if uint32(n) != 0xFFFFFFF9 {
		t.Errorf("Expected 0xFFFFFFF9, got %08X", uint32(n))
	}
}

func TestMethodWindow(t *testing.T) {
	m := Method{Entry: 10, Args: 2, Locals: 3}
	if m.Window() != 5 {
		t.Errorf("Expected window 5, got %d", m.Window())
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{nil, ErrNone},
		{ErrNoProgram, ErrCodeNoProgram},
		{fmt.Errorf("pc 4: %w", ErrDivisionByZero), ErrCodeDivisionByZero},
		{fmt.Errorf("setMethod: %w", ErrIndexOutOfRange), ErrCodeConfiguration},
		{errors.New("something else"), ErrCodeOther},
	}

	for _, tt := range tests {
		if got := Code(tt.err); got != tt.code {
			t.Errorf("Code(%v): expected %d, got %d", tt.err, tt.code, got)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	if msg := ErrorMessage(ErrCodeCallOverflow); msg != "call stack overflow" {
		t.Errorf("Unexpected message: %q", msg)
	}
	if msg := ErrorMessage(ErrNone); msg != "no error" {
		t.Errorf("Unexpected message: %q", msg)
	}
	if msg := ErrorMessage(1234); msg != "unknown error 1234" {
		t.Errorf("Unexpected message: %q", msg)
	}
}
