package image

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"github.com/yavmLang/yavm/pkg/types"
	"github.com/yavmLang/yavm/pkg/vm"
)

// sample: main pushes global 0, calls double, prints the result
func sample() *Image {
	img := New()
	img.Entry = 0
	img.Code = []types.Word{
		vm.EncodeAU16(vm.OpLoadG, 0, 0),  // 0
		vm.EncodeABC(vm.OpPush, 0, 0, 0), // 1
		vm.EncodeAU16(vm.OpCall, 0, 2),   // 2
		vm.EncodeABC(vm.OpLoadRet, 1, 0, 0),
		vm.EncodeABC(vm.OpPrint, 1, 0, 0),
		types.Word(vm.OpEnd),
		vm.EncodeABC(vm.OpAdd, 0, 0, 0), // 6: double
		vm.EncodeABC(vm.OpRet, 0, 0, 0),
	}
	img.Methods = []Method{{Name: "double", Index: 2, Entry: 6, Args: 1}}
	img.Globals = []Global{{Index: 0, Value: 21}}
	img.Stack = []StackSeed{{Index: 10, Value: types.FloatSlot(0.5)}}
	return img
}

func TestRoundTrip(t *testing.T) {
	img := sample()
	data, err := Marshal(img)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !IsImage(data) {
		t.Error("IsImage should recognise a marshalled image")
	}

	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(got.Code) != len(img.Code) {
		t.Fatalf("Code: got %d words, want %d", len(got.Code), len(img.Code))
	}
	for i := range img.Code {
		if got.Code[i] != img.Code[i] {
			t.Errorf("Word %d: got %08X, want %08X", i, got.Code[i], img.Code[i])
		}
	}
	m, ok := got.MethodByName("double")
	if !ok || m.Index != 2 || m.Entry != 6 || m.Args != 1 {
		t.Errorf("Method mismatch: %+v", m)
	}
	if got.Stack[0].Value.AsFloat() != 0.5 {
		t.Errorf("Stack seed lost float bits: %v", got.Stack[0].Value)
	}

	// canonical encoding is deterministic
	again, _ := Marshal(got)
	if !bytes.Equal(data, again) {
		t.Error("Re-encoding produced different bytes")
	}
}

func TestUnmarshalRejects(t *testing.T) {
	t.Run("not cbor", func(t *testing.T) {
		if _, err := Unmarshal([]byte("movimm16 r0, 1")); err == nil {
			t.Error("Expected error")
		}
	})

	t.Run("wrong magic", func(t *testing.T) {
		img := sample()
		img.Magic = "JUNK"
		data, _ := Marshal(img)
		if _, err := Unmarshal(data); !errors.Is(err, ErrNotImage) {
			t.Errorf("Expected ErrNotImage, got %v", err)
		}
		if IsImage(data) {
			t.Error("IsImage should reject a foreign magic")
		}
	})

	t.Run("wrong version", func(t *testing.T) {
		img := sample()
		img.Version = 99
		data, _ := Marshal(img)
		if _, err := Unmarshal(data); !errors.Is(err, ErrBadVersion) {
			t.Errorf("Expected ErrBadVersion, got %v", err)
		}
	})

	t.Run("tampered code", func(t *testing.T) {
		img := sample()
		img.Checksum = Sum(img.Code)
		img.Code[0] = types.Word(vm.OpEnd)
		data, err := cbor.Marshal(img)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := Unmarshal(data); !errors.Is(err, ErrBadChecksum) {
			t.Errorf("Expected ErrBadChecksum, got %v", err)
		}
	})
}

func TestRun(t *testing.T) {
	m := vm.New()
	var out bytes.Buffer
	m.Output = &out

	n, err := sample().Run(m)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.String() != "42\n" {
		t.Errorf("Expected 42, got %q", out.String())
	}
	if n != 8 {
		t.Errorf("Expected 8 instructions, got %d", n)
	}
	if s, _ := m.Slot(10); s.AsFloat() != 0.5 {
		t.Errorf("Stack seed not applied: %v", s)
	}
}

func TestApplyRejectsOutOfRange(t *testing.T) {
	img := sample()
	img.Methods[0].Index = 64
	if err := img.Apply(vm.New()); !errors.Is(err, types.ErrIndexOutOfRange) {
		t.Errorf("Expected ErrIndexOutOfRange, got %v", err)
	}

	img = sample()
	img.Globals = append(img.Globals, Global{Index: 5000, Value: 1})
	if err := img.Apply(vm.New()); !errors.Is(err, types.ErrIndexOutOfRange) {
		t.Errorf("Expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.yvm")
	if err := WriteFile(path, sample()); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	img, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if img.Entry != 0 || len(img.Code) != 8 {
		t.Errorf("Unexpected image %+v", img)
	}
	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.yvm")); err == nil {
		t.Error("Expected error for a missing file")
	}
}

func TestRaw(t *testing.T) {
	raw := Raw([]types.Word{0x04030201, 0x24})
	want := []byte{0x01, 0x02, 0x03, 0x04, 0x24, 0x00, 0x00, 0x00}
	if !bytes.Equal(raw, want) {
		t.Errorf("Expected % X, got % X", want, raw)
	}
}
