// Package image stores assembled YAVM programs as CBOR files (.yvm).
// An image carries everything a run needs: the code words, the method
// table, initial globals and stack seeds, and the entry address.
package image

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/yavmLang/yavm/pkg/types"
	"github.com/yavmLang/yavm/pkg/vm"
)

// Magic identifies a YAVM image.
const Magic = "YAVM"

// Version is the current image format version.
const Version = 1

var (
	ErrNotImage    = errors.New("image: not a YAVM image")
	ErrBadVersion  = errors.New("image: unsupported version")
	ErrBadChecksum = errors.New("image: checksum mismatch")
)

// Image is an assembled program.
type Image struct {
	Magic    string       `cbor:"1,keyasint"`
	Version  int          `cbor:"2,keyasint"`
	Entry    int          `cbor:"3,keyasint"`
	Code     []types.Word `cbor:"4,keyasint"`
	Methods  []Method     `cbor:"5,keyasint,omitempty"`
	Globals  []Global     `cbor:"6,keyasint,omitempty"`
	Stack    []StackSeed  `cbor:"7,keyasint,omitempty"`
	Checksum [32]byte     `cbor:"8,keyasint"` // sha256 of the code words
}

// Method is a named method table entry.
type Method struct {
	Name   string `cbor:"1,keyasint,omitempty"`
	Index  int    `cbor:"2,keyasint"`
	Entry  int    `cbor:"3,keyasint"`
	Args   int    `cbor:"4,keyasint"`
	Locals int    `cbor:"5,keyasint"`
}

// Descriptor returns the VM method descriptor.
func (m Method) Descriptor() types.Method {
	return types.Method{Entry: m.Entry, Args: m.Args, Locals: m.Locals}
}

// Global is an initial global value.
type Global struct {
	Index int   `cbor:"1,keyasint"`
	Value int32 `cbor:"2,keyasint"`
}

// StackSeed is an initial stack slot (raw bits, so floats survive).
type StackSeed struct {
	Index int        `cbor:"1,keyasint"`
	Value types.Slot `cbor:"2,keyasint"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// New returns an empty image with the header filled in.
func New() *Image {
	return &Image{Magic: Magic, Version: Version}
}

// Sum computes the checksum of the code words.
func Sum(code []types.Word) [32]byte {
	return sha256.Sum256(Raw(code))
}

// Raw returns the code words as little-endian bytes, without any header.
func Raw(code []types.Word) []byte {
	buf := make([]byte, 4*len(code))
	for i, w := range code {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(w))
	}
	return buf
}

// MethodByName finds a method entry by name.
func (img *Image) MethodByName(name string) (Method, bool) {
	for _, m := range img.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return Method{}, false
}

// Marshal serializes an image to CBOR bytes, refreshing its checksum.
func Marshal(img *Image) ([]byte, error) {
	img.Checksum = Sum(img.Code)
	return cborEncMode.Marshal(img)
}

// Unmarshal deserializes and validates an image.
func Unmarshal(data []byte) (*Image, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("image: unmarshal: %w", err)
	}
	if img.Magic != Magic {
		return nil, ErrNotImage
	}
	if img.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, img.Version)
	}
	if Sum(img.Code) != img.Checksum {
		return nil, ErrBadChecksum
	}
	return &img, nil
}

// IsImage reports whether data looks like an encoded image.
func IsImage(data []byte) bool {
	// canonical CBOR puts key 1 ("YAVM") first: map header, 0x01, text(4)
	return len(data) > 7 && bytes.Equal(data[1:7], []byte{0x01, 0x64, 'Y', 'A', 'V', 'M'})
}

// ReadFile loads an image from disk.
func ReadFile(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// WriteFile stores an image on disk.
func WriteFile(path string, img *Image) error {
	data, err := Marshal(img)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Apply registers the image's methods and seeds its globals and stack.
// It stops at the first entry the VM rejects.
func (img *Image) Apply(m *vm.VM) error {
	for _, meth := range img.Methods {
		if err := m.SetMethod(meth.Descriptor(), meth.Index); err != nil {
			return fmt.Errorf("method %q: %w", meth.Name, err)
		}
	}
	for _, g := range img.Globals {
		if err := m.SetGlobal(g.Index, g.Value); err != nil {
			return err
		}
	}
	for _, s := range img.Stack {
		if err := m.SetStackSlot(s.Index, s.Value); err != nil {
			return err
		}
	}
	return nil
}

// Run applies the image to m and runs it from its entry address.
func (img *Image) Run(m *vm.VM) (int, error) {
	if err := img.Apply(m); err != nil {
		return 0, err
	}
	return m.Run(img.Code, img.Entry)
}
