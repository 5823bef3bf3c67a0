package asm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yavmLang/yavm/pkg/image"
	"github.com/yavmLang/yavm/pkg/types"
	"github.com/yavmLang/yavm/pkg/vm"
)

// Disassemble converts code words back to text, one instruction per line.
func Disassemble(code []types.Word) string {
	var sb strings.Builder
	for pc, w := range code {
		fmt.Fprintf(&sb, "%04X: %08X  %s", pc, uint32(w), vm.Decode(w))
		sb.WriteString(jumpTarget(pc, w))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// DisassembleImage lists an image with its method headers and data.
func DisassembleImage(img *image.Image) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "; entry %04X, %d words\n", img.Entry, len(img.Code))
	for _, g := range img.Globals {
		fmt.Fprintf(&sb, ".global %d, %d\n", g.Index, g.Value)
	}
	for _, s := range img.Stack {
		fmt.Fprintf(&sb, ".stack %d, %d\n", s.Index, s.Value.AsInt())
	}

	methods := make(map[int][]image.Method)
	for _, m := range img.Methods {
		methods[m.Entry] = append(methods[m.Entry], m)
	}
	for _, ms := range methods {
		sort.Slice(ms, func(i, j int) bool { return ms[i].Index < ms[j].Index })
	}

	lines := strings.SplitAfter(Disassemble(img.Code), "\n")
	for pc, line := range lines {
		for _, m := range methods[pc] {
			name := m.Name
			if name == "" {
				name = fmt.Sprintf("m%d", m.Index)
			}
			fmt.Fprintf(&sb, "\n.method %s, %d, %d, %d\n", name, m.Args, m.Locals, m.Index)
		}
		if pc == img.Entry {
			sb.WriteString("; entry\n")
		}
		sb.WriteString(line)
	}
	return sb.String()
}

func jumpTarget(pc int, w types.Word) string {
	in := vm.Decode(w)
	switch in.Op {
	case vm.OpJe, vm.OpJmp:
		return fmt.Sprintf("  ; -> %04X", pc+1+int(in.Imm))
	}
	return ""
}
