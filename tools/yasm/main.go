// yasm assembles .yasm sources into .yvm program images.
//
// Usage: go run ./tools/yasm -o build testdata/programs/fact.yasm
//
// With -raw it also writes <name>.bin, the bare code words in little-endian
// order, for loaders that bring their own method table.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yavmLang/yavm/pkg/asm"
	"github.com/yavmLang/yavm/pkg/image"
)

func main() {
	outDir := flag.String("o", "build", "Output directory")
	disasm := flag.Bool("disasm", false, "Print disassembly")
	raw := flag.Bool("raw", false, "Also write raw code words (.bin)")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: yasm [-o outdir] [-disasm] [-raw] <file.yasm>...")
		os.Exit(1)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	for _, path := range flag.Args() {
		if err := assembleFile(path, *outDir, *disasm, *raw); err != nil {
			fmt.Fprintf(os.Stderr, "Error assembling %s: %v\n", path, err)
			os.Exit(1)
		}
	}
}

func assembleFile(path, outDir string, showDisasm, writeRaw bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	baseName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	a := asm.NewAssembler()
	a.Filename = filepath.Base(path)
	img, err := a.Assemble(string(data))
	if err != nil {
		return err
	}

	if showDisasm {
		fmt.Printf("=== %s: %d words, %d methods ===\n", baseName, len(img.Code), len(img.Methods))
		fmt.Print(asm.DisassembleImage(img))
		fmt.Println()
	}

	outPath := filepath.Join(outDir, baseName+".yvm")
	if err := image.WriteFile(outPath, img); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	fmt.Printf("%s: %d words -> %s\n", baseName, len(img.Code), outPath)

	if writeRaw {
		rawPath := filepath.Join(outDir, baseName+".bin")
		if err := os.WriteFile(rawPath, image.Raw(img.Code), 0o644); err != nil {
			return fmt.Errorf("write raw: %w", err)
		}
		fmt.Printf("%s: %d bytes -> %s\n", baseName, 4*len(img.Code), rawPath)
	}

	return nil
}
