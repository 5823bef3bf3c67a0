// yavm runs YAVM programs, either assembly sources (.yasm) or assembled
// images (.yvm).
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/yavmLang/yavm/pkg/asm"
	"github.com/yavmLang/yavm/pkg/batch"
	"github.com/yavmLang/yavm/pkg/config"
	"github.com/yavmLang/yavm/pkg/image"
	"github.com/yavmLang/yavm/pkg/types"
	"github.com/yavmLang/yavm/pkg/vm"
)

var log = commonlog.GetLogger("yavm.cli")

func main() {
	configPath := flag.String("config", "", "Config file (default: nearest yavm.toml)")
	debug := flag.Bool("debug", false, "Trace every instruction")
	steps := flag.Int("steps", -1, "Instruction budget (0 = unlimited, default from config)")
	disasm := flag.Bool("disasm", false, "Disassemble instead of run")
	workers := flag.Int("j", 0, "Parallel runs when several files are given (default from config)")
	quiet := flag.Bool("q", false, "Skip the post-run report")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(types.ErrCodeConfiguration)
	}
	if *steps >= 0 {
		cfg.VM.MaxSteps = *steps
	}
	if *workers > 0 {
		cfg.Batch.Workers = *workers
	}

	verbosity := cfg.Log.Verbosity
	if *debug && verbosity < 2 {
		verbosity = 2
	}
	commonlog.Configure(verbosity, cfg.LogFile())

	args := flag.Args()
	if len(args) == 0 {
		repl(cfg, *debug)
		return
	}

	var jobs []batch.Job
	for _, path := range args {
		img, err := loadProgram(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(types.ErrCodeOther)
		}
		jobs = append(jobs, batch.Job{Name: path, Image: img})
	}

	if *disasm {
		for _, job := range jobs {
			if len(jobs) > 1 {
				fmt.Printf("=== %s ===\n", job.Name)
			}
			fmt.Print(asm.DisassembleImage(job.Image))
		}
		return
	}

	if len(jobs) == 1 {
		os.Exit(runOne(cfg, jobs[0], *debug, *quiet))
	}
	os.Exit(runBatch(cfg, jobs, *debug, *quiet))
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	dir, err := os.Getwd()
	if err != nil {
		return config.Default(), nil
	}
	return config.FindAndLoad(dir)
}

// loadProgram reads an image, or assembles the file if it is not one.
func loadProgram(path string) (*image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if image.IsImage(data) {
		img, err := image.Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return img, nil
	}

	a := asm.NewAssembler()
	a.Filename = filepath.Base(path)
	return a.Assemble(string(data))
}

// runOne runs a single program with PRINT going straight to stdout.
func runOne(cfg *config.Config, job batch.Job, debug, quiet bool) int {
	m, err := vm.NewWithConfig(cfg.Machine())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return types.ErrCodeConfiguration
	}
	defer m.Close()
	m.Output = os.Stdout
	m.Debug = debug

	n, err := job.Image.Run(m)
	if !quiet {
		report(os.Stdout, n, m.Frame(), m.ReturnValue(), m.StackDump())
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Runtime error: %v\n", err)
	}
	return types.Code(err)
}

// runBatch runs several programs concurrently and prints their output in
// argument order. The exit status is that of the first failure.
func runBatch(cfg *config.Config, jobs []batch.Job, debug, quiet bool) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	r := batch.NewRunner(cfg.Machine(), cfg.Batch.Workers)
	r.Debug = debug
	results, err := r.Run(ctx, jobs)

	code := types.ErrNone
	for _, res := range results {
		fmt.Printf("=== %s ===\n", res.Name)
		fmt.Print(res.Output)
		if !quiet {
			report(os.Stdout, res.Steps, res.Frame, res.Return, "")
		}
		if res.Err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", res.Name, res.Err)
			if code == types.ErrNone {
				code = types.Code(res.Err)
			}
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("batch: %v", err)
	}
	return code
}

func report(w io.Writer, steps int, f vm.Frame, ret int32, stack string) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Instructions: %d\n", steps)
	fmt.Fprintf(w, "Frame:        %s\n", f)
	fmt.Fprintf(w, "Return:       %d\n", ret)
	if stack != "" {
		fmt.Fprintf(w, "Stack:        %s\n", stack)
	}
}

// repl assembles and runs one line at a time on a persistent VM. Registers,
// globals and the stack pointer carry over between lines; each line is its
// own program, so methods declared on a line only exist for that line.
func repl(cfg *config.Config, debug bool) {
	fmt.Println("YAVM")
	fmt.Println("Type 'help' for commands, 'quit' to exit")
	fmt.Println()

	m, err := vm.NewWithConfig(cfg.Machine())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(types.ErrCodeOther)
	}
	defer m.Close()
	m.Output = os.Stdout
	m.Debug = debug

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("yavm> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "quit", "exit":
			return
		case "help":
			printHelp()
		case "stack":
			fmt.Println(m.StackDump())
		case "frame":
			fmt.Println(m.Frame())
		case "clear":
			m.Reset()
			fmt.Println("Cleared")
		case "debug":
			m.Debug = !m.Debug
			fmt.Printf("Debug: %v\n", m.Debug)
		default:
			img, err := asm.Assemble(line + "\nend")
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			if m.Debug {
				fmt.Print(asm.Disassemble(img.Code))
			}
			if err := img.Apply(m); err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			if _, err := m.Continue(img.Code, img.Entry); err != nil {
				fmt.Printf("Error: %v\n", err)
				m.Reset()
				continue
			}
			fmt.Println("->", m.StackDump())
		}
	}
}

func printHelp() {
	fmt.Print(`Commands:
  quit     - Exit REPL
  stack    - Show stack up to sp
  frame    - Show bp, sp and pc
  clear    - Reset stack, globals and frames
  debug    - Toggle instruction tracing
  help     - Show this help

Instructions (one per line, registers are r0..r255):
  Integer: add sub mul div mod exp rA, rB, rC    sqrt rA, rB
  Imm:     addimm subimm mulimm divimm modimm expimm sqrtimm rA, n
  Float:   fadd fsub fmul fdiv fmod fexp rA, rB, rC    fsqrt rA, rB
  Moves:   push pop rA   mov rA, rB   movimm16 rA, n   loadg/setg rA, g
  Compare: cmp gt gte rA, rB (skip next when true)
  Control: je rA, off   jmp off   call m   ret rA   loadret rA
  I/O:     print rA

Each line runs as its own program. Registers, globals and pushed values
persist between lines; a .method only applies to the line that declares it.

Example:
  movimm16 r0, 5
  mulimm r0, 3
  print r0          ; prints 15
`)
}
