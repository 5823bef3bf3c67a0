package batch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/yavmLang/yavm/pkg/asm"
	"github.com/yavmLang/yavm/pkg/image"
	"github.com/yavmLang/yavm/pkg/types"
	"github.com/yavmLang/yavm/pkg/vm"
)

func mustAssemble(t *testing.T, src string) *image.Image {
	t.Helper()
	img, err := asm.Assemble(src)
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	return img
}

// counter prints n, bumps global 0 and prints it, so shared state would show
func counter(t *testing.T, n int) *image.Image {
	t.Helper()
	return mustAssemble(t, fmt.Sprintf(`
    movimm16 r0, %d
    print r0
    loadg r1, 0
    addimm r1, 1
    setg r1, 0
    print r1
    end`, n))
}

func TestRunOrderAndIsolation(t *testing.T) {
	var jobs []Job
	for i := 0; i < 20; i++ {
		jobs = append(jobs, Job{Name: fmt.Sprintf("job%d", i), Image: counter(t, i)})
	}

	r := NewRunner(vm.DefaultConfig(), 4)
	results, err := r.Run(context.Background(), jobs)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(results) != len(jobs) {
		t.Fatalf("Expected %d results, got %d", len(jobs), len(results))
	}

	for i, res := range results {
		if res.Name != jobs[i].Name {
			t.Errorf("Result %d: expected %s, got %s", i, jobs[i].Name, res.Name)
		}
		if res.Err != nil {
			t.Errorf("%s: %v", res.Name, res.Err)
		}
		want := fmt.Sprintf("%d\n1\n", i)
		if res.Output != want {
			t.Errorf("%s: expected output %q, got %q", res.Name, want, res.Output)
		}
		if res.Steps != 7 {
			t.Errorf("%s: expected 7 steps, got %d", res.Name, res.Steps)
		}
	}
}

func TestRunFailuresDoNotStopBatch(t *testing.T) {
	jobs := []Job{
		{Name: "ok", Image: counter(t, 1)},
		{Name: "div", Image: mustAssemble(t, "movimm16 r0, 1\ndivimm r0, 0\nend")},
		{Name: "spin", Image: mustAssemble(t, "top: jmp top")},
		{Name: "ok2", Image: counter(t, 2)},
	}

	cfg := vm.DefaultConfig()
	cfg.MaxSteps = 100
	results, err := NewRunner(cfg, 2).Run(context.Background(), jobs)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if !errors.Is(results[1].Err, types.ErrDivisionByZero) {
		t.Errorf("Expected division by zero, got %v", results[1].Err)
	}
	if !errors.Is(results[2].Err, types.ErrBudgetExhausted) {
		t.Errorf("Expected budget exhausted, got %v", results[2].Err)
	}
	if results[3].Output != "2\n1\n" {
		t.Errorf("Later jobs should still run, got %q", results[3].Output)
	}

	failed := Failed(results)
	if len(failed) != 2 || failed[0].Name != "div" || failed[1].Name != "spin" {
		t.Errorf("Unexpected failures %+v", failed)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	jobs := []Job{{Name: "a", Image: counter(t, 1)}, {Name: "b", Image: counter(t, 2)}}
	results, err := NewRunner(vm.DefaultConfig(), 1).Run(ctx, jobs)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	for _, res := range results {
		if !errors.Is(res.Err, context.Canceled) {
			t.Errorf("%s: expected cancelled, got %v", res.Name, res.Err)
		}
	}
}

func TestBadConfig(t *testing.T) {
	cfg := vm.DefaultConfig()
	cfg.StackSize = 0
	results, err := NewRunner(cfg, 0).Run(context.Background(), []Job{{Name: "x", Image: counter(t, 0)}})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if results[0].Err == nil {
		t.Error("Expected config error")
	}
}
