// Package batch runs many programs concurrently, one fresh VM per program.
package batch

import (
	"bytes"
	"context"
	"time"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"github.com/yavmLang/yavm/pkg/image"
	"github.com/yavmLang/yavm/pkg/vm"
)

var log = commonlog.GetLogger("yavm.batch")

// Job is one program to run.
type Job struct {
	Name  string
	Image *image.Image
}

// Result is the outcome of one job. Err is a run failure, not a batch
// failure: the other jobs still run.
type Result struct {
	Name     string
	Output   string // everything the program printed
	Steps    int
	Return   int32
	Frame    vm.Frame
	Err      error
	Duration time.Duration
}

// Runner runs jobs with bounded concurrency.
type Runner struct {
	Config  vm.Config
	Workers int
	Debug   bool
}

// NewRunner creates a runner for the given VM capacities.
func NewRunner(cfg vm.Config, workers int) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{Config: cfg, Workers: workers}
}

// Run executes every job and returns results in job order. It only returns
// an error if ctx is cancelled; jobs that never started carry ctx.Err().
func (r *Runner) Run(ctx context.Context, jobs []Job) ([]Result, error) {
	results := make([]Result, len(jobs))
	var g errgroup.Group
	g.SetLimit(r.Workers)

	for i, job := range jobs {
		results[i].Name = job.Name
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}

		i, job := i, job
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i] = r.runOne(job)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	if err := ctx.Err(); err != nil {
		log.Warningf("batch cancelled: %v", err)
		return results, err
	}
	return results, nil
}

// runOne runs a job on its own VM so jobs never share state.
func (r *Runner) runOne(job Job) Result {
	res := Result{Name: job.Name}

	m, err := vm.NewWithConfig(r.Config)
	if err != nil {
		res.Err = err
		return res
	}
	defer m.Close()

	var out bytes.Buffer
	m.Output = &out
	m.Debug = r.Debug

	start := time.Now()
	res.Steps, res.Err = job.Image.Run(m)
	res.Duration = time.Since(start)
	res.Output = out.String()
	res.Return = m.ReturnValue()
	res.Frame = m.Frame()

	if res.Err != nil {
		log.Warningf("%s: %v", job.Name, res.Err)
	} else {
		log.Debugf("%s: %d instructions in %s", job.Name, res.Steps, res.Duration)
	}
	return res
}

// Failed returns the results that ended in an error.
func Failed(results []Result) []Result {
	var out []Result
	for _, res := range results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}
