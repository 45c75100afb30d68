package sim

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/san-kum/hitchplan/internal/dynamo"
)

// Job is one closed loop of a batch. Every job needs its own Simulator and
// controller; they are stateful.
type Job struct {
	Name    string
	Sim     *Simulator
	Initial dynamo.State
	Config  Config
}

// RunBatch runs jobs on up to workers goroutines. Results line up with
// jobs; a failed job leaves a nil result and contributes to the combined
// error.
func RunBatch(ctx context.Context, jobs []Job, workers int) ([]*Result, error) {
	if workers < 1 {
		workers = 1
	}
	results := make([]*Result, len(jobs))
	errs := make([]error, len(jobs))

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i := range jobs {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			job := jobs[idx]
			res, err := job.Sim.Run(ctx, job.Initial, job.Config)
			if err != nil {
				errs[idx] = fmt.Errorf("job %s: %w", job.Name, err)
				return
			}
			results[idx] = res
		}(i)
	}
	wg.Wait()

	return results, multierr.Combine(errs...)
}
