package calc

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
)

// ErrDimMismatch is returned when operand shapes disagree
var ErrDimMismatch = errors.New("dimension mismatch")

// PipeLine represents a compute pipeline
type PipeLine struct {
	numPoper int
}

// Init returns a compute PipeLine with numWorkers workers; values below one
// fall back to the number of CPUs
func Init(numWorkers int) *PipeLine {
	if numWorkers < 1 {
		numWorkers = runtime.NumCPU()
	}

	return &PipeLine{numPoper: numWorkers}
}

// Workers returns the number of workers per operation
func (p *PipeLine) Workers() int {
	return p.numPoper
}

// run feeds indices [0, n) to the pipeline workers and waits for them
func (p *PipeLine) run(n int, job func(index int)) {
	order := make(chan int, p.numPoper)
	var wg sync.WaitGroup

	wg.Add(n)

	workers := p.numPoper
	if workers > n {
		workers = n
	}
	for i := 0; i < workers; i++ {
		go func() {
			for index := range order {
				job(index)
				wg.Done()
			}
		}()
	}

	for i := 0; i < n; i++ {
		order <- i
	}

	wg.Wait()
	close(order)
}

func dimError(op string, inRows, inCols, outRows, outCols int) error {
	return fmt.Errorf("%s: input dims: %d by %d when output dims: %d by %d: %w", op, inRows, inCols, outRows, outCols, ErrDimMismatch)
}

/*
	Workflow:

	Mean -> Scale -> Project
*/
