// Package fetchpool runs capture fetches on a fixed set of workers.
// The workers do no pacing of their own: every archive request inside
// the process function goes through the one shared governor, so adding
// workers raises parallelism of the surrounding work, never the
// request rate.
package fetchpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"derp/pkg/catalog"
	"derp/pkg/logger"
)

// Result is the outcome of processing one capture
type Result struct {
	Capture  catalog.Capture
	Err      error
	Duration time.Duration
}

// ProcessFunc does the per-capture work: fetch, store, analyze
type ProcessFunc func(ctx context.Context, capt catalog.Capture) error

// Pool manages the fetch workers
type Pool struct {
	numWorkers int
	jobs       chan catalog.Capture
	results    chan Result
	wg         sync.WaitGroup
	ctx        context.Context
	process    ProcessFunc
	logger     logger.Logger
}

// New creates a pool of numWorkers workers running process
func New(numWorkers int, process ProcessFunc, log logger.Logger) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan catalog.Capture, numWorkers*2),
		results:    make(chan Result, numWorkers),
		process:    process,
		logger:     log,
	}
}

// Start launches the workers. They run until the job queue is closed
// by Stop or the context is cancelled.
func (p *Pool) Start(ctx context.Context) {
	p.ctx = ctx
	p.logger.InfoWithFields("starting fetch workers", map[string]interface{}{
		"workers": p.numWorkers,
	})
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit queues one capture for processing
func (p *Pool) Submit(capt catalog.Capture) error {
	select {
	case p.jobs <- capt:
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("fetch pool shutting down: %w", p.ctx.Err())
	}
}

// Close signals that no more jobs will be submitted. Workers drain the
// queue, then the results channel closes.
func (p *Pool) Close() {
	close(p.jobs)
	go func() {
		p.wg.Wait()
		close(p.results)
	}()
}

// Results returns the channel of per-capture outcomes
func (p *Pool) Results() <-chan Result {
	return p.results
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for capt := range p.jobs {
		if p.ctx.Err() != nil {
			return
		}

		start := time.Now()
		err := p.process(p.ctx, capt)
		result := Result{Capture: capt, Err: err, Duration: time.Since(start)}

		if err != nil {
			p.logger.WarnWithFields("capture processing failed", map[string]interface{}{
				"worker_id":  id,
				"capture_id": capt.ID,
				"url":        capt.ArchiveURL,
				"error":      err.Error(),
			})
		}

		select {
		case p.results <- result:
		case <-p.ctx.Done():
			return
		}
	}
}
