// Package worker runs long-running ledger work off the interactive
// path. Imports are submitted as jobs, processed by a small pool, and
// completion is reported back on a channel. Cancelling a job leaves
// the rows already committed intact; callers surface this as "rows
// committed so far are kept".
package worker

import (
	"context"
	"errors"
	"io"

	"golang.org/x/sync/errgroup"

	"finbook/internal/core"
	"finbook/internal/importer"
	"finbook/internal/log"
)

// ImportJob is one bulk CSV load for a single user and kind.
type ImportJob struct {
	Name   string // source label for reporting, e.g. the file name
	User   core.User
	Kind   core.Kind
	Source io.Reader
}

// ImportOutcome is delivered on Results when a job finishes. Result is
// meaningful even when Err is set: it counts the rows committed before
// the failure or cancellation.
type ImportOutcome struct {
	Job    ImportJob
	Result importer.Result
	Err    error
}

type Pool struct {
	svc     *importer.Service
	logger  *log.Logger
	workers int

	jobs    chan ImportJob
	results chan ImportOutcome
	g       *errgroup.Group
	cancel  context.CancelFunc
}

func NewPool(svc *importer.Service, logger *log.Logger, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		svc:     svc,
		logger:  logger.WithComponent(log.ComponentWorker),
		workers: workers,
		jobs:    make(chan ImportJob),
		results: make(chan ImportOutcome, workers),
	}
}

// Start launches the worker goroutines. Jobs submitted after Start are
// processed until Shutdown is called or ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.g, ctx = errgroup.WithContext(ctx)

	for i := 0; i < p.workers; i++ {
		p.g.Go(func() error {
			return p.run(ctx)
		})
	}

	p.logger.Info("Import workers started", "workers", p.workers)
}

func (p *Pool) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job, ok := <-p.jobs:
			if !ok {
				return nil
			}
			result, err := p.svc.ImportCSV(ctx, job.User, job.Kind, job.Source)
			outcome := ImportOutcome{Job: job, Result: result, Err: err}
			select {
			case p.results <- outcome:
			case <-ctx.Done():
				// Job already committed its rows; report is dropped.
				return ctx.Err()
			}
		}
	}
}

// Submit hands a job to the pool, blocking until a worker picks it up
// or ctx is cancelled.
func (p *Pool) Submit(ctx context.Context, job ImportJob) error {
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Results delivers one ImportOutcome per submitted job.
func (p *Pool) Results() <-chan ImportOutcome {
	return p.results
}

// Shutdown stops accepting jobs, waits for in-flight imports to
// finish, and closes Results.
func (p *Pool) Shutdown() error {
	close(p.jobs)
	err := p.g.Wait()
	if p.cancel != nil {
		p.cancel()
	}
	close(p.results)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
