package orch

import (
	"context"
	"errors"
	"sync"
)

var errWorkerStopped = errors.New("session worker stopped")

// worker runs the jobs of one session one at a time, in submission order.
type worker struct {
	jobs   chan func()
	done   chan struct{}
	exited chan struct{}
	once   sync.Once
}

func newWorker() *worker {
	w := &worker{
		jobs:   make(chan func(), 16),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *worker) run() {
	defer close(w.exited)
	for {
		select {
		case job := <-w.jobs:
			job()
		case <-w.done:
			for {
				select {
				case job := <-w.jobs:
					job()
				default:
					return
				}
			}
		}
	}
}

// do runs fn on the worker and waits for its result.
func (w *worker) do(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	select {
	case w.jobs <- func() { res <- fn() }:
	case <-w.done:
		return errWorkerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-res:
		return err
	case <-w.exited:
		select {
		case err := <-res:
			return err
		default:
			return errWorkerStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn without waiting. It is safe to call from a running job.
func (w *worker) post(fn func()) {
	go func() {
		select {
		case w.jobs <- fn:
		case <-w.done:
		}
	}()
}

func (w *worker) stop() {
	w.once.Do(func() { close(w.done) })
}
