package app

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// job is a unit of work for the dispatcher.
type job struct {
	name string
	fn   func(ctx context.Context) error
}

// dispatcher runs sink calls and event delivery on a single goroutine so
// the frame path never waits on I/O. Jobs run in submission order. When the
// queue is full new jobs are dropped and counted.
type dispatcher struct {
	queue   chan job
	timeout time.Duration
	onError func(error)

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	dropped atomic.Uint64
	failed  atomic.Uint64
}

func newDispatcher(size int, timeout time.Duration, onError func(error)) *dispatcher {
	d := &dispatcher{
		queue:   make(chan job, size),
		timeout: timeout,
		onError: onError,
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// submit queues fn without blocking. It reports false if the job was dropped.
func (d *dispatcher) submit(name string, fn func(ctx context.Context) error) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return false
	}

	select {
	case d.queue <- job{name: name, fn: fn}:
		return true
	default:
		d.dropped.Add(1)
		return false
	}
}

// flush blocks until every job submitted before the call has run.
func (d *dispatcher) flush() {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return
	}
	ch := make(chan struct{})
	d.queue <- job{name: "flush", fn: func(context.Context) error {
		close(ch)
		return nil
	}}
	d.mu.RUnlock()
	<-ch
}

// close runs the remaining jobs and stops the dispatcher.
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	<-d.done
}

func (d *dispatcher) run() {
	defer close(d.done)
	for j := range d.queue {
		if err := d.exec(j); err != nil {
			d.failed.Add(1)
			d.report(j, err)
		}
	}
}

// report hands err to onError, or logs it when no handler is set.
func (d *dispatcher) report(j job, err error) {
	if d.onError != nil {
		d.onError(err)
		return
	}
	log.Printf("Sink call %s failed: %v", j.name, err)
}

func (d *dispatcher) exec(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", j.name, r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	return j.fn(ctx)
}
