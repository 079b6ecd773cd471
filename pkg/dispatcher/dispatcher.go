// Package dispatcher serializes characteristic accesses, connection events
// and timer callbacks onto a single goroutine.
package dispatcher

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jwoglom/fakebulb/pkg/bluetooth"
)

// Timer is a pending callback that can be cancelled
type Timer interface {
	Stop() bool
}

// Scheduler arms one-shot timers
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Queue is a single-consumer job queue
type Queue struct {
	jobs    chan func()
	done    chan struct{}
	closing chan struct{}

	mtx     sync.RWMutex
	stopped bool
	once    sync.Once
}

// New creates a queue with room for size pending jobs
func New(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{
		jobs:    make(chan func(), size),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}
}

// Start runs the consumer until ctx is cancelled or Stop is called
func (q *Queue) Start(ctx context.Context) {
	go q.run(ctx)
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.done)
	for {
		select {
		case <-ctx.Done():
			q.Stop()
			q.drain()
			return
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			q.exec(job)
		}
	}
}

func (q *Queue) drain() {
	for job := range q.jobs {
		q.exec(job)
	}
}

func (q *Queue) exec(job func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("dispatcher: job panicked: %v", r)
		}
	}()
	job()
}

// Post enqueues f. It returns false if the queue has been stopped.
func (q *Queue) Post(f func()) bool {
	q.mtx.RLock()
	defer q.mtx.RUnlock()
	if q.stopped {
		log.Warn("dispatcher: dropping job posted after stop")
		return false
	}
	select {
	case q.jobs <- f:
		return true
	case <-q.closing:
		log.Warn("dispatcher: dropping job posted during stop")
		return false
	}
}

// Do runs f on the queue and waits for it to finish. It must not be called
// from a job already running on the queue.
func (q *Queue) Do(f func()) bool {
	finished := make(chan struct{})
	if !q.Post(func() {
		defer close(finished)
		f()
	}) {
		return false
	}
	<-finished
	return true
}

// AfterFunc arms a timer whose callback runs on the queue
func (q *Queue) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, func() {
		q.Post(f)
	})
}

// Stop refuses new jobs and waits for queued ones to run
func (q *Queue) Stop() {
	q.once.Do(func() {
		close(q.closing)
		q.mtx.Lock()
		q.stopped = true
		close(q.jobs)
		q.mtx.Unlock()
	})
}

// Done is closed once the consumer has exited
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Wrap returns an AccessHandler that runs h on the queue
func (q *Queue) Wrap(h bluetooth.AccessHandler) bluetooth.AccessHandler {
	return &serialized{queue: q, handler: h}
}

type serialized struct {
	queue   *Queue
	handler bluetooth.AccessHandler
}

func (s *serialized) Write(data []byte) error {
	var err error
	if !s.queue.Do(func() { err = s.handler.Write(data) }) {
		return ErrStopped
	}
	return err
}

func (s *serialized) Read() []byte {
	var out []byte
	s.queue.Do(func() { out = s.handler.Read() })
	return out
}
