package consumer

import (
	"fmt"
	"log"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-stream/engine/staging"
)

// BatchHandler reads one published batch. data holds count records starting at logical index start
// and is only valid for the duration of the call.
type BatchHandler func(start, count int, data []byte) error

// workerConsumer is the implementation of the WorkerConsumer interface.
type workerConsumer struct {
	label     string
	handler   BatchHandler
	logger    *log.Logger
	workers   int
	queueSize int

	// mu guards stopped and the close of tasks. Consume holds it shared while submitting.
	mu      sync.RWMutex
	stopped bool
	tasks   chan worker.Task
	pending sync.WaitGroup

	nextID   atomic.Int64
	consumed atomic.Uint64
	failures atomic.Uint64
}

// WorkerConsumer runs a BatchHandler for every published batch on a fixed set of reusable
// goroutines and signals the batch's fence once the handler returns. It plays the role of the
// asynchronous reader on the other side of a staging.RingPool.
//
// Usage pattern:
//  1. c := NewWorkerConsumer(handler)
//  2. batch.NewWriter(pool, stride, c.Consume)
//  3. pool.Finish() once the producer is done
//  4. c.Stop() to release the worker goroutines
type WorkerConsumer interface {
	// Consume schedules the handler for one published batch. It matches batch.ConsumerFunc and
	// returns without waiting for the handler. After Stop the batch is not handled: it is counted as
	// a failure and its fence is signaled immediately.
	//
	// Parameters:
	//   - start: logical index of the batch's first record
	//   - count: number of records in the batch
	//   - pub: the publication whose fence is signaled after the handler runs
	Consume(start, count int, pub staging.Publication)

	// Consumed returns how many batches have finished, successfully or not.
	//
	// Returns:
	//   - uint64: the number of completed batches
	Consumed() uint64

	// Failures returns how many batches failed: handler errors, handler panics, and batches
	// refused after Stop.
	//
	// Returns:
	//   - uint64: the number of failed batches
	Failures() uint64

	// Stop stops accepting batches, lets the workers finish everything already queued, and returns
	// once every queued handler has run. The worker goroutines exit after draining the queue.
	// Safe to call multiple times.
	Stop()
}

// Compile-time check that workerConsumer implements WorkerConsumer.
var _ WorkerConsumer = &workerConsumer{}

// NewWorkerConsumer creates a WorkerConsumer around handler and starts its workers. Panics if
// handler is nil. Call Stop to release the workers.
//
// Parameters:
//   - handler: the function reading each batch
//   - options: functional options to further configure the consumer
//
// Returns:
//   - WorkerConsumer: the new consumer
func NewWorkerConsumer(handler BatchHandler, options ...WorkerConsumerBuilderOption) WorkerConsumer {
	if handler == nil {
		panic("consumer: NewWorkerConsumer requires a non-nil BatchHandler")
	}

	c := &workerConsumer{
		label:     "worker consumer",
		handler:   handler,
		logger:    log.Default(),
		workers:   max(runtime.NumCPU()-1, 1),
		queueSize: 256,
	}

	for _, option := range options {
		option(c)
	}

	// Workers are started after options so WithWorkers/WithQueueSize can override the defaults.
	// They exit when tasks is closed and drained; the stop channel is never used.
	c.tasks = make(chan worker.Task, c.queueSize)
	stop := make(chan int)
	for i := range c.workers {
		worker.NewWorker(i, c.tasks, stop, 0, nil).Start()
	}
	return c
}

func (c *workerConsumer) Consume(start, count int, pub staging.Publication) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.stopped {
		c.failures.Add(1)
		c.consumed.Add(1)
		c.logger.Printf("[WorkerConsumer] %s: stopped, dropping batch at record %d (%d records, slot %d)", c.label, start, count, pub.Slot)
		pub.Fence.Signal()
		return
	}

	c.pending.Add(1)
	c.tasks <- worker.Task{
		ID:      int(c.nextID.Add(1)),
		Payload: pub.Slot,
		Do: func() (any, error) {
			defer c.pending.Done()
			return c.handle(start, count, pub)
		},
	}
}

// handle runs the handler for one batch. The fence is signaled on every path, including a handler
// panic, which is recovered and counted as a failure.
func (c *workerConsumer) handle(start, count int, pub staging.Publication) (_ any, err error) {
	defer pub.Fence.Signal()
	defer c.consumed.Add(1)
	defer func() {
		if r := recover(); r != nil {
			c.failures.Add(1)
			c.logger.Printf("[WorkerConsumer] %s: batch at record %d (%d records, slot %d) panicked: %v", c.label, start, count, pub.Slot, r)
			err = fmt.Errorf("consumer: batch at record %d: panic: %v", start, r)
		}
	}()

	pub.Fence.Claim()
	if err := c.handler(start, count, pub.Region.Bytes()); err != nil {
		c.failures.Add(1)
		c.logger.Printf("[WorkerConsumer] %s: batch at record %d (%d records, slot %d) failed: %v", c.label, start, count, pub.Slot, err)
		return nil, fmt.Errorf("consumer: batch at record %d: %w", start, err)
	}
	return nil, nil
}

func (c *workerConsumer) Consumed() uint64 {
	return c.consumed.Load()
}

func (c *workerConsumer) Failures() uint64 {
	return c.failures.Load()
}

func (c *workerConsumer) Stop() {
	c.mu.Lock()
	if !c.stopped {
		c.stopped = true
		close(c.tasks)
	}
	c.mu.Unlock()

	c.pending.Wait()
}
