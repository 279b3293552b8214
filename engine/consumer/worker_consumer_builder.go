package consumer

import "log"

// WorkerConsumerBuilderOption is a functional option for configuring a WorkerConsumer during construction.
type WorkerConsumerBuilderOption func(*workerConsumer)

// WithWorkers sets the number of worker goroutines running handlers.
// Values <= 0 are ignored.
//
// Parameters:
//   - n: the worker count (default NumCPU-1, at least 1)
//
// Returns:
//   - WorkerConsumerBuilderOption: option function to apply
func WithWorkers(n int) WorkerConsumerBuilderOption {
	return func(c *workerConsumer) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithQueueSize sets how many batches may wait for a free worker.
// Values <= 0 are ignored.
//
// Parameters:
//   - n: the queue size (default 256)
//
// Returns:
//   - WorkerConsumerBuilderOption: option function to apply
func WithQueueSize(n int) WorkerConsumerBuilderOption {
	return func(c *workerConsumer) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithWorkerLabel sets the label used in log lines.
//
// Parameters:
//   - label: the label
//
// Returns:
//   - WorkerConsumerBuilderOption: option function to apply
func WithWorkerLabel(label string) WorkerConsumerBuilderOption {
	return func(c *workerConsumer) {
		c.label = label
	}
}

// WithWorkerLogger sets the logger for handler failures. Defaults to log.Default().
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - WorkerConsumerBuilderOption: option function to apply
func WithWorkerLogger(logger *log.Logger) WorkerConsumerBuilderOption {
	return func(c *workerConsumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}
