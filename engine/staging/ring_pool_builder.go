package staging

import (
	"log"
	"time"

	"github.com/Carmen-Shannon/oxy-stream/engine/fence"
)

// RingPoolBuilderOption is a functional option applied to a pool during construction via NewRingPool.
type RingPoolBuilderOption func(*ringPool)

// WithSlotSize sets the size of each slot in bytes. Required.
//
// Parameters:
//   - bytes: the slot size in bytes (must be > 0)
//
// Returns:
//   - RingPoolBuilderOption: a function that applies the slot size to a pool
func WithSlotSize(bytes int) RingPoolBuilderOption {
	return func(p *ringPool) {
		p.slotSize = bytes
	}
}

// WithSlotCount sets how many slots the ring holds, which bounds how many writes may be in flight
// before the producer stalls. Required.
//
// Parameters:
//   - count: the slot count (must be > 0)
//
// Returns:
//   - RingPoolBuilderOption: a function that applies the slot count to a pool
func WithSlotCount(count int) RingPoolBuilderOption {
	return func(p *ringPool) {
		p.slotCount = count
	}
}

// WithWaitTimeout sets how long BeginWrite waits on an unsignaled fence before returning ErrTimeout.
// Values <= 0 make BeginWrite wait without a bound.
//
// Parameters:
//   - timeout: the wait budget (default DefaultWaitTimeout)
//
// Returns:
//   - RingPoolBuilderOption: a function that applies the wait timeout to a pool
func WithWaitTimeout(timeout time.Duration) RingPoolBuilderOption {
	return func(p *ringPool) {
		p.waitTimeout = timeout
	}
}

// WithFinishTimeout bounds the total time Finish waits for outstanding fences.
// The default of 0 waits until every fence has signaled.
//
// Parameters:
//   - timeout: the finish budget
//
// Returns:
//   - RingPoolBuilderOption: a function that applies the finish timeout to a pool
func WithFinishTimeout(timeout time.Duration) RingPoolBuilderOption {
	return func(p *ringPool) {
		p.finishTimeout = timeout
	}
}

// WithMaxBackingBytes caps the total backing allocation. Requests over the cap fail with ErrAllocation.
//
// Parameters:
//   - limit: maximum backing size in bytes (default DefaultMaxBackingBytes)
//
// Returns:
//   - RingPoolBuilderOption: a function that applies the limit to a pool
func WithMaxBackingBytes(limit int) RingPoolBuilderOption {
	return func(p *ringPool) {
		p.maxBackingBytes = limit
	}
}

// WithAllocator replaces the default heap allocator, e.g. to back the ring with a persistently
// mapped device buffer.
//
// Parameters:
//   - alloc: the allocator used once during construction
//
// Returns:
//   - RingPoolBuilderOption: a function that applies the allocator to a pool
func WithAllocator(alloc Allocator) RingPoolBuilderOption {
	return func(p *ringPool) {
		if alloc != nil {
			p.allocator = alloc
		}
	}
}

// WithFenceFactory replaces the constructor used for the fence attached on every EndWrite.
//
// Parameters:
//   - factory: returns a new unsignaled fence
//
// Returns:
//   - RingPoolBuilderOption: a function that applies the factory to a pool
func WithFenceFactory(factory func() fence.Fence) RingPoolBuilderOption {
	return func(p *ringPool) {
		if factory != nil {
			p.newFence = factory
		}
	}
}

// WithLabel sets the debug label used in errors and log lines.
//
// Parameters:
//   - label: the label
//
// Returns:
//   - RingPoolBuilderOption: a function that applies the label to a pool
func WithLabel(label string) RingPoolBuilderOption {
	return func(p *ringPool) {
		p.label = label
	}
}

// WithLogger sets the logger for timeout diagnostics. Defaults to log.Default().
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - RingPoolBuilderOption: a function that applies the logger to a pool
func WithLogger(logger *log.Logger) RingPoolBuilderOption {
	return func(p *ringPool) {
		if logger != nil {
			p.logger = logger
		}
	}
}
