package fence

import (
	"sync"
	"sync/atomic"
	"time"
)

// fence is the channel-backed implementation of Fence.
type fence struct {
	done    chan struct{}
	once    sync.Once
	claimed atomic.Bool
}

// Fence is a one-shot completion token. It is issued when a producer publishes a region and is
// signaled by the consumer once it has finished reading everything published before the fence.
// A signaled Fence never becomes unsignaled again.
//
// All methods are safe for concurrent use; the consumer typically signals from a different
// goroutine than the one polling or waiting.
type Fence interface {
	// Signaled polls the fence without blocking.
	//
	// Returns:
	//   - bool: true once Signal has been called
	Signaled() bool

	// Wait blocks until the fence is signaled or the timeout elapses.
	// A timeout <= 0 waits without a bound.
	//
	// Parameters:
	//   - timeout: the maximum time to wait
	//
	// Returns:
	//   - error: ErrWaitTimeout if the fence was not signaled in time, nil otherwise
	Wait(timeout time.Duration) error

	// Done returns a channel that is closed when the fence is signaled.
	//
	// Returns:
	//   - <-chan struct{}: the completion channel
	Done() <-chan struct{}

	// Signal marks the fence complete. Calling Signal more than once is a no-op.
	Signal()

	// Claim records that the consumer has started reading the region guarded by this fence.
	// It has no effect on signaling and exists so owners can report the consuming state.
	Claim()

	// Claimed reports whether Claim has been called.
	//
	// Returns:
	//   - bool: true if the consumer has claimed the fence
	Claimed() bool
}

// Compile-time check that fence implements Fence.
var _ Fence = &fence{}

// NewFence creates a new unsignaled Fence.
//
// Returns:
//   - Fence: the new fence
func NewFence() Fence {
	return &fence{done: make(chan struct{})}
}

// NewSignaledFence creates a Fence that is already signaled. Useful for consumers that complete
// synchronously.
//
// Returns:
//   - Fence: a signaled fence
func NewSignaledFence() Fence {
	f := &fence{done: make(chan struct{})}
	f.Signal()
	return f
}

func (f *fence) Signaled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *fence) Wait(timeout time.Duration) error {
	if f.Signaled() {
		return nil
	}
	if timeout <= 0 {
		<-f.done
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-f.done:
		return nil
	case <-timer.C:
		// the signal may have raced the timer
		if f.Signaled() {
			return nil
		}
		return ErrWaitTimeout
	}
}

func (f *fence) Done() <-chan struct{} {
	return f.done
}

func (f *fence) Signal() {
	f.once.Do(func() {
		close(f.done)
	})
}

func (f *fence) Claim() {
	f.claimed.Store(true)
}

func (f *fence) Claimed() bool {
	return f.claimed.Load()
}
