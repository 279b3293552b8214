package staging

import "errors"

var (
	// ErrAllocation is returned by NewRingPool when the backing store cannot be created.
	// It is fatal to pool construction and is never retried.
	ErrAllocation = errors.New("staging: backing allocation failed")

	// ErrTimeout is returned when the consumer did not signal a slot's fence within the wait budget.
	// Recoverable: the caller should drop the current unit of work and try again later.
	ErrTimeout = errors.New("staging: timed out waiting for slot fence")

	// ErrReentrantWrite is returned by BeginWrite while a previously returned region is still open.
	// This is a programming error in the caller.
	ErrReentrantWrite = errors.New("staging: write already in progress")

	// ErrForeignRegion is returned by EndWrite for a region that is not the pool's open region.
	ErrForeignRegion = errors.New("staging: region is not the open region of this pool")

	// ErrWriteOpen is returned by Finish while a region is still open.
	ErrWriteOpen = errors.New("staging: cannot finish with an open region")

	// ErrPoolFinished is returned by BeginWrite after Finish has released the backing store.
	ErrPoolFinished = errors.New("staging: pool is finished")
)
