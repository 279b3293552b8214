package staging

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-stream/engine/fence"
	"github.com/eapache/queue"
)

const (
	// DefaultWaitTimeout bounds how long BeginWrite waits on a slot's fence before giving up.
	DefaultWaitTimeout = 2 * time.Second

	// DefaultMaxBackingBytes caps the backing allocation a pool may request (1 GiB).
	DefaultMaxBackingBytes = 1 << 30
)

// SlotState describes where a slot is in its write/consume cycle.
type SlotState int

const (
	// SlotFree means the slot has never been written or its last fence has signaled.
	SlotFree SlotState = iota

	// SlotWriting means the slot is the pool's open WritableRegion.
	SlotWriting

	// SlotPublished means the slot carries an unsignaled fence the consumer has not claimed yet.
	SlotPublished

	// SlotConsuming means the consumer has claimed the slot's fence but not signaled it.
	SlotConsuming
)

func (s SlotState) String() string {
	switch s {
	case SlotFree:
		return "free"
	case SlotWriting:
		return "writing"
	case SlotPublished:
		return "published"
	case SlotConsuming:
		return "consuming"
	default:
		return fmt.Sprintf("SlotState(%d)", int(s))
	}
}

// Allocator creates the pool's backing store. It must return a slice of exactly size bytes.
type Allocator func(size int) ([]byte, error)

// Stats is a snapshot of a pool's counters. Safe to read from any goroutine.
type Stats struct {
	Writes   uint64 // regions published via EndWrite
	Stalls   uint64 // BeginWrite calls that had to wait on an unsignaled fence
	Timeouts uint64 // fence waits that ran out of budget
	Retired  uint64 // slots reclaimed after their fence signaled
	InFlight int64  // slots currently carrying a fence
}

// inFlightEntry pairs a published slot with the fence attached at publication time.
type inFlightEntry struct {
	slot int
	f    fence.Fence
}

// ringPool is the implementation of the RingPool interface.
type ringPool struct {
	label           string
	slotSize        int
	slotCount       int
	waitTimeout     time.Duration
	finishTimeout   time.Duration
	maxBackingBytes int
	allocator       Allocator
	newFence        func() fence.Fence
	logger          *log.Logger

	backing []byte
	cursor  int
	fences  []fence.Fence
	open    *WritableRegion
	// inFlight holds inFlightEntry values in publish order. Slots are reused round-robin, so the
	// head is always the oldest publication.
	inFlight *queue.Queue
	finished bool

	writes   atomic.Uint64
	stalls   atomic.Uint64
	timeouts atomic.Uint64
	retired  atomic.Uint64
	pending  atomic.Int64
}

// RingPool is a fixed set of fixed-size staging slots cycled round-robin between one producer and
// one asynchronous consumer. A slot is handed to the producer only after the fence attached at its
// previous publication has signaled, so the consumer never observes a slot being overwritten.
//
// RingPool is single-producer: BeginWrite, EndWrite, Retire, SlotState, and Finish must be called
// from one goroutine (or under the caller's own lock). Fences may be signaled from anywhere, and
// Stats may be read concurrently.
//
// Usage pattern:
//  1. region, err := pool.BeginWrite()  (may wait for the consumer; ErrTimeout drops the frame)
//  2. fill region.Bytes()
//  3. pub, err := pool.EndWrite(region)
//  4. hand pub to the consumer, which signals pub.Fence once it has read pub.Region
//  5. pool.Finish() at shutdown
type RingPool interface {
	// Label returns the pool's debug label.
	//
	// Returns:
	//   - string: the label
	Label() string

	// SlotSize returns the size of each slot in bytes.
	//
	// Returns:
	//   - int: the slot size
	SlotSize() int

	// SlotCount returns the number of slots in the ring.
	//
	// Returns:
	//   - int: the slot count
	SlotCount() int

	// Cursor returns the index of the most recently acquired slot. Before the first BeginWrite this is
	// SlotCount()-1 so that the first write lands in slot 0.
	//
	// Returns:
	//   - int: the cursor
	Cursor() int

	// BeginWrite advances the cursor to the next slot and returns an exclusive writable view over it.
	// If the slot still carries an unsignaled fence, BeginWrite waits up to the configured wait timeout.
	// On timeout it returns ErrTimeout and leaves the cursor and all slot states unchanged.
	//
	// Returns:
	//   - *WritableRegion: the writable view over the slot
	//   - error: ErrTimeout, ErrReentrantWrite or ErrPoolFinished (wrapped)
	BeginWrite() (*WritableRegion, error)

	// EndWrite publishes the open region: the slot becomes SlotPublished, a fresh fence is attached,
	// and the region is converted into a read-only view. The WritableRegion must not be used afterwards.
	//
	// Parameters:
	//   - region: the region returned by the last BeginWrite
	//
	// Returns:
	//   - Publication: slot index, fence, and read-only region for the consumer
	//   - error: ErrForeignRegion (wrapped) if region is not the open region
	EndWrite(region *WritableRegion) (Publication, error)

	// Retire reclaims, without blocking, slots whose fences have signaled, walking publications in
	// publish order and stopping at the first unsignaled one.
	//
	// Returns:
	//   - int: the number of slots reclaimed
	Retire() int

	// SlotState reports the state of slot i. Panics if i is outside [0, SlotCount()).
	//
	// Parameters:
	//   - i: the slot index
	//
	// Returns:
	//   - SlotState: the slot's current state
	SlotState(i int) SlotState

	// Stats returns a snapshot of the pool's counters.
	//
	// Returns:
	//   - Stats: the counters
	Stats() Stats

	// Finish waits on every outstanding fence and releases the backing store. It must be the last
	// call on the pool. Calling Finish again after it succeeded returns nil immediately.
	//
	// Returns:
	//   - error: ErrWriteOpen if a region is open, ErrTimeout if the finish timeout ran out (wrapped)
	Finish() error
}

// Compile-time check that ringPool implements RingPool.
var _ RingPool = &ringPool{}

// NewRingPool allocates a pool of SlotCount slots of SlotSize bytes each in one backing store.
// Both WithSlotSize and WithSlotCount are required.
//
// Parameters:
//   - options: functional options configuring the pool
//
// Returns:
//   - RingPool: the new pool
//   - error: ErrAllocation (wrapped) if the backing store cannot be created
func NewRingPool(options ...RingPoolBuilderOption) (RingPool, error) {
	p := &ringPool{
		label:           "staging ring",
		waitTimeout:     DefaultWaitTimeout,
		maxBackingBytes: DefaultMaxBackingBytes,
		allocator:       defaultAllocator,
		newFence:        fence.NewFence,
		logger:          log.Default(),
	}

	for _, option := range options {
		option(p)
	}

	if p.slotSize <= 0 || p.slotCount <= 0 {
		return nil, fmt.Errorf("%w: %s: slot size %d and slot count %d must be positive", ErrAllocation, p.label, p.slotSize, p.slotCount)
	}
	if p.slotSize > p.maxBackingBytes/p.slotCount {
		return nil, fmt.Errorf("%w: %s: %d slots of %d bytes exceed the %d byte limit", ErrAllocation, p.label, p.slotCount, p.slotSize, p.maxBackingBytes)
	}

	total := p.slotSize * p.slotCount
	backing, err := p.allocator(total)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: allocating %d bytes: %w", ErrAllocation, p.label, total, err)
	}
	if len(backing) != total {
		return nil, fmt.Errorf("%w: %s: allocator returned %d bytes, want %d", ErrAllocation, p.label, len(backing), total)
	}

	p.backing = backing
	p.fences = make([]fence.Fence, p.slotCount)
	p.cursor = p.slotCount - 1
	p.inFlight = queue.New()

	return p, nil
}

func defaultAllocator(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func (p *ringPool) Label() string {
	return p.label
}

func (p *ringPool) SlotSize() int {
	return p.slotSize
}

func (p *ringPool) SlotCount() int {
	return p.slotCount
}

func (p *ringPool) Cursor() int {
	return p.cursor
}

func (p *ringPool) BeginWrite() (*WritableRegion, error) {
	if p.finished {
		return nil, fmt.Errorf("%s: %w", p.label, ErrPoolFinished)
	}
	if p.open != nil {
		return nil, fmt.Errorf("%s: slot %d is still open: %w", p.label, p.open.slot, ErrReentrantWrite)
	}

	next := (p.cursor + 1) % p.slotCount
	if f := p.fences[next]; f != nil {
		if !f.Signaled() {
			p.stalls.Add(1)
			if err := f.Wait(p.waitTimeout); err != nil {
				p.timeouts.Add(1)
				p.logger.Printf("[StagingRing] %s: slot %d fence not signaled after %s, dropping write", p.label, next, p.waitTimeout)
				return nil, fmt.Errorf("%s: waiting on slot %d: %w", p.label, next, ErrTimeout)
			}
		}
		p.reclaim(next)
	}

	p.cursor = next
	region := &WritableRegion{
		pool: p,
		slot: next,
		data: p.slotBytes(next),
	}
	p.open = region
	return region, nil
}

func (p *ringPool) EndWrite(region *WritableRegion) (Publication, error) {
	if region == nil || region.pool != p || p.open != region {
		return Publication{}, fmt.Errorf("%s: %w", p.label, ErrForeignRegion)
	}

	f := p.newFence()
	p.fences[region.slot] = f
	p.inFlight.Add(inFlightEntry{slot: region.slot, f: f})
	p.pending.Add(1)
	p.writes.Add(1)

	data := region.data
	region.data = nil
	p.open = nil

	return Publication{
		Slot:   region.slot,
		Fence:  f,
		Region: ReadableRegion{data: data},
	}, nil
}

func (p *ringPool) Retire() int {
	n := 0
	for p.inFlight.Length() > 0 {
		e := p.inFlight.Peek().(inFlightEntry)
		if p.fences[e.slot] == e.f {
			if !e.f.Signaled() {
				break
			}
			p.fences[e.slot] = nil
			p.pending.Add(-1)
			p.retired.Add(1)
			n++
		}
		p.inFlight.Remove()
	}
	return n
}

func (p *ringPool) SlotState(i int) SlotState {
	if i < 0 || i >= len(p.fences) {
		panic(fmt.Sprintf("staging: slot index %d out of range [0, %d)", i, len(p.fences)))
	}
	if p.open != nil && p.open.slot == i {
		return SlotWriting
	}
	f := p.fences[i]
	switch {
	case f == nil || f.Signaled():
		return SlotFree
	case f.Claimed():
		return SlotConsuming
	default:
		return SlotPublished
	}
}

func (p *ringPool) Stats() Stats {
	return Stats{
		Writes:   p.writes.Load(),
		Stalls:   p.stalls.Load(),
		Timeouts: p.timeouts.Load(),
		Retired:  p.retired.Load(),
		InFlight: p.pending.Load(),
	}
}

func (p *ringPool) Finish() error {
	if p.finished {
		return nil
	}
	if p.open != nil {
		return fmt.Errorf("%s: slot %d: %w", p.label, p.open.slot, ErrWriteOpen)
	}

	if err := fence.WaitAll(p.finishTimeout, p.fences...); err != nil {
		p.timeouts.Add(1)
		p.logger.Printf("[StagingRing] %s: outstanding fences not signaled within %s", p.label, p.finishTimeout)
		return fmt.Errorf("%s: finishing: %w", p.label, ErrTimeout)
	}

	for i := range p.fences {
		if p.fences[i] != nil {
			p.reclaim(i)
		}
	}
	p.backing = nil
	p.finished = true
	return nil
}

// reclaim clears slot i's signaled fence and drops publications that no longer own a slot from the
// head of the in-flight queue.
func (p *ringPool) reclaim(i int) {
	p.fences[i] = nil
	p.pending.Add(-1)
	p.retired.Add(1)
	for p.inFlight.Length() > 0 {
		e := p.inFlight.Peek().(inFlightEntry)
		if p.fences[e.slot] == e.f {
			break
		}
		p.inFlight.Remove()
	}
}

// slotBytes returns slot i's bytes with capacity capped so appends cannot spill into the next slot.
func (p *ringPool) slotBytes(i int) []byte {
	off := i * p.slotSize
	return p.backing[off : off+p.slotSize : off+p.slotSize]
}
