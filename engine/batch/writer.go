package batch

import (
	"errors"
	"fmt"
	"log"

	"github.com/Carmen-Shannon/oxy-stream/engine/staging"
)

var (
	// ErrInvalidStride is returned by NewWriter when the stride is not positive or does not fit a slot.
	ErrInvalidStride = errors.New("batch: invalid record stride")

	// ErrInvalidCount is returned when a negative record count is requested.
	ErrInvalidCount = errors.New("batch: invalid record count")

	// ErrShortRecords is returned when the record buffer or source holds fewer than totalCount records.
	ErrShortRecords = errors.New("batch: record buffer too short")

	// ErrStrideMismatch is returned when a RecordSource's stride differs from the writer's.
	ErrStrideMismatch = errors.New("batch: record source stride mismatch")
)

// ConsumerFunc is invoked once per batch, after the batch has been published to the pool.
// start is the index of the batch's first record in the logical array and count is the number of
// records in the batch. The consumer must signal pub.Fence once it has finished reading pub.Region.
type ConsumerFunc func(start, count int, pub staging.Publication)

// RecordSource encodes records directly into a destination slot.
type RecordSource interface {
	// Stride returns the encoded size of one record in bytes.
	Stride() int

	// Len returns how many records the source holds.
	Len() int

	// EncodeRange writes records [start, start+count) into dst, which is at least count*Stride() bytes.
	EncodeRange(dst []byte, start, count int)
}

// writer is the implementation of the Writer interface.
type writer struct {
	label       string
	pool        staging.RingPool
	stride      int
	maxPerBatch int
	consume     ConsumerFunc
	logger      *log.Logger
}

// Writer presents an unbounded logical record array as a sequence of bounded writes to a RingPool.
// Each batch is one BeginWrite/EndWrite cycle followed by one consumer call. The writer holds no state
// between calls beyond its configuration.
type Writer interface {
	// Stride returns the size of one record in bytes.
	//
	// Returns:
	//   - int: the record stride
	Stride() int

	// MaxPerBatch returns how many whole records fit in one slot.
	//
	// Returns:
	//   - int: floor(slot size / stride)
	MaxPerBatch() int

	// Process splits totalCount records from a flat buffer into batches. Records are stride bytes each
	// and laid out back to back in records. A pool error stops processing immediately.
	//
	// Parameters:
	//   - records: the flat record buffer (at least totalCount*Stride() bytes)
	//   - totalCount: the number of records to process
	//
	// Returns:
	//   - int: the number of batches issued to the consumer
	//   - error: an input validation error or a wrapped pool error
	Process(records []byte, totalCount int) (int, error)

	// ProcessSource behaves like Process but encodes records straight into each slot via src.
	// src must hold at least totalCount records.
	//
	// Parameters:
	//   - src: the record source
	//   - totalCount: the number of records to process
	//
	// Returns:
	//   - int: the number of batches issued to the consumer
	//   - error: an input validation error or a wrapped pool error
	ProcessSource(src RecordSource, totalCount int) (int, error)
}

// Compile-time check that writer implements Writer.
var _ Writer = &writer{}

// NewWriter creates a Writer that batches stride-byte records through pool and hands every published
// batch to consume. Panics if pool or consume is nil.
//
// Parameters:
//   - pool: the staging pool the batches are written through
//   - stride: the record size in bytes (must be > 0 and <= pool.SlotSize())
//   - consume: the per-batch consumer callback
//   - options: functional options to further configure the writer
//
// Returns:
//   - Writer: the new writer
//   - error: ErrInvalidStride (wrapped) if the stride cannot fit a slot
func NewWriter(pool staging.RingPool, stride int, consume ConsumerFunc, options ...WriterBuilderOption) (Writer, error) {
	if pool == nil {
		panic("batch: NewWriter requires a non-nil RingPool")
	}
	if consume == nil {
		panic("batch: NewWriter requires a non-nil ConsumerFunc")
	}
	if stride <= 0 || stride > pool.SlotSize() {
		return nil, fmt.Errorf("%w: stride %d with slot size %d", ErrInvalidStride, stride, pool.SlotSize())
	}

	w := &writer{
		label:       pool.Label(),
		pool:        pool,
		stride:      stride,
		maxPerBatch: pool.SlotSize() / stride,
		consume:     consume,
		logger:      log.Default(),
	}

	for _, option := range options {
		option(w)
	}

	return w, nil
}

// BatchCount returns how many batches totalCount records split into at maxPerBatch records each.
//
// Parameters:
//   - totalCount: number of records (>= 0)
//   - maxPerBatch: records per batch (>= 1)
//
// Returns:
//   - int: ceil(totalCount / maxPerBatch)
func BatchCount(totalCount, maxPerBatch int) int {
	if totalCount <= 0 || maxPerBatch <= 0 {
		return 0
	}
	return (totalCount + maxPerBatch - 1) / maxPerBatch
}

func (w *writer) Stride() int {
	return w.stride
}

func (w *writer) MaxPerBatch() int {
	return w.maxPerBatch
}

func (w *writer) Process(records []byte, totalCount int) (int, error) {
	if totalCount < 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidCount, totalCount)
	}
	if totalCount > len(records)/w.stride {
		return 0, fmt.Errorf("%w: %d bytes hold %d records of %d bytes, want %d", ErrShortRecords, len(records), len(records)/w.stride, w.stride, totalCount)
	}

	return w.run(totalCount, func(dst []byte, start, count int) {
		copy(dst, records[start*w.stride:(start+count)*w.stride])
	})
}

func (w *writer) ProcessSource(src RecordSource, totalCount int) (int, error) {
	if totalCount < 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidCount, totalCount)
	}
	if src.Stride() != w.stride {
		return 0, fmt.Errorf("%w: source stride %d, writer stride %d", ErrStrideMismatch, src.Stride(), w.stride)
	}
	if n := src.Len(); totalCount > n {
		return 0, fmt.Errorf("%w: source holds %d records, want %d", ErrShortRecords, n, totalCount)
	}

	return w.run(totalCount, src.EncodeRange)
}

// run drives one pool cycle per batch. fill writes records [start, start+count) into dst.
func (w *writer) run(totalCount int, fill func(dst []byte, start, count int)) (int, error) {
	batches := 0
	for offset := 0; offset < totalCount; {
		count := min(w.maxPerBatch, totalCount-offset)

		region, err := w.pool.BeginWrite()
		if err != nil {
			if errors.Is(err, staging.ErrTimeout) {
				w.logger.Printf("[BatchWriter] %s: batch %d at record %d stalled, aborting after %d of %d records", w.label, batches, offset, offset, totalCount)
			}
			return batches, fmt.Errorf("batch: batch %d at record %d: %w", batches, offset, err)
		}

		w.fillSlot(region, fill, offset, count)

		pub, err := w.pool.EndWrite(region)
		if err != nil {
			return batches, fmt.Errorf("batch: batch %d at record %d: %w", batches, offset, err)
		}
		// the consumer only sees the bytes this batch filled
		pub.Region = pub.Region.Slice(0, count*w.stride)

		w.consume(offset, count, pub)
		batches++
		offset += count
	}
	return batches, nil
}

// fillSlot runs fill over the open region. If fill panics the region is published with a signaled
// fence before the panic continues, so the pool is not left with an open write.
func (w *writer) fillSlot(region *staging.WritableRegion, fill func(dst []byte, start, count int), start, count int) {
	defer func() {
		if r := recover(); r != nil {
			if pub, err := w.pool.EndWrite(region); err == nil {
				pub.Fence.Signal()
			}
			panic(r)
		}
	}()
	fill(region.Bytes()[:count*w.stride], start, count)
}
