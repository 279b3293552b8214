package staging

import "github.com/Carmen-Shannon/oxy-stream/engine/fence"

// WritableRegion is the producer's exclusive, mutable view over exactly one slot.
// It is valid from BeginWrite until EndWrite; afterwards Bytes returns nil.
type WritableRegion struct {
	pool *ringPool
	slot int
	data []byte
}

// Bytes returns the slot's bytes for writing, or nil once the region has been ended.
//
// Returns:
//   - []byte: a slice of exactly SlotSize bytes, or nil
func (r *WritableRegion) Bytes() []byte {
	return r.data
}

// Slot returns the index of the slot this region covers.
//
// Returns:
//   - int: the slot index
func (r *WritableRegion) Slot() int {
	return r.slot
}

// Len returns the writable length in bytes, 0 once ended.
//
// Returns:
//   - int: the region length
func (r *WritableRegion) Len() int {
	return len(r.data)
}

// ReadableRegion is the shared view handed to the consumer after EndWrite.
// The bytes stay valid until the accompanying fence is signaled; neither the producer nor the
// consumer may modify them.
type ReadableRegion struct {
	data []byte
}

// Bytes returns the published bytes. Callers must treat the slice as read-only.
//
// Returns:
//   - []byte: the published slot bytes
func (r ReadableRegion) Bytes() []byte {
	return r.data
}

// Len returns the region length in bytes.
//
// Returns:
//   - int: the region length
func (r ReadableRegion) Len() int {
	return len(r.data)
}

// Slice returns a sub-view [from:to) of the region.
//
// Parameters:
//   - from: start offset in bytes
//   - to: end offset in bytes (exclusive)
//
// Returns:
//   - ReadableRegion: the sub-view
func (r ReadableRegion) Slice(from, to int) ReadableRegion {
	return ReadableRegion{data: r.data[from:to:to]}
}

// CopyTo copies the region into dst and returns the number of bytes copied.
//
// Parameters:
//   - dst: destination buffer
//
// Returns:
//   - int: bytes copied
func (r ReadableRegion) CopyTo(dst []byte) int {
	return copy(dst, r.data)
}

// Publication is what EndWrite hands back: the published slot, its read-only region, and the fence
// the consumer must signal once it has finished reading.
type Publication struct {
	// Slot is the index of the published slot.
	Slot int
	// Fence is the completion token guarding Region. The consumer signals it when done reading.
	Fence fence.Fence
	// Region is the read-only view of the slot's bytes.
	Region ReadableRegion
}
