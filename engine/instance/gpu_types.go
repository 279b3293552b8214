package instance

import (
	"unsafe"

	"github.com/Carmen-Shannon/oxy-stream/common"
)

// GPUInstanceSize is the encoded size of one GPUInstance in bytes.
const GPUInstanceSize = 80

// GPUInstance is the GPU-aligned per-instance record streamed to the consumer each frame.
// Layout (std430, 80 bytes, no padding):
//
//	offset  0: model matrix, column-major (64 bytes)
//	offset 64: RGBA tint (16 bytes)
type GPUInstance struct {
	Model [16]float32
	Color [4]float32
}

// Size returns the size of the GPUInstance struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUInstance) Size() int {
	return int(unsafe.Sizeof(*g))
}

// MarshalInto encodes the record into dst without allocating.
//
// Parameters:
//   - dst: destination buffer (must be at least GPUInstanceSize bytes)
func (g *GPUInstance) MarshalInto(dst []byte) {
	n := common.PutFloat32s(dst, g.Model[:])
	common.PutFloat32s(dst[n:], g.Color[:])
}

// Marshal serializes the GPUInstance into a new buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 80-byte buffer ready for GPU upload.
func (g *GPUInstance) Marshal() []byte {
	buf := make([]byte, GPUInstanceSize)
	g.MarshalInto(buf)
	return buf
}

// UnmarshalGPUInstance decodes one record from src.
//
// Parameters:
//   - src: the encoded record (at least GPUInstanceSize bytes)
//
// Returns:
//   - GPUInstance: the decoded record
func UnmarshalGPUInstance(src []byte) GPUInstance {
	var g GPUInstance
	for i := range g.Model {
		g.Model[i] = common.Float32At(src, i*4)
	}
	for i := range g.Color {
		g.Color[i] = common.Float32At(src, 64+i*4)
	}
	return g
}
