package instance

import (
	"github.com/Carmen-Shannon/oxy-stream/common"
)

// Instance is the CPU-side transform state of one drawn instance.
type Instance struct {
	Position      [3]float32
	Rotation      [3]float32 // Euler angles in radians
	RotationSpeed [3]float32 // radians per second, applied by Advance
	Scale         [3]float32
	Color         [4]float32
}

// GPU builds the instance's GPU record.
//
// Returns:
//   - GPUInstance: the model matrix and tint for this instance
func (i *Instance) GPU() GPUInstance {
	var g GPUInstance
	common.BuildModelMatrix(g.Model[:], i.Position, i.Rotation, i.Scale)
	g.Color = i.Color
	return g
}

// Set is a growable array of instances that encodes itself as fixed-stride GPU records.
// It satisfies batch.RecordSource so a batch.Writer can encode instances straight into staging slots.
// Not safe for concurrent use.
type Set struct {
	instances []Instance
}

// NewSet creates an empty Set.
//
// Parameters:
//   - options: functional options to configure the set
//
// Returns:
//   - *Set: the new set
func NewSet(options ...SetBuilderOption) *Set {
	s := &Set{}
	for _, option := range options {
		option(s)
	}
	return s
}

// Add appends an instance and returns its index.
//
// Parameters:
//   - inst: the instance to add
//
// Returns:
//   - int: the index of the new instance
func (s *Set) Add(inst Instance) int {
	s.instances = append(s.instances, inst)
	return len(s.instances) - 1
}

// Remove swap-removes the instance at index i. The last instance takes its place.
//
// Parameters:
//   - i: the index to remove
func (s *Set) Remove(i int) {
	last := len(s.instances) - 1
	s.instances[i] = s.instances[last]
	s.instances = s.instances[:last]
}

// Len returns the number of instances.
func (s *Set) Len() int {
	return len(s.instances)
}

// At returns a pointer to the instance at index i for in-place edits.
func (s *Set) At(i int) *Instance {
	return &s.instances[i]
}

// Advance applies each instance's rotation speed over deltaTime seconds.
//
// Parameters:
//   - deltaTime: elapsed time in seconds
func (s *Set) Advance(deltaTime float32) {
	for i := range s.instances {
		inst := &s.instances[i]
		inst.Rotation[0] += inst.RotationSpeed[0] * deltaTime
		inst.Rotation[1] += inst.RotationSpeed[1] * deltaTime
		inst.Rotation[2] += inst.RotationSpeed[2] * deltaTime
	}
}

// Stride returns GPUInstanceSize.
func (s *Set) Stride() int {
	return GPUInstanceSize
}

// EncodeRange encodes instances [start, start+count) into dst as consecutive GPU records.
//
// Parameters:
//   - dst: destination buffer (at least count*GPUInstanceSize bytes)
//   - start: index of the first instance
//   - count: number of instances to encode
func (s *Set) EncodeRange(dst []byte, start, count int) {
	for i := 0; i < count; i++ {
		g := s.instances[start+i].GPU()
		g.MarshalInto(dst[i*GPUInstanceSize:])
	}
}

// Grid returns count unit-scale instances laid out on the XZ plane, spacing units apart, with
// rows of side instances. Each gets a rotation speed derived from its index.
//
// Parameters:
//   - count: the number of instances
//   - side: instances per row (must be > 0)
//   - spacing: distance between neighbours
//
// Returns:
//   - []Instance: the generated instances
func Grid(count, side int, spacing float32) []Instance {
	out := make([]Instance, count)
	for i := range out {
		x := float32(i%side) * spacing
		z := float32(i/side) * spacing
		out[i] = Instance{
			Position:      [3]float32{x, 0, z},
			RotationSpeed: [3]float32{0, 0.5 + float32(i%7)*0.1, 0},
			Scale:         [3]float32{1, 1, 1},
			Color:         [4]float32{1, 1, 1, 1},
		}
	}
	return out
}
