package renderer

import (
	"fmt"
	"log"
	"sync"

	"github.com/Carmen-Shannon/oxy-stream/engine/staging"
	"github.com/cogentcore/webgpu/wgpu"
)

// streamConsumer is the WebGPU implementation of the StreamConsumer interface.
type streamConsumer struct {
	mu *sync.Mutex

	label    string
	logger   *log.Logger
	stride   int
	capacity int

	// The following fields are GPU allocated resources and must be released when no longer needed.

	// device is borrowed from the caller and never released here.
	device *wgpu.Device
	// queue is the device queue the instance buffer writes are submitted on.
	queue *wgpu.Queue
	// buffer is the instance storage buffer that receives every batch at offset start*stride.
	buffer *wgpu.Buffer
}

// StreamConsumer uploads published batches into a GPU instance buffer. Each batch is written with
// Queue.WriteBuffer at the byte offset of its first record, and the batch's fence is signaled from the
// queue's submitted-work-done callback, so the staging slot is reused only after the GPU has taken
// the copy.
//
// Usage pattern:
//  1. c, err := NewStreamConsumer(device, instance.GPUInstanceSize, maxInstances)
//  2. batch.NewWriter(pool, instance.GPUInstanceSize, c.Consume)
//  3. call c.Poll() once per frame so completion callbacks fire
//  4. bind c.Buffer() as the instance storage buffer for draw calls
//  5. c.Release() after the pool has finished
type StreamConsumer interface {
	// Consume uploads one batch and arranges for its fence to be signaled. Matches batch.ConsumerFunc.
	//
	// Parameters:
	//   - start: logical index of the batch's first record
	//   - count: number of records in the batch
	//   - pub: the publication to upload
	Consume(start, count int, pub staging.Publication)

	// Poll drives the device's callback processing without blocking.
	Poll()

	// Buffer returns the instance storage buffer, or nil after Release.
	//
	// Returns:
	//   - *wgpu.Buffer: the instance buffer
	Buffer() *wgpu.Buffer

	// Release releases the instance buffer.
	Release()
}

// Compile-time check that streamConsumer implements StreamConsumer.
var _ StreamConsumer = &streamConsumer{}

// NewStreamConsumer creates the instance storage buffer sized for capacity records of stride bytes.
//
// Parameters:
//   - device: the WebGPU device (must not be nil)
//   - stride: record size in bytes
//   - capacity: maximum number of records the buffer holds
//   - options: functional options to further configure the consumer
//
// Returns:
//   - StreamConsumer: the new consumer
//   - error: error if the buffer cannot be created
func NewStreamConsumer(device *wgpu.Device, stride, capacity int, options ...StreamConsumerBuilderOption) (StreamConsumer, error) {
	if device == nil {
		panic("renderer: NewStreamConsumer requires a non-nil Device")
	}
	if stride <= 0 || capacity <= 0 {
		return nil, fmt.Errorf("renderer: stride %d and capacity %d must be positive", stride, capacity)
	}

	c := &streamConsumer{
		mu:       &sync.Mutex{},
		label:    "instance stream",
		logger:   log.Default(),
		stride:   stride,
		capacity: capacity,
		device:   device,
		queue:    device.GetQueue(),
	}

	for _, option := range options {
		option(c)
	}

	buf, err := device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            c.label + " Instance Buffer",
		Size:             uint64(stride * capacity),
		Usage:            wgpu.BufferUsageStorage | wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, fmt.Errorf("renderer: creating instance buffer: %w", err)
	}
	c.buffer = buf

	return c, nil
}

func (c *streamConsumer) Consume(start, count int, pub staging.Publication) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pub.Fence.Claim()

	if c.buffer == nil || start+count > c.capacity {
		c.logger.Printf("[StreamConsumer] %s: dropping batch at record %d (%d records): exceeds capacity %d", c.label, start, count, c.capacity)
		pub.Fence.Signal()
		return
	}

	if err := c.queue.WriteBuffer(c.buffer, uint64(start*c.stride), pub.Region.Bytes()); err != nil {
		c.logger.Printf("[StreamConsumer] %s: write at record %d failed: %v", c.label, start, err)
		pub.Fence.Signal()
		return
	}

	f := pub.Fence
	c.queue.OnSubmittedWorkDone(func(status wgpu.QueueWorkDoneStatus) {
		if status != wgpu.QueueWorkDoneStatusSuccess {
			c.logger.Printf("[StreamConsumer] %s: queue reported status %v for slot %d", c.label, status, pub.Slot)
		}
		f.Signal()
	})
}

func (c *streamConsumer) Poll() {
	c.device.Poll(false, nil)
}

func (c *streamConsumer) Buffer() *wgpu.Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer
}

func (c *streamConsumer) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.buffer != nil {
		c.buffer.Release()
		c.buffer = nil
	}
}
