package renderer

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// Headless owns a WebGPU instance, adapter, and device created without a surface. It is enough to
// stream instance data into GPU buffers when no window is involved.
type Headless struct {
	forceFallbackAdapter bool
	label                string

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
}

// NewHeadless requests an adapter and device with default limits.
//
// Parameters:
//   - options: functional options to configure adapter selection
//
// Returns:
//   - *Headless: the device owner
//   - error: error if no adapter or device could be acquired
func NewHeadless(options ...HeadlessBuilderOption) (*Headless, error) {
	h := &Headless{label: "Stream Device"}
	for _, option := range options {
		option(h)
	}

	h.instance = wgpu.CreateInstance(nil)

	a, err := h.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: h.forceFallbackAdapter,
	})
	if err != nil {
		h.instance.Release()
		return nil, fmt.Errorf("renderer: requesting adapter: %w", err)
	}
	h.adapter = a

	limits := wgpu.DefaultLimits()
	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: h.label,
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		h.adapter.Release()
		h.instance.Release()
		return nil, fmt.Errorf("renderer: requesting device: %w", err)
	}
	h.device = d

	return h, nil
}

// Device returns the WebGPU device.
func (h *Headless) Device() *wgpu.Device {
	return h.device
}

// Release releases the device, adapter, and instance in that order.
func (h *Headless) Release() {
	if h.device != nil {
		h.device.Release()
		h.device = nil
	}
	if h.adapter != nil {
		h.adapter.Release()
		h.adapter = nil
	}
	if h.instance != nil {
		h.instance.Release()
		h.instance = nil
	}
}
