package renderer

// HeadlessBuilderOption is a functional option for configuring a Headless device.
type HeadlessBuilderOption func(*Headless)

// WithForceFallbackAdapter requests the software (fallback) adapter instead of a hardware one.
//
// Parameters:
//   - force: true to force the fallback adapter
//
// Returns:
//   - HeadlessBuilderOption: option function to apply
func WithForceFallbackAdapter(force bool) HeadlessBuilderOption {
	return func(h *Headless) {
		h.forceFallbackAdapter = force
	}
}

// WithDeviceLabel sets the device debug label.
//
// Parameters:
//   - label: the label
//
// Returns:
//   - HeadlessBuilderOption: option function to apply
func WithDeviceLabel(label string) HeadlessBuilderOption {
	return func(h *Headless) {
		if label != "" {
			h.label = label
		}
	}
}
