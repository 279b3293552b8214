package renderer

import "log"

// StreamConsumerBuilderOption is a functional option for configuring a StreamConsumer during construction.
type StreamConsumerBuilderOption func(*streamConsumer)

// WithStreamLabel sets the debug label used for the instance buffer and log lines.
//
// Parameters:
//   - label: the label
//
// Returns:
//   - StreamConsumerBuilderOption: option function to apply
func WithStreamLabel(label string) StreamConsumerBuilderOption {
	return func(c *streamConsumer) {
		c.label = label
	}
}

// WithStreamLogger sets the logger for upload failures. Defaults to log.Default().
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - StreamConsumerBuilderOption: option function to apply
func WithStreamLogger(logger *log.Logger) StreamConsumerBuilderOption {
	return func(c *streamConsumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}
