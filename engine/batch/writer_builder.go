package batch

import "log"

// WriterBuilderOption is a functional option applied to a writer during construction via NewWriter.
type WriterBuilderOption func(*writer)

// WithLabel overrides the label used in log lines. Defaults to the pool's label.
//
// Parameters:
//   - label: the label
//
// Returns:
//   - WriterBuilderOption: a function that applies the label to a writer
func WithLabel(label string) WriterBuilderOption {
	return func(w *writer) {
		w.label = label
	}
}

// WithLogger sets the logger used to report stalled batches. Defaults to log.Default().
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - WriterBuilderOption: a function that applies the logger to a writer
func WithLogger(logger *log.Logger) WriterBuilderOption {
	return func(w *writer) {
		if logger != nil {
			w.logger = logger
		}
	}
}
