// Package config loads the TOML configuration for an instance stream: the staging ring's geometry and
// timeouts, the consumer's worker pool, and the frame loop's rates.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Carmen-Shannon/oxy-stream/engine/staging"
	"github.com/pelletier/go-toml/v2"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Duration is a time.Duration read from a TOML string such as "250ms" or "2s".
type Duration time.Duration

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("config: parsing duration %q: %w", string(text), err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration with time.Duration.String.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config describes one instance stream.
type Config struct {
	// Label names the stream in logs.
	Label string `toml:"label"`

	// SlotSizeBytes is the size of one staging slot; together with RecordStride it fixes the batch size.
	SlotSizeBytes int `toml:"slot_size_bytes"`
	// SlotCount is the number of staging slots, i.e. how many batches may be in flight before the producer stalls.
	SlotCount int `toml:"slot_count"`
	// WaitTimeout bounds how long the producer waits for a slot's fence; 0 waits without a bound.
	WaitTimeout Duration `toml:"wait_timeout"`
	// FinishTimeout bounds the shutdown drain; 0 waits for every fence.
	FinishTimeout Duration `toml:"finish_timeout"`

	// RecordStride is the size of one record in bytes.
	RecordStride int `toml:"record_stride"`
	// InstanceCount is how many records are streamed each frame.
	InstanceCount int `toml:"instance_count"`

	// Workers is the consumer's worker goroutine count.
	Workers int `toml:"workers"`
	// WorkerQueue is how many batches may wait for a free worker.
	WorkerQueue int `toml:"worker_queue"`

	// TickRate is the frame loop rate in frames per second.
	TickRate float64 `toml:"tick_rate"`
	// ProfileInterval is how often stream statistics are logged when profiling is enabled.
	ProfileInterval Duration `toml:"profile_interval"`
}

// Default returns the configuration used for any key a file leaves unset: 64 KiB slots, triple
// buffering, 80-byte instance records.
//
// Returns:
//   - Config: the default configuration
func Default() Config {
	return Config{
		Label:           "instance stream",
		SlotSizeBytes:   64 * 1024,
		SlotCount:       3,
		WaitTimeout:     Duration(staging.DefaultWaitTimeout),
		RecordStride:    80,
		InstanceCount:   10_000,
		Workers:         2,
		WorkerQueue:     256,
		TickRate:        60,
		ProfileInterval: Duration(time.Second),
	}
}

// Parse decodes TOML data over the defaults and validates the result.
//
// Parameters:
//   - data: the TOML document
//
// Returns:
//   - Config: the parsed configuration
//   - error: a decode error or a wrapped ErrInvalidConfig
func Parse(data []byte) (Config, error) {
	// keys the document leaves out keep their default; keys it sets, zeros included, are taken as written
	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decoding: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses the TOML file at path.
//
// Parameters:
//   - path: the file path
//
// Returns:
//   - Config: the parsed configuration
//   - error: a read, decode, or validation error
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Validate checks the configuration for values the stream cannot run with.
//
// Returns:
//   - error: a wrapped ErrInvalidConfig describing the first problem found, or nil
func (c Config) Validate() error {
	switch {
	case c.SlotSizeBytes <= 0:
		return fmt.Errorf("%w: slot_size_bytes must be positive, got %d", ErrInvalidConfig, c.SlotSizeBytes)
	case c.SlotCount <= 0:
		return fmt.Errorf("%w: slot_count must be positive, got %d", ErrInvalidConfig, c.SlotCount)
	case c.RecordStride <= 0:
		return fmt.Errorf("%w: record_stride must be positive, got %d", ErrInvalidConfig, c.RecordStride)
	case c.RecordStride > c.SlotSizeBytes:
		return fmt.Errorf("%w: record_stride %d does not fit slot_size_bytes %d", ErrInvalidConfig, c.RecordStride, c.SlotSizeBytes)
	case c.InstanceCount < 0:
		return fmt.Errorf("%w: instance_count must not be negative, got %d", ErrInvalidConfig, c.InstanceCount)
	case c.Workers <= 0:
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidConfig, c.Workers)
	case c.WorkerQueue <= 0:
		return fmt.Errorf("%w: worker_queue must be positive, got %d", ErrInvalidConfig, c.WorkerQueue)
	case c.WaitTimeout < 0 || c.FinishTimeout < 0:
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	case c.ProfileInterval <= 0:
		return fmt.Errorf("%w: profile_interval must be positive, got %s", ErrInvalidConfig, c.ProfileInterval.Std())
	case c.TickRate <= 0:
		return fmt.Errorf("%w: tick_rate must be positive, got %v", ErrInvalidConfig, c.TickRate)
	}
	return nil
}

// MaxPerBatch returns how many whole records fit in one slot.
//
// Returns:
//   - int: slot_size_bytes / record_stride
func (c Config) MaxPerBatch() int {
	return c.SlotSizeBytes / c.RecordStride
}

// PoolOptions converts the staging settings into builder options for staging.NewRingPool.
//
// Parameters:
//   - logger: the logger handed to the pool (nil keeps the pool default)
//
// Returns:
//   - []staging.RingPoolBuilderOption: the options
func (c Config) PoolOptions(logger *log.Logger) []staging.RingPoolBuilderOption {
	return []staging.RingPoolBuilderOption{
		staging.WithLabel(c.Label),
		staging.WithSlotSize(c.SlotSizeBytes),
		staging.WithSlotCount(c.SlotCount),
		staging.WithWaitTimeout(c.WaitTimeout.Std()),
		staging.WithFinishTimeout(c.FinishTimeout.Std()),
		staging.WithLogger(logger),
	}
}
