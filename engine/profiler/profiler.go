package profiler

import (
	"log"
	"runtime"
	"time"

	"github.com/Carmen-Shannon/oxy-stream/engine/staging"
)

// StatsSource is anything that reports staging counters, normally a staging.RingPool.
type StatsSource interface {
	Stats() staging.Stats
}

// Profiler tracks frame rate, stream throughput, and memory statistics for performance monitoring.
// Outputs stats to the log at a configurable interval.
type Profiler struct {
	source         StatsSource
	logger         *log.Logger
	label          string
	frameCount     int
	droppedFrames  int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastStats      staging.Stats
	lastTotalAlloc uint64
}

// NewProfiler creates a new Profiler reading stream counters from source (which may be nil).
// Update interval defaults to 1 second.
//
// Parameters:
//   - source: the stream whose counters are reported
//   - options: functional options to further configure the profiler
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(source StatsSource, options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		source:         source,
		logger:         log.Default(),
		label:          "stream",
		lastTime:       time.Now(),
		updateInterval: time.Second,
	}
	for _, option := range options {
		option(p)
	}
	if source != nil {
		p.lastStats = source.Stats()
	}
	return p
}

// FrameDropped records that the current frame's stream update was skipped.
func (p *Profiler) FrameDropped() {
	p.droppedFrames++
}

// Tick should be called once per frame to track frame timing.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: FPS, dropped frames, batches per second, ring stalls and timeouts, slots in
// flight, heap usage, and allocation rate.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.frameCount++
	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)

	if elapsed < p.updateInterval {
		return false
	}

	fps := float64(p.frameCount) / elapsed.Seconds()

	var stats staging.Stats
	if p.source != nil {
		stats = p.source.Stats()
	}
	batchRate := float64(stats.Writes-p.lastStats.Writes) / elapsed.Seconds()
	stalls := stats.Stalls - p.lastStats.Stalls
	timeouts := stats.Timeouts - p.lastStats.Timeouts

	runtime.ReadMemStats(&p.memStats)
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	p.logger.Printf("[Profiler] %s | FPS: %.2f | Dropped: %d | Batches: %.1f/s | Stalls: %d | Timeouts: %d | In flight: %d | Heap: %.2f MB | Alloc Rate: %.2f MB/s",
		p.label, fps, p.droppedFrames, batchRate, stalls, timeouts, stats.InFlight, allocMB, allocRateMB)

	p.frameCount = 0
	p.droppedFrames = 0
	p.lastTime = currentTime
	p.lastStats = stats
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}
