package engine

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-stream/engine/profiler"
	"github.com/Carmen-Shannon/oxy-stream/engine/staging"
)

// ErrAlreadyRunning is returned by Run when the engine loop is already running or has run.
var ErrAlreadyRunning = errors.New("engine: already running")

// engine implements the Engine interface.
// Drives the frame loop that produces into a single staging pool.
type engine struct {
	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running atomic.Bool

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	pool   staging.RingPool
	logger *log.Logger

	profiler         *profiler.Profiler
	profilingEnabled bool
	profileInterval  time.Duration

	engineTickRate time.Duration
	frameCallback  func(deltaTime float32) error

	frames  atomic.Uint64
	dropped atomic.Uint64
}

// Engine runs a fixed-rate frame loop that is the single producer for one staging pool.
// Each frame it calls the frame callback (which typically streams instance data through a batch.Writer),
// reclaims slots whose fences have signaled, and ticks the profiler. When the loop stops the engine
// drains the pool with Finish, the shutdown barrier for everything still in flight.
type Engine interface {
	// Pool returns the staging pool the engine produces into.
	//
	// Returns:
	//   - staging.RingPool: the pool
	Pool() staging.RingPool

	// SetTickRate sets the frame rate in frames per second.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetFrameCallback registers the function called each frame. A callback error wrapping
	// staging.ErrTimeout drops the frame and the loop continues; any other error stops the loop and is
	// returned from Run. Must be set before Run.
	//
	// Parameters:
	//   - callback: function receiving the delta time in seconds
	SetFrameCallback(callback func(deltaTime float32) error)

	// Run executes the frame loop on the calling goroutine until Quit is called or the frame callback
	// fails, then finishes the pool.
	//
	// Returns:
	//   - error: the fatal frame error and/or the pool's Finish error, or nil
	Run() error

	// Quit signals the frame loop to stop. Safe to call multiple times; subsequent calls are no-ops.
	Quit()

	// Frames returns the number of frames the loop has executed.
	//
	// Returns:
	//   - uint64: the frame count
	Frames() uint64

	// DroppedFrames returns the number of frames whose update was dropped on a staging timeout.
	//
	// Returns:
	//   - uint64: the dropped frame count
	DroppedFrames() uint64
}

// NewEngine creates a new Engine producing into pool. Panics if pool is nil.
// Options are applied directly to the engine struct via the option-builder pattern.
//
// Parameters:
//   - pool: the staging pool owned by the frame loop
//   - options: functional options for engine configuration (profiling, tick rate, etc.)
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(pool staging.RingPool, options ...EngineBuilderOption) Engine {
	if pool == nil {
		panic("engine: NewEngine requires a non-nil RingPool")
	}

	e := &engine{
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		pool:            pool,
		logger:          log.Default(),
		engineTickRate:  time.Second / 60,
		profileInterval: time.Second,
	}

	for _, option := range options {
		option(e)
	}

	if e.profilingEnabled {
		e.profiler = profiler.NewProfiler(pool,
			profiler.WithLabel(pool.Label()),
			profiler.WithLogger(e.logger),
			profiler.WithUpdateInterval(e.profileInterval),
		)
	}

	return e
}

func (e *engine) Pool() staging.RingPool {
	return e.pool
}

func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60.0
	}
	rate := time.Duration(float64(time.Second) / fps)
	// keep only the latest pending rate
	select {
	case <-e.tickRateChannel:
	default:
	}
	e.tickRateChannel <- rate
}

func (e *engine) SetFrameCallback(callback func(deltaTime float32) error) {
	e.frameCallback = callback
}

func (e *engine) Run() error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	runErr := e.handleFrames()

	if err := e.pool.Finish(); err != nil {
		e.logger.Printf("[Engine] %s: finishing pool: %v", e.pool.Label(), err)
		return errors.Join(runErr, err)
	}
	return runErr
}

// handleFrames runs the fixed-rate frame loop. Exits when the quit channel is closed or the frame
// callback returns a non-timeout error. Recovers from panics so the pool can still be drained.
func (e *engine) handleFrames() (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Printf("[Engine] frame loop recovered from panic: %v", r)
			err = fmt.Errorf("engine: frame loop panic: %v", r)
			e.Quit()
		}
	}()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return nil
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if err := e.frame(dt); err != nil {
				return err
			}
		}
	}
}

// frame runs one producer frame and reclaims finished slots.
func (e *engine) frame(dt float32) error {
	e.frames.Add(1)

	if e.frameCallback != nil {
		if err := e.frameCallback(dt); err != nil {
			if !errors.Is(err, staging.ErrTimeout) {
				e.logger.Printf("[Engine] %s: frame %d failed: %v", e.pool.Label(), e.frames.Load(), err)
				return err
			}
			e.dropped.Add(1)
			if e.profiler != nil {
				e.profiler.FrameDropped()
			}
		}
	}

	e.pool.Retire()

	if e.profiler != nil {
		e.profiler.Tick()
	}
	return nil
}

func (e *engine) Quit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

func (e *engine) Frames() uint64 {
	return e.frames.Load()
}

func (e *engine) DroppedFrames() uint64 {
	return e.dropped.Load()
}
