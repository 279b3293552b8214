package staging_test

import (
	"bytes"
	"errors"
	"io"
	"log"
	"math/rand"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-stream/engine/fence"
	"github.com/Carmen-Shannon/oxy-stream/engine/staging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newPool(t *testing.T, size, count int, opts ...staging.RingPoolBuilderOption) staging.RingPool {
	t.Helper()
	base := []staging.RingPoolBuilderOption{
		staging.WithSlotSize(size),
		staging.WithSlotCount(count),
		staging.WithLogger(quietLogger()),
		staging.WithWaitTimeout(50 * time.Millisecond),
	}
	p, err := staging.NewRingPool(append(base, opts...)...)
	require.NoError(t, err)
	return p
}

// cycle runs one BeginWrite/EndWrite pair, filling the slot with fill.
func cycle(t *testing.T, p staging.RingPool, fill byte) staging.Publication {
	t.Helper()
	region, err := p.BeginWrite()
	require.NoError(t, err)
	for i := range region.Bytes() {
		region.Bytes()[i] = fill
	}
	pub, err := p.EndWrite(region)
	require.NoError(t, err)
	return pub
}

func TestNewRingPoolRejectsBadGeometry(t *testing.T) {
	cases := []struct {
		name        string
		size, count int
	}{
		{"zero size", 0, 3},
		{"zero count", 64, 0},
		{"negative size", -1, 3},
		{"negative count", 64, -2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := staging.NewRingPool(staging.WithSlotSize(tc.size), staging.WithSlotCount(tc.count))
			assert.ErrorIs(t, err, staging.ErrAllocation)
		})
	}
}

func TestNewRingPoolAllocatorFailure(t *testing.T) {
	cause := errors.New("out of device memory")
	_, err := staging.NewRingPool(
		staging.WithSlotSize(64),
		staging.WithSlotCount(3),
		staging.WithAllocator(func(int) ([]byte, error) { return nil, cause }),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, staging.ErrAllocation)
	assert.ErrorIs(t, err, cause)

	_, err = staging.NewRingPool(
		staging.WithSlotSize(64),
		staging.WithSlotCount(3),
		staging.WithAllocator(func(size int) ([]byte, error) { return make([]byte, size-1), nil }),
	)
	assert.ErrorIs(t, err, staging.ErrAllocation)
}

func TestNewRingPoolRespectsMaxBacking(t *testing.T) {
	_, err := staging.NewRingPool(
		staging.WithSlotSize(64),
		staging.WithSlotCount(2),
		staging.WithMaxBackingBytes(100),
	)
	assert.ErrorIs(t, err, staging.ErrAllocation)
}

func TestSlotsPartitionBackingStore(t *testing.T) {
	const size, count = 16, 4
	var backing []byte
	p := newPool(t, size, count, staging.WithAllocator(func(n int) ([]byte, error) {
		backing = make([]byte, n)
		return backing, nil
	}))
	require.Len(t, backing, size*count)
	assert.Equal(t, size, p.SlotSize())
	assert.Equal(t, count, p.SlotCount())

	for i := 0; i < count; i++ {
		region, err := p.BeginWrite()
		require.NoError(t, err)
		assert.Equal(t, i, region.Slot())
		assert.Equal(t, size, region.Len())
		assert.Equal(t, size, cap(region.Bytes()), "region capacity must stop at the slot boundary")
		for j := range region.Bytes() {
			region.Bytes()[j] = byte(i + 1)
		}
		pub, err := p.EndWrite(region)
		require.NoError(t, err)
		pub.Fence.Signal()
	}

	for i := 0; i < count; i++ {
		want := bytes.Repeat([]byte{byte(i + 1)}, size)
		assert.Equal(t, want, backing[i*size:(i+1)*size], "slot %d", i)
	}
}

func TestBeginWriteCyclesRoundRobin(t *testing.T) {
	p := newPool(t, 8, 3)
	assert.Equal(t, 2, p.Cursor())

	var slots []int
	for i := 0; i < 7; i++ {
		pub := cycle(t, p, byte(i))
		slots = append(slots, pub.Slot)
		pub.Fence.Signal()
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2, 0}, slots)
	assert.Equal(t, uint64(7), p.Stats().Writes)
	assert.Zero(t, p.Stats().Stalls)
}

func TestFourthWriteWaitsOnSlotZero(t *testing.T) {
	p := newPool(t, 8, 3, staging.WithWaitTimeout(2*time.Second))

	pubs := make([]staging.Publication, 3)
	for i := range pubs {
		pubs[i] = cycle(t, p, byte(i))
	}

	const delay = 30 * time.Millisecond
	go func() {
		time.Sleep(delay)
		pubs[0].Fence.Signal()
	}()

	start := time.Now()
	region, err := p.BeginWrite()
	require.NoError(t, err)
	assert.Equal(t, 0, region.Slot())
	assert.True(t, pubs[0].Fence.Signaled())
	assert.GreaterOrEqual(t, time.Since(start), delay-5*time.Millisecond)
	assert.Equal(t, uint64(1), p.Stats().Stalls)

	_, err = p.EndWrite(region)
	require.NoError(t, err)
	pubs[1].Fence.Signal()
	pubs[2].Fence.Signal()
}

func TestBeginWriteTimeoutLeavesStateUnchanged(t *testing.T) {
	p := newPool(t, 8, 2, staging.WithWaitTimeout(20*time.Millisecond))

	first := cycle(t, p, 0xAA)
	second := cycle(t, p, 0xBB)

	cursor := p.Cursor()
	states := []staging.SlotState{p.SlotState(0), p.SlotState(1)}
	require.Equal(t, []staging.SlotState{staging.SlotPublished, staging.SlotPublished}, states)

	start := time.Now()
	region, err := p.BeginWrite()
	assert.Nil(t, region)
	assert.ErrorIs(t, err, staging.ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond, "BeginWrite must wait out its budget")

	assert.Equal(t, cursor, p.Cursor())
	assert.Equal(t, states, []staging.SlotState{p.SlotState(0), p.SlotState(1)})
	assert.Equal(t, bytes.Repeat([]byte{0xAA}, 8), first.Region.Bytes(), "no partial write may reach a published slot")
	assert.Equal(t, uint64(1), p.Stats().Timeouts)

	// the caller may retry once the consumer catches up
	first.Fence.Signal()
	region, err = p.BeginWrite()
	require.NoError(t, err)
	assert.Equal(t, 0, region.Slot())
	_, err = p.EndWrite(region)
	require.NoError(t, err)
	second.Fence.Signal()
}

func TestBeginWriteIsNotReentrant(t *testing.T) {
	p := newPool(t, 8, 3)

	region, err := p.BeginWrite()
	require.NoError(t, err)

	again, err := p.BeginWrite()
	assert.Nil(t, again)
	assert.ErrorIs(t, err, staging.ErrReentrantWrite)

	pub, err := p.EndWrite(region)
	require.NoError(t, err)
	assert.Equal(t, 0, pub.Slot)
}

func TestEndWriteRejectsForeignRegions(t *testing.T) {
	p := newPool(t, 8, 3)
	other := newPool(t, 8, 3)

	_, err := p.EndWrite(nil)
	assert.ErrorIs(t, err, staging.ErrForeignRegion)

	foreign, err := other.BeginWrite()
	require.NoError(t, err)
	_, err = p.EndWrite(foreign)
	assert.ErrorIs(t, err, staging.ErrForeignRegion)

	region, err := p.BeginWrite()
	require.NoError(t, err)
	_, err = p.EndWrite(region)
	require.NoError(t, err)
	assert.Nil(t, region.Bytes(), "an ended region must not expose the slot")

	_, err = p.EndWrite(region)
	assert.ErrorIs(t, err, staging.ErrForeignRegion)
}

func TestSlotStateTransitions(t *testing.T) {
	p := newPool(t, 8, 2)
	assert.Equal(t, staging.SlotFree, p.SlotState(0))

	region, err := p.BeginWrite()
	require.NoError(t, err)
	assert.Equal(t, staging.SlotWriting, p.SlotState(0))

	pub, err := p.EndWrite(region)
	require.NoError(t, err)
	assert.Equal(t, staging.SlotPublished, p.SlotState(0))

	pub.Fence.Claim()
	assert.Equal(t, staging.SlotConsuming, p.SlotState(0))

	pub.Fence.Signal()
	assert.Equal(t, staging.SlotFree, p.SlotState(0))
	assert.Equal(t, "consuming", staging.SlotConsuming.String())

	assert.PanicsWithValue(t, "staging: slot index -1 out of range [0, 2)", func() { p.SlotState(-1) })
	assert.PanicsWithValue(t, "staging: slot index 2 out of range [0, 2)", func() { p.SlotState(2) })
}

func TestRetireReclaimsInPublishOrder(t *testing.T) {
	p := newPool(t, 8, 3)
	pubs := []staging.Publication{cycle(t, p, 1), cycle(t, p, 2), cycle(t, p, 3)}
	assert.Equal(t, int64(3), p.Stats().InFlight)

	pubs[1].Fence.Signal()
	assert.Zero(t, p.Retire(), "slot 0 is still unsignaled")

	pubs[0].Fence.Signal()
	assert.Equal(t, 2, p.Retire())
	assert.Equal(t, int64(1), p.Stats().InFlight)

	pubs[2].Fence.Signal()
	assert.Equal(t, 1, p.Retire())
	assert.Zero(t, p.Retire())

	stats := p.Stats()
	assert.Equal(t, uint64(3), stats.Retired)
	assert.Zero(t, stats.InFlight)
}

func TestRetireAfterImplicitReclaim(t *testing.T) {
	p := newPool(t, 8, 2)
	a := cycle(t, p, 1)
	b := cycle(t, p, 2)
	a.Fence.Signal()

	// reclaims slot 0 through BeginWrite rather than Retire
	c := cycle(t, p, 3)
	b.Fence.Signal()
	c.Fence.Signal()

	assert.Equal(t, 2, p.Retire())
	assert.Zero(t, p.Stats().InFlight)
}

func TestFinishWaitsForOutstandingFences(t *testing.T) {
	p := newPool(t, 8, 3)
	pubs := []staging.Publication{cycle(t, p, 1), cycle(t, p, 2)}

	go func() {
		time.Sleep(20 * time.Millisecond)
		for _, pub := range pubs {
			pub.Fence.Signal()
		}
	}()

	require.NoError(t, p.Finish())
	for _, pub := range pubs {
		assert.True(t, pub.Fence.Signaled())
	}
	assert.Zero(t, p.Stats().InFlight)

	_, err := p.BeginWrite()
	assert.ErrorIs(t, err, staging.ErrPoolFinished)
}

func TestFinishIsIdempotent(t *testing.T) {
	p := newPool(t, 8, 3)
	cycle(t, p, 1).Fence.Signal()

	require.NoError(t, p.Finish())

	done := make(chan error, 1)
	go func() { done <- p.Finish() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second Finish blocked")
	}
}

func TestFinishRefusesOpenRegion(t *testing.T) {
	p := newPool(t, 8, 3)
	region, err := p.BeginWrite()
	require.NoError(t, err)

	assert.ErrorIs(t, p.Finish(), staging.ErrWriteOpen)

	pub, err := p.EndWrite(region)
	require.NoError(t, err)
	pub.Fence.Signal()
	assert.NoError(t, p.Finish())
}

func TestFinishTimeoutIsRetryable(t *testing.T) {
	p := newPool(t, 8, 3, staging.WithFinishTimeout(20*time.Millisecond))
	pub := cycle(t, p, 1)

	assert.ErrorIs(t, p.Finish(), staging.ErrTimeout)

	pub.Fence.Signal()
	assert.NoError(t, p.Finish())
}

func TestFenceFactoryIsUsed(t *testing.T) {
	made := 0
	p := newPool(t, 8, 2, staging.WithFenceFactory(func() fence.Fence {
		made++
		return fence.NewSignaledFence()
	}))
	for i := 0; i < 5; i++ {
		cycle(t, p, byte(i))
	}
	assert.Equal(t, 5, made)
	assert.Zero(t, p.Stats().Stalls)
}

func TestNoSlotReusedBeforeItsFenceSignals(t *testing.T) {
	const count = 3
	p := newPool(t, 16, count, staging.WithWaitTimeout(2*time.Second))
	rng := rand.New(rand.NewSource(7))

	last := make([]fence.Fence, count)
	for i := 0; i < 200; i++ {
		region, err := p.BeginWrite()
		require.NoError(t, err)

		slot := region.Slot()
		if prev := last[slot]; prev != nil {
			require.True(t, prev.Signaled(), "iteration %d: slot %d handed out before its fence signaled", i, slot)
		}

		pub, err := p.EndWrite(region)
		require.NoError(t, err)
		last[slot] = pub.Fence

		delay := time.Duration(rng.Intn(300)) * time.Microsecond
		go func(f fence.Fence) {
			time.Sleep(delay)
			f.Signal()
		}(pub.Fence)

		if i%17 == 0 {
			p.Retire()
		}
	}
	require.NoError(t, p.Finish())
}
