package consumer_test

import (
	"errors"
	"io"
	"log"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-stream/engine/batch"
	"github.com/Carmen-Shannon/oxy-stream/engine/consumer"
	"github.com/Carmen-Shannon/oxy-stream/engine/staging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newPool(t *testing.T, size, count int) staging.RingPool {
	t.Helper()
	p, err := staging.NewRingPool(
		staging.WithSlotSize(size),
		staging.WithSlotCount(count),
		staging.WithWaitTimeout(2*time.Second),
		staging.WithLogger(quietLogger()),
	)
	require.NoError(t, err)
	return p
}

func TestWorkerConsumerDrainsEveryBatch(t *testing.T) {
	const stride, total = 8, 100

	var mu sync.Mutex
	seen := make([]bool, total)
	handler := func(start, count int, data []byte) error {
		mu.Lock()
		defer mu.Unlock()
		for i := 0; i < count; i++ {
			rec := data[i*stride : (i+1)*stride]
			// each record carries its own index in the first byte
			seen[int(rec[0])] = true
			if int(rec[0]) != start+i {
				return errors.New("record out of place")
			}
		}
		return nil
	}

	c := consumer.NewWorkerConsumer(handler,
		consumer.WithWorkers(2),
		consumer.WithQueueSize(8),
		consumer.WithWorkerLogger(quietLogger()),
	)

	pool := newPool(t, 32, 3)
	w, err := batch.NewWriter(pool, stride, c.Consume, batch.WithLogger(quietLogger()))
	require.NoError(t, err)

	records := make([]byte, total*stride)
	for i := 0; i < total; i++ {
		records[i*stride] = byte(i)
	}

	n, err := w.Process(records, total)
	require.NoError(t, err)
	assert.Equal(t, batch.BatchCount(total, 4), n)

	require.NoError(t, pool.Finish())
	c.Stop()
	assert.Equal(t, uint64(n), c.Consumed())
	assert.Zero(t, c.Failures())

	mu.Lock()
	defer mu.Unlock()
	for i, ok := range seen {
		assert.True(t, ok, "record %d never reached the handler", i)
	}
}

func TestWorkerConsumerSignalsOnHandlerError(t *testing.T) {
	c := consumer.NewWorkerConsumer(
		func(int, int, []byte) error { return errors.New("bad batch") },
		consumer.WithWorkers(1),
		consumer.WithWorkerLogger(quietLogger()),
	)

	pool := newPool(t, 16, 1)
	w, err := batch.NewWriter(pool, 16, c.Consume, batch.WithLogger(quietLogger()))
	require.NoError(t, err)

	n, err := w.Process(make([]byte, 3*16), 3)
	require.NoError(t, err, "failed batches must still release their slot")
	assert.Equal(t, 3, n)

	require.NoError(t, pool.Finish())
	c.Stop()
	assert.Equal(t, uint64(3), c.Consumed())
	assert.Equal(t, uint64(3), c.Failures())
}

func TestWorkerConsumerRecoversHandlerPanic(t *testing.T) {
	c := consumer.NewWorkerConsumer(
		func(start, _ int, _ []byte) error {
			if start == 0 {
				panic("bad record")
			}
			return nil
		},
		consumer.WithWorkers(1),
		consumer.WithWorkerLogger(quietLogger()),
	)
	defer c.Stop()

	pool := newPool(t, 16, 1)
	w, err := batch.NewWriter(pool, 16, c.Consume, batch.WithLogger(quietLogger()))
	require.NoError(t, err)

	n, err := w.Process(make([]byte, 2*16), 2)
	require.NoError(t, err, "a panicking handler must still release its slot")
	assert.Equal(t, 2, n)

	require.NoError(t, pool.Finish())
	assert.Equal(t, uint64(2), c.Consumed())
	assert.Equal(t, uint64(1), c.Failures())
}

func TestWorkerConsumerStopReleasesWorkers(t *testing.T) {
	before := runtime.NumGoroutine()

	c := consumer.NewWorkerConsumer(
		func(int, int, []byte) error { return nil },
		consumer.WithWorkers(4),
		consumer.WithWorkerLogger(quietLogger()),
	)
	pool := newPool(t, 32, 3)
	w, err := batch.NewWriter(pool, 8, c.Consume, batch.WithLogger(quietLogger()))
	require.NoError(t, err)

	_, err = w.Process(make([]byte, 40*8), 40)
	require.NoError(t, err)
	require.NoError(t, pool.Finish())

	c.Stop()
	c.Stop()
	assert.Equal(t, uint64(10), c.Consumed())

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, 2*time.Second, 10*time.Millisecond, "worker goroutines must exit after Stop")
}

func TestWorkerConsumerDropsBatchesAfterStop(t *testing.T) {
	handled := false
	c := consumer.NewWorkerConsumer(
		func(int, int, []byte) error {
			handled = true
			return nil
		},
		consumer.WithWorkers(1),
		consumer.WithWorkerLogger(quietLogger()),
	)
	c.Stop()

	pool := newPool(t, 16, 1)
	w, err := batch.NewWriter(pool, 16, c.Consume, batch.WithLogger(quietLogger()))
	require.NoError(t, err)

	n, err := w.Process(make([]byte, 3*16), 3)
	require.NoError(t, err, "dropped batches still release their slot")
	assert.Equal(t, 3, n)
	require.NoError(t, pool.Finish())

	assert.False(t, handled)
	assert.Equal(t, uint64(3), c.Consumed())
	assert.Equal(t, uint64(3), c.Failures())
}

func TestNewWorkerConsumerPanicsOnNilHandler(t *testing.T) {
	assert.Panics(t, func() { consumer.NewWorkerConsumer(nil) })
}
