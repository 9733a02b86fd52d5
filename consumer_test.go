package amqp091

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/require"
)

func TestConsumerWorkerThreadsZeroRunsInlineUntilClosed(t *testing.T) {
	defer leaktest.Check(t)()
	c := newConsumer(nil, "tag-inline", "q")

	var handled int64
	returned := make(chan struct{})
	go func() {
		c.start(0, func(d Delivery) { atomic.AddInt64(&handled, 1) })
		close(returned)
	}()

	c.deliveries.Push(Delivery{DeliveryTag: 1})
	c.deliveries.Push(Delivery{DeliveryTag: 2})

	require.Eventually(t, func() bool { return atomic.LoadInt64(&handled) == 2 }, time.Second, time.Millisecond)

	c.close()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("pump did not return after close with workerThreads=0")
	}
}

func TestConsumerWorkerPoolDrainsAllDeliveries(t *testing.T) {
	defer leaktest.Check(t)()
	c := newConsumer(nil, "tag-pool", "q")

	const n = 50
	var mu sync.Mutex
	seen := make(map[uint64]bool)

	c.start(4, func(d Delivery) {
		mu.Lock()
		seen[d.DeliveryTag] = true
		mu.Unlock()
	})

	for i := uint64(0); i < n; i++ {
		c.deliveries.Push(Delivery{DeliveryTag: i})
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == n
	}, time.Second, time.Millisecond)

	c.close()
	c.Wait()
}

func TestConsumerCloseIsIdempotent(t *testing.T) {
	defer leaktest.Check(t)()
	c := newConsumer(nil, "tag-close", "q")
	c.close()
	c.close()
	select {
	case <-c.Done():
	default:
		t.Fatal("Done channel should be closed after close()")
	}
}

func TestConsumerTagReturnsAssignedValue(t *testing.T) {
	c := newConsumer(nil, "assigned-tag", "q")
	require.Equal(t, "assigned-tag", c.Tag())
}
