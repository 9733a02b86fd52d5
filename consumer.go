package amqp091

import (
	"context"
	"sync"

	"github.com/lavinmq/amqp091/internal/queue"
)

// deliverySegmentSize bounds the per-segment allocation of a consumer's
// delivery backlog.
const deliverySegmentSize = 64

// Consumer is one Basic.Consume subscription: a tag, the queue it
// pulls from, and the worker pool draining its deliveries.
type Consumer struct {
	channel *Channel
	tag     string
	queue   string

	deliveries *queue.Synced[Delivery]

	closeOnce sync.Once
	doneCh    chan struct{}
	wg        sync.WaitGroup
}

func newConsumer(ch *Channel, tag, queueName string) *Consumer {
	return &Consumer{
		channel:    ch,
		tag:        tag,
		queue:      queueName,
		deliveries: queue.NewSynced[Delivery](deliverySegmentSize),
		doneCh:     make(chan struct{}),
	}
}

// Tag returns the server-assigned (or client-chosen) consumer tag.
func (c *Consumer) Tag() string { return c.tag }

// start spawns workerThreads goroutines draining deliveries into
// handler. workerThreads == 0 runs the pump on the calling goroutine
// and blocks until the consumer is canceled.
func (c *Consumer) start(workerThreads int, handler func(Delivery)) {
	if workerThreads == 0 {
		c.pump(handler)
		return
	}
	for i := 0; i < workerThreads; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.pump(handler)
		}()
	}
}

func (c *Consumer) pump(handler func(Delivery)) {
	for {
		d, ok := c.deliveries.Wait()
		if !ok {
			return
		}
		handler(d)
	}
}

// close tears down the consumer's delivery queue and unblocks every
// worker. It is safe to call multiple times.
func (c *Consumer) close() {
	c.closeOnce.Do(func() {
		c.deliveries.Close()
		close(c.doneCh)
	})
}

// Cancel unsubscribes this consumer: Basic.Cancel, await CancelOk
// unless noWait, then close the delivery queue so workers return.
func (c *Consumer) Cancel(ctx context.Context, noWait bool) error {
	return c.channel.Cancel(c.tag, noWait)
}

// Done returns a channel closed once the consumer has been canceled,
// either locally or by the broker.
func (c *Consumer) Done() <-chan struct{} { return c.doneCh }

// Wait blocks until every worker goroutine spawned by start has
// returned (only meaningful for workerThreads > 0).
func (c *Consumer) Wait() { c.wg.Wait() }
