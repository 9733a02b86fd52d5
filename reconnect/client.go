// Package reconnect implements a long-lived logical client: a
// supervisor that keeps a single Connection alive, replaying
// subscriptions across reconnects, on top of the lower-level
// amqp091 Connection/Channel API.
package reconnect

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"sync"
	"time"

	_ "go.uber.org/automaxprocs" // sets GOMAXPROCS from the cgroup quota, so defaultWorkerThreads is sized for the container, not the host

	"github.com/lavinmq/amqp091"
	"github.com/lavinmq/amqp091/internal/debug"
	"github.com/lavinmq/amqp091/internal/frame"
)

// defaultWorkerThreads is used by Subscribe when opts.WorkerThreads is
// left unset: zero's usual meaning ("run inline") would be wrong for a
// long-lived subscription; callers that actually want the inline pump
// call amqp091.Channel.Consume directly instead of going through
// Subscribe.
func defaultWorkerThreads() int {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		n = 1
	}
	return n
}

// Handler processes one delivered message.
type Handler func(amqp091.Delivery)

// SubscribeOptions mirror Basic.Consume plus the worker-pool knob.
type SubscribeOptions struct {
	NoAck         bool
	Exclusive     bool
	Prefetch      uint16
	WorkerThreads int
	Arguments     *frame.Table
}

type subscriptionKey struct {
	queue         string
	noAck         bool
	prefetch      uint16
	workerThreads int
	argsKey       string
	handlerID     uintptr
}

type subscription struct {
	key     subscriptionKey
	queue   string
	opts    SubscribeOptions
	handler Handler

	mu       sync.Mutex
	channel  *amqp091.Channel
	consumer *amqp091.Consumer
}

// Client is a long-lived logical AMQP client that transparently
// rebuilds its Connection and re-establishes subscriptions on failure.
type Client struct {
	uri string
	cfg amqp091.Config

	reconnectInterval time.Duration

	slot chan *amqp091.Connection // capacity 1

	currentMu sync.Mutex
	current   *amqp091.Connection

	subsMu sync.Mutex
	subs   map[subscriptionKey]*subscription

	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}
}

// New creates a Client. Call Start to begin supervising a Connection.
func New(uri string, cfg amqp091.Config) *Client {
	c := &Client{
		uri:               uri,
		cfg:               cfg,
		reconnectInterval: time.Second,
		slot:              make(chan *amqp091.Connection, 1),
		subs:              make(map[subscriptionKey]*subscription),
		stopCh:            make(chan struct{}),
		doneCh:            make(chan struct{}),
	}
	return c
}

// Start launches the supervisor loop.
func (c *Client) Start(ctx context.Context) {
	go c.supervise(ctx)
}

// Stop requests the supervisor to exit after its current Connection
// closes, and waits for it to do so.
func (c *Client) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.currentMu.Lock()
	conn := c.current
	c.currentMu.Unlock()
	if conn != nil {
		_ = conn.Close(context.Background())
	}
	<-c.doneCh
}

func (c *Client) supervise(ctx context.Context) {
	defer close(c.doneCh)
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		conn, err := amqp091.DialNoReadLoop(ctx, c.uri, c.cfg)
		if err != nil {
			debug.Warnf(ctx, "reconnect: dial failed", "err", err)
			if !c.sleepOrStop() {
				return
			}
			continue
		}

		c.currentMu.Lock()
		c.current = conn
		c.currentMu.Unlock()

		ready := make(chan struct{})
		go c.bringUp(ctx, conn, ready)
		go func() {
			select {
			case <-ready:
				select {
				case c.slot <- conn:
				case <-conn.Closed():
				}
			case <-c.stopCh:
			}
		}()

		conn.RunReadLoop()

		c.drainConn(conn)

		c.currentMu.Lock()
		c.current = nil
		c.currentMu.Unlock()

		select {
		case <-c.stopCh:
			return
		default:
		}
		if !c.sleepOrStop() {
			return
		}
	}
}

// bringUp opens channel 1 and replays every registered subscription on
// a freshly dialed Connection.
func (c *Client) bringUp(ctx context.Context, conn *amqp091.Connection, ready chan struct{}) {
	if _, err := conn.ChannelWithID(ctx, 1); err != nil {
		debug.Warnf(ctx, "reconnect: failed to open reserved channel", "err", err)
		close(ready)
		return
	}

	c.subsMu.Lock()
	subs := make([]*subscription, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.subsMu.Unlock()

	for _, s := range subs {
		c.replay(ctx, conn, s)
	}

	close(ready)
}

func (c *Client) replay(ctx context.Context, conn *amqp091.Connection, s *subscription) {
	ch, err := conn.Channel(ctx)
	if err != nil {
		debug.Warnf(ctx, "reconnect: failed to open subscription channel", "queue", s.queue, "err", err)
		return
	}
	if s.opts.Prefetch > 0 {
		if err := ch.Qos(s.opts.Prefetch, 0, false); err != nil {
			debug.Warnf(ctx, "reconnect: qos failed", "queue", s.queue, "err", err)
			return
		}
	}
	consumer, err := ch.Consume(ctx, s.queue, "", s.opts.NoAck, s.opts.Exclusive, s.opts.Arguments, s.opts.WorkerThreads, s.handler)
	if err != nil {
		debug.Warnf(ctx, "reconnect: consume failed", "queue", s.queue, "err", err)
		return
	}
	s.mu.Lock()
	s.channel = ch
	s.consumer = consumer
	s.mu.Unlock()
}

func (c *Client) drainConn(conn *amqp091.Connection) {
	select {
	case got := <-c.slot:
		if got != conn {
			// another op had it out; put it back so nothing blocks on Stop.
			c.slot <- got
		}
	default:
	}
}

func (c *Client) sleepOrStop() bool {
	select {
	case <-time.After(c.reconnectInterval):
		return true
	case <-c.stopCh:
		return false
	}
}

// WithConnection takes the current Connection out of the slot, runs op
// against it, and returns it to the slot unless op's Connection has
// since closed (in which case supervision replaces it). An operation
// interrupted by connection loss surfaces ConnectionClosed and is not
// retried.
func (c *Client) WithConnection(ctx context.Context, op func(*amqp091.Connection) error) error {
	var conn *amqp091.Connection
	select {
	case conn = <-c.slot:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopCh:
		return amqp091.ErrClosed
	}

	err := op(conn)

	select {
	case <-conn.Closed():
		// connection went down mid-op; supervision will replace it.
	default:
		c.slot <- conn
	}
	return err
}

// Channel1 runs op against the reserved channel id=1, the handle used
// for declare/bind/publish style high-level operations.
func (c *Client) Channel1(ctx context.Context, op func(*amqp091.Channel) error) error {
	return c.WithConnection(ctx, func(conn *amqp091.Connection) error {
		ch, err := conn.ChannelWithID(ctx, 1)
		if err != nil {
			return err
		}
		return op(ch)
	})
}

// QueueDeclare declares a queue via the reserved channel.
func (c *Client) QueueDeclare(ctx context.Context, name string, durable, exclusive, autoDelete bool, args *frame.Table) (amqp091.QueueDeclareResult, error) {
	var res amqp091.QueueDeclareResult
	err := c.Channel1(ctx, func(ch *amqp091.Channel) error {
		var err error
		res, err = ch.QueueDeclare(ctx, name, durable, exclusive, autoDelete, false, args)
		return err
	})
	return res, err
}

// ExchangeDeclare declares an exchange via the reserved channel.
func (c *Client) ExchangeDeclare(ctx context.Context, name, kind string, durable, autoDelete bool, args *frame.Table) error {
	return c.Channel1(ctx, func(ch *amqp091.Channel) error {
		return ch.ExchangeDeclare(ctx, name, kind, durable, autoDelete, false, false, args)
	})
}

// Bind binds a queue to an exchange via the reserved channel.
func (c *Client) Bind(ctx context.Context, queue, exchange, routingKey string, args *frame.Table) error {
	return c.Channel1(ctx, func(ch *amqp091.Channel) error {
		return ch.QueueBind(ctx, queue, exchange, routingKey, false, args)
	})
}

// Unbind unbinds a queue from an exchange via the reserved channel.
func (c *Client) Unbind(ctx context.Context, queue, exchange, routingKey string, args *frame.Table) error {
	return c.Channel1(ctx, func(ch *amqp091.Channel) error {
		return ch.QueueUnbind(ctx, queue, exchange, routingKey, args)
	})
}

// Purge purges a queue via the reserved channel.
func (c *Client) Purge(ctx context.Context, queue string) (uint32, error) {
	var n uint32
	err := c.Channel1(ctx, func(ch *amqp091.Channel) error {
		var err error
		n, err = ch.QueuePurge(ctx, queue, false)
		return err
	})
	return n, err
}

// Delete deletes a queue via the reserved channel.
func (c *Client) Delete(ctx context.Context, queue string, ifUnused, ifEmpty bool) (uint32, error) {
	var n uint32
	err := c.Channel1(ctx, func(ch *amqp091.Channel) error {
		var err error
		n, err = ch.QueueDelete(ctx, queue, ifUnused, ifEmpty, false)
		return err
	})
	return n, err
}

// Publish publishes via the reserved channel and waits for the
// broker's confirm before returning.
func (c *Client) Publish(ctx context.Context, exchange, routingKey string, mandatory bool, msg amqp091.Publishing) error {
	return c.Channel1(ctx, func(ch *amqp091.Channel) error {
		if err := ch.ConfirmSelect(false); err != nil {
			return err
		}
		if err := ch.Publish(ctx, exchange, routingKey, mandatory, false, msg); err != nil {
			return err
		}
		ok, err := ch.WaitForConfirms(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return amqp091.ErrPublishNotConfirmed
		}
		return nil
	})
}

// PublishAndForget publishes via the reserved channel without waiting
// for a confirm.
func (c *Client) PublishAndForget(ctx context.Context, exchange, routingKey string, mandatory bool, msg amqp091.Publishing) error {
	return c.Channel1(ctx, func(ch *amqp091.Channel) error {
		return ch.Publish(ctx, exchange, routingKey, mandatory, false, msg)
	})
}

// Subscribe registers a subscription, deduplicated by (queue, no_ack,
// prefetch, worker_threads, arguments, handler identity), and
// establishes it against the current Connection, waiting until one is
// available or ctx ends. The subscription stays registered either way
// and is replayed on every reconnect.
func (c *Client) Subscribe(ctx context.Context, queue string, opts SubscribeOptions, handler Handler) error {
	key := subscriptionKey{
		queue:         queue,
		noAck:         opts.NoAck,
		prefetch:      opts.Prefetch,
		workerThreads: opts.WorkerThreads,
		argsKey:       argumentsKey(opts.Arguments),
		handlerID:     reflect.ValueOf(handler).Pointer(),
	}

	c.subsMu.Lock()
	if _, exists := c.subs[key]; exists {
		c.subsMu.Unlock()
		return nil
	}
	if opts.WorkerThreads == 0 {
		opts.WorkerThreads = defaultWorkerThreads()
	}
	s := &subscription{key: key, queue: queue, opts: opts, handler: handler}
	c.subs[key] = s
	c.subsMu.Unlock()

	return c.WithConnection(ctx, func(conn *amqp091.Connection) error {
		c.replay(ctx, conn, s)
		return nil
	})
}

func argumentsKey(t *frame.Table) string {
	if t == nil {
		return ""
	}
	key := ""
	for _, k := range t.Keys() {
		v, _ := t.Get(k)
		key += k + "=" + argValueString(v) + ";"
	}
	return key
}

func argValueString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%T:%v", v, v)
	}
}
