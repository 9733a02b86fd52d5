package amqp091

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/lavinmq/amqp091/internal/debug"
	"github.com/lavinmq/amqp091/internal/frame"
	"github.com/lavinmq/amqp091/internal/method"
)

const protocolPreamble = "AMQP\x00\x00\x09\x01"

// maxMissedHeartbeats is the number of missed heartbeat intervals
// tolerated before the peer is declared dead.
const maxMissedHeartbeats = 2

// minFrameMax is the protocol-mandated minimum frame size.
const minFrameMax = 4096

// Config carries the tuning parameters proposed during the AMQP
// handshake, mirroring the Config struct shape of streadway/amqp and
// its derivatives.
type Config struct {
	ChannelMax     uint16
	FrameMax       uint32
	Heartbeat      time.Duration
	ConnectionName string
	Properties     *frame.Table
}

func defaultConfig() Config {
	return Config{
		ChannelMax: 2048,
		FrameMax:   131072,
	}
}

// Blocking describes a Connection.Blocked/Unblocked notification.
type Blocking struct {
	Active bool
	Reason string
}

// Connection is a single TCP/TLS socket speaking AMQP 0-9-1 to one
// broker, multiplexing any number of Channels.
type Connection struct {
	transport *transport
	uri       URI

	channelMax uint16
	frameMax   uint32
	heartbeat  time.Duration

	lastSent int64 // unix nanos, atomic
	lastRecv int64 // unix nanos, atomic

	mu       sync.Mutex
	channels map[uint16]*Channel
	closed   *ConnectionClosedError
	closeCh  chan struct{}

	blockedMu     sync.Mutex
	blockedReason *string

	notifyCloseMu sync.Mutex
	notifyClose   []chan *Error
	notifyBlocked []chan Blocking

	wg sync.WaitGroup
}

// Dial opens a Connection to the broker named by uri using defaults.
func Dial(ctx context.Context, uri string) (*Connection, error) {
	return DialConfig(ctx, uri, defaultConfig())
}

// DialConfig opens a Connection with explicit tuning parameters,
// componentwise-min'd against the server's proposal during handshake.
func DialConfig(ctx context.Context, rawURI string, cfg Config) (*Connection, error) {
	c, parsed, err := dialNoReadLoop(ctx, rawURI, cfg)
	if err != nil {
		return nil, err
	}

	c.wg.Add(1)
	go c.readLoop()

	if c.heartbeat > 0 {
		c.wg.Add(1)
		go c.heartbeatLoop()
	}

	debug.Debugf(ctx, "amqp091: connection open", "host", parsed.Host, "vhost", parsed.Vhost)
	return c, nil
}

// DialNoReadLoop dials and handshakes a Connection exactly like
// DialConfig but does not spawn the reader goroutine; the caller must
// run Connection.RunReadLoop itself. ReconnectingClient uses this to
// run the read loop on its own supervisor goroutine.
func DialNoReadLoop(ctx context.Context, rawURI string, cfg Config) (*Connection, error) {
	c, _, err := dialNoReadLoop(ctx, rawURI, cfg)
	return c, err
}

func dialNoReadLoop(ctx context.Context, rawURI string, cfg Config) (*Connection, URI, error) {
	parsed, err := ParseURI(rawURI)
	if err != nil {
		return nil, URI{}, err
	}
	if cfg.ChannelMax != 0 {
		parsed.ChannelMax = cfg.ChannelMax
	}
	if cfg.FrameMax != 0 {
		parsed.FrameMax = cfg.FrameMax
	}
	if cfg.Heartbeat != 0 {
		parsed.Heartbeat = cfg.Heartbeat
	}
	if cfg.ConnectionName != "" {
		parsed.ConnectionName = cfg.ConnectionName
	}

	c, err := connectNoReadLoop(ctx, parsed, cfg)
	return c, parsed, err
}

// connectNoReadLoop dials and handshakes a Connection without spawning
// its reader goroutine. DialNoReadLoop (and through it
// ReconnectingClient) reaches it via dialNoReadLoop.
func connectNoReadLoop(ctx context.Context, parsed URI, cfg Config) (*Connection, error) {
	tport, err := dialTransport(parsed)
	if err != nil {
		return nil, err
	}

	c := &Connection{
		transport: tport,
		uri:       parsed,
		channels:  make(map[uint16]*Channel),
		closeCh:   make(chan struct{}),
	}

	if err := c.handshake(ctx, cfg); err != nil {
		tport.close()
		return nil, err
	}
	return c, nil
}

// RunReadLoop runs the Connection's single reader synchronously on the
// calling goroutine until the connection closes. Callers that used
// DialNoReadLoop own scheduling this themselves; Dial/DialConfig run
// it on a background goroutine instead.
func (c *Connection) RunReadLoop() {
	c.wg.Add(1)
	if c.heartbeat > 0 {
		c.wg.Add(1)
		go c.heartbeatLoop()
	}
	c.readLoop()
}

func (c *Connection) handshake(ctx context.Context, cfg Config) error {
	deadline := time.Now().Add(c.uri.ConnectTimeout)
	_ = c.transport.setReadDeadline(deadline)
	defer c.transport.setReadDeadline(time.Time{})

	if err := c.transport.writeFrames([]byte(protocolPreamble)); err != nil {
		return &ConnectionError{Op: "handshake: send preamble", Err: err}
	}

	startFrame, err := c.readRawFrame()
	if err != nil {
		return &ConnectionError{Op: "handshake: read connection.start", Err: err}
	}
	m, err := expectMethod(startFrame, 0, method.ClassConnection, method.ConnectionStart)
	if err != nil {
		return &ConnectionError{Op: "handshake", Err: err}
	}
	if _, err := method.DecodeConnectionStart(m.Args); err != nil {
		return &ConnectionError{Op: "handshake: decode connection.start", Err: err}
	}

	props := cfg.Properties
	if props == nil {
		props = frame.NewTable()
	}
	props.Set("product", "amqp091")
	props.Set("platform", "Go")
	props.Set("version", "1.0")
	connName := cfg.ConnectionName
	if connName == "" {
		connName = "amqp091-" + uuid.NewString()
	}
	props.Set("connection_name", connName)
	caps := frame.NewTable()
	caps.Set("authentication_failure_close", true)
	caps.Set("publisher_confirms", true)
	caps.Set("consumer_cancel_notify", true)
	caps.Set("exchange_exchange_bindings", true)
	caps.Set("basic.nack", true)
	caps.Set("connection.blocked", true)
	props.Set("capabilities", caps)

	startOk := method.ConnectionStartOkArgs{
		ClientProperties: props,
		Mechanism:        "PLAIN",
		Response:         "\x00" + c.uri.Username + "\x00" + c.uri.Password,
		Locale:           "",
	}
	if err := c.sendMethod(0, method.ClassConnection, method.ConnectionStartOk, startOk); err != nil {
		return &ConnectionError{Op: "handshake: send connection.start-ok", Err: err}
	}

	tuneFrame, err := c.readRawFrame()
	if err != nil {
		return &ConnectionError{Op: "handshake: read connection.tune", Err: err}
	}
	tm, err := expectMethod(tuneFrame, 0, method.ClassConnection, method.ConnectionTune)
	if err != nil {
		return &ConnectionError{Op: "handshake", Err: err}
	}
	tune, err := method.DecodeConnectionTune(tm.Args)
	if err != nil {
		return &ConnectionError{Op: "handshake: decode connection.tune", Err: err}
	}

	c.channelMax = minNonZeroU16(tune.ChannelMax, c.uri.ChannelMax)
	if c.channelMax == 0 {
		c.channelMax = 65536 - 1
	}
	c.frameMax = minNonZeroU32(tune.FrameMax, c.uri.FrameMax)
	if c.frameMax < minFrameMax {
		c.frameMax = minFrameMax
	}
	c.heartbeat = minHeartbeat(tune.Heartbeat, c.uri.Heartbeat)

	tuneOk := method.ConnectionTuneOkArgs{
		ChannelMax: c.channelMax,
		FrameMax:   c.frameMax,
		Heartbeat:  uint16(c.heartbeat / time.Second),
	}
	if err := c.sendMethod(0, method.ClassConnection, method.ConnectionTuneOk, tuneOk); err != nil {
		return &ConnectionError{Op: "handshake: send connection.tune-ok", Err: err}
	}

	openArgs := method.ConnectionOpenArgs{VirtualHost: c.uri.Vhost}
	if err := c.sendMethod(0, method.ClassConnection, method.ConnectionOpen, openArgs); err != nil {
		return &ConnectionError{Op: "handshake: send connection.open", Err: err}
	}
	openOkFrame, err := c.readRawFrame()
	if err != nil {
		return &ConnectionError{Op: "handshake: read connection.open-ok", Err: err}
	}
	if _, err := expectMethod(openOkFrame, 0, method.ClassConnection, method.ConnectionOpenOk); err != nil {
		return &ConnectionError{Op: "handshake", Err: err}
	}

	c.markSent()
	c.markRecv()
	return nil
}

func minNonZeroU16(a, b uint16) uint16 {
	if a == 0 {
		return b
	}
	if b == 0 {
		return a
	}
	if a < b {
		return a
	}
	return b
}

func minNonZeroU32(a, b uint32) uint32 {
	if a == 0 {
		return b
	}
	if b == 0 {
		return a
	}
	if a < b {
		return a
	}
	return b
}

func minHeartbeat(serverSecs uint16, clientProposed time.Duration) time.Duration {
	client := uint16(clientProposed / time.Second)
	v := client
	if serverSecs < v {
		v = serverSecs
	}
	if client == 0 || serverSecs == 0 {
		v = 0
	}
	return time.Duration(v) * time.Second
}

// expectMethod decodes a raw frame, asserting it is a method frame on
// channel with the given class/method id.
func expectMethod(f frame.Frame, channel uint16, classID, methodID uint16) (frame.Method, error) {
	if f.Kind != frame.KindMethod {
		return frame.Method{}, &UnexpectedFrameError{Expected: "method", Got: fmt.Sprintf("kind %d", f.Kind)}
	}
	if f.Channel != channel {
		return frame.Method{}, &UnexpectedFrameError{Expected: fmt.Sprintf("channel %d", channel), Got: fmt.Sprintf("channel %d", f.Channel)}
	}
	m, err := frame.DecodeMethod(f.Payload)
	if err != nil {
		return frame.Method{}, err
	}
	if m.ClassID != classID || m.MethodID != methodID {
		return frame.Method{}, &UnexpectedFrameError{
			Expected: method.Name(classID, methodID),
			Got:      method.Name(m.ClassID, m.MethodID),
		}
	}
	return m, nil
}

func (c *Connection) readRawFrame() (frame.Frame, error) {
	return frame.ReadFrame(c.transport.readExact)
}

type methodEncoder interface {
	Encode() ([]byte, error)
}

func (c *Connection) sendMethod(channel uint16, classID, methodID uint16, args methodEncoder) error {
	encoded, err := args.Encode()
	if err != nil {
		return err
	}
	var buf sizeBuffer
	if err := frame.WriteMethod(&buf, channel, classID, methodID, encoded); err != nil {
		return err
	}
	if err := c.transport.writeFrames(buf.Bytes()); err != nil {
		return err
	}
	c.markSent()
	return nil
}

func (c *Connection) markSent() { atomic.StoreInt64(&c.lastSent, time.Now().UnixNano()) }
func (c *Connection) markRecv() { atomic.StoreInt64(&c.lastRecv, time.Now().UnixNano()) }

// Channel allocates the lowest-free channel id in [1, channelMax] and
// opens it.
func (c *Connection) Channel(ctx context.Context) (*Channel, error) {
	return c.openChannel(ctx, 0)
}

// ChannelWithID opens (or returns the already-open) channel with the
// given id. id == 0 is an ArgumentError: channel 0 is reserved for
// connection-level methods.
func (c *Connection) ChannelWithID(ctx context.Context, id uint16) (*Channel, error) {
	if id == 0 {
		return nil, &ArgumentError{Msg: "channel id 0 is reserved for connection-level methods"}
	}
	return c.openChannel(ctx, id)
}

func (c *Connection) openChannel(ctx context.Context, requestedID uint16) (*Channel, error) {
	c.mu.Lock()
	if c.closed != nil {
		closed := *c.closed
		c.mu.Unlock()
		return nil, &closed
	}

	var id uint16
	if requestedID != 0 {
		if ch, ok := c.channels[requestedID]; ok {
			c.mu.Unlock()
			return ch, nil
		}
		if requestedID > c.channelMax {
			c.mu.Unlock()
			return nil, &ArgumentError{Msg: fmt.Sprintf("channel id %d exceeds channel_max %d", requestedID, c.channelMax)}
		}
		id = requestedID
	} else {
		var found bool
		for i := uint16(1); i <= c.channelMax; i++ {
			if _, taken := c.channels[i]; !taken {
				id = i
				found = true
				break
			}
		}
		if !found {
			c.mu.Unlock()
			return nil, &ArgumentError{Msg: "no free channel ids available"}
		}
	}

	ch := newChannel(id, c)
	c.channels[id] = ch
	c.mu.Unlock()

	if err := ch.open(ctx); err != nil {
		c.mu.Lock()
		delete(c.channels, id)
		c.mu.Unlock()
		return nil, err
	}
	return ch, nil
}

// WithChannel allocates a channel, runs fn, and closes the channel
// gracefully on both normal and error exit.
func (c *Connection) WithChannel(ctx context.Context, fn func(*Channel) error) error {
	ch, err := c.Channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close(ctx, ReplyOk, "")
	return fn(ch)
}

// readLoop is the single reader for this Connection. It never blocks
// on application callbacks; deliveries go onto a consumer's delivery
// queue, which has no size limit and grows as needed, and replies go
// through a single-shot channel.
func (c *Connection) readLoop() {
	defer c.wg.Done()
	for {
		f, err := c.readRawFrame()
		if err != nil {
			c.shutdown(&Error{Code: ReplyFrameError, Reason: err.Error()})
			return
		}
		c.markRecv()

		if f.Kind == frame.KindHeartbeat {
			if f.Channel != 0 {
				c.shutdown(&Error{Code: ReplyFrameError, Reason: "heartbeat received on non-zero channel"})
				return
			}
			continue
		}

		if f.Channel == 0 {
			if done := c.dispatchConnectionFrame(f); done {
				return
			}
			continue
		}

		c.mu.Lock()
		ch := c.channels[f.Channel]
		c.mu.Unlock()
		if ch == nil {
			debug.Warnf(context.Background(), "amqp091: frame for unknown channel", "channel", f.Channel)
			continue
		}
		ch.dispatch(f)
	}
}

// dispatchConnectionFrame handles a channel-0 frame. It returns true if
// the read loop should exit (connection has been torn down).
func (c *Connection) dispatchConnectionFrame(f frame.Frame) bool {
	if f.Kind != frame.KindMethod {
		c.shutdown(&Error{Code: ReplyUnexpectedFrame, Reason: "non-method frame on channel 0"})
		return true
	}
	m, err := frame.DecodeMethod(f.Payload)
	if err != nil {
		c.shutdown(&Error{Code: ReplyFrameError, Reason: err.Error()})
		return true
	}
	switch {
	case m.ClassID == method.ClassConnection && m.MethodID == method.ConnectionClose:
		closeArgs, _ := method.DecodeConnectionClose(m.Args)
		_ = c.sendMethod(0, method.ClassConnection, method.ConnectionCloseOk, noArgs{})
		c.shutdown(&Error{
			Code:     closeArgs.ReplyCode,
			Reason:   closeArgs.ReplyText,
			ClassID:  closeArgs.ClassID,
			MethodID: closeArgs.MethodID,
		})
		return true

	case m.ClassID == method.ClassConnection && m.MethodID == method.ConnectionCloseOk:
		c.shutdown(&Error{Code: ReplyOk, Reason: "connection closed"})
		return true

	case m.ClassID == method.ClassConnection && m.MethodID == method.ConnectionBlocked:
		blocked, _ := method.DecodeConnectionBlocked(m.Args)
		c.setBlocked(&blocked.Reason)
		return false

	case m.ClassID == method.ClassConnection && m.MethodID == method.ConnectionUnblocked:
		c.setBlocked(nil)
		return false

	case m.ClassID == method.ClassConnection && m.MethodID == method.ConnectionUpdateSecretOk:
		return false

	default:
		debug.Warnf(context.Background(), "amqp091: unexpected connection-level method", "method", method.Name(m.ClassID, m.MethodID))
		return false
	}
}

func (c *Connection) setBlocked(reason *string) {
	c.blockedMu.Lock()
	c.blockedReason = reason
	c.blockedMu.Unlock()

	b := Blocking{Active: reason != nil}
	if reason != nil {
		b.Reason = *reason
	}
	c.notifyCloseMu.Lock()
	chans := append([]chan Blocking(nil), c.notifyBlocked...)
	c.notifyCloseMu.Unlock()
	for _, ch := range chans {
		select {
		case ch <- b:
		default:
		}
	}
}

// Closed returns a channel that is closed once the Connection has
// shut down, for callers that need a non-blocking liveness check.
func (c *Connection) Closed() <-chan struct{} { return c.closeCh }

// IsBlocked reports the current broker-initiated flow-control state.
func (c *Connection) IsBlocked() (bool, string) {
	c.blockedMu.Lock()
	defer c.blockedMu.Unlock()
	if c.blockedReason == nil {
		return false, ""
	}
	return true, *c.blockedReason
}

// shutdown tears down the connection: cascades close to every channel,
// records the close reason, and wakes every waiter. It is idempotent.
func (c *Connection) shutdown(reason *Error) {
	c.mu.Lock()
	if c.closed != nil {
		c.mu.Unlock()
		return
	}
	c.closed = &ConnectionClosedError{Cause: reason}
	channels := make([]*Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		channels = append(channels, ch)
	}
	c.channels = make(map[uint16]*Channel)
	c.mu.Unlock()

	close(c.closeCh)
	c.transport.close()

	var errs *multierror.Error
	for _, ch := range channels {
		if err := ch.cascadeClose(reason); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	c.notifyCloseMu.Lock()
	chans := append([]chan *Error(nil), c.notifyClose...)
	c.notifyCloseMu.Unlock()
	for _, ch := range chans {
		ch <- reason
		close(ch)
	}
}

// Close initiates a graceful local close: sends Connection.Close,
// awaits Connection.CloseOk (best-effort), and tears down all channels.
func (c *Connection) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	closeArgs := method.ConnectionCloseArgs{ReplyCode: ReplyOk, ReplyText: "goodbye"}
	_ = c.sendMethod(0, method.ClassConnection, method.ConnectionClose, closeArgs)

	select {
	case <-c.closeCh:
	case <-time.After(5 * time.Second):
		c.shutdown(&Error{Code: ReplyOk, Reason: "local close timed out waiting for close-ok"})
	case <-ctx.Done():
		c.shutdown(&Error{Code: ReplyOk, Reason: "local close canceled"})
	}
	c.wg.Wait()
	return nil
}

// UpdateSecret refreshes the credential used for this connection
// (RabbitMQ's OAuth2 token-refresh extension).
func (c *Connection) UpdateSecret(newSecret, reason string) error {
	return c.sendMethod(0, method.ClassConnection, method.ConnectionUpdateSecret, method.ConnectionUpdateSecretArgs{
		NewSecret: newSecret,
		Reason:    reason,
	})
}

// NotifyClose registers ch to receive the connection's close reason
// exactly once, then ch is closed.
func (c *Connection) NotifyClose(ch chan *Error) chan *Error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed != nil {
		ch <- closed.Cause
		close(ch)
		return ch
	}
	c.notifyCloseMu.Lock()
	c.notifyClose = append(c.notifyClose, ch)
	c.notifyCloseMu.Unlock()
	return ch
}

// NotifyBlocked registers ch to receive Blocking transitions.
func (c *Connection) NotifyBlocked(ch chan Blocking) chan Blocking {
	c.notifyCloseMu.Lock()
	c.notifyBlocked = append(c.notifyBlocked, ch)
	c.notifyCloseMu.Unlock()
	return ch
}

// heartbeatLoop fires at H/2 and declares the peer dead after
// maxMissedHeartbeats intervals of silence.
func (c *Connection) heartbeatLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.heartbeat / 2)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeCh:
			return
		case <-ticker.C:
			now := time.Now()
			lastSent := time.Unix(0, atomic.LoadInt64(&c.lastSent))
			lastRecv := time.Unix(0, atomic.LoadInt64(&c.lastRecv))

			if now.Sub(lastRecv) > c.heartbeat*maxMissedHeartbeats {
				c.shutdown(&Error{Code: ReplyFrameError, Reason: "missed heartbeats"})
				return
			}
			if now.Sub(lastSent) >= c.heartbeat {
				if err := c.transport.writeFrames(heartbeatBytes()); err != nil {
					c.shutdown(&Error{Code: ReplyFrameError, Reason: err.Error()})
					return
				}
				c.markSent()
			}
		}
	}
}

func heartbeatBytes() []byte {
	var buf sizeBuffer
	_ = frame.WriteHeartbeat(&buf)
	return buf.Bytes()
}

// noArgs encodes to an empty argument list, used for CloseOk-style
// replies that carry nothing.
type noArgs struct{}

func (noArgs) Encode() ([]byte, error) { return nil, nil }

// sizeBuffer is a minimal io.Writer accumulator, avoiding a bytes.Buffer
// import purely for frame assembly.
type sizeBuffer struct {
	b []byte
}

func (s *sizeBuffer) Write(p []byte) (int, error) {
	s.b = append(s.b, p...)
	return len(p), nil
}

func (s *sizeBuffer) Bytes() []byte { return s.b }
