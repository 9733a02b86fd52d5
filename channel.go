package amqp091

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/lavinmq/amqp091/internal/debug"
	"github.com/lavinmq/amqp091/internal/frame"
	"github.com/lavinmq/amqp091/internal/method"
	"github.com/lavinmq/amqp091/internal/queue"
)

// Channel is the request/reply engine for one multiplex slot on a
// Connection.
type Channel struct {
	id   uint16
	conn *Connection

	// rpcMu serializes "write request; await matching reply" sections
	// so replies stay in request order.
	rpcMu sync.Mutex

	mu       sync.Mutex
	isOpen   bool
	closed   *ChannelClosedError
	closeCh  chan struct{}
	replyCh  chan frame.Frame
	getCh    chan *Delivery

	partial partialMessage

	consumersMu sync.Mutex
	consumers   map[string]*Consumer

	confirm confirmState

	notifyMu      sync.Mutex
	onReturn      func(Return)
	notifyReturn  []chan Return
	notifyPublish []chan Confirmation
	notifyCancel  []chan string
}

func newChannel(id uint16, conn *Connection) *Channel {
	return &Channel{
		id:        id,
		conn:      conn,
		closeCh:   make(chan struct{}),
		replyCh:   make(chan frame.Frame, 1),
		getCh:     make(chan *Delivery, 1),
		consumers: make(map[string]*Consumer),
	}
}

// ID returns the channel's numeric id.
func (ch *Channel) ID() uint16 { return ch.id }

func (ch *Channel) open(ctx context.Context) error {
	_, err := ch.call(method.ClassChannel, method.ChannelOpen, method.ChannelOpenArgs{}, method.ClassChannel, method.ChannelOpenOk)
	if err != nil {
		return err
	}
	ch.mu.Lock()
	ch.isOpen = true
	ch.mu.Unlock()
	debug.Debugf(ctx, "amqp091: channel open", "channel", ch.id)
	return nil
}

// call encodes and writes a method frame, then blocks for the matching
// reply.
func (ch *Channel) call(classID, methodID uint16, args methodEncoder, expectClass, expectMethod uint16) (frame.Method, error) {
	ch.rpcMu.Lock()
	defer ch.rpcMu.Unlock()

	if err := ch.checkOpenLocked(); err != nil {
		return frame.Method{}, err
	}

	if err := ch.conn.sendMethod(ch.id, classID, methodID, args); err != nil {
		return frame.Method{}, err
	}

	select {
	case f := <-ch.replyCh:
		m, err := frame.DecodeMethod(f.Payload)
		if err != nil {
			return frame.Method{}, err
		}
		if m.ClassID != expectClass || m.MethodID != expectMethod {
			return frame.Method{}, &UnexpectedFrameError{
				Expected: method.Name(expectClass, expectMethod),
				Got:      method.Name(m.ClassID, m.MethodID),
			}
		}
		return m, nil
	case <-ch.closeCh:
		return frame.Method{}, ch.closedErr()
	}
}

// callNoWait is call without awaiting a reply, for no_wait variants.
func (ch *Channel) callNoWait(classID, methodID uint16, args methodEncoder) error {
	ch.rpcMu.Lock()
	defer ch.rpcMu.Unlock()
	if err := ch.checkOpenLocked(); err != nil {
		return err
	}
	return ch.conn.sendMethod(ch.id, classID, methodID, args)
}

func (ch *Channel) checkOpenLocked() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed != nil {
		closed := *ch.closed
		return &closed
	}
	return nil
}

func (ch *Channel) closedErr() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed != nil {
		closed := *ch.closed
		return &closed
	}
	return ErrClosed
}

// dispatch is invoked by the Connection's single read loop for every
// frame addressed to this channel. It must never block.
func (ch *Channel) dispatch(f frame.Frame) {
	switch f.Kind {
	case frame.KindMethod:
		ch.dispatchMethod(f)
	case frame.KindHeader:
		ch.dispatchHeader(f)
	case frame.KindBody:
		ch.dispatchBody(f)
	default:
		debug.Warnf(context.Background(), "amqp091: unexpected frame kind on channel", "channel", ch.id, "kind", f.Kind)
	}
}

func (ch *Channel) dispatchMethod(f frame.Frame) {
	m, err := frame.DecodeMethod(f.Payload)
	if err != nil {
		debug.Warnf(context.Background(), "amqp091: malformed method frame", "channel", ch.id, "err", err)
		return
	}

	switch {
	case m.ClassID == method.ClassChannel && m.MethodID == method.ChannelClose:
		closeArgs, _ := method.DecodeChannelClose(m.Args)
		_ = ch.conn.sendMethod(ch.id, method.ClassChannel, method.ChannelCloseOk, noArgs{})
		ch.handleClosed(&Error{Code: closeArgs.ReplyCode, Reason: closeArgs.ReplyText, ClassID: closeArgs.ClassID, MethodID: closeArgs.MethodID})

	case m.ClassID == method.ClassBasic && m.MethodID == method.BasicDeliver:
		d, _ := method.DecodeBasicDeliver(m.Args)
		ch.partial.reset()
		ch.partial.kind = partialDeliver
		ch.partial.deliver = deliverMeta{
			consumerTag: d.ConsumerTag, deliveryTag: d.DeliveryTag,
			redelivered: d.Redelivered, exchange: d.Exchange, routingKey: d.RoutingKey,
		}

	case m.ClassID == method.ClassBasic && m.MethodID == method.BasicReturn:
		r, _ := method.DecodeBasicReturn(m.Args)
		ch.partial.reset()
		ch.partial.kind = partialReturn
		ch.partial.ret = returnMeta{replyCode: r.ReplyCode, replyText: r.ReplyText, exchange: r.Exchange, routingKey: r.RoutingKey}

	case m.ClassID == method.ClassBasic && m.MethodID == method.BasicGetOk:
		g, _ := method.DecodeBasicGetOk(m.Args)
		ch.partial.reset()
		ch.partial.kind = partialGetOk
		ch.partial.getOk = getOkMeta{deliveryTag: g.DeliveryTag, redelivered: g.Redelivered, exchange: g.Exchange, routingKey: g.RoutingKey, messageCount: g.MessageCount}

	case m.ClassID == method.ClassBasic && m.MethodID == method.BasicGetEmpty:
		select {
		case ch.getCh <- nil:
		default:
		}

	case m.ClassID == method.ClassBasic && m.MethodID == method.BasicCancel:
		cancelArgs, _ := method.DecodeBasicCancel(m.Args)
		ch.handleUnsolicitedCancel(cancelArgs.ConsumerTag)

	case m.ClassID == method.ClassBasic && m.MethodID == method.BasicAck:
		a, _ := method.DecodeBasicAck(m.Args)
		if !ch.confirm.resolve(a.DeliveryTag, a.Multiple, true, ch.emitPublishConfirmation) {
			ch.protocolViolation("basic.ack referenced unknown delivery tag", a.DeliveryTag)
		}

	case m.ClassID == method.ClassBasic && m.MethodID == method.BasicNack:
		n, _ := method.DecodeBasicNack(m.Args)
		if !ch.confirm.resolve(n.DeliveryTag, n.Multiple, false, ch.emitPublishConfirmation) {
			ch.protocolViolation("basic.nack referenced unknown delivery tag", n.DeliveryTag)
		}

	default:
		// everything else is a synchronous reply: declare-ok, bind-ok,
		// channel.open-ok, confirm.select-ok, consume-ok, cancel-ok, etc.
		select {
		case ch.replyCh <- f:
		default:
			debug.Warnf(context.Background(), "amqp091: dropped unexpected reply frame", "channel", ch.id, "method", method.Name(m.ClassID, m.MethodID))
		}
	}
}

func (ch *Channel) dispatchHeader(f frame.Frame) {
	hdr, err := frame.DecodeHeader(f.Payload)
	if err != nil {
		debug.Warnf(context.Background(), "amqp091: malformed header frame", "channel", ch.id, "err", err)
		return
	}
	ch.partial.props = hdr.Properties
	ch.partial.expected = hdr.BodySize
	ch.partial.sawHeader = true
	if ch.partial.complete() {
		ch.completeMessage()
	}
}

func (ch *Channel) dispatchBody(f frame.Frame) {
	ch.partial.body = append(ch.partial.body, f.Payload...)
	if ch.partial.complete() {
		ch.completeMessage()
	}
}

func (ch *Channel) completeMessage() {
	pm := ch.partial
	ch.partial.reset()

	pub := fromWireProperties(pm.props)
	pub.Body = pm.body

	switch pm.kind {
	case partialReturn:
		ret := Return{
			Publishing: pub,
			ReplyCode:  pm.ret.replyCode,
			ReplyText:  pm.ret.replyText,
			Exchange:   pm.ret.exchange,
			RoutingKey: pm.ret.routingKey,
		}
		ch.notifyMu.Lock()
		cb := ch.onReturn
		subs := append([]chan Return(nil), ch.notifyReturn...)
		ch.notifyMu.Unlock()
		if cb != nil {
			go cb(ret)
		} else if len(subs) == 0 {
			debug.Warnf(context.Background(), "amqp091: unhandled basic.return", "exchange", ret.Exchange, "routing_key", ret.RoutingKey)
		}
		for _, s := range subs {
			select {
			case s <- ret:
			default:
			}
		}

	case partialGetOk:
		d := &Delivery{
			Publishing:  pub,
			DeliveryTag: pm.getOk.deliveryTag,
			Redelivered: pm.getOk.redelivered,
			Exchange:    pm.getOk.exchange,
			RoutingKey:  pm.getOk.routingKey,
			channel:     ch,
		}
		select {
		case ch.getCh <- d:
		default:
		}

	case partialDeliver:
		d := Delivery{
			Publishing:  pub,
			ConsumerTag: pm.deliver.consumerTag,
			DeliveryTag: pm.deliver.deliveryTag,
			Redelivered: pm.deliver.redelivered,
			Exchange:    pm.deliver.exchange,
			RoutingKey:  pm.deliver.routingKey,
			channel:     ch,
		}
		ch.consumersMu.Lock()
		consumer := ch.consumers[d.ConsumerTag]
		ch.consumersMu.Unlock()
		if consumer == nil {
			debug.Warnf(context.Background(), "amqp091: delivery for unknown consumer", "tag", d.ConsumerTag)
			return
		}
		consumer.deliveries.Push(d)
	}
}

func (ch *Channel) handleUnsolicitedCancel(tag string) {
	ch.consumersMu.Lock()
	c := ch.consumers[tag]
	delete(ch.consumers, tag)
	ch.consumersMu.Unlock()
	if c != nil {
		c.close()
	}
	ch.notifyMu.Lock()
	subs := append([]chan string(nil), ch.notifyCancel...)
	ch.notifyMu.Unlock()
	for _, s := range subs {
		select {
		case s <- tag:
		default:
		}
	}
}

// protocolViolation logs and tears down the channel after the broker
// sends a confirm referencing a delivery tag this channel never
// published, which the protocol treats as a fatal channel error.
func (ch *Channel) protocolViolation(msg string, tag uint64) {
	debug.Warnf(context.Background(), "amqp091: "+msg, "channel", ch.id, "tag", tag)
	ch.handleClosed(&Error{Code: ReplyCommandInvalid, Reason: msg, ClassID: method.ClassBasic})
}

// handleClosed transitions the channel to closed, as either a local or
// server-initiated close, removing it from the Connection's map.
func (ch *Channel) handleClosed(reason *Error) {
	ch.mu.Lock()
	if ch.closed != nil {
		ch.mu.Unlock()
		return
	}
	ch.closed = &ChannelClosedError{Cause: reason}
	ch.isOpen = false
	ch.mu.Unlock()

	ch.conn.mu.Lock()
	if cur, ok := ch.conn.channels[ch.id]; ok && cur == ch {
		delete(ch.conn.channels, ch.id)
	}
	ch.conn.mu.Unlock()

	close(ch.closeCh)

	ch.consumersMu.Lock()
	consumers := make([]*Consumer, 0, len(ch.consumers))
	for _, c := range ch.consumers {
		consumers = append(consumers, c)
	}
	ch.consumers = make(map[string]*Consumer)
	ch.consumersMu.Unlock()
	for _, c := range consumers {
		c.close()
	}

	ch.confirm.closeAll()
}

// cascadeClose is invoked by Connection.shutdown for every still-open
// channel when the connection itself goes down.
func (ch *Channel) cascadeClose(reason *Error) error {
	ch.handleClosed(reason)
	return nil
}

// Close writes Channel.Close, waits for Channel.CloseOk, and cascades
// to consumers and blocked WaitForConfirms callers.
func (ch *Channel) Close(ctx context.Context, code uint16, reason string) error {
	ch.mu.Lock()
	if ch.closed != nil {
		ch.mu.Unlock()
		return nil
	}
	ch.mu.Unlock()

	_, err := ch.call(method.ClassChannel, method.ChannelClose, method.ChannelCloseArgs{ReplyCode: code, ReplyText: reason}, method.ClassChannel, method.ChannelCloseOk)
	ch.handleClosed(&Error{Code: code, Reason: reason})
	if cce, ok := err.(*ChannelClosedError); ok {
		_ = cce
		return nil
	}
	return err
}

// ExchangeDeclare declares an exchange.
func (ch *Channel) ExchangeDeclare(ctx context.Context, name, kind string, durable, autoDelete, internal, noWait bool, args *frame.Table) error {
	a := method.ExchangeDeclareArgs{Exchange: name, Type: kind, Durable: durable, AutoDelete: autoDelete, Internal: internal, NoWait: noWait, Arguments: args}
	if noWait {
		return ch.callNoWait(method.ClassExchange, method.ExchangeDeclare, a)
	}
	_, err := ch.call(method.ClassExchange, method.ExchangeDeclare, a, method.ClassExchange, method.ExchangeDeclareOk)
	return err
}

// ExchangeDeclarePassive checks an exchange exists without creating it.
func (ch *Channel) ExchangeDeclarePassive(ctx context.Context, name, kind string) error {
	a := method.ExchangeDeclareArgs{Exchange: name, Type: kind, Passive: true}
	_, err := ch.call(method.ClassExchange, method.ExchangeDeclare, a, method.ClassExchange, method.ExchangeDeclareOk)
	return err
}

func (ch *Channel) ExchangeDelete(ctx context.Context, name string, ifUnused, noWait bool) error {
	a := method.ExchangeDeleteArgs{Exchange: name, IfUnused: ifUnused, NoWait: noWait}
	if noWait {
		return ch.callNoWait(method.ClassExchange, method.ExchangeDelete, a)
	}
	_, err := ch.call(method.ClassExchange, method.ExchangeDelete, a, method.ClassExchange, method.ExchangeDeleteOk)
	return err
}

func (ch *Channel) ExchangeBind(ctx context.Context, destination, source, routingKey string, noWait bool, args *frame.Table) error {
	a := method.ExchangeBindArgs{Destination: destination, Source: source, RoutingKey: routingKey, NoWait: noWait, Arguments: args}
	if noWait {
		return ch.callNoWait(method.ClassExchange, method.ExchangeBind, a)
	}
	_, err := ch.call(method.ClassExchange, method.ExchangeBind, a, method.ClassExchange, method.ExchangeBindOk)
	return err
}

func (ch *Channel) ExchangeUnbind(ctx context.Context, destination, source, routingKey string, noWait bool, args *frame.Table) error {
	a := method.ExchangeUnbindArgs{Destination: destination, Source: source, RoutingKey: routingKey, NoWait: noWait, Arguments: args}
	if noWait {
		return ch.callNoWait(method.ClassExchange, method.ExchangeUnbind, a)
	}
	_, err := ch.call(method.ClassExchange, method.ExchangeUnbind, a, method.ClassExchange, method.ExchangeUnbindOk)
	return err
}

// QueueDeclareResult is the outcome of Queue.Declare/DeclareOk.
type QueueDeclareResult struct {
	Queue         string
	MessageCount  uint32
	ConsumerCount uint32
}

func (ch *Channel) QueueDeclare(ctx context.Context, name string, durable, exclusive, autoDelete, noWait bool, args *frame.Table) (QueueDeclareResult, error) {
	a := method.QueueDeclareArgs{Queue: name, Durable: durable, Exclusive: exclusive, AutoDelete: autoDelete, NoWait: noWait, Arguments: args}
	if noWait {
		return QueueDeclareResult{}, ch.callNoWait(method.ClassQueue, method.QueueDeclare, a)
	}
	m, err := ch.call(method.ClassQueue, method.QueueDeclare, a, method.ClassQueue, method.QueueDeclareOk)
	if err != nil {
		return QueueDeclareResult{}, err
	}
	ok, err := method.DecodeQueueDeclareOk(m.Args)
	if err != nil {
		return QueueDeclareResult{}, err
	}
	return QueueDeclareResult{Queue: ok.Queue, MessageCount: ok.MessageCount, ConsumerCount: ok.ConsumerCount}, nil
}

func (ch *Channel) QueueDeclarePassive(ctx context.Context, name string) (QueueDeclareResult, error) {
	a := method.QueueDeclareArgs{Queue: name, Passive: true}
	m, err := ch.call(method.ClassQueue, method.QueueDeclare, a, method.ClassQueue, method.QueueDeclareOk)
	if err != nil {
		return QueueDeclareResult{}, err
	}
	ok, err := method.DecodeQueueDeclareOk(m.Args)
	if err != nil {
		return QueueDeclareResult{}, err
	}
	return QueueDeclareResult{Queue: ok.Queue, MessageCount: ok.MessageCount, ConsumerCount: ok.ConsumerCount}, nil
}

func (ch *Channel) QueueBind(ctx context.Context, name, exchange, routingKey string, noWait bool, args *frame.Table) error {
	a := method.QueueBindArgs{Queue: name, Exchange: exchange, RoutingKey: routingKey, NoWait: noWait, Arguments: args}
	if noWait {
		return ch.callNoWait(method.ClassQueue, method.QueueBind, a)
	}
	_, err := ch.call(method.ClassQueue, method.QueueBind, a, method.ClassQueue, method.QueueBindOk)
	return err
}

func (ch *Channel) QueueUnbind(ctx context.Context, name, exchange, routingKey string, args *frame.Table) error {
	a := method.QueueUnbindArgs{Queue: name, Exchange: exchange, RoutingKey: routingKey, Arguments: args}
	_, err := ch.call(method.ClassQueue, method.QueueUnbind, a, method.ClassQueue, method.QueueUnbindOk)
	return err
}

func (ch *Channel) QueuePurge(ctx context.Context, name string, noWait bool) (uint32, error) {
	a := method.QueuePurgeArgs{Queue: name, NoWait: noWait}
	if noWait {
		return 0, ch.callNoWait(method.ClassQueue, method.QueuePurge, a)
	}
	m, err := ch.call(method.ClassQueue, method.QueuePurge, a, method.ClassQueue, method.QueuePurgeOk)
	if err != nil {
		return 0, err
	}
	ok, err := method.DecodeQueuePurgeOk(m.Args)
	return ok.MessageCount, err
}

func (ch *Channel) QueueDelete(ctx context.Context, name string, ifUnused, ifEmpty, noWait bool) (uint32, error) {
	a := method.QueueDeleteArgs{Queue: name, IfUnused: ifUnused, IfEmpty: ifEmpty, NoWait: noWait}
	if noWait {
		return 0, ch.callNoWait(method.ClassQueue, method.QueueDelete, a)
	}
	m, err := ch.call(method.ClassQueue, method.QueueDelete, a, method.ClassQueue, method.QueueDeleteOk)
	if err != nil {
		return 0, err
	}
	ok, err := method.DecodeQueueDeleteOk(m.Args)
	return ok.MessageCount, err
}

// Qos sets the channel's prefetch limits (Basic.Qos).
func (ch *Channel) Qos(prefetchCount uint16, prefetchSize uint32, global bool) error {
	_, err := ch.call(method.ClassBasic, method.BasicQos, method.BasicQosArgs{PrefetchSize: prefetchSize, PrefetchCount: prefetchCount, Global: global}, method.ClassBasic, method.BasicQosOk)
	return err
}

// ConfirmSelect enables publisher-confirm mode. Calling it twice is a
// no-op after the first success.
func (ch *Channel) ConfirmSelect(noWait bool) error {
	ch.confirm.mu.Lock()
	alreadyOn := ch.confirm.enabled
	ch.confirm.mu.Unlock()
	if alreadyOn {
		return nil
	}
	a := method.ConfirmSelectArgs{NoWait: noWait}
	if noWait {
		if err := ch.callNoWait(method.ClassConfirm, method.ConfirmSelect, a); err != nil {
			return err
		}
	} else if _, err := ch.call(method.ClassConfirm, method.ConfirmSelect, a, method.ClassConfirm, method.ConfirmSelectOk); err != nil {
		return err
	}
	ch.confirm.mu.Lock()
	ch.confirm.enabled = true
	ch.confirm.mu.Unlock()
	return nil
}

// TxSelect/TxCommit/TxRollback wire the Tx class method table.
func (ch *Channel) TxSelect() error {
	_, err := ch.call(method.ClassTx, method.TxSelect, method.TxSelectArgs{}, method.ClassTx, method.TxSelectOk)
	return err
}

func (ch *Channel) TxCommit() error {
	_, err := ch.call(method.ClassTx, method.TxCommit, method.TxCommitArgs{}, method.ClassTx, method.TxCommitOk)
	return err
}

func (ch *Channel) TxRollback() error {
	_, err := ch.call(method.ClassTx, method.TxRollback, method.TxRollbackArgs{}, method.ClassTx, method.TxRollbackOk)
	return err
}

// Recover asks the broker to redeliver unacked messages on this
// channel. A 540 not-implemented reply is tolerated and surfaced
// rather than treated as fatal.
func (ch *Channel) Recover(requeue bool) error {
	_, err := ch.call(method.ClassBasic, method.BasicRecover, method.BasicRecoverArgs{Requeue: requeue}, method.ClassBasic, method.BasicRecoverOk)
	if cce, ok := err.(*UnexpectedFrameError); ok {
		return cce
	}
	return err
}

// Publish emits Basic.Publish + Content-Header + 0..N Body frames as
// one atomic write.
func (ch *Channel) Publish(ctx context.Context, exchange, routingKey string, mandatory, immediate bool, msg Publishing) error {
	ch.mu.Lock()
	closed := ch.closed
	ch.mu.Unlock()
	if closed != nil {
		c := *closed
		return &c
	}

	ch.confirm.mu.Lock()
	confirmOn := ch.confirm.enabled
	var seq uint64
	if confirmOn {
		ch.confirm.nextSeq++
		seq = ch.confirm.nextSeq
		ch.confirm.pending = append(ch.confirm.pending, seq)
	}
	ch.confirm.mu.Unlock()

	publishArgs := method.BasicPublishArgs{Exchange: exchange, RoutingKey: routingKey, Mandatory: mandatory, Immediate: immediate}
	encodedPublish, err := publishArgs.Encode()
	if err != nil {
		return err
	}

	var buffers [][]byte

	var methodBuf sizeBuffer
	if err := frame.WriteMethod(&methodBuf, ch.id, method.ClassBasic, method.BasicPublish, encodedPublish); err != nil {
		return err
	}
	buffers = append(buffers, methodBuf.Bytes())

	var headerBuf sizeBuffer
	if err := frame.WriteHeader(&headerBuf, ch.id, method.ClassBasic, uint64(len(msg.Body)), msg.toWireProperties()); err != nil {
		return err
	}
	buffers = append(buffers, headerBuf.Bytes())

	chunkSize := int(ch.conn.frameMax) - frame.HeaderSize - 1
	if chunkSize <= 0 {
		chunkSize = minFrameMax - frame.HeaderSize - 1
	}
	for offset := 0; offset < len(msg.Body); offset += chunkSize {
		end := offset + chunkSize
		if end > len(msg.Body) {
			end = len(msg.Body)
		}
		var bodyBuf sizeBuffer
		if err := frame.WriteBody(&bodyBuf, ch.id, msg.Body[offset:end]); err != nil {
			return err
		}
		buffers = append(buffers, bodyBuf.Bytes())
	}

	if err := ch.conn.transport.writeFrames(buffers...); err != nil {
		return err
	}
	ch.conn.markSent()
	return nil
}

// WaitForConfirms blocks until every publish made so far on this
// channel has been acked or nacked. It returns false if any publish in
// the outstanding batch was nacked.
func (ch *Channel) WaitForConfirms(ctx context.Context) (bool, error) {
	return ch.confirm.wait(ctx, ch.closeCh)
}

// NotifyPublish registers ch2 to receive one Confirmation per resolved
// delivery tag.
func (ch *Channel) NotifyPublish(ch2 chan Confirmation) chan Confirmation {
	ch.notifyMu.Lock()
	ch.notifyPublish = append(ch.notifyPublish, ch2)
	ch.notifyMu.Unlock()
	return ch2
}

// NotifyReturn registers ch2 to receive undeliverable mandatory/
// immediate publishes.
func (ch *Channel) NotifyReturn(ch2 chan Return) chan Return {
	ch.notifyMu.Lock()
	ch.notifyReturn = append(ch.notifyReturn, ch2)
	ch.notifyMu.Unlock()
	return ch2
}

// NotifyCancel registers ch2 to receive unsolicited consumer-cancel tags.
func (ch *Channel) NotifyCancel(ch2 chan string) chan string {
	ch.notifyMu.Lock()
	ch.notifyCancel = append(ch.notifyCancel, ch2)
	ch.notifyMu.Unlock()
	return ch2
}

// SetOnReturn installs the single-callback form of return handling.
func (ch *Channel) SetOnReturn(cb func(Return)) {
	ch.notifyMu.Lock()
	ch.onReturn = cb
	ch.notifyMu.Unlock()
}

func (ch *Channel) emitPublishConfirmation(tag uint64, ack bool) {
	ch.notifyMu.Lock()
	subs := append([]chan Confirmation(nil), ch.notifyPublish...)
	ch.notifyMu.Unlock()
	for _, s := range subs {
		select {
		case s <- Confirmation{DeliveryTag: tag, Ack: ack}:
		default:
		}
	}
}

// Ack acknowledges one or more deliveries (Basic.Ack).
func (ch *Channel) Ack(deliveryTag uint64, multiple bool) error {
	return ch.conn.sendMethod(ch.id, method.ClassBasic, method.BasicAck, method.BasicAckArgs{DeliveryTag: deliveryTag, Multiple: multiple})
}

// Nack negatively acknowledges one or more deliveries (Basic.Nack).
func (ch *Channel) Nack(deliveryTag uint64, multiple, requeue bool) error {
	return ch.conn.sendMethod(ch.id, method.ClassBasic, method.BasicNack, method.BasicNackArgs{DeliveryTag: deliveryTag, Multiple: multiple, Requeue: requeue})
}

// Reject rejects a single delivery (Basic.Reject).
func (ch *Channel) Reject(deliveryTag uint64, requeue bool) error {
	return ch.conn.sendMethod(ch.id, method.ClassBasic, method.BasicReject, method.BasicRejectArgs{DeliveryTag: deliveryTag, Requeue: requeue})
}

// Get implements Basic.Get: synchronously fetches at most one message.
func (ch *Channel) Get(ctx context.Context, queueName string, noAck bool) (*Delivery, bool, error) {
	ch.rpcMu.Lock()
	defer ch.rpcMu.Unlock()

	if err := ch.checkOpenLocked(); err != nil {
		return nil, false, err
	}
	if err := ch.conn.sendMethod(ch.id, method.ClassBasic, method.BasicGet, method.BasicGetArgs{Queue: queueName, NoAck: noAck}); err != nil {
		return nil, false, err
	}

	select {
	case d := <-ch.getCh:
		if d == nil {
			return nil, false, nil
		}
		return d, true, nil
	case <-ch.closeCh:
		return nil, false, ch.closedErr()
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Consume implements Basic.Consume: registers a Consumer and spawns its
// worker pool.
func (ch *Channel) Consume(ctx context.Context, queueName, consumerTag string, noAck, exclusive bool, args *frame.Table, workerThreads int, handler func(Delivery)) (*Consumer, error) {
	if consumerTag == "" {
		consumerTag = uuid.NewString()
	}
	a := method.BasicConsumeArgs{Queue: queueName, ConsumerTag: consumerTag, NoAck: noAck, Exclusive: exclusive, Arguments: args}
	m, err := ch.call(method.ClassBasic, method.BasicConsume, a, method.ClassBasic, method.BasicConsumeOk)
	if err != nil {
		return nil, err
	}
	ok, err := method.DecodeBasicConsumeOk(m.Args)
	if err != nil {
		return nil, err
	}

	c := newConsumer(ch, ok.ConsumerTag, queueName)
	ch.consumersMu.Lock()
	ch.consumers[ok.ConsumerTag] = c
	ch.consumersMu.Unlock()

	c.start(workerThreads, handler)
	return c, nil
}

// Cancel implements Basic.Cancel for a locally-initiated unsubscribe.
func (ch *Channel) Cancel(consumerTag string, noWait bool) error {
	a := method.BasicCancelArgs{ConsumerTag: consumerTag, NoWait: noWait}
	if !noWait {
		if _, err := ch.call(method.ClassBasic, method.BasicCancel, a, method.ClassBasic, method.BasicCancelOk); err != nil {
			return err
		}
	} else if err := ch.callNoWait(method.ClassBasic, method.BasicCancel, a); err != nil {
		return err
	}

	ch.consumersMu.Lock()
	c := ch.consumers[consumerTag]
	delete(ch.consumers, consumerTag)
	ch.consumersMu.Unlock()
	if c != nil {
		c.close()
	}
	return nil
}

// confirmState tracks publisher-confirm bookkeeping for one channel:
// per-tag ack/nack resolution and multiple-flag batch resolution.
type confirmState struct {
	mu      sync.Mutex
	enabled bool
	nextSeq uint64
	pending []uint64 // ascending
	anyNack bool
	waiters []chan bool
}

// resolve applies an ack/nack for tag and reports whether tag matched
// a pending publish. A false return on the multiple=false path is a
// protocol violation: the broker acknowledged a delivery tag this
// channel never published.
func (cs *confirmState) resolve(tag uint64, multiple, ack bool, emit func(uint64, bool)) bool {
	cs.mu.Lock()
	var resolved []uint64
	found := true
	if multiple {
		i := sort.Search(len(cs.pending), func(i int) bool { return cs.pending[i] > tag })
		resolved = append(resolved, cs.pending[:i]...)
		cs.pending = cs.pending[i:]
	} else {
		found = false
		for i, t := range cs.pending {
			if t == tag {
				found = true
				resolved = append(resolved, t)
				cs.pending = append(cs.pending[:i], cs.pending[i+1:]...)
				break
			}
		}
	}
	if !ack {
		cs.anyNack = true
	}
	drained := len(cs.pending) == 0
	var waiters []chan bool
	var result bool
	if drained {
		result = !cs.anyNack
		waiters = cs.waiters
		cs.waiters = nil
		cs.anyNack = false
	}
	cs.mu.Unlock()

	for _, t := range resolved {
		emit(t, ack)
	}
	for _, w := range waiters {
		w <- result
		close(w)
	}
	return found
}

func (cs *confirmState) wait(ctx context.Context, closeCh chan struct{}) (bool, error) {
	cs.mu.Lock()
	if len(cs.pending) == 0 {
		ok := !cs.anyNack
		cs.anyNack = false
		cs.mu.Unlock()
		return ok, nil
	}
	w := make(chan bool, 1)
	cs.waiters = append(cs.waiters, w)
	cs.mu.Unlock()

	select {
	case ok := <-w:
		return ok, nil
	case <-closeCh:
		return false, ErrClosed
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (cs *confirmState) closeAll() {
	cs.mu.Lock()
	waiters := cs.waiters
	cs.waiters = nil
	cs.mu.Unlock()
	for _, w := range waiters {
		w <- false
		close(w)
	}
}
