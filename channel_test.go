package amqp091

import (
	"context"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/require"

	"github.com/lavinmq/amqp091/internal/frame"
	"github.com/lavinmq/amqp091/internal/method"
	"github.com/lavinmq/amqp091/internal/mocks"
)

type okArgs struct{}

func (okArgs) Encode() ([]byte, error) { return nil, nil }

func openTestChannel(t *testing.T, extra func(frame.Frame) ([]byte, error)) (*Connection, *Channel, *mocks.MockConnection) {
	t.Helper()
	c, mc := newTestConnection(t, func(f frame.Frame) ([]byte, error) {
		if f.Kind == frame.KindMethod {
			if m, err := frame.DecodeMethod(f.Payload); err == nil {
				if m.ClassID == method.ClassChannel && m.MethodID == method.ChannelOpen {
					return mocks.ChannelOpenOk(f.Channel)
				}
			}
		}
		if extra != nil {
			return extra(f)
		}
		return nil, nil
	})
	ch, err := c.Channel(context.Background())
	require.NoError(t, err)
	return c, ch, mc
}

func TestExchangeDeclareSendsCorrectMethod(t *testing.T) {
	defer leaktest.Check(t)()
	var gotName, gotType string
	_, ch, mc := openTestChannel(t, func(f frame.Frame) ([]byte, error) {
		m, err := frame.DecodeMethod(f.Payload)
		if err != nil {
			return nil, err
		}
		if m.ClassID == method.ClassExchange && m.MethodID == method.ExchangeDeclare {
			r := frame.NewArgReader(m.Args)
			_, err := r.Short() // reserved ticket
			require.NoError(t, err)
			gotName, err = r.ShortString()
			require.NoError(t, err)
			gotType, err = r.ShortString()
			require.NoError(t, err)
			return mocks.EncodeMethod(f.Channel, method.ClassExchange, method.ExchangeDeclareOk, okArgs{})
		}
		return nil, nil
	})

	require.NoError(t, ch.ExchangeDeclare(context.Background(), "orders", "topic", true, false, false, false, nil))
	require.Equal(t, "orders", gotName)
	require.Equal(t, "topic", gotType)
	mc.Close()
}

func TestQueueDeclareReturnsBrokerFields(t *testing.T) {
	defer leaktest.Check(t)()
	_, ch, mc := openTestChannel(t, func(f frame.Frame) ([]byte, error) {
		m, err := frame.DecodeMethod(f.Payload)
		if err != nil {
			return nil, err
		}
		if m.ClassID == method.ClassQueue && m.MethodID == method.QueueDeclare {
			return mocks.EncodeMethod(f.Channel, method.ClassQueue, method.QueueDeclareOk, queueDeclareOkArgs{
				Queue: "orders.q", MessageCount: 7, ConsumerCount: 1,
			})
		}
		return nil, nil
	})

	res, err := ch.QueueDeclare(context.Background(), "orders.q", true, false, false, false, nil)
	require.NoError(t, err)
	require.Equal(t, "orders.q", res.Queue)
	require.EqualValues(t, 7, res.MessageCount)
	require.EqualValues(t, 1, res.ConsumerCount)
	mc.Close()
}

func TestPublishWithConfirmsSingleAckResolvesWait(t *testing.T) {
	defer leaktest.Check(t)()
	_, ch, mc := openTestChannel(t, func(f frame.Frame) ([]byte, error) {
		m, err := frame.DecodeMethod(f.Payload)
		if err != nil {
			return nil, err
		}
		if m.ClassID == method.ClassConfirm && m.MethodID == method.ConfirmSelect {
			return mocks.EncodeMethod(f.Channel, method.ClassConfirm, method.ConfirmSelectOk, okArgs{})
		}
		return nil, nil
	})

	require.NoError(t, ch.ConfirmSelect(false))
	require.NoError(t, ch.Publish(context.Background(), "", "orders.q", false, false, Publishing{Body: []byte("hi")}))

	ackFrame, err := mocks.EncodeMethod(ch.ID(), method.ClassBasic, method.BasicAck, basicAckArgs{DeliveryTag: 1, Multiple: false})
	require.NoError(t, err)
	mc.Push(ackFrame)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ok, err := ch.WaitForConfirms(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	mc.Close()
}

func TestPublishConfirmsMultipleAckResolvesBatch(t *testing.T) {
	defer leaktest.Check(t)()
	_, ch, mc := openTestChannel(t, func(f frame.Frame) ([]byte, error) {
		m, err := frame.DecodeMethod(f.Payload)
		if err != nil {
			return nil, err
		}
		if m.ClassID == method.ClassConfirm && m.MethodID == method.ConfirmSelect {
			return mocks.EncodeMethod(f.Channel, method.ClassConfirm, method.ConfirmSelectOk, okArgs{})
		}
		return nil, nil
	})

	require.NoError(t, ch.ConfirmSelect(false))
	for i := 0; i < 3; i++ {
		require.NoError(t, ch.Publish(context.Background(), "", "orders.q", false, false, Publishing{Body: []byte("msg")}))
	}

	ackFrame, err := mocks.EncodeMethod(ch.ID(), method.ClassBasic, method.BasicAck, basicAckArgs{DeliveryTag: 3, Multiple: true})
	require.NoError(t, err)
	mc.Push(ackFrame)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ok, err := ch.WaitForConfirms(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	mc.Close()
}

func TestPublishConfirmsNackReturnsFalse(t *testing.T) {
	defer leaktest.Check(t)()
	_, ch, mc := openTestChannel(t, func(f frame.Frame) ([]byte, error) {
		m, err := frame.DecodeMethod(f.Payload)
		if err != nil {
			return nil, err
		}
		if m.ClassID == method.ClassConfirm && m.MethodID == method.ConfirmSelect {
			return mocks.EncodeMethod(f.Channel, method.ClassConfirm, method.ConfirmSelectOk, okArgs{})
		}
		return nil, nil
	})

	require.NoError(t, ch.ConfirmSelect(false))
	require.NoError(t, ch.Publish(context.Background(), "", "orders.q", false, false, Publishing{Body: []byte("hi")}))

	nackFrame, err := mocks.EncodeMethod(ch.ID(), method.ClassBasic, method.BasicNack, basicNackArgs{DeliveryTag: 1, Multiple: false, Requeue: true})
	require.NoError(t, err)
	mc.Push(nackFrame)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ok, err := ch.WaitForConfirms(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	mc.Close()
}

func TestGetReturnsDeliveryWithBody(t *testing.T) {
	defer leaktest.Check(t)()
	_, ch, mc := openTestChannel(t, func(f frame.Frame) ([]byte, error) {
		m, err := frame.DecodeMethod(f.Payload)
		if err != nil {
			return nil, err
		}
		if m.ClassID == method.ClassBasic && m.MethodID == method.BasicGet {
			getOk, err := mocks.EncodeMethod(f.Channel, method.ClassBasic, method.BasicGetOk, basicGetOkArgs{
				DeliveryTag: 9, Exchange: "", RoutingKey: "orders.q",
			})
			if err != nil {
				return nil, err
			}
			var props frame.Properties
			props.SetContentType("text/plain")
			header, err := mocks.EncodeHeader(f.Channel, method.ClassBasic, 5, props)
			if err != nil {
				return nil, err
			}
			body, err := mocks.EncodeBody(f.Channel, []byte("hello"))
			if err != nil {
				return nil, err
			}
			return append(append(getOk, header...), body...), nil
		}
		return nil, nil
	})

	d, ok, err := ch.Get(context.Background(), "orders.q", false)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(9), d.DeliveryTag)
	require.Equal(t, "hello", string(d.Body))
	require.Equal(t, "text/plain", d.ContentType)
	mc.Close()
}

func TestGetEmptyReturnsNoDelivery(t *testing.T) {
	defer leaktest.Check(t)()
	_, ch, mc := openTestChannel(t, func(f frame.Frame) ([]byte, error) {
		m, err := frame.DecodeMethod(f.Payload)
		if err != nil {
			return nil, err
		}
		if m.ClassID == method.ClassBasic && m.MethodID == method.BasicGet {
			return mocks.EncodeMethod(f.Channel, method.ClassBasic, method.BasicGetEmpty, okArgs{})
		}
		return nil, nil
	})

	d, ok, err := ch.Get(context.Background(), "orders.q", false)
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, d)
	mc.Close()
}

func TestConsumeDispatchesDeliveriesToHandler(t *testing.T) {
	defer leaktest.Check(t)()
	_, ch, mc := openTestChannel(t, func(f frame.Frame) ([]byte, error) {
		m, err := frame.DecodeMethod(f.Payload)
		if err != nil {
			return nil, err
		}
		if m.ClassID == method.ClassBasic && m.MethodID == method.BasicConsume {
			return mocks.EncodeMethod(f.Channel, method.ClassBasic, method.BasicConsumeOk, basicConsumeOkArgs{ConsumerTag: "ctag-1"})
		}
		if m.ClassID == method.ClassBasic && m.MethodID == method.BasicCancel {
			return mocks.EncodeMethod(f.Channel, method.ClassBasic, method.BasicCancelOk, basicConsumeOkArgs{ConsumerTag: "ctag-1"})
		}
		return nil, nil
	})

	received := make(chan Delivery, 1)
	consumer, err := ch.Consume(context.Background(), "orders.q", "", false, false, nil, 1, func(d Delivery) {
		received <- d
	})
	require.NoError(t, err)
	require.Equal(t, "ctag-1", consumer.Tag())

	deliverFrame, err := mocks.EncodeMethod(ch.ID(), method.ClassBasic, method.BasicDeliver, basicDeliverArgs{
		ConsumerTag: "ctag-1", DeliveryTag: 1, Exchange: "", RoutingKey: "orders.q",
	})
	require.NoError(t, err)
	mc.Push(deliverFrame)

	var props frame.Properties
	header, err := mocks.EncodeHeader(ch.ID(), method.ClassBasic, 3, props)
	require.NoError(t, err)
	mc.Push(header)

	body, err := mocks.EncodeBody(ch.ID(), []byte("abc"))
	require.NoError(t, err)
	mc.Push(body)

	select {
	case d := <-received:
		require.Equal(t, "abc", string(d.Body))
		require.Equal(t, "ctag-1", d.ConsumerTag)
	case <-time.After(time.Second):
		t.Fatal("handler was never invoked")
	}

	require.NoError(t, ch.Cancel("ctag-1", false))
	mc.Close()
}

func TestNotifyReturnReceivesUnroutedPublish(t *testing.T) {
	defer leaktest.Check(t)()
	_, ch, mc := openTestChannel(t, nil)
	notify := ch.NotifyReturn(make(chan Return, 1))

	retFrame, err := mocks.EncodeMethod(ch.ID(), method.ClassBasic, method.BasicReturn, basicReturnArgs{
		ReplyCode: ReplyNoRoute, ReplyText: "no route", Exchange: "orders", RoutingKey: "missing",
	})
	require.NoError(t, err)
	mc.Push(retFrame)

	var props frame.Properties
	header, err := mocks.EncodeHeader(ch.ID(), method.ClassBasic, 2, props)
	require.NoError(t, err)
	mc.Push(header)
	body, err := mocks.EncodeBody(ch.ID(), []byte("hi"))
	require.NoError(t, err)
	mc.Push(body)

	select {
	case r := <-notify:
		require.Equal(t, "missing", r.RoutingKey)
		require.Equal(t, "hi", string(r.Body))
	case <-time.After(time.Second):
		t.Fatal("did not receive basic.return")
	}
	mc.Close()
}

func TestChannelCloseFromPeerUnblocksConfirmWaiters(t *testing.T) {
	defer leaktest.Check(t)()
	_, ch, mc := openTestChannel(t, func(f frame.Frame) ([]byte, error) {
		m, err := frame.DecodeMethod(f.Payload)
		if err != nil {
			return nil, err
		}
		if m.ClassID == method.ClassConfirm && m.MethodID == method.ConfirmSelect {
			return mocks.EncodeMethod(f.Channel, method.ClassConfirm, method.ConfirmSelectOk, okArgs{})
		}
		return nil, nil
	})
	require.NoError(t, ch.ConfirmSelect(false))
	require.NoError(t, ch.Publish(context.Background(), "", "orders.q", false, false, Publishing{Body: []byte("x")}))

	waitDone := make(chan error, 1)
	go func() {
		_, err := ch.WaitForConfirms(context.Background())
		waitDone <- err
	}()

	closeFrame, err := mocks.EncodeMethod(ch.ID(), method.ClassChannel, method.ChannelClose, channelCloseArgs{
		ReplyCode: ReplyPreconditionFailed, ReplyText: "inequivalent arg",
	})
	require.NoError(t, err)
	mc.Push(closeFrame)

	select {
	case <-ch.closeCh:
	case <-time.After(time.Second):
		t.Fatal("channel did not close")
	}
	select {
	case <-waitDone:
	case <-time.After(time.Second):
		t.Fatal("WaitForConfirms did not unblock on channel close")
	}
	mc.Close()
}

type queueDeclareOkArgs struct {
	Queue         string
	MessageCount  uint32
	ConsumerCount uint32
}

func (a queueDeclareOkArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	if _, err := w.ShortString(a.Queue); err != nil {
		return nil, err
	}
	w.Long(a.MessageCount)
	w.Long(a.ConsumerCount)
	return w.Bytes(), nil
}

type basicAckArgs struct {
	DeliveryTag uint64
	Multiple    bool
}

func (a basicAckArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	w.LongLong(a.DeliveryTag)
	w.Bit(a.Multiple)
	return w.Bytes(), nil
}

type basicNackArgs struct {
	DeliveryTag uint64
	Multiple    bool
	Requeue     bool
}

func (a basicNackArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	w.LongLong(a.DeliveryTag)
	w.Bit(a.Multiple)
	w.Bit(a.Requeue)
	return w.Bytes(), nil
}

type basicGetOkArgs struct {
	DeliveryTag  uint64
	Redelivered  bool
	Exchange     string
	RoutingKey   string
	MessageCount uint32
}

func (a basicGetOkArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	w.LongLong(a.DeliveryTag)
	w.Bit(a.Redelivered)
	if _, err := w.ShortString(a.Exchange); err != nil {
		return nil, err
	}
	if _, err := w.ShortString(a.RoutingKey); err != nil {
		return nil, err
	}
	w.Long(a.MessageCount)
	return w.Bytes(), nil
}

type basicConsumeOkArgs struct {
	ConsumerTag string
}

func (a basicConsumeOkArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	if _, err := w.ShortString(a.ConsumerTag); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

type basicDeliverArgs struct {
	ConsumerTag string
	DeliveryTag uint64
	Redelivered bool
	Exchange    string
	RoutingKey  string
}

func (a basicDeliverArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	if _, err := w.ShortString(a.ConsumerTag); err != nil {
		return nil, err
	}
	w.LongLong(a.DeliveryTag)
	w.Bit(a.Redelivered)
	if _, err := w.ShortString(a.Exchange); err != nil {
		return nil, err
	}
	if _, err := w.ShortString(a.RoutingKey); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

type basicReturnArgs struct {
	ReplyCode  uint16
	ReplyText  string
	Exchange   string
	RoutingKey string
}

func (a basicReturnArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	w.Short(a.ReplyCode)
	if _, err := w.ShortString(a.ReplyText); err != nil {
		return nil, err
	}
	if _, err := w.ShortString(a.Exchange); err != nil {
		return nil, err
	}
	if _, err := w.ShortString(a.RoutingKey); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

type channelCloseArgs struct {
	ReplyCode uint16
	ReplyText string
}

func (a channelCloseArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	w.Short(a.ReplyCode)
	if _, err := w.ShortString(a.ReplyText); err != nil {
		return nil, err
	}
	w.Short(0)
	w.Short(0)
	return w.Bytes(), nil
}
