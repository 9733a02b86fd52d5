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

// newTestConnection performs a full handshake against a mocks.MockConnection
// and starts the read loop, so per-channel RPCs resolve the same way they
// would against a real broker. extra handles any post-handshake frame the
// test cares about; everything else gets no reply.
func newTestConnection(t *testing.T, extra func(frame.Frame) ([]byte, error)) (*Connection, *mocks.MockConnection) {
	t.Helper()

	var mc *mocks.MockConnection
	mc = mocks.NewConnection(func(f frame.Frame) ([]byte, error) {
		if f.Kind == frame.KindMethod {
			if m, err := frame.DecodeMethod(f.Payload); err == nil {
				switch {
				case m.ClassID == method.ClassConnection && m.MethodID == method.ConnectionStartOk:
					return mocks.ConnectionTune(2048, 131072, 0)
				case m.ClassID == method.ClassConnection && m.MethodID == method.ConnectionTuneOk:
					return nil, nil
				case m.ClassID == method.ClassConnection && m.MethodID == method.ConnectionOpen:
					return mocks.ConnectionOpenOk()
				}
			}
		}
		if extra != nil {
			return extra(f)
		}
		return nil, nil
	})

	start, err := mocks.ConnectionStart()
	require.NoError(t, err)
	mc.Push(start)

	c := &Connection{
		transport: &transport{conn: mc},
		uri:       URI{Vhost: "/", ConnectTimeout: 2 * time.Second},
		channels:  make(map[uint16]*Channel),
		closeCh:   make(chan struct{}),
	}
	require.NoError(t, c.handshake(context.Background(), defaultConfig()))

	c.wg.Add(1)
	go c.readLoop()

	t.Cleanup(func() { mc.Close() })
	return c, mc
}

func TestHandshakeNegotiatesTuneParameters(t *testing.T) {
	defer leaktest.Check(t)()
	c, mc := newTestConnection(t, nil)
	require.Equal(t, uint16(2048), c.channelMax)
	require.Equal(t, uint32(131072), c.frameMax)
	require.Zero(t, c.heartbeat)
	mc.Close()
}

func TestChannelOpenAllocatesLowestFreeID(t *testing.T) {
	defer leaktest.Check(t)()
	c, mc := newTestConnection(t, func(f frame.Frame) ([]byte, error) {
		m, err := frame.DecodeMethod(f.Payload)
		if err != nil {
			return nil, err
		}
		if m.ClassID == method.ClassChannel && m.MethodID == method.ChannelOpen {
			return mocks.ChannelOpenOk(f.Channel)
		}
		return nil, nil
	})

	ch1, err := c.Channel(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint16(1), ch1.ID())

	ch2, err := c.Channel(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint16(2), ch2.ID())

	mc.Close()
}

func TestChannelWithIDRejectsZero(t *testing.T) {
	defer leaktest.Check(t)()
	c, mc := newTestConnection(t, nil)
	_, err := c.ChannelWithID(context.Background(), 0)
	require.Error(t, err)
	var argErr *ArgumentError
	require.ErrorAs(t, err, &argErr)
	mc.Close()
}

func TestChannelWithIDReturnsExistingChannel(t *testing.T) {
	defer leaktest.Check(t)()
	c, mc := newTestConnection(t, func(f frame.Frame) ([]byte, error) {
		m, err := frame.DecodeMethod(f.Payload)
		if err != nil {
			return nil, err
		}
		if m.ClassID == method.ClassChannel && m.MethodID == method.ChannelOpen {
			return mocks.ChannelOpenOk(f.Channel)
		}
		return nil, nil
	})

	ch1, err := c.ChannelWithID(context.Background(), 5)
	require.NoError(t, err)
	ch2, err := c.ChannelWithID(context.Background(), 5)
	require.NoError(t, err)
	require.Same(t, ch1, ch2)

	mc.Close()
}

func TestNoFreeChannelIDsReturnsArgumentError(t *testing.T) {
	defer leaktest.Check(t)()
	c, mc := newTestConnection(t, func(f frame.Frame) ([]byte, error) {
		m, err := frame.DecodeMethod(f.Payload)
		if err != nil {
			return nil, err
		}
		if m.ClassID == method.ClassChannel && m.MethodID == method.ChannelOpen {
			return mocks.ChannelOpenOk(f.Channel)
		}
		return nil, nil
	})
	c.channelMax = 1

	ch1, err := c.Channel(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint16(1), ch1.ID())

	_, err = c.Channel(context.Background())
	require.Error(t, err)
	var argErr *ArgumentError
	require.ErrorAs(t, err, &argErr)

	mc.Close()
}

func TestConnectionCloseFromPeerCascadesToChannels(t *testing.T) {
	defer leaktest.Check(t)()
	c, mc := newTestConnection(t, func(f frame.Frame) ([]byte, error) {
		m, err := frame.DecodeMethod(f.Payload)
		if err != nil {
			return nil, err
		}
		if m.ClassID == method.ClassChannel && m.MethodID == method.ChannelOpen {
			return mocks.ChannelOpenOk(f.Channel)
		}
		return nil, nil
	})

	ch, err := c.Channel(context.Background())
	require.NoError(t, err)

	closeFrame, err := mocks.EncodeMethod(0, method.ClassConnection, method.ConnectionClose, connectionCloseArgs{
		ReplyCode: ReplyConnectionForced,
		ReplyText: "broker shutdown",
	})
	require.NoError(t, err)
	mc.Push(closeFrame)

	select {
	case <-ch.closeCh:
	case <-time.After(time.Second):
		t.Fatal("channel was not closed after connection.close from peer")
	}
	require.Error(t, ch.closedErr())

	select {
	case <-c.closeCh:
	case <-time.After(time.Second):
		t.Fatal("connection did not shut down")
	}
}

func TestNotifyBlockedReceivesTransitions(t *testing.T) {
	defer leaktest.Check(t)()
	c, mc := newTestConnection(t, nil)

	notify := c.NotifyBlocked(make(chan Blocking, 2))

	blockedFrame, err := mocks.EncodeMethod(0, method.ClassConnection, method.ConnectionBlocked, connectionBlockedArgs{Reason: "low disk"})
	require.NoError(t, err)
	mc.Push(blockedFrame)

	select {
	case b := <-notify:
		require.True(t, b.Active)
		require.Equal(t, "low disk", b.Reason)
	case <-time.After(time.Second):
		t.Fatal("did not receive blocked notification")
	}

	unblockedFrame, err := mocks.EncodeMethod(0, method.ClassConnection, method.ConnectionUnblocked, emptyEncoder{})
	require.NoError(t, err)
	mc.Push(unblockedFrame)

	select {
	case b := <-notify:
		require.False(t, b.Active)
	case <-time.After(time.Second):
		t.Fatal("did not receive unblocked notification")
	}

	mc.Close()
}

// connectionCloseArgs/connectionBlockedArgs/emptyEncoder encode the
// connection-level methods this test file pushes as server frames.
type connectionCloseArgs struct {
	ReplyCode uint16
	ReplyText string
}

func (a connectionCloseArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	w.Short(a.ReplyCode)
	if _, err := w.ShortString(a.ReplyText); err != nil {
		return nil, err
	}
	w.Short(0)
	w.Short(0)
	return w.Bytes(), nil
}

type connectionBlockedArgs struct {
	Reason string
}

func (a connectionBlockedArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	if _, err := w.ShortString(a.Reason); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

type emptyEncoder struct{}

func (emptyEncoder) Encode() ([]byte, error) { return nil, nil }
