package mocks

import (
	"github.com/lavinmq/amqp091/internal/frame"
	"github.com/lavinmq/amqp091/internal/method"
)

// EncodeMethod builds a complete method frame's bytes.
func EncodeMethod(channel uint16, classID, methodID uint16, args interface{ Encode() ([]byte, error) }) ([]byte, error) {
	encoded, err := args.Encode()
	if err != nil {
		return nil, err
	}
	var buf byteSink
	if err := frame.WriteMethod(&buf, channel, classID, methodID, encoded); err != nil {
		return nil, err
	}
	return buf.b, nil
}

// EncodeHeader builds a complete content-header frame's bytes.
func EncodeHeader(channel uint16, classID uint16, bodySize uint64, props frame.Properties) ([]byte, error) {
	var buf byteSink
	if err := frame.WriteHeader(&buf, channel, classID, bodySize, props); err != nil {
		return nil, err
	}
	return buf.b, nil
}

// EncodeBody builds a complete content-body frame's bytes.
func EncodeBody(channel uint16, chunk []byte) ([]byte, error) {
	var buf byteSink
	if err := frame.WriteBody(&buf, channel, chunk); err != nil {
		return nil, err
	}
	return buf.b, nil
}

type byteSink struct{ b []byte }

func (s *byteSink) Write(p []byte) (int, error) {
	s.b = append(s.b, p...)
	return len(p), nil
}

// connectionStartArgs is the minimal Connection.Start server reply
// used by handshake tests.
type connectionStartArgs struct{}

func (connectionStartArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	w.Octet(0)
	w.Octet(9)
	if _, err := w.Table(frame.NewTable()); err != nil {
		return nil, err
	}
	w.LongString("PLAIN")
	w.LongString("en_US")
	return w.Bytes(), nil
}

// ConnectionStart builds a Connection.Start frame.
func ConnectionStart() ([]byte, error) {
	return EncodeMethod(0, method.ClassConnection, method.ConnectionStart, connectionStartArgs{})
}

type connectionTuneArgs struct {
	ChannelMax uint16
	FrameMax   uint32
	Heartbeat  uint16
}

func (a connectionTuneArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	w.Short(a.ChannelMax)
	w.Long(a.FrameMax)
	w.Short(a.Heartbeat)
	return w.Bytes(), nil
}

// ConnectionTune builds a Connection.Tune frame with the given proposal.
func ConnectionTune(channelMax uint16, frameMax uint32, heartbeat uint16) ([]byte, error) {
	return EncodeMethod(0, method.ClassConnection, method.ConnectionTune, connectionTuneArgs{channelMax, frameMax, heartbeat})
}

type emptyArgs struct{}

func (emptyArgs) Encode() ([]byte, error) { return nil, nil }

// ConnectionOpenOk builds a Connection.Open-Ok frame.
func ConnectionOpenOk() ([]byte, error) {
	return EncodeMethod(0, method.ClassConnection, method.ConnectionOpenOk, emptyArgs{})
}

// ChannelOpenOk builds a Channel.Open-Ok frame for the given channel.
func ChannelOpenOk(channel uint16) ([]byte, error) {
	return EncodeMethod(channel, method.ClassChannel, method.ChannelOpenOk, emptyArgs{})
}
