// Package frame implements the AMQP 0-9-1 wire codec: frame envelopes,
// method argument encoding, and the Table/Properties value encodings.
package frame

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Kind identifies the four AMQP frame types.
type Kind uint8

const (
	KindMethod    Kind = 1
	KindHeader    Kind = 2
	KindBody      Kind = 3
	KindHeartbeat Kind = 8
)

// FrameEnd is the mandatory trailing octet of every frame.
const FrameEnd = 0xCE

// HeaderSize is the number of bytes preceding a frame's payload:
// 1 (kind) + 2 (channel) + 4 (length).
const HeaderSize = 7

// ErrUnexpectedFrameEnd is returned when a decoded frame does not
// terminate with the 0xCE octet.
var ErrUnexpectedFrameEnd = errors.New("frame: unexpected frame-end octet")

// Frame is a decoded wire unit.
type Frame struct {
	Kind    Kind
	Channel uint16
	Payload []byte
}

// Method is a decoded AMQP method frame payload.
type Method struct {
	ClassID  uint16
	MethodID uint16
	Args     []byte
}

// Header is a decoded content-header frame payload.
type Header struct {
	ClassID    uint16
	Weight     uint16
	BodySize   uint64
	Properties Properties
}

// WriteMethod encodes a method frame (class id, method id, then raw
// already-encoded argument bytes) onto w.
func WriteMethod(w io.Writer, channel uint16, classID, methodID uint16, args []byte) error {
	payload := make([]byte, 4+len(args))
	binary.BigEndian.PutUint16(payload[0:2], classID)
	binary.BigEndian.PutUint16(payload[2:4], methodID)
	copy(payload[4:], args)
	return WriteFrame(w, KindMethod, channel, payload)
}

// WriteHeader encodes a content-header frame.
func WriteHeader(w io.Writer, channel uint16, classID uint16, bodySize uint64, props Properties) error {
	encodedProps, err := props.Encode()
	if err != nil {
		return err
	}
	payload := make([]byte, 2+2+8+len(encodedProps))
	binary.BigEndian.PutUint16(payload[0:2], classID)
	binary.BigEndian.PutUint16(payload[2:4], 0) // weight, always 0
	binary.BigEndian.PutUint64(payload[4:12], bodySize)
	copy(payload[12:], encodedProps)
	return WriteFrame(w, KindHeader, channel, payload)
}

// WriteBody encodes a single content-body frame.
func WriteBody(w io.Writer, channel uint16, chunk []byte) error {
	return WriteFrame(w, KindBody, channel, chunk)
}

// WriteHeartbeat encodes a heartbeat frame. Heartbeats are always on
// channel 0.
func WriteHeartbeat(w io.Writer) error {
	return WriteFrame(w, KindHeartbeat, 0, nil)
}

// WriteFrame writes the generic envelope: kind, channel, length-prefixed
// payload, 0xCE trailer.
func WriteFrame(w io.Writer, kind Kind, channel uint16, payload []byte) error {
	hdr := make([]byte, HeaderSize)
	hdr[0] = byte(kind)
	binary.BigEndian.PutUint16(hdr[1:3], channel)
	binary.BigEndian.PutUint32(hdr[3:7], uint32(len(payload)))
	if _, err := w.Write(hdr); err != nil {
		return errors.Wrap(err, "frame: write header")
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return errors.Wrap(err, "frame: write payload")
		}
	}
	if _, err := w.Write([]byte{FrameEnd}); err != nil {
		return errors.Wrap(err, "frame: write end octet")
	}
	return nil
}

// ReadFrame reads one complete frame from r using readExact for the
// header, payload, and trailer octet.
func ReadFrame(readExact func([]byte) error) (Frame, error) {
	hdr := make([]byte, HeaderSize)
	if err := readExact(hdr); err != nil {
		return Frame{}, errors.Wrap(err, "frame: read header")
	}
	kind := Kind(hdr[0])
	channel := binary.BigEndian.Uint16(hdr[1:3])
	length := binary.BigEndian.Uint32(hdr[3:7])

	payload := make([]byte, length)
	if length > 0 {
		if err := readExact(payload); err != nil {
			return Frame{}, errors.Wrap(err, "frame: read payload")
		}
	}

	trailer := make([]byte, 1)
	if err := readExact(trailer); err != nil {
		return Frame{}, errors.Wrap(err, "frame: read trailer")
	}
	if trailer[0] != FrameEnd {
		return Frame{}, ErrUnexpectedFrameEnd
	}

	return Frame{Kind: kind, Channel: channel, Payload: payload}, nil
}

// DecodeMethod splits a method frame's payload into class/method id and
// remaining argument bytes.
func DecodeMethod(payload []byte) (Method, error) {
	if len(payload) < 4 {
		return Method{}, fmt.Errorf("frame: method payload too short: %d bytes", len(payload))
	}
	return Method{
		ClassID:  binary.BigEndian.Uint16(payload[0:2]),
		MethodID: binary.BigEndian.Uint16(payload[2:4]),
		Args:     payload[4:],
	}, nil
}

// DecodeHeader parses a content-header frame's payload.
func DecodeHeader(payload []byte) (Header, error) {
	if len(payload) < 12 {
		return Header{}, fmt.Errorf("frame: header payload too short: %d bytes", len(payload))
	}
	classID := binary.BigEndian.Uint16(payload[0:2])
	weight := binary.BigEndian.Uint16(payload[2:4])
	bodySize := binary.BigEndian.Uint64(payload[4:12])
	props, err := DecodeProperties(payload[12:])
	if err != nil {
		return Header{}, err
	}
	return Header{ClassID: classID, Weight: weight, BodySize: bodySize, Properties: props}, nil
}
