// Package mocks provides a net.Conn fake driving the AMQP 0-9-1 frame
// codec, used to exercise Connection/Channel without a real broker.
package mocks

import (
	"errors"
	"net"
	"time"

	"github.com/lavinmq/amqp091/internal/frame"
)

// NewConnection creates a MockConnection. resp is invoked once per
// complete frame written by the client under test; returning a nil
// slice swallows the frame (no reply), a non-nil error simulates a
// broker-side write failure.
func NewConnection(resp func(frame.Frame) ([]byte, error)) *MockConnection {
	return &MockConnection{
		resp: resp,
		// Close can race connReader/connWriter shutdown; buffer reads so a
		// trailing write never blocks on a reader that already exited.
		readData:  make(chan []byte, 16),
		readClose: make(chan struct{}),
	}
}

// MockConnection is a net.Conn fake that decodes complete AMQP frames
// written to it and hands them to a responder callback.
type MockConnection struct {
	resp      func(frame.Frame) ([]byte, error)
	readDL    *time.Timer
	readData  chan []byte
	readClose chan struct{}
	closed    bool
}

// NOTE: Read, Write, and Close are called from separate goroutines.

func (m *MockConnection) Read(b []byte) (n int, err error) {
	select {
	case <-m.readClose:
		return 0, errors.New("mock connection was closed")
	default:
	}

	deadline := closedTimerChan
	if m.readDL != nil {
		deadline = m.readDL.C
	}
	select {
	case <-m.readClose:
		return 0, errors.New("mock connection was closed")
	case <-deadline:
		return 0, errors.New("mock connection read deadline exceeded")
	case rd := <-m.readData:
		return copy(b, rd), nil
	}
}

// closedTimerChan is a never-firing channel used when no read deadline
// has been set yet.
var closedTimerChan = make(chan time.Time)

// Write decodes one frame per call (every transport.writeFrames slice
// is already a complete, self-terminated frame) and invokes resp.
func (m *MockConnection) Write(b []byte) (n int, err error) {
	select {
	case <-m.readClose:
		return 0, errors.New("mock connection was closed")
	default:
	}

	if isPreamble(b) {
		return len(b), nil
	}

	f, err := decodeFrame(b)
	if err != nil {
		return 0, err
	}
	resp, err := m.resp(f)
	if err != nil {
		return 0, err
	}
	if resp != nil {
		m.readData <- resp
	}
	return len(b), nil
}

func (m *MockConnection) Close() error {
	if m.closed {
		return errors.New("double close")
	}
	m.closed = true
	close(m.readClose)
	return nil
}

func (m *MockConnection) LocalAddr() net.Addr  { return &net.IPAddr{IP: net.IPv4(127, 0, 0, 2)} }
func (m *MockConnection) RemoteAddr() net.Addr { return &net.IPAddr{IP: net.IPv4(127, 0, 0, 2)} }

func (m *MockConnection) SetDeadline(t time.Time) error { return errors.New("not used") }

func (m *MockConnection) SetReadDeadline(t time.Time) error {
	if m.readDL != nil && !m.readDL.Stop() {
		select {
		case <-m.readDL.C:
		default:
		}
	}
	if t.IsZero() {
		m.readDL = nil
		return nil
	}
	m.readDL = time.NewTimer(time.Until(t))
	return nil
}

func (m *MockConnection) SetWriteDeadline(t time.Time) error { return nil }

// Push injects server-originated bytes directly, for server-initiated
// frames (Connection.Close, Basic.Deliver) that aren't triggered by a
// client write.
func (m *MockConnection) Push(b []byte) {
	m.readData <- b
}

func isPreamble(b []byte) bool {
	return len(b) >= 4 && b[0] == 'A' && b[1] == 'M' && b[2] == 'Q' && b[3] == 'P'
}

func decodeFrame(b []byte) (frame.Frame, error) {
	pos := 0
	return frame.ReadFrame(func(dst []byte) error {
		n := copy(dst, b[pos:])
		if n != len(dst) {
			return errors.New("mock connection: short frame")
		}
		pos += n
		return nil
	})
}
