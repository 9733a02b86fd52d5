package amqp091

import (
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// transport owns the raw socket. All writes go through a single mutex
// so a multi-frame publish (method + header + N body frames) is
// emitted as one atomic unit.
type transport struct {
	conn net.Conn

	writeMu sync.Mutex
}

// dialTransport opens a TCP connection (optionally TLS-wrapped),
// applies TCP keepalive, and returns a ready-to-use transport.
func dialTransport(uri URI) (*transport, error) {
	dialer := net.Dialer{Timeout: uri.ConnectTimeout}
	conn, err := dialer.Dial("tcp", uri.Address())
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Err: err}
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		if err := applyKeepalive(tc, uri); err != nil {
			conn.Close()
			return nil, &ConnectionError{Op: "keepalive", Err: err}
		}
	}

	if uri.UseTLS {
		tlsConf := &tls.Config{
			ServerName:         uri.Host,
			InsecureSkipVerify: !uri.VerifyPeer,
		}
		tlsConn := tls.Client(conn, tlsConf)
		if err := tlsConn.Handshake(); err != nil {
			conn.Close()
			return nil, &ConnectionError{Op: "tls handshake", Err: err}
		}
		conn = tlsConn
	}

	return &transport{conn: conn}, nil
}

// applyKeepalive enables SO_KEEPALIVE and configures idle/interval/count
// where the OS supports it. Platforms that don't support per-socket
// tuning (anything besides the ones SetKeepAliveConfig covers) fall
// back to plain SO_KEEPALIVE with the idle time set and OS-default
// interval/count.
func applyKeepalive(tc *net.TCPConn, uri URI) error {
	if err := tc.SetKeepAliveConfig(net.KeepAliveConfig{
		Enable:   true,
		Idle:     uri.KeepaliveIdle,
		Interval: uri.KeepaliveInterval,
		Count:    uri.KeepaliveCount,
	}); err != nil {
		if err := tc.SetKeepAlive(true); err != nil {
			return errors.Wrap(err, "set keepalive")
		}
		if err := tc.SetKeepAlivePeriod(uri.KeepaliveIdle); err != nil {
			return errors.Wrap(err, "set keepalive period")
		}
	}
	return nil
}

// writeFrames writes multiple already-encoded frame byte slices as one
// atomic critical section, so a multi-frame publish is never
// interleaved with another goroutine's write.
func (t *transport) writeFrames(frames ...[]byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	for _, f := range frames {
		if _, err := t.conn.Write(f); err != nil {
			return &ConnectionError{Op: "write", Err: err}
		}
	}
	return nil
}

// readExact reads exactly len(buf) bytes, blocking until satisfied or
// erroring.
func (t *transport) readExact(buf []byte) error {
	n := 0
	for n < len(buf) {
		m, err := t.conn.Read(buf[n:])
		if err != nil {
			return &ConnectionError{Op: "read", Err: err}
		}
		n += m
	}
	return nil
}

func (t *transport) setReadDeadline(d time.Time) error {
	return t.conn.SetReadDeadline(d)
}

func (t *transport) close() error {
	return t.conn.Close()
}
