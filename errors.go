package amqp091

import (
	"fmt"

	"github.com/lavinmq/amqp091/internal/method"
)

// Standard AMQP 0-9-1 reply codes, surfaced verbatim.
const (
	ReplyOk                  = 200
	ReplyContentTooLarge     = 311
	ReplyNoRoute             = 312
	ReplyNoConsumers         = 313
	ReplyConnectionForced    = 320
	ReplyInvalidPath         = 402
	ReplyAccessRefused       = 403
	ReplyNotFound            = 404
	ReplyResourceLocked      = 405
	ReplyPreconditionFailed  = 406
	ReplyFrameError          = 501
	ReplySyntaxError         = 502
	ReplyCommandInvalid      = 503
	ReplyChannelError        = 504
	ReplyUnexpectedFrame     = 505
	ReplyResourceError       = 506
	ReplyNotAllowed          = 530
	ReplyNotImplemented      = 540
	ReplyInternalError       = 541
)

// Error is the payload of a protocol-level close: the reply code/text
// the broker (or this client) gave, and the class/method that caused
// it. It is carried as the Cause of ConnectionClosedError and
// ChannelClosedError.
type Error struct {
	Code    uint16
	Reason  string
	ClassID uint16
	MethodID uint16
}

func (e *Error) Error() string {
	if e.ClassID == 0 && e.MethodID == 0 {
		return fmt.Sprintf("amqp091: code %d: %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("amqp091: code %d: %s (caused by %s)", e.Code, e.Reason, method.Name(e.ClassID, e.MethodID))
}

// ConnectionError reports that a socket could not be opened, a TLS
// handshake failed, or the handshake itself was rejected before the
// connection ever reached the open state.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("amqp091: connection error during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ConnectionClosedError is returned to every waiter once the socket
// closes or the peer sends Connection.Close.
type ConnectionClosedError struct {
	Cause *Error
}

func (e *ConnectionClosedError) Error() string {
	if e.Cause == nil {
		return "amqp091: connection closed"
	}
	return "amqp091: connection closed: " + e.Cause.Error()
}

// ChannelClosedError is returned to every waiter on a channel once the
// peer sends Channel.Close, or on local use of an already-closed
// channel.
type ChannelClosedError struct {
	Cause *Error
}

func (e *ChannelClosedError) Error() string {
	if e.Cause == nil {
		return "amqp091: channel closed"
	}
	return "amqp091: channel closed: " + e.Cause.Error()
}

// Unwrap exposes the peer's *Error, if any, to errors.As.
func (e *ChannelClosedError) Unwrap() error {
	if e.Cause == nil {
		return nil
	}
	return e.Cause
}

// UnexpectedFrameError is raised when a reply frame does not match what
// the caller's pending request expected.
type UnexpectedFrameError struct {
	Expected string
	Got      string
}

func (e *UnexpectedFrameError) Error() string {
	return fmt.Sprintf("amqp091: unexpected frame: expected %s, got %s", e.Expected, e.Got)
}

// UnsupportedFrameTypeError is raised when the decoder encounters a
// frame kind byte it does not implement.
type UnsupportedFrameTypeError struct {
	Kind uint8
}

func (e *UnsupportedFrameTypeError) Error() string {
	return fmt.Sprintf("amqp091: unsupported frame type %d", e.Kind)
}

// UnsupportedMethodError is raised when the decoder encounters a
// class/method pair it does not implement.
type UnsupportedMethodError struct {
	ClassID, MethodID uint16
}

func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("amqp091: unsupported method %d.%d", e.ClassID, e.MethodID)
}

// ErrPublishNotConfirmed is returned by reconnect.Client.Publish when
// the broker negatively acknowledges the publish; Channel.WaitForConfirms
// itself reports that case by returning false.
var ErrPublishNotConfirmed = fmt.Errorf("amqp091: publish not confirmed")

// ArgumentError reports invalid caller input: a zero/out-of-range
// channel id, an oversized table key, and similar local validation
// failures that never reach the wire.
type ArgumentError struct {
	Msg string
}

func (e *ArgumentError) Error() string { return "amqp091: " + e.Msg }

// Sentinel errors for simple, contextless conditions.
var (
	ErrClosed           = fmt.Errorf("amqp091: use of closed connection or channel")
	ErrConsumerCanceled = fmt.Errorf("amqp091: consumer canceled")
	ErrTimeout          = fmt.Errorf("amqp091: timed out waiting for reply")
)
