package amqp091

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorFormattingWithAndWithoutCause(t *testing.T) {
	bare := &Error{Code: ReplyAccessRefused, Reason: "vhost denied"}
	require.Equal(t, "amqp091: code 403: vhost denied", bare.Error())

	withCause := &Error{Code: ReplyPreconditionFailed, Reason: "inequivalent arg", ClassID: 50, MethodID: 10}
	require.Contains(t, withCause.Error(), "queue.declare")
	require.Contains(t, withCause.Error(), "inequivalent arg")
}

func TestConnectionClosedErrorFormatting(t *testing.T) {
	bare := &ConnectionClosedError{}
	require.Equal(t, "amqp091: connection closed", bare.Error())

	withCause := &ConnectionClosedError{Cause: &Error{Code: ReplyConnectionForced, Reason: "broker shutdown"}}
	require.Contains(t, withCause.Error(), "broker shutdown")
}

func TestChannelClosedErrorFormatting(t *testing.T) {
	bare := &ChannelClosedError{}
	require.Equal(t, "amqp091: channel closed", bare.Error())

	withCause := &ChannelClosedError{Cause: &Error{Code: ReplyNotFound, Reason: "no queue"}}
	require.Contains(t, withCause.Error(), "no queue")
}

func TestConnectionErrorUnwraps(t *testing.T) {
	inner := require.AnError
	wrapped := &ConnectionError{Op: "dial", Err: inner}
	require.ErrorIs(t, wrapped, inner)
}

func TestUnexpectedFrameErrorFormatting(t *testing.T) {
	err := &UnexpectedFrameError{Expected: "channel.open-ok", Got: "channel.close"}
	require.Contains(t, err.Error(), "channel.open-ok")
	require.Contains(t, err.Error(), "channel.close")
}
