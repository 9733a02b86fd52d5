package frame_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lavinmq/amqp091/internal/frame"
)

func TestPropertiesRoundTrip(t *testing.T) {
	var props frame.Properties
	props.SetContentType("application/json")
	props.SetContentEncoding("gzip")
	props.SetHeaders(frame.NewTable().Set("x-retry", int32(3)))
	props.SetDeliveryMode(2)
	props.SetPriority(5)
	props.SetCorrelationID("corr-1")
	props.SetReplyTo("rpc.reply")
	props.SetExpiration(60000)
	props.SetMessageID("msg-1")
	props.SetTimestamp(1700000000)
	props.SetType("order.created")
	props.SetUserID("guest")
	props.SetAppID("orders-service")

	encoded, err := props.Encode()
	require.NoError(t, err)

	decoded, err := frame.DecodeProperties(encoded)
	require.NoError(t, err)

	require.Equal(t, "application/json", decoded.ContentType)
	require.Equal(t, "gzip", decoded.ContentEncoding)
	require.Equal(t, uint8(2), decoded.DeliveryMode)
	require.Equal(t, uint8(5), decoded.Priority)
	require.Equal(t, "corr-1", decoded.CorrelationID)
	require.Equal(t, "rpc.reply", decoded.ReplyTo)
	require.Equal(t, "60000", decoded.Expiration)
	require.Equal(t, "msg-1", decoded.MessageID)
	require.Equal(t, uint64(1700000000), decoded.Timestamp)
	require.Equal(t, "order.created", decoded.Type)
	require.Equal(t, "guest", decoded.UserID)
	require.Equal(t, "orders-service", decoded.AppID)
	require.True(t, decoded.Headers.Equal(frame.NewTable().Set("x-retry", int32(3))))
}

func TestPropertiesSetExpirationAcceptsIntOrString(t *testing.T) {
	var intForm, strForm frame.Properties
	intForm.SetExpiration(60000)
	strForm.SetExpiration("60000")

	intEncoded, err := intForm.Encode()
	require.NoError(t, err)
	strEncoded, err := strForm.Encode()
	require.NoError(t, err)
	require.Equal(t, strEncoded, intEncoded)
}

func TestPropertiesOmitsUnsetFields(t *testing.T) {
	var props frame.Properties
	props.SetContentType("text/plain")

	encoded, err := props.Encode()
	require.NoError(t, err)
	require.Len(t, encoded, 2+1+len("text/plain"))

	decoded, err := frame.DecodeProperties(encoded)
	require.NoError(t, err)
	require.Equal(t, "text/plain", decoded.ContentType)
	require.Zero(t, decoded.DeliveryMode)
	require.Empty(t, decoded.ReplyTo)
}
