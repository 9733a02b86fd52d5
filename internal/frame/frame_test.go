package frame_test

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/lavinmq/amqp091/internal/frame"
)

func TestWriteReadMethodFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, frame.WriteMethod(&buf, 3, 60, 40, []byte("hello")))

	f, err := frame.ReadFrame(readerFor(&buf))
	require.NoError(t, err)
	require.Equal(t, frame.KindMethod, f.Kind)
	require.Equal(t, uint16(3), f.Channel)

	m, err := frame.DecodeMethod(f.Payload)
	require.NoError(t, err)
	require.Equal(t, uint16(60), m.ClassID)
	require.Equal(t, uint16(40), m.MethodID)
	require.Equal(t, []byte("hello"), m.Args)
}

func TestWriteReadHeaderFrame(t *testing.T) {
	var props frame.Properties
	props.SetContentType("text/plain")
	props.SetDeliveryMode(2)

	var buf bytes.Buffer
	require.NoError(t, frame.WriteHeader(&buf, 1, 60, 1024, props))

	f, err := frame.ReadFrame(readerFor(&buf))
	require.NoError(t, err)
	require.Equal(t, frame.KindHeader, f.Kind)

	hdr, err := frame.DecodeHeader(f.Payload)
	require.NoError(t, err)
	require.Equal(t, uint64(1024), hdr.BodySize)
	require.Equal(t, "text/plain", hdr.Properties.ContentType)
	require.Equal(t, uint8(2), hdr.Properties.DeliveryMode)
}

func TestWriteReadBodyFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, frame.WriteBody(&buf, 1, []byte("payload")))

	f, err := frame.ReadFrame(readerFor(&buf))
	require.NoError(t, err)
	require.Equal(t, frame.KindBody, f.Kind)
	if diff := cmp.Diff([]byte("payload"), f.Payload); diff != "" {
		t.Fatalf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestReadFrameRejectsBadFrameEnd(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, frame.WriteBody(&buf, 1, []byte("x")))
	corrupted := buf.Bytes()
	corrupted[len(corrupted)-1] = 0x00

	_, err := frame.ReadFrame(readerFor(bytes.NewBuffer(corrupted)))
	require.ErrorIs(t, err, frame.ErrUnexpectedFrameEnd)
}

func readerFor(buf *bytes.Buffer) func([]byte) error {
	return func(dst []byte) error {
		n, err := buf.Read(dst)
		if err != nil {
			return err
		}
		if n != len(dst) {
			return bytes.ErrTooLarge
		}
		return nil
	}
}
