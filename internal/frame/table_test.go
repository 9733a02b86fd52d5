package frame_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lavinmq/amqp091/internal/frame"
)

func TestTableRoundTrip(t *testing.T) {
	tbl := frame.NewTable()
	tbl.Set("str", "value")
	tbl.Set("bool", true)
	tbl.Set("int32", int32(math.MaxInt32))
	tbl.Set("int64", int64(math.MaxInt32)+1)
	tbl.Set("float", 3.25)
	tbl.Set("bytes", []byte{1, 2, 3})
	tbl.Set("nested", frame.TableFromMap(map[string]interface{}{"inner": int32(7)}))
	tbl.Set("array", []interface{}{int32(1), "two", true})
	tbl.Set("nothing", nil)

	encoded, err := frame.EncodeTable(tbl)
	require.NoError(t, err)

	decoded, n, err := frame.DecodeTable(encoded)
	require.NoError(t, err)
	require.Equal(t, len(encoded), n)
	require.True(t, tbl.Equal(decoded))
}

func TestTableIntegerWidthInference(t *testing.T) {
	tbl := frame.NewTable()
	tbl.Set("at_boundary", int64(math.MaxInt32))
	tbl.Set("over_boundary", int64(math.MaxInt32)+1)

	encoded, err := frame.EncodeTable(tbl)
	require.NoError(t, err)
	decoded, _, err := frame.DecodeTable(encoded)
	require.NoError(t, err)

	v, ok := decoded.Get("at_boundary")
	require.True(t, ok)
	require.IsType(t, int32(0), v)

	v, ok = decoded.Get("over_boundary")
	require.True(t, ok)
	require.IsType(t, int64(0), v)
}

func TestTableInt16AndUint16UseDistinctTags(t *testing.T) {
	tbl := frame.NewTable()
	tbl.Set("i16", int16(-1000))
	tbl.Set("u16", uint16(50000))

	encoded, err := frame.EncodeTable(tbl)
	require.NoError(t, err)
	decoded, _, err := frame.DecodeTable(encoded)
	require.NoError(t, err)

	v, ok := decoded.Get("i16")
	require.True(t, ok)
	require.Equal(t, int16(-1000), v)

	v, ok = decoded.Get("u16")
	require.True(t, ok)
	require.Equal(t, uint16(50000), v)
}

func TestTableEncodeIsLengthPrefixed(t *testing.T) {
	tbl := frame.NewTable()
	tbl.Set("k", "v")
	encoded, err := frame.EncodeTable(tbl)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(encoded), 4)
	bodyLen := uint32(encoded[0])<<24 | uint32(encoded[1])<<16 | uint32(encoded[2])<<8 | uint32(encoded[3])
	require.Equal(t, int(bodyLen), len(encoded)-4)
}
