package frame

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// Decimal is an AMQP scaled-decimal value: unscaled * 10^-scale.
type Decimal struct {
	Scale    uint8
	Unscaled int32
}

// Table is an ordered string-keyed map of heterogeneous AMQP values.
// Insertion order is preserved across Encode/Decode round trips.
type Table struct {
	keys   []string
	values map[string]interface{}
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{values: make(map[string]interface{})}
}

// TableFromMap builds a Table from a plain map, ordering keys
// lexically since map iteration order is not stable. Callers that care
// about insertion order should build the Table with Set calls instead.
func TableFromMap(m map[string]interface{}) *Table {
	t := NewTable()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		t.Set(k, m[k])
	}
	return t
}

// Set inserts or overwrites key with value, preserving first-insertion
// position.
func (t *Table) Set(key string, value interface{}) *Table {
	if t.values == nil {
		t.values = make(map[string]interface{})
	}
	if _, exists := t.values[key]; !exists {
		t.keys = append(t.keys, key)
	}
	t.values[key] = value
	return t
}

// Get returns the value for key and whether it was present.
func (t *Table) Get(key string) (interface{}, bool) {
	if t == nil || t.values == nil {
		return nil, false
	}
	v, ok := t.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (t *Table) Keys() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.keys...)
}

// Len reports the number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.keys)
}

// Map returns a shallow copy as a plain map, for callers that don't
// need ordering.
func (t *Table) Map() map[string]interface{} {
	out := make(map[string]interface{}, t.Len())
	if t == nil {
		return out
	}
	for k, v := range t.values {
		out[k] = v
	}
	return out
}

// Equal reports whether two tables have the same keys (any order) and
// equal values; integer values are compared after normalizing to
// int64 so a stored int32 and int64 of the same magnitude match.
func (t *Table) Equal(o *Table) bool {
	if t.Len() != o.Len() {
		return false
	}
	for _, k := range t.Keys() {
		av, _ := t.Get(k)
		bv, ok := o.Get(k)
		if !ok || !valuesEqual(av, bv) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b interface{}) bool {
	an, aIsInt := normalizeInt(a)
	bn, bIsInt := normalizeInt(b)
	if aIsInt && bIsInt {
		return an == bn
	}
	if at, ok := a.(*Table); ok {
		bt, ok2 := b.(*Table)
		return ok2 && at.Equal(bt)
	}
	if ab, ok := a.([]byte); ok {
		bb, ok2 := b.([]byte)
		return ok2 && bytes.Equal(ab, bb)
	}
	if aa, ok := a.([]interface{}); ok {
		ba, ok2 := b.([]interface{})
		if !ok2 || len(aa) != len(ba) {
			return false
		}
		for i := range aa {
			if !valuesEqual(aa[i], ba[i]) {
				return false
			}
		}
		return true
	}
	return a == b
}

func normalizeInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int8:
		return int64(n), true
	case uint8:
		return int64(n), true
	case int16:
		return int64(n), true
	case uint16:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint32:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}

// Type tags.
const (
	tagBool      = 't'
	tagInt8      = 'b'
	tagUint8     = 'B'
	tagInt16     = 's'
	tagUint16    = 'u'
	tagInt32     = 'I'
	tagUint32    = 'i'
	tagInt64     = 'l'
	tagFloat32   = 'f'
	tagFloat64   = 'd'
	tagDecimal   = 'D'
	tagLongStr   = 'S'
	tagArray     = 'A'
	tagTimestamp = 'T'
	tagTable     = 'F'
	tagByteArray = 'x'
	tagVoid      = 'V'
)

// EncodeTable writes t as a u32-length-prefixed AMQP field table.
func EncodeTable(t *Table) ([]byte, error) {
	body, err := encodeTableBody(t)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(body)))
	copy(out[4:], body)
	return out, nil
}

func encodeTableBody(t *Table) ([]byte, error) {
	var out []byte
	if t == nil {
		return out, nil
	}
	for _, key := range t.Keys() {
		if len(key) > 255 {
			return nil, fmt.Errorf("frame: table key %q exceeds 255 bytes", key)
		}
		val, _ := t.Get(key)
		out = append(out, byte(len(key)))
		out = append(out, key...)
		enc, err := encodeValue(val)
		if err != nil {
			return nil, fmt.Errorf("frame: key %q: %w", key, err)
		}
		out = append(out, enc...)
	}
	return out, nil
}

func encodeValue(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte{tagVoid}, nil
	case bool:
		b := byte(0)
		if val {
			b = 1
		}
		return []byte{tagBool, b}, nil
	case int8:
		return append([]byte{tagInt8}, byte(val)), nil
	case uint8:
		return []byte{tagUint8, val}, nil
	case int16:
		b := make([]byte, 3)
		b[0] = tagInt16
		binary.BigEndian.PutUint16(b[1:], uint16(val))
		return b, nil
	case uint16:
		b := make([]byte, 3)
		b[0] = tagUint16
		binary.BigEndian.PutUint16(b[1:], val)
		return b, nil
	case int32:
		b := make([]byte, 5)
		b[0] = tagInt32
		binary.BigEndian.PutUint32(b[1:], uint32(val))
		return b, nil
	case uint32:
		b := make([]byte, 5)
		b[0] = tagUint32
		binary.BigEndian.PutUint32(b[1:], val)
		return b, nil
	case int64:
		return encodeInferredInt(val)
	case int:
		return encodeInferredInt(int64(val))
	case float32:
		b := make([]byte, 5)
		b[0] = tagFloat32
		binary.BigEndian.PutUint32(b[1:], math.Float32bits(val))
		return b, nil
	case float64:
		b := make([]byte, 9)
		b[0] = tagFloat64
		binary.BigEndian.PutUint64(b[1:], math.Float64bits(val))
		return b, nil
	case Decimal:
		b := make([]byte, 6)
		b[0] = tagDecimal
		b[1] = val.Scale
		binary.BigEndian.PutUint32(b[2:], uint32(val.Unscaled))
		return b, nil
	case string:
		return encodeLongString([]byte(val)), nil
	case []byte:
		b := make([]byte, 5+len(val))
		b[0] = tagByteArray
		binary.BigEndian.PutUint32(b[1:5], uint32(len(val)))
		copy(b[5:], val)
		return b, nil
	case []interface{}:
		return encodeArray(val)
	case *Table:
		enc, err := EncodeTable(val)
		if err != nil {
			return nil, err
		}
		return append([]byte{tagTable}, enc...), nil
	case timestampValue:
		b := make([]byte, 9)
		b[0] = tagTimestamp
		binary.BigEndian.PutUint64(b[1:], uint64(val))
		return b, nil
	default:
		return nil, fmt.Errorf("frame: unsupported table value type %T", v)
	}
}

// timestampValue marks an integer as the AMQP timestamp type (tag T)
// rather than an inferred integer width. Use NewTimestamp to construct.
type timestampValue uint64

// NewTimestamp wraps seconds-since-epoch so it encodes with tag T.
func NewTimestamp(secondsSinceEpoch uint64) interface{} {
	return timestampValue(secondsSinceEpoch)
}

func encodeInferredInt(v int64) ([]byte, error) {
	if v >= math.MinInt32 && v <= math.MaxInt32 {
		b := make([]byte, 5)
		b[0] = tagInt32
		binary.BigEndian.PutUint32(b[1:], uint32(int32(v)))
		return b, nil
	}
	b := make([]byte, 9)
	b[0] = tagInt64
	binary.BigEndian.PutUint64(b[1:], uint64(v))
	return b, nil
}

func encodeLongString(s []byte) []byte {
	b := make([]byte, 5+len(s))
	b[0] = tagLongStr
	binary.BigEndian.PutUint32(b[1:5], uint32(len(s)))
	copy(b[5:], s)
	return b
}

func encodeArray(items []interface{}) ([]byte, error) {
	var body []byte
	for _, item := range items {
		enc, err := encodeValue(item)
		if err != nil {
			return nil, err
		}
		body = append(body, enc...)
	}
	out := make([]byte, 5+len(body))
	out[0] = tagArray
	binary.BigEndian.PutUint32(out[1:5], uint32(len(body)))
	copy(out[5:], body)
	return out, nil
}

// DecodeTable reads a u32-length-prefixed field table from the front of
// buf and returns the table and the number of bytes consumed.
func DecodeTable(buf []byte) (*Table, int, error) {
	if len(buf) < 4 {
		return nil, 0, fmt.Errorf("frame: truncated table length")
	}
	length := binary.BigEndian.Uint32(buf[0:4])
	end := 4 + int(length)
	if end > len(buf) {
		return nil, 0, fmt.Errorf("frame: truncated table body")
	}
	t, err := decodeTableBody(buf[4:end])
	if err != nil {
		return nil, 0, err
	}
	return t, end, nil
}

func decodeTableBody(buf []byte) (*Table, error) {
	t := NewTable()
	pos := 0
	for pos < len(buf) {
		if pos+1 > len(buf) {
			return nil, fmt.Errorf("frame: truncated table key length")
		}
		keyLen := int(buf[pos])
		pos++
		if pos+keyLen > len(buf) {
			return nil, fmt.Errorf("frame: truncated table key")
		}
		key := string(buf[pos : pos+keyLen])
		pos += keyLen

		val, n, err := decodeValue(buf[pos:])
		if err != nil {
			return nil, fmt.Errorf("frame: key %q: %w", key, err)
		}
		pos += n
		t.Set(key, val)
	}
	return t, nil
}

func decodeValue(buf []byte) (interface{}, int, error) {
	if len(buf) < 1 {
		return nil, 0, fmt.Errorf("frame: truncated value tag")
	}
	tag := buf[0]
	rest := buf[1:]
	switch tag {
	case tagVoid:
		return nil, 1, nil
	case tagBool:
		if len(rest) < 1 {
			return nil, 0, fmt.Errorf("frame: truncated bool")
		}
		return rest[0] != 0, 2, nil
	case tagInt8:
		if len(rest) < 1 {
			return nil, 0, fmt.Errorf("frame: truncated int8")
		}
		return int8(rest[0]), 2, nil
	case tagUint8:
		if len(rest) < 1 {
			return nil, 0, fmt.Errorf("frame: truncated uint8")
		}
		return rest[0], 2, nil
	case tagInt16:
		if len(rest) < 2 {
			return nil, 0, fmt.Errorf("frame: truncated int16")
		}
		return int16(binary.BigEndian.Uint16(rest)), 3, nil
	case tagUint16:
		if len(rest) < 2 {
			return nil, 0, fmt.Errorf("frame: truncated uint16")
		}
		return binary.BigEndian.Uint16(rest), 3, nil
	case tagInt32:
		if len(rest) < 4 {
			return nil, 0, fmt.Errorf("frame: truncated int32")
		}
		return int32(binary.BigEndian.Uint32(rest)), 5, nil
	case tagUint32:
		if len(rest) < 4 {
			return nil, 0, fmt.Errorf("frame: truncated uint32")
		}
		return binary.BigEndian.Uint32(rest), 5, nil
	case tagInt64:
		if len(rest) < 8 {
			return nil, 0, fmt.Errorf("frame: truncated int64")
		}
		return int64(binary.BigEndian.Uint64(rest)), 9, nil
	case tagFloat32:
		if len(rest) < 4 {
			return nil, 0, fmt.Errorf("frame: truncated float32")
		}
		return math.Float32frombits(binary.BigEndian.Uint32(rest)), 5, nil
	case tagFloat64:
		if len(rest) < 8 {
			return nil, 0, fmt.Errorf("frame: truncated float64")
		}
		return math.Float64frombits(binary.BigEndian.Uint64(rest)), 9, nil
	case tagDecimal:
		if len(rest) < 5 {
			return nil, 0, fmt.Errorf("frame: truncated decimal")
		}
		return Decimal{Scale: rest[0], Unscaled: int32(binary.BigEndian.Uint32(rest[1:5]))}, 6, nil
	case tagLongStr:
		if len(rest) < 4 {
			return nil, 0, fmt.Errorf("frame: truncated long-string length")
		}
		n := int(binary.BigEndian.Uint32(rest))
		if 4+n > len(rest) {
			return nil, 0, fmt.Errorf("frame: truncated long-string body")
		}
		return string(rest[4 : 4+n]), 5 + n, nil
	case tagByteArray:
		if len(rest) < 4 {
			return nil, 0, fmt.Errorf("frame: truncated byte-array length")
		}
		n := int(binary.BigEndian.Uint32(rest))
		if 4+n > len(rest) {
			return nil, 0, fmt.Errorf("frame: truncated byte-array body")
		}
		out := make([]byte, n)
		copy(out, rest[4:4+n])
		return out, 5 + n, nil
	case tagTimestamp:
		if len(rest) < 8 {
			return nil, 0, fmt.Errorf("frame: truncated timestamp")
		}
		return timestampValue(binary.BigEndian.Uint64(rest)), 9, nil
	case tagTable:
		t, n, err := DecodeTable(rest)
		if err != nil {
			return nil, 0, err
		}
		return t, 1 + n, nil
	case tagArray:
		if len(rest) < 4 {
			return nil, 0, fmt.Errorf("frame: truncated array length")
		}
		n := int(binary.BigEndian.Uint32(rest))
		if 4+n > len(rest) {
			return nil, 0, fmt.Errorf("frame: truncated array body")
		}
		items, err := decodeArrayBody(rest[4 : 4+n])
		if err != nil {
			return nil, 0, err
		}
		return items, 5 + n, nil
	default:
		return nil, 0, fmt.Errorf("frame: unsupported table value tag %q", tag)
	}
}

func decodeArrayBody(buf []byte) ([]interface{}, error) {
	var out []interface{}
	pos := 0
	for pos < len(buf) {
		v, n, err := decodeValue(buf[pos:])
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		pos += n
	}
	return out, nil
}
