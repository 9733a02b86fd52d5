package frame

import (
	"encoding/binary"
	"fmt"
)

// Properties is the 14-field AMQP basic-properties record, encoded with
// a bit-packed presence mask.
type Properties struct {
	ContentType     string
	ContentEncoding string
	Headers         *Table
	DeliveryMode    uint8
	Priority        uint8
	CorrelationID   string
	ReplyTo         string
	Expiration      string
	MessageID       string
	Timestamp       uint64
	Type            string
	UserID          string
	AppID           string
	ClusterID       string

	// presence tracks which of the fields above were set by the sender,
	// so Encode round-trips exactly and zero-value fields aren't
	// conflated with "absent".
	hasContentType     bool
	hasContentEncoding bool
	hasHeaders         bool
	hasDeliveryMode    bool
	hasPriority        bool
	hasCorrelationID   bool
	hasReplyTo         bool
	hasExpiration      bool
	hasMessageID       bool
	hasTimestamp       bool
	hasType            bool
	hasUserID          bool
	hasAppID           bool
	hasClusterID       bool
}

const (
	flagContentType     = 1 << 15
	flagContentEncoding = 1 << 14
	flagHeaders         = 1 << 13
	flagDeliveryMode    = 1 << 12
	flagPriority        = 1 << 11
	flagCorrelationID   = 1 << 10
	flagReplyTo         = 1 << 9
	flagExpiration      = 1 << 8
	flagMessageID       = 1 << 7
	flagTimestamp       = 1 << 6
	flagType            = 1 << 5
	flagUserID          = 1 << 4
	flagAppID           = 1 << 3
	flagClusterID       = 1 << 2
)

// SetContentType marks ContentType present. Analogous setters exist for
// every field to preserve presence across encode/decode.
func (p *Properties) SetContentType(v string) *Properties {
	p.ContentType, p.hasContentType = v, true
	return p
}
func (p *Properties) SetContentEncoding(v string) *Properties {
	p.ContentEncoding, p.hasContentEncoding = v, true
	return p
}
func (p *Properties) SetHeaders(v *Table) *Properties {
	p.Headers, p.hasHeaders = v, true
	return p
}
func (p *Properties) SetDeliveryMode(v uint8) *Properties {
	p.DeliveryMode, p.hasDeliveryMode = v, true
	return p
}
func (p *Properties) SetPriority(v uint8) *Properties {
	p.Priority, p.hasPriority = v, true
	return p
}
func (p *Properties) SetCorrelationID(v string) *Properties {
	p.CorrelationID, p.hasCorrelationID = v, true
	return p
}
func (p *Properties) SetReplyTo(v string) *Properties {
	p.ReplyTo, p.hasReplyTo = v, true
	return p
}

// SetExpiration accepts an integer or string and encodes it as a
// string either way.
func (p *Properties) SetExpiration(v interface{}) *Properties {
	switch e := v.(type) {
	case string:
		p.Expiration = e
	default:
		p.Expiration = fmt.Sprintf("%v", e)
	}
	p.hasExpiration = true
	return p
}
func (p *Properties) SetMessageID(v string) *Properties {
	p.MessageID, p.hasMessageID = v, true
	return p
}
func (p *Properties) SetTimestamp(v uint64) *Properties {
	p.Timestamp, p.hasTimestamp = v, true
	return p
}
func (p *Properties) SetType(v string) *Properties {
	p.Type, p.hasType = v, true
	return p
}
func (p *Properties) SetUserID(v string) *Properties {
	p.UserID, p.hasUserID = v, true
	return p
}
func (p *Properties) SetAppID(v string) *Properties {
	p.AppID, p.hasAppID = v, true
	return p
}
func (p *Properties) SetClusterID(v string) *Properties {
	p.ClusterID, p.hasClusterID = v, true
	return p
}

// Encode writes the presence-flags word followed by each present field
// in declared order.
func (p Properties) Encode() ([]byte, error) {
	var flags uint16
	if p.hasContentType {
		flags |= flagContentType
	}
	if p.hasContentEncoding {
		flags |= flagContentEncoding
	}
	if p.hasHeaders {
		flags |= flagHeaders
	}
	if p.hasDeliveryMode {
		flags |= flagDeliveryMode
	}
	if p.hasPriority {
		flags |= flagPriority
	}
	if p.hasCorrelationID {
		flags |= flagCorrelationID
	}
	if p.hasReplyTo {
		flags |= flagReplyTo
	}
	if p.hasExpiration {
		flags |= flagExpiration
	}
	if p.hasMessageID {
		flags |= flagMessageID
	}
	if p.hasTimestamp {
		flags |= flagTimestamp
	}
	if p.hasType {
		flags |= flagType
	}
	if p.hasUserID {
		flags |= flagUserID
	}
	if p.hasAppID {
		flags |= flagAppID
	}
	if p.hasClusterID {
		flags |= flagClusterID
	}

	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, flags)

	if p.hasContentType {
		out = append(out, shortString(p.ContentType)...)
	}
	if p.hasContentEncoding {
		out = append(out, shortString(p.ContentEncoding)...)
	}
	if p.hasHeaders {
		enc, err := EncodeTable(p.Headers)
		if err != nil {
			return nil, err
		}
		out = append(out, enc...)
	}
	if p.hasDeliveryMode {
		out = append(out, p.DeliveryMode)
	}
	if p.hasPriority {
		out = append(out, p.Priority)
	}
	if p.hasCorrelationID {
		out = append(out, shortString(p.CorrelationID)...)
	}
	if p.hasReplyTo {
		out = append(out, shortString(p.ReplyTo)...)
	}
	if p.hasExpiration {
		out = append(out, shortString(p.Expiration)...)
	}
	if p.hasMessageID {
		out = append(out, shortString(p.MessageID)...)
	}
	if p.hasTimestamp {
		ts := make([]byte, 8)
		binary.BigEndian.PutUint64(ts, p.Timestamp)
		out = append(out, ts...)
	}
	if p.hasType {
		out = append(out, shortString(p.Type)...)
	}
	if p.hasUserID {
		out = append(out, shortString(p.UserID)...)
	}
	if p.hasAppID {
		out = append(out, shortString(p.AppID)...)
	}
	if p.hasClusterID {
		out = append(out, shortString(p.ClusterID)...)
	}
	return out, nil
}

func shortString(s string) []byte {
	if len(s) > 255 {
		s = s[:255]
	}
	out := make([]byte, 1+len(s))
	out[0] = byte(len(s))
	copy(out[1:], s)
	return out
}

// DecodeProperties walks the presence bitmask MSB-first and reads each
// field present.
func DecodeProperties(buf []byte) (Properties, error) {
	if len(buf) < 2 {
		return Properties{}, fmt.Errorf("frame: truncated properties flags")
	}
	flags := binary.BigEndian.Uint16(buf[0:2])
	pos := 2
	var p Properties

	readShort := func() (string, error) {
		if pos >= len(buf) {
			return "", fmt.Errorf("frame: truncated short-string length")
		}
		n := int(buf[pos])
		pos++
		if pos+n > len(buf) {
			return "", fmt.Errorf("frame: truncated short-string body")
		}
		s := string(buf[pos : pos+n])
		pos += n
		return s, nil
	}

	if flags&flagContentType != 0 {
		v, err := readShort()
		if err != nil {
			return p, err
		}
		p.SetContentType(v)
	}
	if flags&flagContentEncoding != 0 {
		v, err := readShort()
		if err != nil {
			return p, err
		}
		p.SetContentEncoding(v)
	}
	if flags&flagHeaders != 0 {
		t, n, err := DecodeTable(buf[pos:])
		if err != nil {
			return p, err
		}
		pos += n
		p.SetHeaders(t)
	}
	if flags&flagDeliveryMode != 0 {
		if pos >= len(buf) {
			return p, fmt.Errorf("frame: truncated delivery-mode")
		}
		p.SetDeliveryMode(buf[pos])
		pos++
	}
	if flags&flagPriority != 0 {
		if pos >= len(buf) {
			return p, fmt.Errorf("frame: truncated priority")
		}
		p.SetPriority(buf[pos])
		pos++
	}
	if flags&flagCorrelationID != 0 {
		v, err := readShort()
		if err != nil {
			return p, err
		}
		p.SetCorrelationID(v)
	}
	if flags&flagReplyTo != 0 {
		v, err := readShort()
		if err != nil {
			return p, err
		}
		p.SetReplyTo(v)
	}
	if flags&flagExpiration != 0 {
		v, err := readShort()
		if err != nil {
			return p, err
		}
		p.SetExpiration(v)
	}
	if flags&flagMessageID != 0 {
		v, err := readShort()
		if err != nil {
			return p, err
		}
		p.SetMessageID(v)
	}
	if flags&flagTimestamp != 0 {
		if pos+8 > len(buf) {
			return p, fmt.Errorf("frame: truncated timestamp")
		}
		p.SetTimestamp(binary.BigEndian.Uint64(buf[pos : pos+8]))
		pos += 8
	}
	if flags&flagType != 0 {
		v, err := readShort()
		if err != nil {
			return p, err
		}
		p.SetType(v)
	}
	if flags&flagUserID != 0 {
		v, err := readShort()
		if err != nil {
			return p, err
		}
		p.SetUserID(v)
	}
	if flags&flagAppID != 0 {
		v, err := readShort()
		if err != nil {
			return p, err
		}
		p.SetAppID(v)
	}
	if flags&flagClusterID != 0 {
		v, err := readShort()
		if err != nil {
			return p, err
		}
		p.SetClusterID(v)
	}
	return p, nil
}
