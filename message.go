package amqp091

import "github.com/lavinmq/amqp091/internal/frame"

// Publishing is the message an application hands to Channel.Publish.
type Publishing struct {
	ContentType     string
	ContentEncoding string
	Headers         *frame.Table
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
	Body            []byte
}

func (p Publishing) toWireProperties() frame.Properties {
	var props frame.Properties
	if p.ContentType != "" {
		props.SetContentType(p.ContentType)
	}
	if p.ContentEncoding != "" {
		props.SetContentEncoding(p.ContentEncoding)
	}
	if p.Headers != nil {
		props.SetHeaders(p.Headers)
	}
	if p.DeliveryMode != 0 {
		props.SetDeliveryMode(p.DeliveryMode)
	}
	if p.Priority != 0 {
		props.SetPriority(p.Priority)
	}
	if p.CorrelationID != "" {
		props.SetCorrelationID(p.CorrelationID)
	}
	if p.ReplyTo != "" {
		props.SetReplyTo(p.ReplyTo)
	}
	if p.Expiration != "" {
		props.SetExpiration(p.Expiration)
	}
	if p.MessageID != "" {
		props.SetMessageID(p.MessageID)
	}
	if p.Timestamp != 0 {
		props.SetTimestamp(p.Timestamp)
	}
	if p.Type != "" {
		props.SetType(p.Type)
	}
	if p.UserID != "" {
		props.SetUserID(p.UserID)
	}
	if p.AppID != "" {
		props.SetAppID(p.AppID)
	}
	return props
}

func fromWireProperties(props frame.Properties) Publishing {
	return Publishing{
		ContentType:     props.ContentType,
		ContentEncoding: props.ContentEncoding,
		Headers:         props.Headers,
		DeliveryMode:    props.DeliveryMode,
		Priority:        props.Priority,
		CorrelationID:   props.CorrelationID,
		ReplyTo:         props.ReplyTo,
		Expiration:      props.Expiration,
		MessageID:       props.MessageID,
		Timestamp:       props.Timestamp,
		Type:            props.Type,
		UserID:          props.UserID,
		AppID:           props.AppID,
	}
}

// Delivery is a message handed to a Consumer, via Basic.Deliver.
type Delivery struct {
	Publishing
	ConsumerTag string
	DeliveryTag uint64
	Redelivered bool
	Exchange    string
	RoutingKey  string

	channel *Channel
}

// Ack acknowledges this delivery, optionally acking every prior
// unacked delivery on the channel too (multiple).
func (d Delivery) Ack(multiple bool) error {
	return d.channel.Ack(d.DeliveryTag, multiple)
}

// Nack negatively acknowledges this delivery.
func (d Delivery) Nack(multiple, requeue bool) error {
	return d.channel.Nack(d.DeliveryTag, multiple, requeue)
}

// Reject rejects this single delivery.
func (d Delivery) Reject(requeue bool) error {
	return d.channel.Reject(d.DeliveryTag, requeue)
}

// Return is a published message the broker could not route, handed
// back via Basic.Return.
type Return struct {
	Publishing
	ReplyCode uint16
	ReplyText string
	Exchange  string
	RoutingKey string
}

// Confirmation is a publisher-confirm outcome for one delivery tag.
type Confirmation struct {
	DeliveryTag uint64
	Ack         bool
}

// partialMessageKind distinguishes what a reassembling message will
// become once its body completes.
type partialMessageKind int

const (
	partialNone partialMessageKind = iota
	partialDeliver
	partialReturn
	partialGetOk
)

// partialMessage accumulates a Header frame's properties and zero or
// more Body frames until body_size bytes have arrived.
type partialMessage struct {
	kind       partialMessageKind
	deliver    deliverMeta
	ret        returnMeta
	getOk      getOkMeta
	props      frame.Properties
	expected   uint64
	body       []byte
	sawHeader  bool
}

type deliverMeta struct {
	consumerTag string
	deliveryTag uint64
	redelivered bool
	exchange    string
	routingKey  string
}

type returnMeta struct {
	replyCode  uint16
	replyText  string
	exchange   string
	routingKey string
}

type getOkMeta struct {
	deliveryTag  uint64
	redelivered  bool
	exchange     string
	routingKey   string
	messageCount uint32
}

func (pm *partialMessage) reset() { *pm = partialMessage{} }

func (pm *partialMessage) complete() bool {
	return pm.sawHeader && uint64(len(pm.body)) >= pm.expected
}
