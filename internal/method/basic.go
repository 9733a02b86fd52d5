package method

import "github.com/lavinmq/amqp091/internal/frame"

type BasicQosArgs struct {
	PrefetchSize  uint32
	PrefetchCount uint16
	Global        bool
}

func (a BasicQosArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	w.Long(a.PrefetchSize)
	w.Short(a.PrefetchCount)
	w.Bit(a.Global)
	return w.Bytes(), nil
}

type BasicConsumeArgs struct {
	Queue       string
	ConsumerTag string
	NoLocal     bool
	NoAck       bool
	Exclusive   bool
	NoWait      bool
	Arguments   *frame.Table
}

func (a BasicConsumeArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	w.Short(0)
	if _, err := w.ShortString(a.Queue); err != nil {
		return nil, err
	}
	if _, err := w.ShortString(a.ConsumerTag); err != nil {
		return nil, err
	}
	w.Bit(a.NoLocal)
	w.Bit(a.NoAck)
	w.Bit(a.Exclusive)
	w.Bit(a.NoWait)
	if _, err := w.Table(a.Arguments); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

type BasicConsumeOkArgs struct {
	ConsumerTag string
}

func DecodeBasicConsumeOk(args []byte) (BasicConsumeOkArgs, error) {
	r := frame.NewArgReader(args)
	tag, err := r.ShortString()
	return BasicConsumeOkArgs{ConsumerTag: tag}, err
}

type BasicCancelArgs struct {
	ConsumerTag string
	NoWait      bool
}

func (a BasicCancelArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	if _, err := w.ShortString(a.ConsumerTag); err != nil {
		return nil, err
	}
	w.Bit(a.NoWait)
	return w.Bytes(), nil
}

type BasicCancelOkArgs struct {
	ConsumerTag string
}

func DecodeBasicCancelOk(args []byte) (BasicCancelOkArgs, error) {
	r := frame.NewArgReader(args)
	tag, err := r.ShortString()
	return BasicCancelOkArgs{ConsumerTag: tag}, err
}

func DecodeBasicCancel(args []byte) (BasicCancelArgs, error) {
	r := frame.NewArgReader(args)
	var a BasicCancelArgs
	var err error
	if a.ConsumerTag, err = r.ShortString(); err != nil {
		return a, err
	}
	if a.NoWait, err = r.Bit(); err != nil {
		return a, err
	}
	return a, nil
}

type BasicPublishArgs struct {
	Exchange   string
	RoutingKey string
	Mandatory  bool
	Immediate  bool
}

func (a BasicPublishArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	w.Short(0)
	if _, err := w.ShortString(a.Exchange); err != nil {
		return nil, err
	}
	if _, err := w.ShortString(a.RoutingKey); err != nil {
		return nil, err
	}
	w.Bit(a.Mandatory)
	w.Bit(a.Immediate)
	return w.Bytes(), nil
}

type BasicReturnArgs struct {
	ReplyCode  uint16
	ReplyText  string
	Exchange   string
	RoutingKey string
}

func DecodeBasicReturn(args []byte) (BasicReturnArgs, error) {
	r := frame.NewArgReader(args)
	var a BasicReturnArgs
	var err error
	if a.ReplyCode, err = r.Short(); err != nil {
		return a, err
	}
	if a.ReplyText, err = r.ShortString(); err != nil {
		return a, err
	}
	if a.Exchange, err = r.ShortString(); err != nil {
		return a, err
	}
	if a.RoutingKey, err = r.ShortString(); err != nil {
		return a, err
	}
	return a, nil
}

type BasicDeliverArgs struct {
	ConsumerTag string
	DeliveryTag uint64
	Redelivered bool
	Exchange    string
	RoutingKey  string
}

func DecodeBasicDeliver(args []byte) (BasicDeliverArgs, error) {
	r := frame.NewArgReader(args)
	var a BasicDeliverArgs
	var err error
	if a.ConsumerTag, err = r.ShortString(); err != nil {
		return a, err
	}
	if a.DeliveryTag, err = r.LongLong(); err != nil {
		return a, err
	}
	if a.Redelivered, err = r.Bit(); err != nil {
		return a, err
	}
	if a.Exchange, err = r.ShortString(); err != nil {
		return a, err
	}
	if a.RoutingKey, err = r.ShortString(); err != nil {
		return a, err
	}
	return a, nil
}

type BasicGetArgs struct {
	Queue  string
	NoAck  bool
}

func (a BasicGetArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	w.Short(0)
	if _, err := w.ShortString(a.Queue); err != nil {
		return nil, err
	}
	w.Bit(a.NoAck)
	return w.Bytes(), nil
}

type BasicGetOkArgs struct {
	DeliveryTag  uint64
	Redelivered  bool
	Exchange     string
	RoutingKey   string
	MessageCount uint32
}

func DecodeBasicGetOk(args []byte) (BasicGetOkArgs, error) {
	r := frame.NewArgReader(args)
	var a BasicGetOkArgs
	var err error
	if a.DeliveryTag, err = r.LongLong(); err != nil {
		return a, err
	}
	if a.Redelivered, err = r.Bit(); err != nil {
		return a, err
	}
	if a.Exchange, err = r.ShortString(); err != nil {
		return a, err
	}
	if a.RoutingKey, err = r.ShortString(); err != nil {
		return a, err
	}
	if a.MessageCount, err = r.Long(); err != nil {
		return a, err
	}
	return a, nil
}

type BasicAckArgs struct {
	DeliveryTag uint64
	Multiple    bool
}

func (a BasicAckArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	w.LongLong(a.DeliveryTag)
	w.Bit(a.Multiple)
	return w.Bytes(), nil
}

func DecodeBasicAck(args []byte) (BasicAckArgs, error) {
	r := frame.NewArgReader(args)
	var a BasicAckArgs
	var err error
	if a.DeliveryTag, err = r.LongLong(); err != nil {
		return a, err
	}
	if a.Multiple, err = r.Bit(); err != nil {
		return a, err
	}
	return a, nil
}

type BasicNackArgs struct {
	DeliveryTag uint64
	Multiple    bool
	Requeue     bool
}

func (a BasicNackArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	w.LongLong(a.DeliveryTag)
	w.Bit(a.Multiple)
	w.Bit(a.Requeue)
	return w.Bytes(), nil
}

func DecodeBasicNack(args []byte) (BasicNackArgs, error) {
	r := frame.NewArgReader(args)
	var a BasicNackArgs
	var err error
	if a.DeliveryTag, err = r.LongLong(); err != nil {
		return a, err
	}
	if a.Multiple, err = r.Bit(); err != nil {
		return a, err
	}
	if a.Requeue, err = r.Bit(); err != nil {
		return a, err
	}
	return a, nil
}

type BasicRejectArgs struct {
	DeliveryTag uint64
	Requeue     bool
}

func (a BasicRejectArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	w.LongLong(a.DeliveryTag)
	w.Bit(a.Requeue)
	return w.Bytes(), nil
}

type BasicRecoverArgs struct {
	Requeue bool
}

func (a BasicRecoverArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	w.Bit(a.Requeue)
	return w.Bytes(), nil
}
