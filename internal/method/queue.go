package method

import "github.com/lavinmq/amqp091/internal/frame"

type QueueDeclareArgs struct {
	Queue      string
	Passive    bool
	Durable    bool
	Exclusive  bool
	AutoDelete bool
	NoWait     bool
	Arguments  *frame.Table
}

func (a QueueDeclareArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	w.Short(0)
	if _, err := w.ShortString(a.Queue); err != nil {
		return nil, err
	}
	w.Bit(a.Passive)
	w.Bit(a.Durable)
	w.Bit(a.Exclusive)
	w.Bit(a.AutoDelete)
	w.Bit(a.NoWait)
	if _, err := w.Table(a.Arguments); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

type QueueDeclareOkArgs struct {
	Queue         string
	MessageCount  uint32
	ConsumerCount uint32
}

func DecodeQueueDeclareOk(args []byte) (QueueDeclareOkArgs, error) {
	r := frame.NewArgReader(args)
	var a QueueDeclareOkArgs
	var err error
	if a.Queue, err = r.ShortString(); err != nil {
		return a, err
	}
	if a.MessageCount, err = r.Long(); err != nil {
		return a, err
	}
	if a.ConsumerCount, err = r.Long(); err != nil {
		return a, err
	}
	return a, nil
}

type QueueBindArgs struct {
	Queue      string
	Exchange   string
	RoutingKey string
	NoWait     bool
	Arguments  *frame.Table
}

func (a QueueBindArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	w.Short(0)
	if _, err := w.ShortString(a.Queue); err != nil {
		return nil, err
	}
	if _, err := w.ShortString(a.Exchange); err != nil {
		return nil, err
	}
	if _, err := w.ShortString(a.RoutingKey); err != nil {
		return nil, err
	}
	w.Bit(a.NoWait)
	if _, err := w.Table(a.Arguments); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// QueueUnbindArgs: same layout as QueueBindArgs minus no-wait.
type QueueUnbindArgs struct {
	Queue      string
	Exchange   string
	RoutingKey string
	Arguments  *frame.Table
}

func (a QueueUnbindArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	w.Short(0)
	if _, err := w.ShortString(a.Queue); err != nil {
		return nil, err
	}
	if _, err := w.ShortString(a.Exchange); err != nil {
		return nil, err
	}
	if _, err := w.ShortString(a.RoutingKey); err != nil {
		return nil, err
	}
	if _, err := w.Table(a.Arguments); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

type QueuePurgeArgs struct {
	Queue  string
	NoWait bool
}

func (a QueuePurgeArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	w.Short(0)
	if _, err := w.ShortString(a.Queue); err != nil {
		return nil, err
	}
	w.Bit(a.NoWait)
	return w.Bytes(), nil
}

type QueuePurgeOkArgs struct {
	MessageCount uint32
}

func DecodeQueuePurgeOk(args []byte) (QueuePurgeOkArgs, error) {
	r := frame.NewArgReader(args)
	n, err := r.Long()
	return QueuePurgeOkArgs{MessageCount: n}, err
}

type QueueDeleteArgs struct {
	Queue    string
	IfUnused bool
	IfEmpty  bool
	NoWait   bool
}

func (a QueueDeleteArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	w.Short(0)
	if _, err := w.ShortString(a.Queue); err != nil {
		return nil, err
	}
	w.Bit(a.IfUnused)
	w.Bit(a.IfEmpty)
	w.Bit(a.NoWait)
	return w.Bytes(), nil
}

type QueueDeleteOkArgs struct {
	MessageCount uint32
}

func DecodeQueueDeleteOk(args []byte) (QueueDeleteOkArgs, error) {
	r := frame.NewArgReader(args)
	n, err := r.Long()
	return QueueDeleteOkArgs{MessageCount: n}, err
}
