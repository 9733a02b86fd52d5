package method

import "github.com/lavinmq/amqp091/internal/frame"

type ExchangeDeclareArgs struct {
	Exchange   string
	Type       string
	Passive    bool
	Durable    bool
	AutoDelete bool
	Internal   bool
	NoWait     bool
	Arguments  *frame.Table
}

func (a ExchangeDeclareArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	w.Short(0) // reserved-1 (ticket)
	if _, err := w.ShortString(a.Exchange); err != nil {
		return nil, err
	}
	if _, err := w.ShortString(a.Type); err != nil {
		return nil, err
	}
	w.Bit(a.Passive)
	w.Bit(a.Durable)
	w.Bit(a.AutoDelete)
	w.Bit(a.Internal)
	w.Bit(a.NoWait)
	if _, err := w.Table(a.Arguments); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

type ExchangeDeleteArgs struct {
	Exchange string
	IfUnused bool
	NoWait   bool
}

func (a ExchangeDeleteArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	w.Short(0)
	if _, err := w.ShortString(a.Exchange); err != nil {
		return nil, err
	}
	w.Bit(a.IfUnused)
	w.Bit(a.NoWait)
	return w.Bytes(), nil
}

type ExchangeBindArgs struct {
	Destination string
	Source      string
	RoutingKey  string
	NoWait      bool
	Arguments   *frame.Table
}

func (a ExchangeBindArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	w.Short(0)
	if _, err := w.ShortString(a.Destination); err != nil {
		return nil, err
	}
	if _, err := w.ShortString(a.Source); err != nil {
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

// ExchangeUnbindArgs mirrors ExchangeBindArgs; AMQP reuses the same
// argument layout for unbind.
type ExchangeUnbindArgs ExchangeBindArgs

func (a ExchangeUnbindArgs) Encode() ([]byte, error) {
	return ExchangeBindArgs(a).Encode()
}
