package method

import "github.com/lavinmq/amqp091/internal/frame"

// ChannelOpenArgs is Channel.Open, sent by the client.
type ChannelOpenArgs struct{}

func (a ChannelOpenArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	if _, err := w.ShortString(""); err != nil { // reserved-1
		return nil, err
	}
	return w.Bytes(), nil
}

// ChannelCloseArgs is Channel.Close, sent by either peer.
type ChannelCloseArgs struct {
	ReplyCode uint16
	ReplyText string
	ClassID   uint16
	MethodID  uint16
}

func (a ChannelCloseArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	w.Short(a.ReplyCode)
	if _, err := w.ShortString(a.ReplyText); err != nil {
		return nil, err
	}
	w.Short(a.ClassID)
	w.Short(a.MethodID)
	return w.Bytes(), nil
}

func DecodeChannelClose(args []byte) (ChannelCloseArgs, error) {
	r := frame.NewArgReader(args)
	var a ChannelCloseArgs
	var err error
	if a.ReplyCode, err = r.Short(); err != nil {
		return a, err
	}
	if a.ReplyText, err = r.ShortString(); err != nil {
		return a, err
	}
	if a.ClassID, err = r.Short(); err != nil {
		return a, err
	}
	if a.MethodID, err = r.Short(); err != nil {
		return a, err
	}
	return a, nil
}
