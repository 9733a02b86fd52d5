package method

import "github.com/lavinmq/amqp091/internal/frame"

type ConfirmSelectArgs struct {
	NoWait bool
}

func (a ConfirmSelectArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	w.Bit(a.NoWait)
	return w.Bytes(), nil
}
