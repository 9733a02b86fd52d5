package method

import "github.com/lavinmq/amqp091/internal/frame"

// ConnectionStartArgs is Connection.Start, sent by the server.
type ConnectionStartArgs struct {
	VersionMajor     uint8
	VersionMinor     uint8
	ServerProperties *frame.Table
	Mechanisms       string
	Locales          string
}

func DecodeConnectionStart(args []byte) (ConnectionStartArgs, error) {
	r := frame.NewArgReader(args)
	var a ConnectionStartArgs
	var err error
	if a.VersionMajor, err = r.Octet(); err != nil {
		return a, err
	}
	if a.VersionMinor, err = r.Octet(); err != nil {
		return a, err
	}
	if a.ServerProperties, err = r.Table(); err != nil {
		return a, err
	}
	if a.Mechanisms, err = r.LongString(); err != nil {
		return a, err
	}
	if a.Locales, err = r.LongString(); err != nil {
		return a, err
	}
	return a, nil
}

// ConnectionStartOkArgs is Connection.StartOk, sent by the client.
type ConnectionStartOkArgs struct {
	ClientProperties *frame.Table
	Mechanism        string
	Response         string
	Locale           string
}

func (a ConnectionStartOkArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	if _, err := w.Table(a.ClientProperties); err != nil {
		return nil, err
	}
	if _, err := w.ShortString(a.Mechanism); err != nil {
		return nil, err
	}
	w.LongString(a.Response)
	if _, err := w.ShortString(a.Locale); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// ConnectionTuneArgs is Connection.Tune, sent by the server.
type ConnectionTuneArgs struct {
	ChannelMax uint16
	FrameMax   uint32
	Heartbeat  uint16
}

func DecodeConnectionTune(args []byte) (ConnectionTuneArgs, error) {
	r := frame.NewArgReader(args)
	var a ConnectionTuneArgs
	var err error
	if a.ChannelMax, err = r.Short(); err != nil {
		return a, err
	}
	if a.FrameMax, err = r.Long(); err != nil {
		return a, err
	}
	if a.Heartbeat, err = r.Short(); err != nil {
		return a, err
	}
	return a, nil
}

// ConnectionTuneOkArgs is Connection.TuneOk, sent by the client.
type ConnectionTuneOkArgs ConnectionTuneArgs

func (a ConnectionTuneOkArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	w.Short(a.ChannelMax)
	w.Long(a.FrameMax)
	w.Short(a.Heartbeat)
	return w.Bytes(), nil
}

// ConnectionOpenArgs is Connection.Open, sent by the client.
type ConnectionOpenArgs struct {
	VirtualHost string
}

func (a ConnectionOpenArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	if _, err := w.ShortString(a.VirtualHost); err != nil {
		return nil, err
	}
	// reserved-1 (capabilities, shortstr) and reserved-2 (insist, bit)
	if _, err := w.ShortString(""); err != nil {
		return nil, err
	}
	w.Bit(false)
	return w.Bytes(), nil
}

// ConnectionCloseArgs is Connection.Close, sent by either peer.
type ConnectionCloseArgs struct {
	ReplyCode uint16
	ReplyText string
	ClassID   uint16
	MethodID  uint16
}

func (a ConnectionCloseArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	w.Short(a.ReplyCode)
	if _, err := w.ShortString(a.ReplyText); err != nil {
		return nil, err
	}
	w.Short(a.ClassID)
	w.Short(a.MethodID)
	return w.Bytes(), nil
}

func DecodeConnectionClose(args []byte) (ConnectionCloseArgs, error) {
	r := frame.NewArgReader(args)
	var a ConnectionCloseArgs
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

// ConnectionBlockedArgs is Connection.Blocked, sent by the server.
type ConnectionBlockedArgs struct {
	Reason string
}

func DecodeConnectionBlocked(args []byte) (ConnectionBlockedArgs, error) {
	r := frame.NewArgReader(args)
	reason, err := r.ShortString()
	return ConnectionBlockedArgs{Reason: reason}, err
}

// ConnectionUpdateSecretArgs is Connection.UpdateSecret, sent by the
// client (RabbitMQ's OAuth2 token-refresh extension).
type ConnectionUpdateSecretArgs struct {
	NewSecret string
	Reason    string
}

func (a ConnectionUpdateSecretArgs) Encode() ([]byte, error) {
	w := &frame.ArgWriter{}
	w.LongString(a.NewSecret)
	if _, err := w.ShortString(a.Reason); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}
