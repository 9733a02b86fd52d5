package amqp091

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// URI is a parsed AMQP connection string.
type URI struct {
	UseTLS           bool
	Host             string
	Port             int
	Username         string
	Password         string
	Vhost            string
	Heartbeat        time.Duration
	ChannelMax       uint16
	FrameMax         uint32
	ConnectTimeout   time.Duration
	KeepaliveIdle    time.Duration
	KeepaliveInterval time.Duration
	KeepaliveCount   int
	VerifyPeer       bool
	ConnectionName   string
	ReconnectInterval time.Duration
}

const (
	defaultAMQPPort  = 5672
	defaultAMQPSPort = 5671
)

// ParseURI parses an amqp:// or amqps:// connection string, applying
// scheme defaults and recognized query options. The AMQP_PORT
// environment variable overrides the scheme default port when the URI
// does not specify one explicitly.
func ParseURI(rawURI string) (URI, error) {
	u, err := url.Parse(rawURI)
	if err != nil {
		return URI{}, &ArgumentError{Msg: fmt.Sprintf("invalid AMQP URI: %v", err)}
	}

	uri := URI{
		Host:              "localhost",
		Username:          "guest",
		Password:          "guest",
		Vhost:             "/",
		ChannelMax:        2048,
		FrameMax:          131072,
		ConnectTimeout:    30 * time.Second,
		KeepaliveIdle:     60 * time.Second,
		KeepaliveInterval: 10 * time.Second,
		KeepaliveCount:    3,
		VerifyPeer:        true,
		ReconnectInterval: time.Second,
	}

	switch u.Scheme {
	case "amqp":
		uri.UseTLS = false
	case "amqps":
		uri.UseTLS = true
	case "":
		// a scheme-less URI such as "//host:port" is treated as plain amqp
	default:
		return URI{}, &ArgumentError{Msg: fmt.Sprintf("unsupported URI scheme %q", u.Scheme)}
	}

	if u.User != nil {
		uri.Username = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			uri.Password = pw
		}
	}

	host := u.Hostname()
	if host != "" {
		uri.Host = host
	}

	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return URI{}, &ArgumentError{Msg: fmt.Sprintf("invalid port %q", portStr)}
		}
		uri.Port = p
	} else if envPort := os.Getenv("AMQP_PORT"); envPort != "" {
		p, err := strconv.Atoi(envPort)
		if err != nil {
			return URI{}, &ArgumentError{Msg: fmt.Sprintf("invalid AMQP_PORT %q", envPort)}
		}
		uri.Port = p
	} else if uri.UseTLS {
		uri.Port = defaultAMQPSPort
	} else {
		uri.Port = defaultAMQPPort
	}

	if u.Path != "" && u.Path != "/" {
		vhost, err := url.PathUnescape(strings.TrimPrefix(u.Path, "/"))
		if err != nil {
			return URI{}, &ArgumentError{Msg: fmt.Sprintf("invalid vhost path: %v", err)}
		}
		uri.Vhost = vhost
	} else if u.Path == "" {
		// keep default "/"
	}

	q := u.Query()
	if err := applyURIOptions(&uri, q); err != nil {
		return URI{}, err
	}

	return uri, nil
}

func applyURIOptions(uri *URI, q url.Values) error {
	if v := q.Get("heartbeat"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return &ArgumentError{Msg: fmt.Sprintf("invalid heartbeat option %q", v)}
		}
		uri.Heartbeat = time.Duration(secs) * time.Second
	}
	if v := q.Get("channel_max"); v != "" {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return &ArgumentError{Msg: fmt.Sprintf("invalid channel_max option %q", v)}
		}
		uri.ChannelMax = uint16(n)
	}
	if v := q.Get("frame_max"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return &ArgumentError{Msg: fmt.Sprintf("invalid frame_max option %q", v)}
		}
		uri.FrameMax = uint32(n)
	}
	if v := q.Get("connect_timeout"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return &ArgumentError{Msg: fmt.Sprintf("invalid connect_timeout option %q", v)}
		}
		uri.ConnectTimeout = time.Duration(secs) * time.Second
	}
	if v := q.Get("keepalive"); v != "" {
		parts := strings.Split(v, ":")
		if len(parts) != 3 {
			return &ArgumentError{Msg: fmt.Sprintf("invalid keepalive option %q, want idle:interval:count", v)}
		}
		idle, err1 := strconv.Atoi(parts[0])
		interval, err2 := strconv.Atoi(parts[1])
		count, err3 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil || err3 != nil {
			return &ArgumentError{Msg: fmt.Sprintf("invalid keepalive option %q", v)}
		}
		uri.KeepaliveIdle = time.Duration(idle) * time.Second
		uri.KeepaliveInterval = time.Duration(interval) * time.Second
		uri.KeepaliveCount = count
	}
	if v := q.Get("verify_peer"); v != "" {
		switch strings.ToLower(v) {
		case "false", "none", "0":
			uri.VerifyPeer = false
		}
	}
	if v := q.Get("connection_name"); v != "" {
		uri.ConnectionName = v
	}
	if v := q.Get("reconnect_interval"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return &ArgumentError{Msg: fmt.Sprintf("invalid reconnect_interval option %q", v)}
		}
		uri.ReconnectInterval = time.Duration(secs) * time.Second
	}
	return nil
}

// Address returns the host:port pair suitable for net.Dial.
func (u URI) Address() string {
	return net.JoinHostPort(u.Host, strconv.Itoa(u.Port))
}
