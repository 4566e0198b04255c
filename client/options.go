package client

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/loganszeto/jsonstore-go/protocol"
)

const (
	DefaultHost    = "localhost"
	DefaultPort    = 5555
	DefaultTimeout = 5 * time.Second
)

// Recorder receives per-command observations. Implementations must be safe
// for concurrent use when shared between connections.
type Recorder interface {
	RecordCommand(verb protocol.Verb, elapsed time.Duration, err error)
	RecordGet(hit bool)
	RecordAuthFailure()
}

type Options struct {
	Host     string
	Port     int
	Password string
	// Timeout bounds the dial and every individual read and write.
	Timeout time.Duration

	Logger   hclog.Logger
	Recorder Recorder
}

func (o Options) withDefaults() Options {
	if o.Host == "" {
		o.Host = DefaultHost
	}
	if o.Port == 0 {
		o.Port = DefaultPort
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Logger == nil {
		o.Logger = hclog.NewNullLogger()
	}
	return o
}

func (o Options) validate() error {
	if o.Port < 1 || o.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, o.Port)
	}
	if strings.ContainsAny(o.Host, " \r\n") {
		return fmt.Errorf("%w: host %q", ErrInvalidConfig, o.Host)
	}
	if strings.ContainsAny(o.Password, "\r\n") {
		return fmt.Errorf("%w: password contains a line terminator", ErrInvalidConfig)
	}
	return nil
}

// Addr returns the host:port dial address.
func (o Options) Addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}
