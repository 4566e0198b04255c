package client

import (
	"errors"
	"fmt"

	"github.com/loganszeto/jsonstore-go/protocol"
)

var (
	// ErrNotConnected is returned by every command issued before Connect or
	// after Close.
	ErrNotConnected = errors.New("not connected")

	// ErrAuthConfiguration means the server asked for a password and none
	// was configured.
	ErrAuthConfiguration = errors.New("authentication required but no password available")

	// ErrTimeout matches every *TimeoutError via errors.Is.
	ErrTimeout = errors.New("operation timed out")

	// ErrInvalidArgument wraps keys and values that cannot be put on the wire.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidConfig is returned by Connect for unusable Options.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ConnectionError reports a failed dial.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError reports a read or write that missed its deadline.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

func (e *TimeoutError) Timeout() bool { return true }

// IOError reports a broken channel: EOF, reset, short write.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// AuthenticationError carries the server's reply to a rejected AUTH.
type AuthenticationError struct {
	Response string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Response)
}

// ProtocolError reports a reply outside the grammar expected for a verb.
type ProtocolError struct {
	Verb    protocol.Verb
	Reply   string
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error on %s: %s (reply %q)", e.Verb, e.Message, e.Reply)
}
